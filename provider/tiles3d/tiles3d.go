package tiles3d

import (
	"context"

	"github.com/aukilabs/tessera/models"
	"github.com/aukilabs/tessera/provider"
)

const (
	Protocol = "tiles3d"

	// StateKey is the layer module state key under which the root tileset
	// is stored.
	StateKey = "tiles3d.tileset"
)

// Provider loads 3D Tiles tilesets. Contents pointing to a tileset are
// decoded into a *Tileset. Other contents are returned as raw bytes.
type Provider struct {
	Client *provider.Client
}

// PreprocessLayer loads the root tileset of the layer.
func (p *Provider) PreprocessLayer(ctx context.Context, l *models.Layer) error {
	data, err := p.Client.Get(ctx, Protocol, l.URL)
	if err != nil {
		return err
	}

	ts, err := Decode(data, l.URL)
	if err != nil {
		return err
	}

	l.SetModuleState(StateKey, ts)
	return nil
}

func (p *Provider) ExecuteCommand(ctx context.Context, cmd *models.Command) (models.Resource, error) {
	data, err := p.Client.Fetch(ctx, cmd)
	if err != nil {
		return nil, err
	}

	if IsTilesetURL(cmd.URL) {
		return Decode(data, cmd.URL)
	}
	return data, nil
}
