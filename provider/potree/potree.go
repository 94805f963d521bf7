package potree

import (
	"context"
	"net/url"
	"path"
	"strings"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/tessera/models"
	"github.com/aukilabs/tessera/provider"
)

const (
	Protocol = "potree"

	// StateKey is the layer module state key under which the cloud
	// description is stored.
	StateKey = "potree.cloud"
)

// Provider loads Potree 1.x point clouds. Hierarchy chunks are decoded into
// []HierarchyEntry. Point payloads are returned as raw bytes.
type Provider struct {
	Client *provider.Client
}

// PreprocessLayer loads the cloud.js of the layer.
func (p *Provider) PreprocessLayer(ctx context.Context, l *models.Layer) error {
	data, err := p.Client.Get(ctx, Protocol, l.URL)
	if err != nil {
		return err
	}

	c, err := DecodeCloud(data, l.URL)
	if err != nil {
		return err
	}

	l.SetModuleState(StateKey, c)
	return nil
}

func (p *Provider) ExecuteCommand(ctx context.Context, cmd *models.Command) (models.Resource, error) {
	data, err := p.Client.Fetch(ctx, cmd)
	if err != nil {
		return nil, err
	}

	u, err := url.Parse(cmd.URL)
	if err != nil {
		return nil, errors.New("parsing command url failed").
			WithTag("url", cmd.URL).
			Wrap(err)
	}

	if name, ok := strings.CutSuffix(path.Base(u.Path), ".hrc"); ok {
		return ParseHierarchy(name, data)
	}
	return data, nil
}
