package tms

import (
	"context"
	"net/url"
	"strings"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/tessera/models"
	"github.com/aukilabs/tessera/provider"
)

const Protocol = "tms"

// Provider loads the tiles of quadtree layers whose URL is a {z}/{x}/{y}
// template. Tiles are returned as raw bytes.
type Provider struct {
	Client *provider.Client
}

func (p *Provider) PreprocessLayer(ctx context.Context, l *models.Layer) error {
	for _, placeholder := range []string{"{x}", "{y}", "{z}"} {
		if !strings.Contains(l.URL, placeholder) {
			return errors.New("url template placeholder missing").
				WithTag("url", l.URL).
				WithTag("placeholder", placeholder)
		}
	}

	if _, err := url.Parse(l.URL); err != nil {
		return errors.New("parsing url template failed").
			WithTag("url", l.URL).
			Wrap(err)
	}
	return nil
}

func (p *Provider) ExecuteCommand(ctx context.Context, cmd *models.Command) (models.Resource, error) {
	return p.Client.Fetch(ctx, cmd)
}
