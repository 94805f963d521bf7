package tms

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aukilabs/tessera/models"
	"github.com/aukilabs/tessera/provider"
	"github.com/stretchr/testify/require"
)

func TestProvider(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(r.URL.Path))
	}))
	defer server.Close()

	p := &Provider{Client: provider.NewClient(nil, time.Second*5)}

	t.Run("preprocess", func(t *testing.T) {
		l, err := models.NewLayer(1, models.LayerOptions{
			Kind: "globe",
			URL:  server.URL + "/{z}/{x}/{y}.png",
		})
		require.NoError(t, err)
		require.NoError(t, p.PreprocessLayer(context.Background(), l))

		l.URL = server.URL + "/{z}/{x}.png"
		require.Error(t, p.PreprocessLayer(context.Background(), l))
	})

	t.Run("execute", func(t *testing.T) {
		res, err := p.ExecuteCommand(context.Background(), &models.Command{
			Protocol: Protocol,
			URL:      server.URL + "/1/2/3.png",
		})
		require.NoError(t, err)
		require.Equal(t, []byte("/1/2/3.png"), res)
	})
}
