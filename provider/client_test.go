package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aukilabs/tessera/models"
	"github.com/stretchr/testify/require"
)

func TestClient(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("tile"))
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	c := NewClient(nil, time.Second*5)

	t.Run("get", func(t *testing.T) {
		body, err := c.Get(context.Background(), "test", server.URL+"/ok")
		require.NoError(t, err)
		require.Equal(t, "tile", string(body))
	})

	t.Run("not found", func(t *testing.T) {
		_, err := c.Get(context.Background(), "test", server.URL+"/missing")
		require.Error(t, err)
	})

	t.Run("body too large", func(t *testing.T) {
		c := NewClient(nil, time.Second)
		c.MaxBodySize = 2

		_, err := c.Get(context.Background(), "test", server.URL+"/ok")
		require.Error(t, err)
	})

	t.Run("fetch", func(t *testing.T) {
		body, err := c.Fetch(context.Background(), &models.Command{
			Protocol: "test",
			URL:      server.URL + "/ok",
		})
		require.NoError(t, err)
		require.Equal(t, "tile", string(body))
	})

	t.Run("cancelled command", func(t *testing.T) {
		cmd := &models.Command{
			Protocol: "test",
			URL:      server.URL + "/slow",
		}

		go func() {
			time.Sleep(time.Millisecond * 50)
			cmd.Cancel()
		}()

		_, err := c.Fetch(context.Background(), cmd)
		require.True(t, models.IsCancelled(err))
	})
}
