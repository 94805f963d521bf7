package tiles3d

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aukilabs/tessera/geometry"
	"github.com/aukilabs/tessera/models"
	"github.com/aukilabs/tessera/provider"
	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/require"
)

const testTileset = `{
	"asset": {"version": "1.0"},
	"geometricError": 500,
	"root": {
		"boundingVolume": {"box": [0, 0, 0, 100, 0, 0, 0, 100, 0, 0, 0, 10]},
		"geometricError": 100,
		"refine": "REPLACE",
		"transform": [1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 1000, 0, 0, 1],
		"content": {"uri": "root.b3dm"},
		"children": [
			{
				"boundingVolume": {"sphere": [50, 50, 0, 50]},
				"geometricError": 10,
				"content": {"uri": "external/tileset.json"}
			}
		]
	}
}`

func newTestServer() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/data/tileset.json", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(testTileset))
	})
	mux.HandleFunc("/data/external/tileset.json", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"asset": {"version": "1.0"}, "root": {"boundingVolume": {"sphere": [0, 0, 0, 1]}, "geometricError": 1}}`))
	})
	mux.HandleFunc("/data/root.b3dm", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("b3dm"))
	})
	mux.HandleFunc("/data/invalid.json", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"root": {}}`))
	})
	return httptest.NewServer(mux)
}

func TestProvider(t *testing.T) {
	server := newTestServer()
	defer server.Close()

	p := &Provider{Client: provider.NewClient(nil, time.Second*5)}

	l, err := models.NewLayer(1, models.LayerOptions{
		Kind: "tiles3d",
		URL:  server.URL + "/data/tileset.json",
	})
	require.NoError(t, err)

	t.Run("preprocess", func(t *testing.T) {
		require.NoError(t, p.PreprocessLayer(context.Background(), l))

		state, ok := l.ModuleState(StateKey)
		require.True(t, ok)

		ts := state.(*Tileset)
		require.Equal(t, "1.0", ts.Asset.Version)
		require.Equal(t, 100.0, ts.Root.GeometricError)
		require.Len(t, ts.Root.Children, 1)

		uri, err := ts.Resolve(ts.Root.Content.Location())
		require.NoError(t, err)
		require.Equal(t, server.URL+"/data/root.b3dm", uri)
	})

	t.Run("invalid tileset", func(t *testing.T) {
		l, err := models.NewLayer(2, models.LayerOptions{
			Kind: "tiles3d",
			URL:  server.URL + "/data/invalid.json",
		})
		require.NoError(t, err)
		require.Error(t, p.PreprocessLayer(context.Background(), l))
	})

	t.Run("content", func(t *testing.T) {
		res, err := p.ExecuteCommand(context.Background(), &models.Command{
			Protocol: Protocol,
			URL:      server.URL + "/data/root.b3dm",
		})
		require.NoError(t, err)
		require.Equal(t, []byte("b3dm"), res)
	})

	t.Run("external tileset", func(t *testing.T) {
		res, err := p.ExecuteCommand(context.Background(), &models.Command{
			Protocol: Protocol,
			URL:      server.URL + "/data/external/tileset.json",
		})
		require.NoError(t, err)

		ts, ok := res.(*Tileset)
		require.True(t, ok)
		require.Equal(t, 1.0, ts.Root.GeometricError)
		require.Equal(t, "/data/external/tileset.json", ts.BaseURL.Path)
	})
}

func TestBoundingVolume(t *testing.T) {
	translation := geometry.Translation(r3.Vector{X: 1000})

	t.Run("box", func(t *testing.T) {
		v, err := BoundingVolume{Box: []float64{0, 0, 0, 1, 0, 0, 0, 2, 0, 0, 0, 3}}.Volume(translation)
		require.NoError(t, err)
		require.Equal(t, r3.Vector{X: 1000}, v.Center())
	})

	t.Run("sphere", func(t *testing.T) {
		v, err := BoundingVolume{Sphere: []float64{1, 2, 3, 4}}.Volume(geometry.Identity())
		require.NoError(t, err)
		require.Equal(t, r3.Vector{X: 1, Y: 2, Z: 3}, v.Center())
		require.Equal(t, 4.0, v.Radius())
	})

	t.Run("region", func(t *testing.T) {
		v, err := BoundingVolume{Region: []float64{0, 0, 0.01, 0.01, 0, 100}}.Volume(translation)
		require.NoError(t, err)
		_, ok := v.(*geometry.Region)
		require.True(t, ok)
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := BoundingVolume{Box: []float64{1, 2}}.Volume(geometry.Identity())
		require.Error(t, err)
	})
}

func TestTileMatrix(t *testing.T) {
	m, err := Tile{}.Matrix()
	require.NoError(t, err)
	require.True(t, m.IsIdentity())

	m, err = Tile{Transform: []float64{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 5, 6, 7, 1}}.Matrix()
	require.NoError(t, err)
	require.Equal(t, r3.Vector{X: 5, Y: 6, Z: 7}, m.TransformPoint(r3.Vector{}))

	_, err = Tile{Transform: []float64{1}}.Matrix()
	require.Error(t, err)
}

func TestIsTilesetURL(t *testing.T) {
	require.True(t, IsTilesetURL("http://localhost/a/tileset.json"))
	require.True(t, IsTilesetURL("http://localhost/a/tileset.JSON?v=1"))
	require.False(t, IsTilesetURL("http://localhost/a/tile.b3dm"))
}
