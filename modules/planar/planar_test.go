package planar

import (
	"math"
	"testing"
	"time"

	"github.com/aukilabs/tessera/featureflag"
	"github.com/aukilabs/tessera/geometry"
	"github.com/aukilabs/tessera/models"
	"github.com/golang/geo/r3"
	"github.com/paulmach/orb/maptile"
	"github.com/stretchr/testify/require"
)

func newTestFrameContext(direction r3.Vector) *models.FrameContext {
	return models.NewFrameContext(1, time.Now(), geometry.Camera{
		Position:  r3.Vector{Z: 1e7},
		Direction: direction,
		Up:        r3.Vector{Y: 1},
		FovY:      math.Pi / 3,
		Width:     800,
		Height:    600,
		Near:      1,
		Far:       1e8,
	}, nil, featureflag.New(nil))
}

func TestTile(t *testing.T) {
	root := Tile{Tile: maptile.New(0, 0, 0)}

	b := root.MercatorBound()
	require.InDelta(t, -20037508.34, b.Min[0], 0.01)
	require.InDelta(t, 20037508.34, b.Max[0], 0.01)
	require.InDelta(t, 156543.03, root.GeometricError(), 0.01)

	child := Tile{Tile: maptile.New(1, 0, 1)}
	require.InDelta(t, root.GeometricError()/2, child.GeometricError(), 1e-6)

	x, y, z := child.TileXYZ()
	require.Equal(t, []uint32{1, 0, 1}, []uint32{x, y, z})
	require.InDelta(t, 0, child.LonLatBound().Min[0], 1e-9)
}

func TestModule(t *testing.T) {
	m := &Module{}
	l, err := models.NewLayer(1, models.LayerOptions{
		Kind: "planar",
		URL:  "http://localhost/{z}/{x}/{y}.png",
	})
	require.NoError(t, err)
	require.NoError(t, m.Init(l))

	root := l.Roots()[0]
	require.Equal(t, "0/0/0", root.Name)

	t.Run("cull", func(t *testing.T) {
		require.False(t, m.Cull(newTestFrameContext(r3.Vector{Z: -1}), l, root))
		require.True(t, m.Cull(newTestFrameContext(r3.Vector{Z: 1}), l, root))
	})

	t.Run("subdivide", func(t *testing.T) {
		res, err := m.Subdivide(newTestFrameContext(r3.Vector{Z: -1}), l, root).Result()
		require.NoError(t, err)

		var names []string
		for _, c := range res.([]*models.Node) {
			names = append(names, c.Name)
			require.Equal(t, uint(1), c.Level)
		}
		require.ElementsMatch(t, []string{"1/0/0", "1/1/0", "1/0/1", "1/1/1"}, names)
	})

	t.Run("content command", func(t *testing.T) {
		n, ok := l.NodeByName("1/1/0")
		require.True(t, ok)

		cmd := m.ContentCommand(newTestFrameContext(r3.Vector{Z: -1}), l, n)
		require.Equal(t, "http://localhost/1/1/0.png", cmd.URL)
	})

	t.Run("should subdivide", func(t *testing.T) {
		fc := newTestFrameContext(r3.Vector{Z: -1})
		require.False(t, m.ShouldSubdivide(fc, l, root))

		root.LoadState = models.Loaded
		require.True(t, m.ShouldSubdivide(fc, l, root))
		require.Greater(t, root.SSE, l.SSEThreshold)
	})
}
