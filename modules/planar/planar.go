package planar

import (
	"fmt"

	"github.com/aukilabs/tessera/geometry"
	"github.com/aukilabs/tessera/models"
	"github.com/aukilabs/tessera/modules"
	"github.com/golang/geo/r3"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"github.com/paulmach/orb/project"
)

const (
	// Pixels per tile side.
	TileSize = 256

	// Height bounds of the planar tiles, in meters.
	MinHeight = 0
	MaxHeight = 1000
)

// Tile wraps a Web Mercator tile so that raster overlays can address it.
type Tile struct {
	maptile.Tile
}

func (t Tile) TileXYZ() (uint32, uint32, uint32) {
	return t.X, t.Y, uint32(t.Z)
}

func (t Tile) LonLatBound() orb.Bound {
	return t.Bound()
}

// MercatorBound returns the tile extent in Web Mercator meters.
func (t Tile) MercatorBound() orb.Bound {
	return project.Bound(t.Bound(), project.WGS84.ToMercator)
}

// Volume returns the box enclosing the tile in the Web Mercator plane, with Z
// as the up axis.
func (t Tile) Volume() geometry.Box {
	b := t.MercatorBound()
	return geometry.NewAlignedBox(
		r3.Vector{X: b.Min[0], Y: b.Min[1], Z: MinHeight},
		r3.Vector{X: b.Max[0], Y: b.Max[1], Z: MaxHeight},
	)
}

// GeometricError returns the size of a tile pixel, in meters.
func (t Tile) GeometricError() float64 {
	b := t.MercatorBound()
	return (b.Max[0] - b.Min[0]) / TileSize
}

func nodeName(t maptile.Tile) string {
	return fmt.Sprintf("%d/%d/%d", t.Z, t.X, t.Y)
}

// Module refines a flat map made of a Web Mercator quadtree loaded through the
// tms provider. The layer minimum level is the level of the root tile.
type Module struct{}

func (m *Module) Name() string {
	return "planar"
}

func (m *Module) Protocol() string {
	return "tms"
}

func (m *Module) Init(l *models.Layer) error {
	root := newNode(l, nil, maptile.New(0, 0, 0))
	l.SetRoots(root)
	return nil
}

func newNode(l *models.Layer, parent *models.Node, t maptile.Tile) *models.Node {
	tile := Tile{Tile: t}
	n := l.NewNode(parent, nodeName(t), uint(t.Z), tile.Volume(), tile.GeometricError())
	n.Metadata = tile
	return n
}

func (m *Module) Cull(fc *models.FrameContext, l *models.Layer, n *models.Node) bool {
	return modules.FrustumCull(fc, n)
}

func (m *Module) ShouldSubdivide(fc *models.FrameContext, l *models.Layer, n *models.Node) bool {
	return modules.Refine(fc, l, n)
}

func (m *Module) Subdivide(fc *models.FrameContext, l *models.Layer, n *models.Node) *models.Future {
	t := n.Metadata.(Tile)

	var children []*models.Node
	for _, c := range t.Children() {
		children = append(children, newNode(l, n, c))
	}
	return models.Resolved(children, nil)
}

func (m *Module) ContentCommand(fc *models.FrameContext, l *models.Layer, n *models.Node) *models.Command {
	x, y, z := n.Metadata.(Tile).TileXYZ()
	return modules.NewCommand(l, n, m.Protocol(), modules.ExpandTemplate(l.URL, x, y, z))
}

func (m *Module) PostUpdate(fc *models.FrameContext, l *models.Layer) {
}
