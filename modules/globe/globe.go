package globe

import (
	"math"
	"strconv"

	"github.com/aukilabs/tessera/featureflag"
	"github.com/aukilabs/tessera/geometry"
	"github.com/aukilabs/tessera/models"
	"github.com/aukilabs/tessera/modules"
	"github.com/paulmach/orb"
)

const (
	// The level from which tiles are tested against the horizon. Coarser
	// tiles are too large for their corners to be meaningful.
	HorizonCullingMinLevel = 2

	// Height bounds of the globe tiles, in meters.
	MinHeight = -500
	MaxHeight = 9000

	// Samples per tile side of an elevation tile.
	heightmapWidth = 65

	tilesAtLevelZeroX = 2
)

// Tile is the address of a globe tile in a geographic tiling scheme with two
// tiles at level zero. Y grows southwards.
type Tile struct {
	X, Y, Z uint32
}

func (t Tile) TileXYZ() (uint32, uint32, uint32) {
	return t.X, t.Y, t.Z
}

// Radians returns the tile extent in radians.
func (t Tile) Radians() (west, south, east, north float64) {
	size := math.Pi / float64(uint64(1)<<t.Z)
	west = -math.Pi + float64(t.X)*size
	north = math.Pi/2 - float64(t.Y)*size
	return west, north - size, west + size, north
}

func (t Tile) LonLatBound() orb.Bound {
	west, south, east, north := t.Radians()
	return orb.Bound{
		Min: orb.Point{degrees(west), degrees(south)},
		Max: orb.Point{degrees(east), degrees(north)},
	}
}

// Children returns the four children tiles, north-west first and clockwise.
func (t Tile) Children() [4]Tile {
	x, y, z := t.X*2, t.Y*2, t.Z+1
	return [4]Tile{
		{X: x, Y: y, Z: z},
		{X: x + 1, Y: y, Z: z},
		{X: x + 1, Y: y + 1, Z: z},
		{X: x, Y: y + 1, Z: z},
	}
}

func degrees(rad float64) float64 {
	return rad * 180 / math.Pi
}

// GeometricError returns the error of the tiles of a level, in meters.
func GeometricError(level uint) float64 {
	e := geometry.WGS84.MaximumRadius() * 2 * math.Pi * 0.25 / (heightmapWidth * tilesAtLevelZeroX)
	return e / float64(uint64(1)<<level)
}

// Module refines a globe covered by a quadtree of tiles loaded through the
// tms provider.
type Module struct {
	Ellipsoid geometry.Ellipsoid
}

func New() *Module {
	return &Module{Ellipsoid: geometry.WGS84}
}

func (m *Module) Name() string {
	return "globe"
}

func (m *Module) Protocol() string {
	return "tms"
}

func (m *Module) Init(l *models.Layer) error {
	roots := make([]*models.Node, tilesAtLevelZeroX)
	for x := range roots {
		roots[x] = m.newNode(l, nil, strconv.Itoa(x), Tile{X: uint32(x)})
	}
	l.SetRoots(roots...)
	return nil
}

func (m *Module) newNode(l *models.Layer, parent *models.Node, name string, t Tile) *models.Node {
	west, south, east, north := t.Radians()
	region := geometry.NewRegion(m.Ellipsoid, west, south, east, north, MinHeight, MaxHeight)

	n := l.NewNode(parent, name, uint(t.Z), region, GeometricError(uint(t.Z)))
	n.Metadata = t
	return n
}

func (m *Module) Cull(fc *models.FrameContext, l *models.Layer, n *models.Node) bool {
	if modules.FrustumCull(fc, n) {
		return true
	}

	if n.Level < HorizonCullingMinLevel || fc.Flags.IsSet(featureflag.FlagDisableHorizonCulling) {
		return false
	}

	region, ok := n.Volume.(*geometry.Region)
	if !ok {
		return false
	}

	for _, corner := range region.TopCorners() {
		if !m.Ellipsoid.IsOccludedByHorizon(fc.Camera.Position, corner) {
			return false
		}
	}
	return true
}

func (m *Module) ShouldSubdivide(fc *models.FrameContext, l *models.Layer, n *models.Node) bool {
	return modules.Refine(fc, l, n)
}

func (m *Module) Subdivide(fc *models.FrameContext, l *models.Layer, n *models.Node) *models.Future {
	t := n.Metadata.(Tile)

	var children []*models.Node
	for i, c := range t.Children() {
		children = append(children, m.newNode(l, n, n.Name+strconv.Itoa(i), c))
	}
	return models.Resolved(children, nil)
}

func (m *Module) ContentCommand(fc *models.FrameContext, l *models.Layer, n *models.Node) *models.Command {
	t := n.Metadata.(Tile)
	return modules.NewCommand(l, n, m.Protocol(), modules.ExpandTemplate(l.URL, t.X, t.Y, t.Z))
}

func (m *Module) PostUpdate(fc *models.FrameContext, l *models.Layer) {
}
