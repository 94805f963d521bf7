package modules

import (
	"strconv"
	"strings"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/tessera/models"
	"github.com/paulmach/orb"
)

// TileAddress is implemented by the metadata of quadtree nodes.
type TileAddress interface {
	// Returns the tile coordinates in the layer tiling scheme.
	TileXYZ() (x, y, z uint32)

	// Returns the tile extent in degrees.
	LonLatBound() orb.Bound
}

// ExpandTemplate replaces the {x}, {y} and {z} placeholders of a URL
// template.
func ExpandTemplate(template string, x, y, z uint32) string {
	return strings.NewReplacer(
		"{x}", strconv.FormatUint(uint64(x), 10),
		"{y}", strconv.FormatUint(uint64(y), 10),
		"{z}", strconv.FormatUint(uint64(z), 10),
	).Replace(template)
}

// RasterOverlay drapes a tiled raster, like imagery or elevation, over the
// nodes of a quadtree layer. It loads one raster per node through the
// scheduler and gates the node subdivision until the raster settled.
type RasterOverlay struct {
	OverlayName string
	Protocol    string
	URLTemplate string
	MinLevel    uint
	MaxLevel    uint

	// Extent covered by the raster, in degrees. An empty bound covers the
	// whole layer.
	Bound orb.Bound

	rasters map[*models.Node]*raster
}

type raster struct {
	state    models.LoadState
	key      models.CommandKey
	resource models.Resource
}

func NewRasterOverlay(name, protocol, urlTemplate string, minLevel, maxLevel uint) *RasterOverlay {
	return &RasterOverlay{
		OverlayName: name,
		Protocol:    protocol,
		URLTemplate: urlTemplate,
		MinLevel:    minLevel,
		MaxLevel:    maxLevel,
		rasters:     make(map[*models.Node]*raster),
	}
}

func (o *RasterOverlay) Name() string {
	return o.OverlayName
}

func (o *RasterOverlay) CoversExtent(n *models.Node) bool {
	if n.Level < o.MinLevel || n.Level > o.MaxLevel {
		return false
	}

	tile, ok := n.Metadata.(TileAddress)
	if !ok {
		return false
	}

	if o.Bound.IsZero() {
		return true
	}
	return o.Bound.Intersects(tile.LonLatBound())
}

// IsLoadedAt reports whether the node raster is loaded or failed. A failed
// raster does not block the refinement forever.
func (o *RasterOverlay) IsLoadedAt(n *models.Node) bool {
	r, ok := o.rasters[n]
	return ok && (r.state == models.Loaded || r.state == models.Failed)
}

func (o *RasterOverlay) Request(fc *models.FrameContext, l *models.Layer, n *models.Node) {
	if !o.CoversExtent(n) {
		return
	}

	if r, ok := o.rasters[n]; ok && r.state != models.Unrequested {
		return
	}

	x, y, z := n.Metadata.(TileAddress).TileXYZ()
	cmd := NewCommand(l, n, o.Protocol, ExpandTemplate(o.URLTemplate, x, y, z))

	r := &raster{state: models.Pending, key: cmd.Key()}
	o.rasters[n] = r

	fc.Executor.Execute(cmd).Then(func(res models.Resource, err error) {
		switch {
		case models.IsCancelled(err):
			r.state = models.Unrequested

		case err != nil:
			r.state = models.Failed
			logs.Warn(errors.New("loading overlay raster failed").
				WithTag("overlay", o.OverlayName).
				WithTag("node", n.Name).
				Wrap(err))

		default:
			r.state = models.Loaded
			r.resource = res
		}
	})
}

// Raster returns the loaded raster of a node.
func (o *RasterOverlay) Raster(n *models.Node) (models.Resource, bool) {
	r, ok := o.rasters[n]
	if !ok || r.state != models.Loaded {
		return nil, false
	}
	return r.resource, true
}

func (o *RasterOverlay) Key(n *models.Node) (models.CommandKey, bool) {
	r, ok := o.rasters[n]
	if !ok || r.state != models.Loaded {
		return models.CommandKey{}, false
	}
	return r.key, true
}

// Evict forgets a loaded raster whose cache entry was evicted. The raster is
// requested again the next time the node is visited.
func (o *RasterOverlay) Evict(n *models.Node, key models.CommandKey) {
	if r, ok := o.rasters[n]; ok && r.state == models.Loaded && r.key == key {
		delete(o.rasters, n)
	}
}

func (o *RasterOverlay) Release(n *models.Node) {
	delete(o.rasters, n)
}
