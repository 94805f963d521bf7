package tiles3d

import (
	"strconv"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/tessera/geometry"
	"github.com/aukilabs/tessera/models"
	"github.com/aukilabs/tessera/modules"
	"github.com/aukilabs/tessera/provider/tiles3d"
)

// Module refines 3D Tiles tilesets. The tile hierarchy is read from the
// tileset loaded when the layer is preprocessed. Contents pointing to another
// tileset graft its root as the only child of the tile.
type Module struct{}

type tileInfo struct {
	tile    *tiles3d.Tile
	tileset *tiles3d.Tileset

	// The transform from the tile to the world, including the tile own
	// transform.
	transform geometry.Matrix4

	viewerRequestVolume geometry.Volume
}

func (m *Module) Name() string {
	return "tiles3d"
}

func (m *Module) Protocol() string {
	return tiles3d.Protocol
}

func (m *Module) Init(l *models.Layer) error {
	state, ok := l.ModuleState(tiles3d.StateKey)
	if !ok {
		return errors.New("tileset not loaded").
			WithType(models.ErrTypeConfiguration).
			WithTag("layer", l.Name)
	}
	ts := state.(*tiles3d.Tileset)

	root, err := newNode(l, nil, "0", &ts.Root, ts, geometry.Identity())
	if err != nil {
		return errors.New("creating root tile failed").
			WithType(models.ErrTypeConfiguration).
			WithTag("layer", l.Name).
			Wrap(err)
	}

	l.SetRoots(root)
	return nil
}

func newNode(l *models.Layer, parent *models.Node, name string, t *tiles3d.Tile, ts *tiles3d.Tileset, parentTransform geometry.Matrix4) (*models.Node, error) {
	matrix, err := t.Matrix()
	if err != nil {
		return nil, err
	}
	transform := parentTransform.Mul(matrix)

	volume, err := t.BoundingVolume.Volume(transform)
	if err != nil {
		return nil, err
	}

	info := &tileInfo{
		tile:      t,
		tileset:   ts,
		transform: transform,
	}

	if t.ViewerRequestVolume != nil {
		if info.viewerRequestVolume, err = t.ViewerRequestVolume.Volume(transform); err != nil {
			return nil, err
		}
	}

	var level uint
	if parent != nil {
		level = parent.Level + 1
	}

	n := l.NewNode(parent, name, level, volume, t.GeometricError)
	switch t.Refine {
	case tiles3d.RefineAdd:
		n.Refine = models.RefineAdd
	case tiles3d.RefineReplace:
		n.Refine = models.RefineReplace
	}
	n.Metadata = info
	return n, nil
}

// Cull hides tiles whose viewer request volume does not contain the camera,
// then tiles outside the frustum.
func (m *Module) Cull(fc *models.FrameContext, l *models.Layer, n *models.Node) bool {
	info := n.Metadata.(*tileInfo)
	if info.viewerRequestVolume != nil && !info.viewerRequestVolume.Contains(fc.Camera.Position) {
		return true
	}
	return modules.FrustumCull(fc, n)
}

func (m *Module) ShouldSubdivide(fc *models.FrameContext, l *models.Layer, n *models.Node) bool {
	subdivide := modules.Refine(fc, l, n)
	return subdivide && hasChildren(n)
}

func hasChildren(n *models.Node) bool {
	if _, ok := n.Content.(*tiles3d.Tileset); ok {
		return true
	}
	return len(n.Metadata.(*tileInfo).tile.Children) != 0
}

func (m *Module) Subdivide(fc *models.FrameContext, l *models.Layer, n *models.Node) *models.Future {
	info := n.Metadata.(*tileInfo)

	if external, ok := n.Content.(*tiles3d.Tileset); ok {
		child, err := newNode(l, n, n.Name+"/0", &external.Root, external, info.transform)
		if err != nil {
			return models.Resolved(nil, subdivisionError(n, err))
		}
		return models.Resolved([]*models.Node{child}, nil)
	}

	children := make([]*models.Node, 0, len(info.tile.Children))
	for i := range info.tile.Children {
		child, err := newNode(l, n, n.Name+"/"+strconv.Itoa(i), &info.tile.Children[i], info.tileset, info.transform)
		if err != nil {
			for _, c := range children {
				l.DestroyNode(c)
			}
			return models.Resolved(nil, subdivisionError(n, err))
		}
		children = append(children, child)
	}
	return models.Resolved(children, nil)
}

func subdivisionError(n *models.Node, err error) error {
	return errors.New("creating child tiles failed").
		WithType(models.ErrTypeLoadFailed).
		WithTag("node", n.Name).
		Wrap(err)
}

func (m *Module) ContentCommand(fc *models.FrameContext, l *models.Layer, n *models.Node) *models.Command {
	info := n.Metadata.(*tileInfo)

	location := info.tile.Content.Location()
	if location == "" {
		return nil
	}

	if resolved, err := info.tileset.Resolve(location); err == nil {
		location = resolved
	}
	return modules.NewCommand(l, n, m.Protocol(), location)
}

func (m *Module) PostUpdate(fc *models.FrameContext, l *models.Layer) {
}
