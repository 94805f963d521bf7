package pointcloud

import (
	"math"
	"strconv"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/tessera/featureflag"
	"github.com/aukilabs/tessera/geometry"
	"github.com/aukilabs/tessera/models"
	"github.com/aukilabs/tessera/modules"
	"github.com/aukilabs/tessera/provider/potree"
	"github.com/golang/geo/r3"
)

// Module refines Potree point cloud octrees. The hierarchy is loaded in
// chunks while subdividing. Children add points on top of their parent and
// the number of drawn points is bounded by the layer point budget.
type Module struct{}

// State is the hierarchy known for a layer.
type State struct {
	Cloud   *potree.Cloud
	Entries map[string]potree.HierarchyEntry

	// Nodes whose hierarchy chunk has been loaded.
	chunks map[string]bool
}

func (s *State) addChunk(root string, entries []potree.HierarchyEntry) {
	s.chunks[root] = true
	for _, e := range entries {
		s.Entries[e.Name] = e
	}
}

// needsChunk reports whether the hierarchy chunk rooted at the node must be
// loaded before creating its children.
func (s *State) needsChunk(n *models.Node) bool {
	return n.Level%uint(s.Cloud.HierarchyStepSize) == 0 && !s.chunks[n.Name]
}

type bounds struct {
	min, max r3.Vector
}

// octant returns the bounds of a child. Bit 0 selects the upper half along
// Z, bit 1 along Y and bit 2 along X.
func (b bounds) octant(i int) bounds {
	half := b.max.Sub(b.min).Mul(0.5)
	min, max := b.min, b.max

	if i&0b001 != 0 {
		min.Z += half.Z
	} else {
		max.Z -= half.Z
	}
	if i&0b010 != 0 {
		min.Y += half.Y
	} else {
		max.Y -= half.Y
	}
	if i&0b100 != 0 {
		min.X += half.X
	} else {
		max.X -= half.X
	}
	return bounds{min: min, max: max}
}

func (m *Module) Name() string {
	return "pointcloud"
}

func (m *Module) Protocol() string {
	return potree.Protocol
}

func (m *Module) Init(l *models.Layer) error {
	state, ok := l.ModuleState(potree.StateKey)
	if !ok {
		return errors.New("cloud not loaded").
			WithType(models.ErrTypeConfiguration).
			WithTag("layer", l.Name)
	}
	cloud := state.(*potree.Cloud)

	l.SetModuleState(m.Name(), &State{
		Cloud:   cloud,
		Entries: make(map[string]potree.HierarchyEntry),
		chunks:  make(map[string]bool),
	})

	root := newNode(l, nil, potree.RootName, 0, cloud.Spacing, bounds{
		min: cloud.BoundingBox.Min(),
		max: cloud.BoundingBox.Max(),
	})
	root.Refine = models.RefineAdd
	l.SetRoots(root)
	return nil
}

func newNode(l *models.Layer, parent *models.Node, name string, level uint, spacing float64, b bounds) *models.Node {
	n := l.NewNode(parent, name, level, geometry.NewAlignedBox(b.min, b.max), spacing/math.Pow(2, float64(level)))
	n.Metadata = b
	return n
}

func (m *Module) state(l *models.Layer) *State {
	state, _ := l.ModuleState(m.Name())
	return state.(*State)
}

func (m *Module) Cull(fc *models.FrameContext, l *models.Layer, n *models.Node) bool {
	return modules.FrustumCull(fc, n)
}

// ShouldSubdivide refuses to refine nodes known to be leaves.
func (m *Module) ShouldSubdivide(fc *models.FrameContext, l *models.Layer, n *models.Node) bool {
	subdivide := modules.Refine(fc, l, n)

	s := m.state(l)
	if e, ok := s.Entries[n.Name]; ok && e.ChildMask == 0 && !s.needsChunk(n) {
		return false
	}
	return subdivide
}

func (m *Module) Subdivide(fc *models.FrameContext, l *models.Layer, n *models.Node) *models.Future {
	s := m.state(l)
	if !s.needsChunk(n) {
		return models.Resolved(m.children(l, s, n))
	}

	f := models.NewFuture()
	cmd := modules.NewCommand(l, n, m.Protocol(), s.Cloud.HierarchyURL(n.Name))

	fc.Executor.Execute(cmd).Then(func(res models.Resource, err error) {
		if err != nil {
			f.Resolve(nil, err)
			return
		}

		if n.Destroyed() {
			f.Resolve(nil, models.ErrCancelled(cmd))
			return
		}

		s.addChunk(n.Name, res.([]potree.HierarchyEntry))
		f.Resolve(m.children(l, s, n))
	})
	return f
}

func (m *Module) children(l *models.Layer, s *State, n *models.Node) ([]*models.Node, error) {
	e, ok := s.Entries[n.Name]
	if !ok {
		return nil, errors.New("node missing from hierarchy").
			WithType(models.ErrTypeLoadFailed).
			WithTag("layer", l.Name).
			WithTag("node", n.Name)
	}
	n.PointCount = int(e.PointCount)

	b := n.Metadata.(bounds)
	var children []*models.Node

	for octant := 0; octant < 8; octant++ {
		if !e.HasChild(octant) {
			continue
		}

		name := n.Name + strconv.Itoa(octant)
		c := newNode(l, n, name, n.Level+1, s.Cloud.Spacing, b.octant(octant))
		if ce, ok := s.Entries[name]; ok {
			c.PointCount = int(ce.PointCount)
		}
		children = append(children, c)
	}
	return children, nil
}

func (m *Module) ContentCommand(fc *models.FrameContext, l *models.Layer, n *models.Node) *models.Command {
	return modules.NewCommand(l, n, m.Protocol(), m.state(l).Cloud.NodeURL(n.Name))
}

// PostUpdate scales the displayed nodes so that the number of drawn points
// fits the layer point budget.
func (m *Module) PostUpdate(fc *models.FrameContext, l *models.Layer) {
	ApplyPointBudget(fc, l)
}

// ApplyPointBudget sets the same display weight on every displayed node of
// the layer. The weight is the ratio between the budget and the number of
// displayed points when they exceed it, one otherwise.
func ApplyPointBudget(fc *models.FrameContext, l *models.Layer) {
	var displayed []*models.Node
	var total int

	visit := func(n *models.Node) bool {
		if n.Displayed {
			displayed = append(displayed, n)
			total += n.PointCount
		}
		return n.Visible
	}

	for _, root := range l.Roots() {
		if visit(root) {
			root.WalkDescendants(visit)
		}
	}

	weight := 1.0
	if l.PointBudget > 0 && total > l.PointBudget && !fc.Flags.IsSet(featureflag.FlagDisablePointBudget) {
		weight = float64(l.PointBudget) / float64(total)
	}

	for _, n := range displayed {
		n.DisplayWeight = weight
	}
	instrumentDisplayedPoints(l.Name, total, weight)
}
