package models

import (
	"sync"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/tessera/geometry"
	"github.com/google/uuid"
)

const (
	DefaultMaxLevel     = 30
	DefaultSSEThreshold = 16
)

// LayerOptions describes a layer to build.
type LayerOptions struct {
	Name string
	Kind string
	URL  string

	// Levels forced to subdivide and the deepest level allowed.
	MinLevel uint
	MaxLevel uint

	// Screen space error, in pixels, above which a node subdivides.
	SSEThreshold float64

	// Maximum number of points drawn per frame. Zero disables the budget.
	PointBudget int

	Overlays []Overlay
}

// Layer is an independent dataset rendered as a hierarchy of nodes. The
// hierarchy is only mutated from the frame goroutine. Visibility and opacity
// can be changed from any goroutine.
type Layer struct {
	ID   uint32
	UUID string
	Name string
	Kind string
	URL  string

	MinLevel     uint
	MaxLevel     uint
	SSEThreshold float64
	PointBudget  int
	Overlays     []Overlay

	roots   []*Node
	nodeIDs IDPool
	nodes   map[string]*Node

	mutex   sync.RWMutex
	visible bool
	opacity float64

	moduleStates map[string]any
	moduleMutex  sync.RWMutex
}

// NewLayer validates the options and returns a layer. Invalid options return
// an error typed ErrTypeConfiguration.
func NewLayer(id uint32, opts LayerOptions) (*Layer, error) {
	if opts.Kind == "" {
		return nil, configurationError("kind", "layer kind is empty", nil)
	}

	if opts.URL == "" {
		return nil, configurationError("url", "layer url is empty", nil)
	}

	if opts.MaxLevel == 0 {
		opts.MaxLevel = DefaultMaxLevel
	}
	if opts.MinLevel > opts.MaxLevel {
		return nil, configurationError("min_level", "min level is greater than max level", opts.MinLevel)
	}

	if opts.SSEThreshold < 0 {
		return nil, configurationError("sse_threshold", "sse threshold is negative", opts.SSEThreshold)
	}
	if opts.SSEThreshold == 0 {
		opts.SSEThreshold = DefaultSSEThreshold
	}

	if opts.PointBudget < 0 {
		return nil, configurationError("point_budget", "point budget is negative", opts.PointBudget)
	}

	if opts.Name == "" {
		opts.Name = opts.Kind
	}

	return &Layer{
		ID:           id,
		UUID:         uuid.NewString(),
		Name:         opts.Name,
		Kind:         opts.Kind,
		URL:          opts.URL,
		MinLevel:     opts.MinLevel,
		MaxLevel:     opts.MaxLevel,
		SSEThreshold: opts.SSEThreshold,
		PointBudget:  opts.PointBudget,
		Overlays:     opts.Overlays,
		nodes:        make(map[string]*Node),
		visible:      true,
		opacity:      1,
		moduleStates: make(map[string]any),
	}, nil
}

func configurationError(field, msg string, value any) error {
	return errors.New(msg).
		WithType(ErrTypeConfiguration).
		WithTag("field", field).
		WithTag("value", value)
}

func (l *Layer) Roots() []*Node {
	return l.roots
}

func (l *Layer) SetRoots(roots ...*Node) {
	l.roots = roots
}

// NewNode creates a node registered in the layer. The node is linked to its
// parent but only becomes one of its children once the parent batch is
// attached with SetChildren.
func (l *Layer) NewNode(parent *Node, name string, level uint, volume geometry.Volume, geometricError float64) *Node {
	n := &Node{
		ID:             l.nodeIDs.Next(),
		Name:           name,
		Level:          level,
		Volume:         volume,
		GeometricError: geometricError,
		parent:         parent,
	}
	if parent != nil {
		n.Refine = parent.Refine
	}

	l.nodes[name] = n
	instrumentIncreaseNodeGauge(l.Name)
	return n
}

// DestroyNode destroys the node and its descendants. Content references are
// dropped and node ids are recycled.
func (l *Layer) DestroyNode(n *Node) {
	if n.destroyed {
		return
	}

	n.WalkDescendants(func(d *Node) bool {
		l.releaseNode(d)
		return true
	})
	l.releaseNode(n)

	if p := n.parent; p != nil {
		for i, c := range p.children {
			if c == n {
				p.children = append(p.children[:i:i], p.children[i+1:]...)
				break
			}
		}
		if len(p.children) == 0 {
			p.ChildrenMaterialized = false
		}
	}
}

// DestroyChildren destroys every child of n. The node can be subdivided again
// afterwards.
func (l *Layer) DestroyChildren(n *Node) {
	for _, c := range n.children {
		c.WalkDescendants(func(d *Node) bool {
			l.releaseNode(d)
			return true
		})
		l.releaseNode(c)
	}
	n.children = nil
	n.ChildrenMaterialized = false
}

func (l *Layer) releaseNode(n *Node) {
	for _, o := range l.Overlays {
		o.Release(n)
	}

	n.destroyed = true
	n.Content = nil
	n.Visible = false
	n.Displayed = false

	if current, ok := l.nodes[n.Name]; ok && current == n {
		delete(l.nodes, n.Name)
	}
	l.nodeIDs.Release(n.ID)
	instrumentDecreaseNodeGauge(l.Name)
	instrumentCountDestroyedNode(l.Name)
}

func (l *Layer) NodeByName(name string) (*Node, bool) {
	n, ok := l.nodes[name]
	return n, ok
}

func (l *Layer) NodeCount() int {
	return len(l.nodes)
}

func (l *Layer) SetVisible(v bool) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	l.visible = v
}

func (l *Layer) Visible() bool {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	return l.visible
}

// SetOpacity sets the layer opacity, clamped to [0, 1].
func (l *Layer) SetOpacity(o float64) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	switch {
	case o < 0:
		o = 0
	case o > 1:
		o = 1
	}
	l.opacity = o
}

func (l *Layer) Opacity() float64 {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	return l.opacity
}

func (l *Layer) SetModuleState(moduleName string, state any) {
	l.moduleMutex.Lock()
	defer l.moduleMutex.Unlock()

	l.moduleStates[moduleName] = state
}

func (l *Layer) ModuleState(moduleName string) (any, bool) {
	l.moduleMutex.RLock()
	defer l.moduleMutex.RUnlock()

	state, ok := l.moduleStates[moduleName]
	return state, ok
}
