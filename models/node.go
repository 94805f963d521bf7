package models

import (
	"math"
	"time"

	"github.com/aukilabs/tessera/geometry"
)

// LoadState is the content lifecycle of a node.
type LoadState int

const (
	Unrequested LoadState = iota
	Pending
	Loaded
	Failed
)

func (s LoadState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Loaded:
		return "loaded"
	case Failed:
		return "failed"
	default:
		return "unrequested"
	}
}

// RefineMode tells whether a node content stays drawn once its children are
// displayed.
type RefineMode int

const (
	// Children replace the parent once they are all loaded.
	RefineReplace RefineMode = iota

	// Children add detail on top of the parent.
	RefineAdd
)

func (m RefineMode) String() string {
	if m == RefineAdd {
		return "ADD"
	}
	return "REPLACE"
}

// Node is an element of a layer hierarchy. Nodes are only mutated from the
// frame goroutine.
type Node struct {
	ID             uint32
	Name           string
	Level          uint
	Volume         geometry.Volume
	GeometricError float64
	Refine         RefineMode

	// Number of drawable primitives once loaded. Point budgets use it.
	PointCount int

	LoadState  LoadState
	Content    Resource
	ContentKey CommandKey

	// Culling verdict of the last visit.
	Visible bool

	// Whether the content is drawn this frame, and which fraction of it.
	Displayed     bool
	DisplayWeight float64

	// Screen space error computed at the last visit.
	SSE float64

	// A children batch is being materialized.
	PendingSubdivision bool

	// Children have been materialized. A materialized node without children
	// is a leaf.
	ChildrenMaterialized bool

	HiddenSince time.Time

	// Kind specific data, owned by the layer module.
	Metadata any

	parent    *Node
	children  []*Node
	destroyed bool
}

func (n *Node) Parent() *Node {
	return n.parent
}

func (n *Node) Children() []*Node {
	return n.children
}

// SetChildren attaches a settled batch of children. Geometric errors are
// clamped so that they never increase from parent to child.
func (n *Node) SetChildren(children []*Node) {
	for _, c := range children {
		c.parent = n
		if c.GeometricError > n.GeometricError {
			c.GeometricError = n.GeometricError
		}
	}
	n.children = children
	n.ChildrenMaterialized = true
}

func (n *Node) Destroyed() bool {
	return n.destroyed
}

func (n *Node) IsLeaf() bool {
	return n.ChildrenMaterialized && len(n.children) == 0
}

// DrawCount returns the number of primitives drawn this frame.
func (n *Node) DrawCount() int {
	if !n.Displayed {
		return 0
	}
	return int(math.Floor(float64(n.PointCount) * n.DisplayWeight))
}

// Show marks the node as visible.
func (n *Node) Show() {
	n.Visible = true
	n.HiddenSince = time.Time{}
}

// Hide marks the node as hidden. The hidden timestamp is kept from the first
// frame the node stopped being visible.
func (n *Node) Hide(now time.Time) {
	n.Visible = false
	n.Displayed = false
	n.DisplayWeight = 0
	if n.HiddenSince.IsZero() {
		n.HiddenSince = now
	}
}

// HiddenFor returns how long the node has been hidden.
func (n *Node) HiddenFor(now time.Time) time.Duration {
	if n.Visible || n.HiddenSince.IsZero() {
		return 0
	}
	return now.Sub(n.HiddenSince)
}

// HideDescendants hides every materialized descendant of the node.
func (n *Node) HideDescendants(now time.Time) {
	n.WalkDescendants(func(d *Node) bool {
		if !d.Visible && !d.HiddenSince.IsZero() {
			return false
		}
		d.Hide(now)
		return true
	})
}

// WalkDescendants visits the descendants of the node depth first. Returning
// false from visit skips the children of the visited node.
func (n *Node) WalkDescendants(visit func(*Node) bool) {
	stack := make([]*Node, 0, len(n.children))
	for i := len(n.children) - 1; i >= 0; i-- {
		stack = append(stack, n.children[i])
	}

	for len(stack) != 0 {
		d := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if !visit(d) {
			continue
		}
		for i := len(d.children) - 1; i >= 0; i-- {
			stack = append(stack, d.children[i])
		}
	}
}

// IsAncestorOf reports whether n is a strict ancestor of other.
func (n *Node) IsAncestorOf(other *Node) bool {
	for p := other.parent; p != nil; p = p.parent {
		if p == n {
			return true
		}
	}
	return false
}

// Busy reports whether the node or one of its descendants waits for an
// asynchronous result.
func (n *Node) Busy() bool {
	if n.LoadState == Pending || n.PendingSubdivision {
		return true
	}

	busy := false
	n.WalkDescendants(func(d *Node) bool {
		if d.LoadState == Pending || d.PendingSubdivision {
			busy = true
		}
		return !busy
	})
	return busy
}
