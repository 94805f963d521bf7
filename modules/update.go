package modules

import (
	"github.com/aukilabs/tessera/models"
)

// CommonAncestor returns the deepest node that is either an ancestor of both
// nodes or one of them. It returns nil when the nodes descend from different
// roots.
func CommonAncestor(a, b *models.Node) *models.Node {
	for a != nil && b != nil {
		switch {
		case a.Level == b.Level:
			if a == b {
				return a
			}
			if a.Level == 0 {
				return nil
			}
			a, b = a.Parent(), b.Parent()

		case a.Level > b.Level:
			a = a.Parent()

		default:
			b = b.Parent()
		}
	}
	return nil
}

// PreUpdate returns the nodes the update of a layer starts from. Camera moves
// and sources that are not scoped to a node revisit the whole layer. Sources
// scoped to nodes of the layer are reduced to their common ancestor. Sources
// of other layers are ignored.
//
// A coarsened or culled subtree is not revisited on its own: the walk starts
// above the highest hidden node of the ancestor chain. An ancestor without
// loaded content cannot be revisited alone either, and the update falls back
// to the roots.
func PreUpdate(l *models.Layer, sources []models.ChangeSource) []*models.Node {
	if len(sources) == 0 {
		return l.Roots()
	}

	var common *models.Node
	for _, s := range sources {
		if s.Camera || s.Layer == 0 {
			return l.Roots()
		}

		if s.Layer != l.ID {
			continue
		}

		if s.Node == "" {
			return l.Roots()
		}

		n, ok := l.NodeByName(s.Node)
		if !ok || n.Destroyed() {
			return l.Roots()
		}

		if common == nil {
			common = n
		} else if common = CommonAncestor(common, n); common == nil {
			return l.Roots()
		}
	}

	if common = VisibleAncestor(common); common == nil || common.LoadState != models.Loaded {
		return l.Roots()
	}
	return []*models.Node{common}
}

// VisibleAncestor returns the node, or the parent of the highest node of its
// ancestor chain that is not visible. It returns nil when a root is not
// visible.
func VisibleAncestor(n *models.Node) *models.Node {
	start := n
	for p := n; p != nil; p = p.Parent() {
		if !p.Visible {
			start = p.Parent()
		}
	}
	return start
}
