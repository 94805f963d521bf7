package engine

import (
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/tessera/models"
	"github.com/aukilabs/tessera/modules"
)

// updateLayer walks the layer hierarchy from the nodes returned by the
// pre-update, then runs the module post-update.
func (e *Engine) updateLayer(fc *models.FrameContext, entry *layerEntry, sources []models.ChangeSource) {
	l, m := entry.layer, entry.module

	start := modules.PreUpdate(l, sources)
	stack := make([]*models.Node, 0, len(start))
	for i := len(start) - 1; i >= 0; i-- {
		stack = append(stack, start[i])
	}

	for len(stack) != 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if n.Destroyed() {
			continue
		}
		stack = e.updateNode(fc, l, m, n, stack)
	}

	m.PostUpdate(fc, l)
}

// updateNode culls a node, requests what it misses and pushes the children to
// visit on the stack.
func (e *Engine) updateNode(fc *models.FrameContext, l *models.Layer, m modules.Module, n *models.Node, stack []*models.Node) []*models.Node {
	if m.Cull(fc, l, n) {
		n.Hide(fc.Time)
		n.HideDescendants(fc.Time)
		return stack
	}
	n.Show()

	subdivide := m.ShouldSubdivide(fc, l, n)

	for _, o := range l.Overlays {
		o.Request(fc, l, n)
	}

	if n.LoadState == models.Unrequested {
		e.requestContent(fc, l, m, n)
	}

	if subdivide {
		if !n.ChildrenMaterialized && !n.PendingSubdivision {
			e.subdivide(fc, l, m, n)
		}

		if n.ChildrenMaterialized {
			children := n.Children()
			for i := len(children) - 1; i >= 0; i-- {
				stack = append(stack, children[i])
			}
		}
	} else {
		n.HideDescendants(fc.Time)
	}

	n.Displayed = n.LoadState == models.Loaded &&
		(!subdivide || n.Refine == models.RefineAdd || !childrenReady(n))

	n.DisplayWeight = 0
	if n.Displayed {
		n.DisplayWeight = 1
	}
	return stack
}

// retain marks as used the cache entries referenced by the visible nodes of
// the visible layers, whether or not their layer was updated this frame.
func (e *Engine) retain(fc *models.FrameContext, entries []*layerEntry) {
	for _, entry := range entries {
		l := entry.layer
		if !l.Visible() {
			continue
		}

		visit := func(n *models.Node) bool {
			if !n.Visible {
				return false
			}

			if n.LoadState == models.Loaded && n.ContentKey.URL != "" {
				e.Cache.Touch(n.ContentKey, fc.Frame)
			}
			for _, o := range l.Overlays {
				if key, ok := o.Key(n); ok {
					e.Cache.Touch(key, fc.Frame)
				}
			}
			return true
		}

		for _, root := range l.Roots() {
			if visit(root) {
				root.WalkDescendants(visit)
			}
		}
	}
}

// childrenReady reports whether the children of a node can replace it: each
// child is loaded or was culled at its last visit.
func childrenReady(n *models.Node) bool {
	children := n.Children()
	if !n.ChildrenMaterialized || len(children) == 0 {
		return false
	}

	for _, c := range children {
		culled := !c.Visible && !c.HiddenSince.IsZero()
		if c.LoadState != models.Loaded && !culled {
			return false
		}
	}
	return true
}

func (e *Engine) requestContent(fc *models.FrameContext, l *models.Layer, m modules.Module, n *models.Node) {
	cmd := m.ContentCommand(fc, l, n)
	if cmd == nil {
		n.LoadState = models.Loaded
		return
	}

	n.LoadState = models.Pending
	n.ContentKey = cmd.Key()

	fc.Executor.Execute(cmd).Then(func(res models.Resource, err error) {
		if n.Destroyed() {
			return
		}

		switch {
		case models.IsCancelled(err):
			n.LoadState = models.Unrequested

		case err != nil:
			n.LoadState = models.Failed
			logs.Warn(errors.New("loading node content failed").
				WithTag("layer", l.Name).
				WithTag("node", n.Name).
				Wrap(err))

		default:
			n.Content = res
			n.LoadState = models.Loaded
		}

		e.notifyLoaded(l, n)
	})
}

func (e *Engine) subdivide(fc *models.FrameContext, l *models.Layer, m modules.Module, n *models.Node) {
	n.PendingSubdivision = true

	m.Subdivide(fc, l, n).Then(func(res models.Resource, err error) {
		children, _ := res.([]*models.Node)

		if n.Destroyed() {
			for _, c := range children {
				l.DestroyNode(c)
			}
			return
		}
		n.PendingSubdivision = false

		if err != nil {
			if !models.IsCancelled(err) {
				logs.Warn(errors.New("subdividing node failed").
					WithTag("layer", l.Name).
					WithTag("node", n.Name).
					Wrap(err))
			}
			return
		}

		n.SetChildren(children)
		e.notifyNode(l, n)
	})
}

// notifyLoaded schedules the update of the parent of a loaded node, whose
// display depends on its children being loaded.
func (e *Engine) notifyLoaded(l *models.Layer, n *models.Node) {
	if p := n.Parent(); p != nil {
		n = p
	}
	e.notifyNode(l, n)
}

// evictHidden destroys the children of nodes whose children all stayed hidden
// for the grace period. Roots are never destroyed.
func (e *Engine) evictHidden(fc *models.FrameContext, l *models.Layer) {
	var destroyed int

	stack := append([]*models.Node(nil), l.Roots()...)
	for len(stack) != 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		children := n.Children()
		if len(children) == 0 {
			continue
		}

		if e.expired(fc, children) {
			n.WalkDescendants(func(*models.Node) bool {
				destroyed++
				return true
			})
			l.DestroyChildren(n)
			continue
		}
		stack = append(stack, children...)
	}

	if destroyed != 0 {
		instrumentEvictedNodes(l.Name, destroyed)
		logs.WithTag("layer", l.Name).
			WithTag("count", destroyed).
			Debug("hidden nodes destroyed")
	}
}

func (e *Engine) expired(fc *models.FrameContext, children []*models.Node) bool {
	for _, c := range children {
		if c.Visible || c.HiddenFor(fc.Time) < e.GracePeriod || c.Busy() {
			return false
		}
	}
	return true
}
