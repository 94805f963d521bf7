package modules

import (
	"math"

	"github.com/aukilabs/tessera/featureflag"
	"github.com/aukilabs/tessera/geometry"
	"github.com/aukilabs/tessera/models"
)

// MinDistance bounds the distance used in screen space error computations
// when the camera is inside a volume.
const MinDistance = 1e-3

// ScreenSpaceError returns, in pixels, the projection of a geometric error
// seen at the distance between the camera and the volume.
func ScreenSpaceError(fc *models.FrameContext, v geometry.Volume, geometricError float64) float64 {
	distance := fc.Camera.Position.Distance(v.Center()) - v.Radius()
	return fc.PreSSE * geometricError / math.Max(MinDistance, distance)
}

// SubdivisionTest applies the level bounds and the layer threshold to a
// screen space error. Failed nodes never subdivide. Nodes above the minimum
// level wait for their content before being refined.
func SubdivisionTest(l *models.Layer, n *models.Node, sse float64) bool {
	if n.LoadState == models.Failed {
		return false
	}

	if n.Level < l.MinLevel {
		return true
	}

	return n.LoadState == models.Loaded &&
		n.Level < l.MaxLevel &&
		sse > l.SSEThreshold
}

// OverlaysReady reports whether every overlay covering the node settled its
// data for it. Refining before would display children without their rasters.
func OverlaysReady(fc *models.FrameContext, l *models.Layer, n *models.Node) bool {
	if fc.Flags.IsSet(featureflag.FlagDisableOverlayGuard) {
		return true
	}

	for _, o := range l.Overlays {
		if o.CoversExtent(n) && !o.IsLoadedAt(n) {
			return false
		}
	}
	return true
}

// EarlyDrop drops commands of nodes that were destroyed or hidden, and of
// hidden layers.
func EarlyDrop(cmd *models.Command) bool {
	if cmd.Layer != nil && !cmd.Layer.Visible() {
		return true
	}

	n := cmd.Node
	return n != nil && (n.Destroyed() || !n.Visible)
}

// NewCommand returns a command for a node, prioritized by the node screen
// space error.
func NewCommand(l *models.Layer, n *models.Node, protocol, url string) *models.Command {
	return &models.Command{
		Layer:     l,
		Node:      n,
		Protocol:  protocol,
		URL:       url,
		Priority:  n.SSE,
		EarlyDrop: EarlyDrop,
	}
}

// Refine records the node screen space error, then applies the subdivision
// test and the overlay guard.
func Refine(fc *models.FrameContext, l *models.Layer, n *models.Node) bool {
	if n.Volume == nil {
		n.SSE = 0
		return SubdivisionTest(l, n, 0)
	}

	n.SSE = ScreenSpaceError(fc, n.Volume, n.GeometricError)
	return SubdivisionTest(l, n, n.SSE) && OverlaysReady(fc, l, n)
}

// FrustumCull reports whether the node volume is outside the camera frustum.
// Nodes without volume are never culled.
func FrustumCull(fc *models.FrameContext, n *models.Node) bool {
	return n.Volume != nil && !fc.Frustum.Intersects(n.Volume)
}
