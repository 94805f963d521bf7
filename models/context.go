package models

import (
	"time"

	"github.com/aukilabs/tessera/featureflag"
	"github.com/aukilabs/tessera/geometry"
)

// Executor schedules commands.
type Executor interface {
	Execute(*Command) *Future
}

// FrameContext carries the state shared by every update call of a frame. The
// camera is frozen for the whole frame.
type FrameContext struct {
	Frame    uint64
	Time     time.Time
	Camera   geometry.Camera
	Frustum  geometry.Frustum
	PreSSE   float64
	Executor Executor
	Flags    featureflag.FeatureFlag
}

// NewFrameContext returns a frame context with the camera derived values
// computed.
func NewFrameContext(frame uint64, now time.Time, camera geometry.Camera, executor Executor, flags featureflag.FeatureFlag) *FrameContext {
	return &FrameContext{
		Frame:    frame,
		Time:     now,
		Camera:   camera,
		Frustum:  camera.Frustum(),
		PreSSE:   camera.PreSSE(),
		Executor: executor,
		Flags:    flags,
	}
}

// ChangeSource tells the update which part of the scene changed since the
// last frame.
type ChangeSource struct {
	// The layer the change belongs to. Zero means every layer.
	Layer uint32

	// The name of the changed node. Empty means the whole layer.
	Node string

	// The camera moved.
	Camera bool
}

func CameraSource() ChangeSource {
	return ChangeSource{Camera: true}
}

func NodeSource(layer uint32, node string) ChangeSource {
	return ChangeSource{
		Layer: layer,
		Node:  node,
	}
}

// Scoped reports whether the source targets a single node.
func (s ChangeSource) Scoped() bool {
	return !s.Camera && s.Layer != 0 && s.Node != ""
}

// Overlay is a secondary dataset draped over a layer nodes, like imagery or
// elevation rasters.
type Overlay interface {
	// Returns the overlay name.
	Name() string

	// Reports whether the overlay has data for the node extent.
	CoversExtent(*Node) bool

	// Reports whether the overlay data for the node is settled.
	IsLoadedAt(*Node) bool

	// Requests the overlay data for a visible node.
	Request(*FrameContext, *Layer, *Node)

	// Returns the cache key of the loaded overlay data of a node.
	Key(*Node) (CommandKey, bool)

	// Forgets the overlay data of a node when its cache entry was evicted.
	Evict(*Node, CommandKey)

	// Releases the overlay data of a destroyed node.
	Release(*Node)
}
