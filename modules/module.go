package modules

import (
	"github.com/aukilabs/tessera/models"
)

// Module is the interface that describes how a layer kind is refined. One
// module instance serves every layer of its kind. Methods are called from the
// frame goroutine and must not block.
type Module interface {
	// Returns the module name. Layers whose kind matches the name are
	// handled by the module.
	Name() string

	// Returns the protocol of the provider loading the layer data.
	Protocol() string

	// Builds the layer roots. Called once, after the provider preprocessed
	// the layer.
	Init(*models.Layer) error

	// Reports whether the node is not visible.
	Cull(*models.FrameContext, *models.Layer, *models.Node) bool

	// Reports whether a visible node must be refined. It records the node
	// screen space error.
	ShouldSubdivide(*models.FrameContext, *models.Layer, *models.Node) bool

	// Materializes the children of a node. The returned future resolves with
	// a []*models.Node batch.
	Subdivide(*models.FrameContext, *models.Layer, *models.Node) *models.Future

	// Returns the command loading the node content. A nil command means the
	// node has no content.
	ContentCommand(*models.FrameContext, *models.Layer, *models.Node) *models.Command

	// Called once per frame after the layer nodes were updated.
	PostUpdate(*models.FrameContext, *models.Layer)
}
