package engine

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RoaringBitmap/roaring"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/tessera/cache"
	"github.com/aukilabs/tessera/featureflag"
	"github.com/aukilabs/tessera/geometry"
	"github.com/aukilabs/tessera/models"
	"github.com/aukilabs/tessera/modules"
	"github.com/aukilabs/tessera/scheduler"
)

const (
	DefaultFrameDuration = time.Millisecond * 16
	DefaultGracePeriod   = time.Second * 10

	// A camera update is not usable.
	ErrTypeInvalidCamera = "invalid_camera"
)

// Options configures an engine.
type Options struct {
	// The interval between two frames when the engine runs.
	FrameDuration time.Duration

	// How long a subtree stays hidden before being destroyed.
	GracePeriod time.Duration

	Flags featureflag.FeatureFlag
}

// Engine updates the node hierarchies of its layers once per frame and
// streams their content through the scheduler. Tick must only be called from
// a single goroutine, the frame goroutine. The other methods are safe for
// concurrent use.
type Engine struct {
	FrameDuration time.Duration
	GracePeriod   time.Duration
	Flags         featureflag.FeatureFlag
	Scheduler     *scheduler.Scheduler
	Cache         *cache.Cache

	moduleMutex sync.RWMutex
	modules     map[string]modules.Module

	layerIDs   models.IDPool
	layerMutex sync.RWMutex
	layers     map[uint32]*layerEntry

	changeMutex sync.Mutex
	camera      geometry.Camera
	hasCamera   bool
	sources     []models.ChangeSource
	invalidated []models.ChangeSource

	frame     uint64
	lastFrame atomic.Pointer[Frame]

	frameHandlerIDs models.IDPool
	frameHandlers   map[uint32]func(Frame)
	frameMutex      sync.RWMutex

	closeOnce sync.Once
	closeChan chan struct{}
}

type layerEntry struct {
	layer  *models.Layer
	module modules.Module

	// Ids of the nodes displayed at the previous frame.
	displayed *roaring.Bitmap
}

func New(s *scheduler.Scheduler, c *cache.Cache, opts Options) *Engine {
	if opts.FrameDuration <= 0 {
		opts.FrameDuration = DefaultFrameDuration
	}
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = DefaultGracePeriod
	}
	if opts.Flags == nil {
		opts.Flags = featureflag.New(nil)
	}

	return &Engine{
		FrameDuration: opts.FrameDuration,
		GracePeriod:   opts.GracePeriod,
		Flags:         opts.Flags,
		Scheduler:     s,
		Cache:         c,
		modules:       make(map[string]modules.Module),
		layers:        make(map[uint32]*layerEntry),
		frameHandlers: make(map[uint32]func(Frame)),
		closeChan:     make(chan struct{}),
	}
}

// RegisterModule sets the module refining the layers whose kind is the module
// name.
func (e *Engine) RegisterModule(m modules.Module) {
	e.moduleMutex.Lock()
	defer e.moduleMutex.Unlock()

	e.modules[m.Name()] = m
}

func (e *Engine) module(kind string) (modules.Module, bool) {
	e.moduleMutex.RLock()
	defer e.moduleMutex.RUnlock()

	m, ok := e.modules[kind]
	return m, ok
}

// NewLayerID returns an id for a layer to add.
func (e *Engine) NewLayerID() uint32 {
	return e.layerIDs.Next()
}

// AddLayer preprocesses a layer with the provider of its module, builds its
// roots and adds it to the updated layers.
func (e *Engine) AddLayer(ctx context.Context, l *models.Layer) error {
	m, ok := e.module(l.Kind)
	if !ok {
		return errors.New("unknown layer kind").
			WithType(models.ErrTypeConfiguration).
			WithTag("layer", l.Name).
			WithTag("kind", l.Kind)
	}

	if err := e.Scheduler.PreprocessLayer(ctx, m.Protocol(), l); err != nil {
		return err
	}

	if err := m.Init(l); err != nil {
		return errors.New("initializing layer failed").
			WithType(models.ErrTypeConfiguration).
			WithTag("layer", l.Name).
			WithTag("kind", l.Kind).
			Wrap(err)
	}

	e.layerMutex.Lock()
	defer e.layerMutex.Unlock()

	e.layers[l.ID] = &layerEntry{
		layer:     l,
		module:    m,
		displayed: roaring.New(),
	}

	logs.WithTag("layer", l.Name).
		WithTag("kind", l.Kind).
		WithTag("id", l.ID).
		WithTag("roots", len(l.Roots())).
		Info("layer added")

	e.Notify(models.NodeSource(l.ID, ""))
	return nil
}

func (e *Engine) Layer(id uint32) (*models.Layer, bool) {
	e.layerMutex.RLock()
	defer e.layerMutex.RUnlock()

	entry, ok := e.layers[id]
	if !ok {
		return nil, false
	}
	return entry.layer, true
}

// Layers returns the layers ordered by id.
func (e *Engine) Layers() []*models.Layer {
	entries := e.layerEntries()

	layers := make([]*models.Layer, len(entries))
	for i, entry := range entries {
		layers[i] = entry.layer
	}
	return layers
}

func (e *Engine) layerEntries() []*layerEntry {
	e.layerMutex.RLock()
	defer e.layerMutex.RUnlock()

	entries := make([]*layerEntry, 0, len(e.layers))
	for _, entry := range e.layers {
		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].layer.ID < entries[j].layer.ID
	})
	return entries
}

// SetLayerVisible shows or hides a layer and schedules its update.
func (e *Engine) SetLayerVisible(id uint32, visible bool) bool {
	l, ok := e.Layer(id)
	if !ok {
		return false
	}

	l.SetVisible(visible)
	e.Notify(models.NodeSource(id, ""))
	return true
}

// SetCamera sets the camera used from the next frame.
func (e *Engine) SetCamera(c geometry.Camera) error {
	if !c.Valid() {
		return errors.New("invalid camera").
			WithType(ErrTypeInvalidCamera).
			WithTag("width", c.Width).
			WithTag("height", c.Height).
			WithTag("fov_y", c.FovY)
	}

	e.changeMutex.Lock()
	defer e.changeMutex.Unlock()

	e.camera = c
	e.hasCamera = true
	e.sources = append(e.sources, models.CameraSource())
	return nil
}

// Notify schedules the update of the parts of the scene described by the
// sources.
func (e *Engine) Notify(sources ...models.ChangeSource) {
	e.changeMutex.Lock()
	defer e.changeMutex.Unlock()

	e.sources = append(e.sources, sources...)
}

// Invalidate schedules the update of a node. Failed nodes of its subtree are
// requested again.
func (e *Engine) Invalidate(layerID uint32, nodeName string) {
	source := models.NodeSource(layerID, nodeName)

	e.changeMutex.Lock()
	defer e.changeMutex.Unlock()

	e.sources = append(e.sources, source)
	e.invalidated = append(e.invalidated, source)
}

func (e *Engine) takeChanges() (camera geometry.Camera, ok bool, sources, invalidated []models.ChangeSource) {
	e.changeMutex.Lock()
	defer e.changeMutex.Unlock()

	sources, invalidated = e.sources, e.invalidated
	e.sources, e.invalidated = nil, nil
	return e.camera, e.hasCamera, sources, invalidated
}

// HandleFrame registers a handler called with the report of every frame. The
// handler runs on the frame goroutine.
func (e *Engine) HandleFrame(h func(Frame)) (cancel func()) {
	e.frameMutex.Lock()
	defer e.frameMutex.Unlock()

	id := e.frameHandlerIDs.Next()
	e.frameHandlers[id] = h

	return func() {
		e.frameMutex.Lock()
		defer e.frameMutex.Unlock()

		delete(e.frameHandlers, id)
		e.frameHandlerIDs.Release(id)
	}
}

// LastFrame returns the report of the last frame.
func (e *Engine) LastFrame() (Frame, bool) {
	f := e.lastFrame.Load()
	if f == nil {
		return Frame{}, false
	}
	return *f, true
}

// Run starts the scheduler workers and ticks frames until ctx is done or the
// engine is closed.
func (e *Engine) Run(ctx context.Context) {
	e.Scheduler.Start(ctx)
	defer e.Scheduler.Close()

	ticker := time.NewTicker(e.FrameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-e.closeChan:
			return

		case now := <-ticker.C:
			e.Tick(now)
		}
	}
}

// Close stops Run.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		close(e.closeChan)
	})
}

// Tick runs one frame: results received since the last frame are committed,
// the layers touched by a change are updated, pending commands are dispatched
// and unused cache entries are flushed.
func (e *Engine) Tick(now time.Time) Frame {
	start := time.Now()
	e.frame++

	e.Scheduler.Drain(e.frame)

	camera, hasCamera, sources, invalidated := e.takeChanges()
	fc := models.NewFrameContext(e.frame, now, camera, e.Scheduler, e.Flags)
	entries := e.layerEntries()

	for _, entry := range entries {
		l := entry.layer

		if !l.Visible() {
			for _, r := range l.Roots() {
				r.Hide(now)
				r.HideDescendants(now)
			}
		} else if hasCamera && touches(sources, l) && !e.Flags.IsSet(featureflag.FlagFreezeUpdate) {
			e.resetFailed(l, invalidated)
			e.updateLayer(fc, entry, sources)
		}

		e.evictHidden(fc, l)
	}

	e.Scheduler.Dispatch()
	e.retain(fc, entries)
	e.flushCache(entries)

	frame := e.report(fc, entries)
	frame.Duration = time.Since(start)
	instrumentFrame(frame)

	e.lastFrame.Store(&frame)

	e.frameMutex.RLock()
	for _, h := range e.frameHandlers {
		h(frame)
	}
	e.frameMutex.RUnlock()
	return frame
}

// touches reports whether one of the sources concerns the layer.
func touches(sources []models.ChangeSource, l *models.Layer) bool {
	for _, s := range sources {
		if s.Camera || s.Layer == 0 || s.Layer == l.ID {
			return true
		}
	}
	return false
}

// resetFailed makes the failed nodes of the invalidated subtrees requestable
// again.
func (e *Engine) resetFailed(l *models.Layer, invalidated []models.ChangeSource) {
	reset := func(n *models.Node) bool {
		if n.LoadState == models.Failed {
			n.LoadState = models.Unrequested
		}
		return true
	}

	for _, s := range invalidated {
		if s.Layer != l.ID {
			continue
		}

		if n, ok := l.NodeByName(s.Node); ok {
			reset(n)
			n.WalkDescendants(reset)
		}
	}
}

// flushCache evicts unused cache entries. Nodes still holding an evicted
// resource are requested again, then resources are disposed off the frame
// goroutine.
func (e *Engine) flushCache(entries []*layerEntry) {
	evicted := e.Cache.Flush(e.frame)
	if len(evicted) == 0 {
		return
	}

	layers := make(map[uint32]*models.Layer, len(entries))
	for _, entry := range entries {
		layers[entry.layer.ID] = entry.layer
	}

	for _, entry := range evicted {
		l, ok := layers[entry.Key.Layer]
		if !ok {
			continue
		}

		n, ok := l.NodeByName(entry.Key.Node)
		if !ok {
			continue
		}

		// A replaced copy is evicted while the key stays resident.
		if e.Cache.Contains(entry.Key) {
			continue
		}

		for _, o := range l.Overlays {
			o.Evict(n, entry.Key)
		}

		if n.ContentKey != entry.Key || n.LoadState != models.Loaded {
			continue
		}

		n.Content = nil
		n.LoadState = models.Unrequested
		n.Displayed = false
		if n.Visible {
			e.notifyNode(l, n)
		}
	}

	go cache.Dispose(evicted)
}

func (e *Engine) notifyNode(l *models.Layer, n *models.Node) {
	e.Notify(models.NodeSource(l.ID, n.Name))
}
