package models

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Resource is the decoded result of a command. Resources implementing
// Disposable are disposed once evicted from the cache.
type Resource any

type Disposable interface {
	Dispose()
}

// CommandKey identifies a load: at most one command per key is in flight.
type CommandKey struct {
	Layer uint32
	Node  string
	URL   string
}

func (k CommandKey) String() string {
	return fmt.Sprintf("%d/%s/%s", k.Layer, k.Node, k.URL)
}

// Command is a request to load a resource for a node.
type Command struct {
	Layer    *Layer
	Node     *Node
	Protocol string
	URL      string

	// Higher priorities are executed first.
	Priority float64

	// Provider specific data.
	Metadata any

	// Reports whether the command became useless. It is only evaluated from
	// the frame goroutine.
	EarlyDrop func(*Command) bool

	CreatedAt time.Time

	cancelled atomic.Bool
}

func (c *Command) Key() CommandKey {
	k := CommandKey{URL: c.URL}
	if c.Layer != nil {
		k.Layer = c.Layer.ID
	}
	if c.Node != nil {
		k.Node = c.Node.Name
	}
	return k
}

// Cancel flags the command as cancelled. Providers poll Cancelled and stop
// their work as soon as possible.
func (c *Command) Cancel() {
	c.cancelled.Store(true)
}

func (c *Command) Cancelled() bool {
	return c.cancelled.Load()
}

// ShouldDrop reports whether the command is cancelled or became useless.
func (c *Command) ShouldDrop() bool {
	if c.Cancelled() {
		return true
	}
	return c.EarlyDrop != nil && c.EarlyDrop(c)
}

// Future is the eventual outcome of a command. Callbacks registered with Then
// run once, on the goroutine that resolves the future.
type Future struct {
	mutex     sync.Mutex
	done      bool
	resource  Resource
	err       error
	callbacks []func(Resource, error)
}

func NewFuture() *Future {
	return &Future{}
}

// Resolved returns an already resolved future.
func Resolved(res Resource, err error) *Future {
	return &Future{
		done:     true,
		resource: res,
		err:      err,
	}
}

// Resolve settles the future. Only the first call has an effect.
func (f *Future) Resolve(res Resource, err error) {
	f.mutex.Lock()
	if f.done {
		f.mutex.Unlock()
		return
	}
	f.done = true
	f.resource = res
	f.err = err
	callbacks := f.callbacks
	f.callbacks = nil
	f.mutex.Unlock()

	for _, cb := range callbacks {
		cb(res, err)
	}
}

// Then registers a callback. It is called immediately when the future is
// already resolved.
func (f *Future) Then(cb func(Resource, error)) *Future {
	f.mutex.Lock()
	if !f.done {
		f.callbacks = append(f.callbacks, cb)
		f.mutex.Unlock()
		return f
	}
	res, err := f.resource, f.err
	f.mutex.Unlock()

	cb(res, err)
	return f
}

func (f *Future) Done() bool {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	return f.done
}

func (f *Future) Result() (Resource, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	return f.resource, f.err
}
