package cache

import (
	"sync"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/tessera/models"
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	DefaultCapacity    = 4096
	DefaultGraceFrames = 120
)

// Entry is a resident resource.
type Entry struct {
	Key           models.CommandKey
	Resource      models.Resource
	Version       uint64
	LastUsedFrame uint64
}

// Cache stores command results by key. Entries not touched for GraceFrames
// frames are evicted on Flush. The capacity is a hard bound: exceeding it
// evicts the least recently used entry. Evicted entries are handed back by
// Flush so that the caller disposes them off the frame goroutine.
type Cache struct {
	graceFrames uint64

	mutex    sync.Mutex
	entries  *lru.Cache[models.CommandKey, *Entry]
	versions map[models.CommandKey]uint64
	evicted  []*Entry
}

func New(capacity int, graceFrames uint64) (*Cache, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	c := &Cache{
		graceFrames: graceFrames,
		versions:    make(map[models.CommandKey]uint64),
	}

	entries, err := lru.NewWithEvict(capacity, c.onEvicted)
	if err != nil {
		return nil, errors.New("creating cache failed").
			WithTag("capacity", capacity).
			Wrap(err)
	}
	c.entries = entries
	return c, nil
}

// onEvicted is called by the lru on the goroutine holding c.mutex.
func (c *Cache) onEvicted(key models.CommandKey, e *Entry) {
	c.evicted = append(c.evicted, e)
	instrumentEviction()
}

// Get returns the resource stored for key and marks it as used at frame.
func (c *Cache) Get(key models.CommandKey, frame uint64) (models.Resource, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	e, ok := c.entries.Get(key)
	if !ok {
		instrumentLookup(false)
		return nil, false
	}

	e.LastUsedFrame = frame
	instrumentLookup(true)
	return e.Resource, true
}

// Touch marks the entry as used at frame and reports whether it exists.
func (c *Cache) Touch(key models.CommandKey, frame uint64) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	e, ok := c.entries.Get(key)
	if ok {
		e.LastUsedFrame = frame
	}
	return ok
}

// Contains reports whether an entry is stored for key, without marking it as
// used.
func (c *Cache) Contains(key models.CommandKey) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.entries.Contains(key)
}

// Put stores a resource. A resource already stored for the key is replaced and
// queued for disposal so that at most one copy per key stays resident. It
// returns the version of the stored entry.
func (c *Cache) Put(key models.CommandKey, res models.Resource, frame uint64) uint64 {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if previous, ok := c.entries.Peek(key); ok {
		c.evicted = append(c.evicted, previous)
	}

	c.versions[key]++
	version := c.versions[key]

	c.entries.Add(key, &Entry{
		Key:           key,
		Resource:      res,
		Version:       version,
		LastUsedFrame: frame,
	})
	instrumentSize(c.entries.Len())
	return version
}

// Remove evicts the entry stored for key.
func (c *Cache) Remove(key models.CommandKey) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.entries.Remove(key)
	instrumentSize(c.entries.Len())
}

// Flush evicts the entries that were not used within the grace window and
// returns every entry evicted since the previous flush.
func (c *Cache) Flush(frame uint64) []*Entry {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	// Keys are ordered from the least recently used, so the scan stops at
	// the first entry still within the grace window.
	for _, key := range c.entries.Keys() {
		e, ok := c.entries.Peek(key)
		if !ok {
			continue
		}
		if frame < e.LastUsedFrame || frame-e.LastUsedFrame <= c.graceFrames {
			break
		}
		c.entries.Remove(key)
	}

	evicted := c.evicted
	c.evicted = nil
	instrumentSize(c.entries.Len())
	return evicted
}

func (c *Cache) Len() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.entries.Len()
}

// Dispose disposes the resources of the given entries.
func Dispose(entries []*Entry) {
	for _, e := range entries {
		if d, ok := e.Resource.(models.Disposable); ok {
			d.Dispose()
		}
	}
}
