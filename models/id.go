package models

import (
	"sync"

	"github.com/RoaringBitmap/roaring"
)

// IDPool hands out uint32 ids. Released ids are handed out again lowest
// first, which keeps the bitmaps built from node ids dense.
type IDPool struct {
	mutex    sync.Mutex
	last     uint32
	released *roaring.Bitmap
}

// Next returns the lowest released id, or a new one when none was released.
func (p *IDPool) Next() uint32 {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.released != nil && !p.released.IsEmpty() {
		id := p.released.Minimum()
		p.released.Remove(id)
		return id
	}

	p.last++
	return p.last
}

// Release gives an id back to the pool. Ids that were never handed out are
// ignored.
func (p *IDPool) Release(id uint32) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if id == 0 || id > p.last {
		return
	}
	if p.released == nil {
		p.released = roaring.New()
	}
	p.released.Add(id)
}

// InUse returns the number of ids currently handed out.
func (p *IDPool) InUse() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.released == nil {
		return int(p.last)
	}
	return int(p.last) - int(p.released.GetCardinality())
}
