// Package dpage defines the fixed-size page frame shared by the buffer
// pool and disk manager, plus the typed views a hash index layers over
// a page's raw bytes.
package dpage

import (
	"sync"
	"sync/atomic"

	"github.com/ncw/directio"

	"driftdb/pkg/config"
)

// ID identifies a page on disk. InvalidID never reaches the disk manager.
type ID int32

// InvalidID is the sentinel page id meaning "no page".
const InvalidID ID = -1

// FrameID identifies a slot in the buffer pool's frame array.
type FrameID int

// Page is an in-memory frame: PAGE_SIZE bytes of data plus the
// bookkeeping the buffer pool needs to decide when the frame can be
// reused.
type Page struct {
	id       ID
	pinCount atomic.Int64
	dirty    bool
	rwlock   sync.RWMutex
	data     []byte
}

// New returns a freshly zeroed page frame backed by its own
// O_DIRECT-aligned buffer, unassigned to any page id. Standalone
// frames created this way are for tests; a buffer pool instead slices
// one large aligned block per
// frame via NewWithData, the way the teacher's pager provisions its
// whole frame set up front.
func New() *Page {
	return NewWithData(directio.AlignedBlock(config.PageSize))
}

// NewWithData wraps an existing (already appropriately sized and,
// where I/O alignment matters, block-aligned) byte slice as a frame.
func NewWithData(data []byte) *Page {
	return &Page{id: InvalidID, data: data}
}

// ID returns the page id currently resident in this frame.
func (p *Page) ID() ID {
	return p.id
}

// SetID reassigns the frame to a different page id, used when the
// buffer pool recycles a frame for a new page.
func (p *Page) SetID(id ID) {
	p.id = id
}

// IsDirty reports whether the frame's data differs from what is on disk.
func (p *Page) IsDirty() bool {
	return p.dirty
}

// SetDirty changes the dirty flag directly, used by the buffer pool
// when a caller unpins a modified page and after a write-back.
func (p *Page) SetDirty(dirty bool) {
	p.dirty = dirty
}

// Data returns the frame's raw byte buffer.
func (p *Page) Data() []byte {
	return p.data
}

// Reset clears a frame's contents and metadata so it can be reused for
// a different page id.
func (p *Page) Reset() {
	for i := range p.data {
		p.data[i] = 0
	}
	p.id = InvalidID
	p.dirty = false
	p.pinCount.Store(0)
}

// Pin increments the pin count, marking the frame as in use.
func (p *Page) Pin() int64 {
	return p.pinCount.Add(1)
}

// Unpin decrements the pin count. A frame at pin count zero is
// eligible for eviction.
func (p *Page) Unpin() int64 {
	return p.pinCount.Add(-1)
}

// PinCount returns the current pin count.
func (p *Page) PinCount() int64 {
	return p.pinCount.Load()
}

// Update writes size bytes of data into the frame at the given offset
// and marks the frame dirty.
func (p *Page) Update(data []byte, offset, size int) {
	p.dirty = true
	copy(p.data[offset:offset+size], data)
}

// WLock acquires the frame's write latch.
func (p *Page) WLock() {
	p.rwlock.Lock()
}

// WUnlock releases the frame's write latch.
func (p *Page) WUnlock() {
	p.rwlock.Unlock()
}

// RLock acquires the frame's read latch.
func (p *Page) RLock() {
	p.rwlock.RLock()
}

// RUnlock releases the frame's read latch.
func (p *Page) RUnlock() {
	p.rwlock.RUnlock()
}
