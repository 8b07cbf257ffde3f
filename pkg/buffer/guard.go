package buffer

import "driftdb/pkg/dpage"

// BasicPageGuard owns exactly one pin on a page, releasing it via
// Drop the way a C++ destructor would; Go has no destructors, so
// callers must call Drop (typically via defer) instead of relying on
// scope exit. A guard that has already been dropped or handed to
// UpgradeRead/UpgradeWrite is inert: Drop on it is a no-op.
type BasicPageGuard struct {
	bpm     *BufferPoolManager
	page    *dpage.Page
	id      dpage.ID
	isDirty bool
	dropped bool
}

// FetchPageBasic fetches and pins id, returning a guard that unpins it
// on Drop.
func FetchPageBasic(bpm *BufferPoolManager, id dpage.ID) (*BasicPageGuard, bool) {
	page, ok := bpm.FetchPage(id)
	if !ok {
		return nil, false
	}
	return &BasicPageGuard{bpm: bpm, page: page, id: id}, true
}

// NewPageBasic allocates a fresh page and returns a guard over it.
func NewPageBasic(bpm *BufferPoolManager) (dpage.ID, *BasicPageGuard, bool) {
	id, page, ok := bpm.NewPage()
	if !ok {
		return dpage.InvalidID, nil, false
	}
	return id, &BasicPageGuard{bpm: bpm, page: page, id: id}, true
}

// PageID returns the id of the page this guard covers.
func (g *BasicPageGuard) PageID() dpage.ID {
	return g.id
}

// Page returns the underlying page. The caller is responsible for
// taking whatever latch its access pattern requires; BasicPageGuard
// itself holds no latch, only the pin.
func (g *BasicPageGuard) Page() *dpage.Page {
	return g.page
}

// MarkDirty flags the covered page dirty, to be written back on
// eviction or flush.
func (g *BasicPageGuard) MarkDirty() {
	g.isDirty = true
}

// Drop releases the guard's pin. Safe to call multiple times.
func (g *BasicPageGuard) Drop() {
	if g.dropped {
		return
	}
	g.dropped = true
	g.bpm.UnpinPage(g.id, g.isDirty)
}

// UpgradeRead consumes the basic guard, taking the page's read latch
// and returning a ReadPageGuard over the same pin. The basic guard
// must not be used or dropped afterward.
func (g *BasicPageGuard) UpgradeRead() *ReadPageGuard {
	g.dropped = true
	g.page.RLock()
	return &ReadPageGuard{basic: BasicPageGuard{bpm: g.bpm, page: g.page, id: g.id, isDirty: g.isDirty}}
}

// UpgradeWrite consumes the basic guard, taking the page's write latch
// and returning a WritePageGuard over the same pin. The basic guard
// must not be used or dropped afterward.
func (g *BasicPageGuard) UpgradeWrite() *WritePageGuard {
	g.dropped = true
	g.page.WLock()
	return &WritePageGuard{basic: BasicPageGuard{bpm: g.bpm, page: g.page, id: g.id, isDirty: g.isDirty}}
}

// ReadPageGuard holds a page's pin and its read latch. Drop releases
// the latch before the pin, matching the underlying guard's order.
type ReadPageGuard struct {
	basic   BasicPageGuard
	dropped bool
}

// FetchPageRead fetches id and returns a guard holding both its pin
// and its read latch.
func FetchPageRead(bpm *BufferPoolManager, id dpage.ID) (*ReadPageGuard, bool) {
	basic, ok := FetchPageBasic(bpm, id)
	if !ok {
		return nil, false
	}
	return basic.UpgradeRead(), true
}

// PageID returns the id of the page this guard covers.
func (g *ReadPageGuard) PageID() dpage.ID {
	return g.basic.id
}

// Page returns the underlying page for read access.
func (g *ReadPageGuard) Page() *dpage.Page {
	return g.basic.page
}

// Drop releases the read latch, then the pin. Safe to call multiple times.
func (g *ReadPageGuard) Drop() {
	if g.dropped {
		return
	}
	g.dropped = true
	g.basic.page.RUnlock()
	g.basic.Drop()
}

// WritePageGuard holds a page's pin and its write latch.
type WritePageGuard struct {
	basic   BasicPageGuard
	dropped bool
}

// FetchPageWrite fetches id and returns a guard holding both its pin
// and its write latch.
func FetchPageWrite(bpm *BufferPoolManager, id dpage.ID) (*WritePageGuard, bool) {
	basic, ok := FetchPageBasic(bpm, id)
	if !ok {
		return nil, false
	}
	return basic.UpgradeWrite(), true
}

// NewPageWrite allocates a fresh page and returns a guard holding its
// pin and write latch.
func NewPageWrite(bpm *BufferPoolManager) (dpage.ID, *WritePageGuard, bool) {
	id, basic, ok := NewPageBasic(bpm)
	if !ok {
		return dpage.InvalidID, nil, false
	}
	return id, basic.UpgradeWrite(), true
}

// PageID returns the id of the page this guard covers.
func (g *WritePageGuard) PageID() dpage.ID {
	return g.basic.id
}

// Page returns the underlying page for read or write access.
func (g *WritePageGuard) Page() *dpage.Page {
	return g.basic.page
}

// MarkDirty flags the covered page dirty.
func (g *WritePageGuard) MarkDirty() {
	g.basic.MarkDirty()
}

// Drop releases the write latch, then the pin. Safe to call multiple times.
func (g *WritePageGuard) Drop() {
	if g.dropped {
		return
	}
	g.dropped = true
	g.basic.page.WUnlock()
	g.basic.Drop()
}
