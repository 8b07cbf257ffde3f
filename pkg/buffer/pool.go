// Package buffer implements the buffer pool manager: a fixed set of
// in-memory page frames backed by a disk scheduler, with an LRU-K
// replacer choosing which unpinned resident page to evict when no
// frame is free. Callers reach pages through scoped guards (see guard.go)
// rather than the manager's Fetch/Unpin pair directly.
package buffer

import (
	"sync"

	"github.com/ncw/directio"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"driftdb/pkg/config"
	"driftdb/pkg/disk"
	"driftdb/pkg/dpage"
	"driftdb/pkg/logging"
	"driftdb/pkg/replacer"
)

// BufferPoolManager owns a fixed set of page frames and mediates every
// read or write of a page's contents. All bookkeeping (the page
// table, free list, and replacer) is guarded by a single coarse latch;
// only the actual disk I/O happens with that latch released, so one
// slow read never blocks unrelated pool operations.
type BufferPoolManager struct {
	mu sync.Mutex

	frames    []*dpage.Page
	freeList  []dpage.FrameID
	pageTable map[dpage.ID]dpage.FrameID

	inFlight     []bool
	inFlightCond []*sync.Cond

	replacer  *replacer.LRUKReplacer
	scheduler *disk.Scheduler
	dm        disk.DiskManager

	log *logrus.Entry
}

// New builds a pool of poolSize frames, one contiguous O_DIRECT-aligned
// block sliced across all of them the way the teacher's pager
// provisions its frame set, backed by dm and an LRU-K replacer with the
// given K.
func New(poolSize int, dm disk.DiskManager, replacerK int) *BufferPoolManager {
	block := directio.AlignedBlock(config.PageSize * poolSize)
	bpm := &BufferPoolManager{
		frames:       make([]*dpage.Page, poolSize),
		freeList:     make([]dpage.FrameID, poolSize),
		pageTable:    make(map[dpage.ID]dpage.FrameID),
		inFlight:     make([]bool, poolSize),
		inFlightCond: make([]*sync.Cond, poolSize),
		replacer:     replacer.New(poolSize, replacerK),
		scheduler:    disk.NewScheduler(dm),
		dm:           dm,
		log:          logging.Component("buffer"),
	}
	for i := 0; i < poolSize; i++ {
		bpm.frames[i] = dpage.NewWithData(block[i*config.PageSize : (i+1)*config.PageSize])
		bpm.freeList[i] = dpage.FrameID(i)
		bpm.inFlightCond[i] = sync.NewCond(&bpm.mu)
	}
	return bpm
}

// allocFrame returns a free frame, evicting a resident page via the
// replacer if the free list is empty. Called with mu held.
func (bpm *BufferPoolManager) allocFrame() (dpage.FrameID, bool) {
	if n := len(bpm.freeList); n > 0 {
		frameID := bpm.freeList[n-1]
		bpm.freeList = bpm.freeList[:n-1]
		return frameID, true
	}

	frameID, ok := bpm.replacer.Evict()
	if !ok {
		return 0, false
	}
	fid := dpage.FrameID(frameID)
	page := bpm.frames[fid]
	if oldID := page.ID(); oldID != dpage.InvalidID {
		delete(bpm.pageTable, oldID)
		if page.IsDirty() {
			if err := bpm.ioLocked(fid, true); err != nil {
				bpm.log.Errorf("flush of evicted page %d failed: %v", oldID, err)
			}
		}
	}
	page.Reset()
	return fid, true
}

// ioLocked dispatches a read or write of frame fid's contents through
// the scheduler while still holding mu, so requests enqueue in the
// same order their operations were serialized under the coarse latch,
// then releases mu only while waiting for the completion handle,
// mirroring the original buffer pool's release-latch-then-wait
// protocol. Must be called with mu held.
func (bpm *BufferPoolManager) ioLocked(fid dpage.FrameID, isWrite bool) error {
	bpm.inFlight[fid] = true
	page := bpm.frames[fid]
	done := make(chan error, 1)
	req := &disk.Request{IsWrite: isWrite, PageID: page.ID(), Data: page.Data(), Done: done}

	bpm.scheduler.Schedule(req)
	bpm.mu.Unlock()
	err := <-done
	bpm.mu.Lock()

	bpm.inFlight[fid] = false
	bpm.inFlightCond[fid].Broadcast()
	if isWrite && err == nil {
		page.SetDirty(false)
	}
	return err
}

// waitForInFlight blocks until frame fid has no I/O in progress. Must
// be called with mu held; re-acquires it before returning.
func (bpm *BufferPoolManager) waitForInFlight(fid dpage.FrameID) {
	for bpm.inFlight[fid] {
		bpm.inFlightCond[fid].Wait()
	}
}

// NewPage allocates a fresh page id, pins its frame, and returns a
// zeroed page. The caller must eventually call UnpinPage exactly once.
func (bpm *BufferPoolManager) NewPage() (dpage.ID, *dpage.Page, bool) {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	fid, ok := bpm.allocFrame()
	if !ok {
		return dpage.InvalidID, nil, false
	}
	id := bpm.dm.AllocatePage()
	page := bpm.frames[fid]
	page.SetID(id)
	page.Pin()
	bpm.pageTable[id] = fid
	bpm.replacer.RecordAccess(int64(fid), replacer.AccessUnknown)
	bpm.replacer.SetEvictable(int64(fid), false)
	return id, page, true
}

// FetchPage pins and returns the page for id, reading it from disk if
// it isn't already resident. The caller must eventually call UnpinPage
// exactly once.
func (bpm *BufferPoolManager) FetchPage(id dpage.ID) (*dpage.Page, bool) {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	if fid, ok := bpm.pageTable[id]; ok {
		page := bpm.frames[fid]
		page.Pin()
		bpm.replacer.RecordAccess(int64(fid), replacer.AccessUnknown)
		bpm.replacer.SetEvictable(int64(fid), false)
		bpm.waitForInFlight(fid)
		return page, true
	}

	fid, ok := bpm.allocFrame()
	if !ok {
		return nil, false
	}
	page := bpm.frames[fid]
	page.SetID(id)
	page.Pin()
	bpm.pageTable[id] = fid
	bpm.replacer.RecordAccess(int64(fid), replacer.AccessUnknown)
	bpm.replacer.SetEvictable(int64(fid), false)

	if err := bpm.ioLocked(fid, false); err != nil {
		bpm.log.Errorf("read of page %d failed: %v", id, err)
	}
	return page, true
}

// UnpinPage releases one pin on id's frame, marking it dirty if
// isDirty, and makes the frame evictable once its pin count reaches
// zero. Returns false if id isn't resident or is already unpinned.
func (bpm *BufferPoolManager) UnpinPage(id dpage.ID, isDirty bool) bool {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	fid, ok := bpm.pageTable[id]
	if !ok {
		return false
	}
	page := bpm.frames[fid]
	if isDirty {
		page.SetDirty(true)
	}
	if page.PinCount() <= 0 {
		return false
	}
	if page.Unpin() == 0 {
		bpm.replacer.SetEvictable(int64(fid), true)
	}
	return true
}

// FlushPage writes id's frame to disk if dirty, regardless of pin
// count. Returns false if id isn't resident.
func (bpm *BufferPoolManager) FlushPage(id dpage.ID) bool {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()
	return bpm.flushLocked(id)
}

func (bpm *BufferPoolManager) flushLocked(id dpage.ID) bool {
	fid, ok := bpm.pageTable[id]
	if !ok {
		return false
	}
	if bpm.frames[fid].IsDirty() {
		if err := bpm.ioLocked(fid, true); err != nil {
			bpm.log.Errorf("flush of page %d failed: %v", id, err)
		}
	}
	return true
}

// FlushAllPages flushes every resident page. Frames are dispatched
// concurrently: each flush releases the coarse latch for its actual
// disk write, so a slow write no longer serializes the whole pool
// behind it the way a single-threaded flush loop would.
func (bpm *BufferPoolManager) FlushAllPages() error {
	bpm.mu.Lock()
	ids := make([]dpage.ID, 0, len(bpm.pageTable))
	for id := range bpm.pageTable {
		ids = append(ids, id)
	}
	bpm.mu.Unlock()

	var g errgroup.Group
	for _, id := range ids {
		id := id
		g.Go(func() error {
			bpm.FlushPage(id)
			return nil
		})
	}
	return g.Wait()
}

// DeletePage removes id from the pool and frees its disk allocation.
// Returns false (refusing to delete) if the page is still pinned.
func (bpm *BufferPoolManager) DeletePage(id dpage.ID) bool {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	fid, ok := bpm.pageTable[id]
	if !ok {
		return true
	}
	page := bpm.frames[fid]
	if page.PinCount() != 0 {
		return false
	}
	delete(bpm.pageTable, id)
	bpm.replacer.Remove(int64(fid))
	if page.IsDirty() {
		if err := bpm.ioLocked(fid, true); err != nil {
			bpm.log.Errorf("flush of deleted page %d failed: %v", id, err)
		}
	}
	page.Reset()
	bpm.freeList = append(bpm.freeList, fid)
	bpm.dm.DeallocatePage(id)
	return true
}

// Backup flushes every resident page and snapshots the backing store
// into dir.
func (bpm *BufferPoolManager) Backup(dir string) error {
	if err := bpm.FlushAllPages(); err != nil {
		return err
	}
	return bpm.dm.Backup(dir)
}

// Close flushes and shuts down the pool's disk scheduler and manager.
func (bpm *BufferPoolManager) Close() error {
	if err := bpm.FlushAllPages(); err != nil {
		return err
	}
	bpm.scheduler.Shutdown()
	return bpm.dm.Close()
}

// PoolSize returns the number of frames the pool was constructed with.
func (bpm *BufferPoolManager) PoolSize() int {
	return len(bpm.frames)
}
