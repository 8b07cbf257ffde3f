// Package hashindex implements the three-level on-disk extendible
// hash index: a header page routes a key's hash to a directory page,
// which routes it to a bucket page holding the actual key/RID
// entries. Growth is local: a full bucket splits in place and only
// the directory slots that pointed at it are updated, so an insert
// into one region of the key space never touches unrelated buckets.
package hashindex

import (
	"errors"

	"github.com/sirupsen/logrus"

	"driftdb/pkg/buffer"
	"driftdb/pkg/concurrency"
	"driftdb/pkg/config"
	"driftdb/pkg/dpage"
	"driftdb/pkg/entry"
	"driftdb/pkg/logging"
)

// ErrTableFull is returned by Insert when a bucket needs to split but
// its directory is already at its configured max depth.
var ErrTableFull = errors.New("hashindex: directory at max depth, cannot split further")

// ErrBufferPoolExhausted is returned when a structural operation
// (creating a directory or bucket page) cannot get a free frame.
var ErrBufferPoolExhausted = errors.New("hashindex: buffer pool has no free frame")

// ErrDuplicateKey is returned by Insert when the key is already present.
var ErrDuplicateKey = errors.New("hashindex: key already exists")

// ExtendibleHashTable is a generic on-disk hash index keyed by K,
// mapping each key to the RID of the tuple it indexes.
type ExtendibleHashTable[K any] struct {
	bpm   *buffer.BufferPoolManager
	codec dpage.KeyCodec[K]
	hash  Hasher

	headerPageID dpage.ID

	headerMaxDepth    uint32
	directoryMaxDepth uint32
	bucketMaxSize     uint32

	log *logrus.Entry

	// latchGraph is nil unless EnableLatchAudit was called, in which
	// case every guard acquisition/release below feeds it.
	latchGraph *concurrency.LatchOrderGraph
}

// EnableLatchAudit turns on header/directory/bucket latch-order
// auditing for every subsequent operation on t, returning the graph a
// caller can later check with HasInversion. Intended for tests that
// want to assert the hash index never acquires a coarser guard while
// already holding a finer one; disabled by default since it adds
// bookkeeping to every guard acquisition.
func (t *ExtendibleHashTable[K]) EnableLatchAudit() *concurrency.LatchOrderGraph {
	t.latchGraph = concurrency.NewLatchOrderGraph()
	return t.latchGraph
}

// New creates a fresh index backed by bpm, sized by config's defaults,
// allocating and initializing its header page.
func New[K any](bpm *buffer.BufferPoolManager, codec dpage.KeyCodec[K], hash Hasher) (*ExtendibleHashTable[K], error) {
	return NewWithParams(bpm, codec, hash, config.DefaultHeaderMaxDepth, config.DefaultDirectoryMaxDepth, config.DefaultBucketMaxSize)
}

// NewWithParams is New with explicit header/directory/bucket sizing,
// for callers (tests, tools) that want to force splits or merges
// without inserting hundreds of thousands of keys first.
func NewWithParams[K any](bpm *buffer.BufferPoolManager, codec dpage.KeyCodec[K], hash Hasher, headerMaxDepth, directoryMaxDepth, bucketMaxSize uint32) (*ExtendibleHashTable[K], error) {
	headerPageID, headerGuard, ok := buffer.NewPageWrite(bpm)
	if !ok {
		return nil, ErrBufferPoolExhausted
	}
	header := dpage.NewHeaderPage(headerGuard.Page())
	header.Init(headerMaxDepth)
	headerGuard.Drop()

	return &ExtendibleHashTable[K]{
		bpm:               bpm,
		codec:             codec,
		hash:              hash,
		headerPageID:      headerPageID,
		headerMaxDepth:    headerMaxDepth,
		directoryMaxDepth: directoryMaxDepth,
		bucketMaxSize:     bucketMaxSize,
		log:               logging.Component("hashindex"),
	}, nil
}

// Open wraps an existing header page (e.g. one recovered from a
// backup) as an ExtendibleHashTable, rather than allocating a fresh one.
func Open[K any](bpm *buffer.BufferPoolManager, headerPageID dpage.ID, codec dpage.KeyCodec[K], hash Hasher) *ExtendibleHashTable[K] {
	return &ExtendibleHashTable[K]{
		bpm:               bpm,
		codec:             codec,
		hash:              hash,
		headerPageID:      headerPageID,
		headerMaxDepth:    config.DefaultHeaderMaxDepth,
		directoryMaxDepth: config.DefaultDirectoryMaxDepth,
		bucketMaxSize:     config.DefaultBucketMaxSize,
		log:               logging.Component("hashindex"),
	}
}

// HeaderPageID returns the id of the index's header page, the handle
// a caller needs to reopen this index later.
func (t *ExtendibleHashTable[K]) HeaderPageID() dpage.ID {
	return t.headerPageID
}

func (t *ExtendibleHashTable[K]) hashKey(key K) uint32 {
	return t.hash(t.codec.Encode(key))
}

// GetValue looks up key, returning its RID and whether it was found.
func (t *ExtendibleHashTable[K]) GetValue(key K) (entry.RID, bool, error) {
	h := t.hashKey(key)
	tr := concurrency.NewTracker(t.latchGraph)

	headerGuard, ok := buffer.FetchPageRead(t.bpm, t.headerPageID)
	if !ok {
		return entry.RID{}, false, ErrBufferPoolExhausted
	}
	tr.Acquire(concurrency.KindHeader)
	header := dpage.NewHeaderPage(headerGuard.Page())
	dirIdx := header.HashToDirectoryIndex(h)
	dirPageID := header.DirectoryPageID(dirIdx)
	headerGuard.Drop()
	tr.Release(concurrency.KindHeader)
	if dirPageID == dpage.InvalidID {
		return entry.RID{}, false, nil
	}

	dirGuard, ok := buffer.FetchPageRead(t.bpm, dirPageID)
	if !ok {
		return entry.RID{}, false, ErrBufferPoolExhausted
	}
	tr.Acquire(concurrency.KindDirectory)
	directory := dpage.NewDirectoryPage(dirGuard.Page())
	bucketIdx := directory.HashToBucketIndex(h)
	bucketPageID := directory.BucketPageID(bucketIdx)
	dirGuard.Drop()
	tr.Release(concurrency.KindDirectory)
	if bucketPageID == dpage.InvalidID {
		return entry.RID{}, false, nil
	}

	bucketGuard, ok := buffer.FetchPageRead(t.bpm, bucketPageID)
	if !ok {
		return entry.RID{}, false, ErrBufferPoolExhausted
	}
	tr.Acquire(concurrency.KindBucket)
	defer func() {
		bucketGuard.Drop()
		tr.Release(concurrency.KindBucket)
	}()
	bucket := dpage.NewBucketPage[K](bucketGuard.Page(), t.codec)
	rid, found := bucket.Lookup(key)
	return rid, found, nil
}

// Insert adds key/value to the index, splitting buckets as needed.
// Returns ErrDuplicateKey if key is already present and ErrTableFull
// if a split is required but the directory is already at max depth.
func (t *ExtendibleHashTable[K]) Insert(key K, value entry.RID) error {
	h := t.hashKey(key)
	tr := concurrency.NewTracker(t.latchGraph)

	headerGuard, ok := buffer.FetchPageWrite(t.bpm, t.headerPageID)
	if !ok {
		return ErrBufferPoolExhausted
	}
	tr.Acquire(concurrency.KindHeader)
	header := dpage.NewHeaderPage(headerGuard.Page())
	dirIdx := header.HashToDirectoryIndex(h)
	dirPageID := header.DirectoryPageID(dirIdx)
	if dirPageID == dpage.InvalidID {
		defer func() {
			headerGuard.Drop()
			tr.Release(concurrency.KindHeader)
		}()
		return t.insertToNewDirectory(tr, header, dirIdx, h, key, value)
	}
	headerGuard.Drop()
	tr.Release(concurrency.KindHeader)

	dirGuard, ok := buffer.FetchPageWrite(t.bpm, dirPageID)
	if !ok {
		return ErrBufferPoolExhausted
	}
	tr.Acquire(concurrency.KindDirectory)
	defer func() {
		dirGuard.Drop()
		tr.Release(concurrency.KindDirectory)
	}()
	directory := dpage.NewDirectoryPage(dirGuard.Page())

	bucketIdx := directory.HashToBucketIndex(h)
	bucketPageID := directory.BucketPageID(bucketIdx)
	if bucketPageID == dpage.InvalidID {
		return t.insertToNewBucket(tr, directory, bucketIdx, key, value)
	}

	bucketGuard, ok := buffer.FetchPageWrite(t.bpm, bucketPageID)
	if !ok {
		return ErrBufferPoolExhausted
	}
	tr.Acquire(concurrency.KindBucket)
	bucket := dpage.NewBucketPage[K](bucketGuard.Page(), t.codec)

	if _, exists := bucket.Lookup(key); exists {
		bucketGuard.Drop()
		tr.Release(concurrency.KindBucket)
		return ErrDuplicateKey
	}

	for bucket.IsFull() {
		localDepth := uint32(directory.LocalDepth(bucketIdx))
		globalDepth := directory.GlobalDepth()
		if globalDepth == localDepth && globalDepth == t.directoryMaxDepth {
			bucketGuard.Drop()
			tr.Release(concurrency.KindBucket)
			return ErrTableFull
		}

		newBucketPageID, newBucketGuard, ok := buffer.NewPageWrite(t.bpm)
		if !ok {
			bucketGuard.Drop()
			tr.Release(concurrency.KindBucket)
			return ErrBufferPoolExhausted
		}
		newBucket := dpage.NewBucketPage[K](newBucketGuard.Page(), t.codec)
		newBucket.Init(t.bucketMaxSize)

		if globalDepth == localDepth {
			directory.IncrGlobalDepth()
			globalDepth = directory.GlobalDepth()
			t.log.Debugf("directory doubled to global depth %d", globalDepth)
		}

		splitIdx := directory.GetSplitImageIndex(bucketIdx)
		t.migrateEntries(bucket, newBucket, splitIdx, uint32(1)<<localDepth)

		directory.IncrLocalDepth(bucketIdx)
		localDepth = uint32(directory.LocalDepth(bucketIdx))
		directory.SetLocalDepth(splitIdx, uint8(localDepth))
		directory.SetBucketPageID(splitIdx, newBucketPageID)

		count := uint32(1) << (globalDepth - localDepth)
		mask := directory.LocalDepthMask(splitIdx)
		stride := uint32(1) << localDepth
		for i := uint32(0); i < count; i++ {
			idx := (splitIdx & mask) + i*stride
			directory.SetBucketPageID(idx, newBucketPageID)
			directory.SetLocalDepth(idx, uint8(localDepth))
		}
		oldMask := directory.LocalDepthMask(bucketIdx)
		for i := uint32(0); i < count; i++ {
			directory.SetLocalDepth((bucketIdx&oldMask)+i*stride, uint8(localDepth))
		}

		if directory.HashToBucketIndex(h) != bucketIdx {
			bucketGuard.Drop()
			bucketGuard = newBucketGuard
			bucket = newBucket
			bucketIdx = splitIdx
		} else {
			newBucketGuard.Drop()
		}
	}

	bucket.Insert(key, value)
	bucketGuard.Drop()
	tr.Release(concurrency.KindBucket)
	return nil
}

// migrateEntries moves every entry of old whose hash's bit at position
// log2(mask) matches splitIdx's corresponding bit into new_, removing
// it from old. mask is a single-bit mask (1 << the bucket's local
// depth before the split), so this partitions old's entries in place.
func (t *ExtendibleHashTable[K]) migrateEntries(old, new_ *dpage.BucketPage[K], splitIdx, mask uint32) {
	for i := int(old.Size()) - 1; i >= 0; i-- {
		key, value := old.EntryAt(uint32(i))
		if t.hashKey(key)&mask == splitIdx&mask {
			new_.Insert(key, value)
			old.RemoveAt(uint32(i))
		}
	}
}

func (t *ExtendibleHashTable[K]) insertToNewDirectory(tr *concurrency.Tracker, header *dpage.HeaderPage, dirIdx, h uint32, key K, value entry.RID) error {
	dirPageID, dirGuard, ok := buffer.NewPageWrite(t.bpm)
	if !ok {
		return ErrBufferPoolExhausted
	}
	tr.Acquire(concurrency.KindDirectory)
	defer func() {
		dirGuard.Drop()
		tr.Release(concurrency.KindDirectory)
	}()
	header.SetDirectoryPageID(dirIdx, dirPageID)
	directory := dpage.NewDirectoryPage(dirGuard.Page())
	directory.Init()

	bucketIdx := directory.HashToBucketIndex(h)
	return t.insertToNewBucket(tr, directory, bucketIdx, key, value)
}

func (t *ExtendibleHashTable[K]) insertToNewBucket(tr *concurrency.Tracker, directory *dpage.DirectoryPage, bucketIdx uint32, key K, value entry.RID) error {
	bucketPageID, bucketGuard, ok := buffer.NewPageWrite(t.bpm)
	if !ok {
		return ErrBufferPoolExhausted
	}
	tr.Acquire(concurrency.KindBucket)
	defer func() {
		bucketGuard.Drop()
		tr.Release(concurrency.KindBucket)
	}()
	bucket := dpage.NewBucketPage[K](bucketGuard.Page(), t.codec)
	bucket.Init(t.bucketMaxSize)

	count := uint32(1) << directory.GlobalDepth()
	mask := directory.LocalDepthMask(bucketIdx)
	for i := uint32(0); i < count; i++ {
		idx := (bucketIdx & mask) + i
		directory.SetLocalDepth(idx, 0)
		directory.SetBucketPageID(idx, bucketPageID)
	}
	bucket.Insert(key, value)
	return nil
}

// Remove deletes key from the index, merging the now-lighter bucket
// with its split image (and shrinking the directory) whenever the
// merge and shrink invariants allow it. Returns whether key was found.
func (t *ExtendibleHashTable[K]) Remove(key K) (bool, error) {
	h := t.hashKey(key)
	tr := concurrency.NewTracker(t.latchGraph)

	headerGuard, ok := buffer.FetchPageWrite(t.bpm, t.headerPageID)
	if !ok {
		return false, ErrBufferPoolExhausted
	}
	tr.Acquire(concurrency.KindHeader)
	header := dpage.NewHeaderPage(headerGuard.Page())
	dirIdx := header.HashToDirectoryIndex(h)
	dirPageID := header.DirectoryPageID(dirIdx)
	headerGuard.Drop()
	tr.Release(concurrency.KindHeader)
	if dirPageID == dpage.InvalidID {
		return false, nil
	}

	dirGuard, ok := buffer.FetchPageWrite(t.bpm, dirPageID)
	if !ok {
		return false, ErrBufferPoolExhausted
	}
	tr.Acquire(concurrency.KindDirectory)
	defer func() {
		dirGuard.Drop()
		tr.Release(concurrency.KindDirectory)
	}()
	directory := dpage.NewDirectoryPage(dirGuard.Page())

	bucketIdx := directory.HashToBucketIndex(h)
	bucketPageID := directory.BucketPageID(bucketIdx)
	if bucketPageID == dpage.InvalidID {
		return false, nil
	}

	bucketGuard, ok := buffer.FetchPageWrite(t.bpm, bucketPageID)
	if !ok {
		return false, ErrBufferPoolExhausted
	}
	tr.Acquire(concurrency.KindBucket)
	bucket := dpage.NewBucketPage[K](bucketGuard.Page(), t.codec)
	if !bucket.Remove(key) {
		bucketGuard.Drop()
		tr.Release(concurrency.KindBucket)
		return false, nil
	}
	bucketGuard.Drop()
	tr.Release(concurrency.KindBucket)

	if err := t.mergeUp(tr, directory, bucketPageID, bucketIdx); err != nil {
		return true, err
	}
	for directory.CanShrink() {
		directory.DecrGlobalDepth()
		t.log.Debugf("directory shrunk to global depth %d", directory.GlobalDepth())
	}
	return true, nil
}

// mergeUp repeatedly merges bucketIdx's bucket with its split image
// while one of the pair is empty and both share the same local depth,
// walking the local depth back down toward zero the way splits raised it.
func (t *ExtendibleHashTable[K]) mergeUp(tr *concurrency.Tracker, directory *dpage.DirectoryPage, bucketPageID dpage.ID, bucketIdx uint32) error {
	localDepth := uint32(directory.LocalDepth(bucketIdx))
	for localDepth > 0 {
		mergeMask := uint32(1) << (localDepth - 1)
		globalDepth := directory.GlobalDepth()
		mergeIdx := mergeMask ^ bucketIdx
		mergeLocalDepth := uint32(directory.LocalDepth(mergeIdx))
		mergePageID := directory.BucketPageID(mergeIdx)

		bucketEmpty, mergeEmpty, err := t.bothBucketsEmptiness(tr, bucketPageID, mergePageID)
		if err != nil {
			return err
		}
		if localDepth != mergeLocalDepth || (!bucketEmpty && !mergeEmpty) {
			break
		}

		if mergeEmpty {
			t.log.Debugf("merging bucket %d into %d at local depth %d", mergePageID, bucketPageID, localDepth)
			t.bpm.DeletePage(mergePageID)
			directory.DecrLocalDepth(bucketIdx)
			directory.DecrLocalDepth(mergeIdx)
			directory.SetBucketPageID(mergeIdx, bucketPageID)
			newDepth := uint32(directory.LocalDepth(bucketIdx))
			count := uint32(1) << (globalDepth - localDepth + 1)
			mask := directory.LocalDepthMask(bucketIdx)
			stride := uint32(1) << (localDepth - 1)
			for i := uint32(0); i < count; i++ {
				idx := (bucketIdx & mask) + i*stride
				directory.SetLocalDepth(idx, uint8(newDepth))
				directory.SetBucketPageID(idx, bucketPageID)
			}
		} else {
			t.log.Debugf("merging bucket %d into %d at local depth %d", bucketPageID, mergePageID, localDepth)
			t.bpm.DeletePage(bucketPageID)
			directory.DecrLocalDepth(mergeIdx)
			directory.DecrLocalDepth(bucketIdx)
			directory.SetBucketPageID(bucketIdx, mergePageID)
			newDepth := uint32(directory.LocalDepth(mergeIdx))
			count := uint32(1) << (globalDepth - localDepth + 1)
			mask := directory.LocalDepthMask(mergeIdx)
			stride := uint32(1) << (localDepth - 1)
			for i := uint32(0); i < count; i++ {
				idx := (mergeIdx & mask) + i*stride
				directory.SetLocalDepth(idx, uint8(newDepth))
				directory.SetBucketPageID(idx, mergePageID)
			}
			bucketIdx = mergeIdx
			bucketPageID = mergePageID
		}
		localDepth = uint32(directory.LocalDepth(bucketIdx))
	}
	return nil
}

func (t *ExtendibleHashTable[K]) bothBucketsEmptiness(tr *concurrency.Tracker, a, b dpage.ID) (aEmpty, bEmpty bool, err error) {
	aGuard, ok := buffer.FetchPageRead(t.bpm, a)
	if !ok {
		return false, false, ErrBufferPoolExhausted
	}
	tr.Acquire(concurrency.KindBucket)
	aEmpty = dpage.NewBucketPage[K](aGuard.Page(), t.codec).IsEmpty()
	aGuard.Drop()
	tr.Release(concurrency.KindBucket)

	bGuard, ok := buffer.FetchPageRead(t.bpm, b)
	if !ok {
		return false, false, ErrBufferPoolExhausted
	}
	tr.Acquire(concurrency.KindBucket)
	bEmpty = dpage.NewBucketPage[K](bGuard.Page(), t.codec).IsEmpty()
	bGuard.Drop()
	tr.Release(concurrency.KindBucket)
	return aEmpty, bEmpty, nil
}
