package dpage

import (
	"encoding/binary"

	"driftdb/pkg/entry"
)

// KeyCodec fixes how a bucket page turns a key of type K into (and
// back out of) a constant-width byte slice, and how two keys compare.
// It stands in for the key/value/key-comparator template parameters
// BusTub's C++ hash table takes at compile time.
type KeyCodec[K any] interface {
	Size() int
	Encode(key K) []byte
	Decode(data []byte) K
	Compare(a, b K) int
}

const (
	bucketSizeOffset    = 0
	bucketSizeFieldSize = 4
	bucketMaxSizeOffset = bucketSizeOffset + bucketSizeFieldSize
	bucketMaxSizeSize   = 4
	bucketHeaderSize    = bucketMaxSizeOffset + bucketMaxSizeSize
)

// BucketPage is the leaf level of a three-level extendible hash index:
// an ordered array of key/RID entries.
type BucketPage[K any] struct {
	page  *Page
	codec KeyCodec[K]
}

// NewBucketPage wraps a frame as a BucketPage view using the given codec.
func NewBucketPage[K any](page *Page, codec KeyCodec[K]) *BucketPage[K] {
	return &BucketPage[K]{page: page, codec: codec}
}

func (b *BucketPage[K]) entrySize() int {
	return b.codec.Size() + entry.Size
}

// Init sets the bucket's max size (in entries) and clears its entry count.
func (b *BucketPage[K]) Init(maxSize uint32) {
	binary.LittleEndian.PutUint32(b.page.data[bucketSizeOffset:], 0)
	binary.LittleEndian.PutUint32(b.page.data[bucketMaxSizeOffset:], maxSize)
	b.page.dirty = true
}

// Size returns the number of entries currently stored.
func (b *BucketPage[K]) Size() uint32 {
	return binary.LittleEndian.Uint32(b.page.data[bucketSizeOffset:])
}

// MaxSize returns the bucket's configured entry capacity.
func (b *BucketPage[K]) MaxSize() uint32 {
	return binary.LittleEndian.Uint32(b.page.data[bucketMaxSizeOffset:])
}

func (b *BucketPage[K]) setSize(size uint32) {
	binary.LittleEndian.PutUint32(b.page.data[bucketSizeOffset:], size)
	b.page.dirty = true
}

// IsFull reports whether the bucket has reached its max size.
func (b *BucketPage[K]) IsFull() bool {
	return b.Size() == b.MaxSize()
}

// IsEmpty reports whether the bucket holds no entries.
func (b *BucketPage[K]) IsEmpty() bool {
	return b.Size() == 0
}

func (b *BucketPage[K]) entryOffset(idx uint32) int {
	return bucketHeaderSize + int(idx)*b.entrySize()
}

// KeyAt returns the key stored at the given index.
func (b *BucketPage[K]) KeyAt(idx uint32) K {
	off := b.entryOffset(idx)
	return b.codec.Decode(b.page.data[off : off+b.codec.Size()])
}

// ValueAt returns the RID stored at the given index.
func (b *BucketPage[K]) ValueAt(idx uint32) entry.RID {
	off := b.entryOffset(idx) + b.codec.Size()
	return entry.UnmarshalRID(b.page.data[off : off+entry.Size])
}

// EntryAt returns the key/RID pair stored at the given index.
func (b *BucketPage[K]) EntryAt(idx uint32) (K, entry.RID) {
	return b.KeyAt(idx), b.ValueAt(idx)
}

func (b *BucketPage[K]) writeEntryAt(idx uint32, key K, value entry.RID) {
	off := b.entryOffset(idx)
	keyBytes := b.codec.Encode(key)
	copy(b.page.data[off:], keyBytes)
	copy(b.page.data[off+b.codec.Size():], value.Marshal())
	b.page.dirty = true
}

// Lookup returns the RID for key, if present.
func (b *BucketPage[K]) Lookup(key K) (entry.RID, bool) {
	size := b.Size()
	for i := uint32(0); i < size; i++ {
		if b.codec.Compare(key, b.KeyAt(i)) == 0 {
			return b.ValueAt(i), true
		}
	}
	return entry.RID{}, false
}

// Insert adds a key/RID entry in sorted-by-key order. Returns false if
// the bucket is full or the key already exists.
func (b *BucketPage[K]) Insert(key K, value entry.RID) bool {
	if b.IsFull() {
		return false
	}
	size := b.Size()
	pos := size
	for i := uint32(0); i < size; i++ {
		cmp := b.codec.Compare(key, b.KeyAt(i))
		if cmp == 0 {
			return false
		}
		if cmp < 0 {
			pos = i
			break
		}
	}
	for j := size; j > pos; j-- {
		k, v := b.EntryAt(j - 1)
		b.writeEntryAt(j, k, v)
	}
	b.writeEntryAt(pos, key, value)
	b.setSize(size + 1)
	return true
}

// Remove deletes the entry for key, if present, shifting later entries
// left. Returns whether an entry was removed.
func (b *BucketPage[K]) Remove(key K) bool {
	size := b.Size()
	for i := uint32(0); i < size; i++ {
		if b.codec.Compare(key, b.KeyAt(i)) == 0 {
			b.RemoveAt(i)
			return true
		}
	}
	return false
}

// RemoveAt deletes the entry at the given index, shifting later
// entries left.
func (b *BucketPage[K]) RemoveAt(idx uint32) {
	size := b.Size()
	for i := idx + 1; i < size; i++ {
		k, v := b.EntryAt(i)
		b.writeEntryAt(i-1, k, v)
	}
	b.setSize(size - 1)
}
