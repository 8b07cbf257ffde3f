package dpage

import (
	"encoding/binary"

	"driftdb/pkg/config"
)

// directoryArraySize is the number of bucket slots a directory page
// can ever hold, sized to the hard ceiling on directory (global) depth.
const directoryArraySize = 1 << config.MaxDirectoryDepth

const (
	directoryGlobalDepthOffset = 0
	directoryGlobalDepthSize   = 4
	directoryBucketIDsOffset   = directoryGlobalDepthOffset + directoryGlobalDepthSize
	directoryBucketIDSize      = 4
	directoryLocalDepthsOffset = directoryBucketIDsOffset + directoryArraySize*directoryBucketIDSize
	directoryLocalDepthSize    = 1
)

// DirectoryPage is the middle level of a three-level extendible hash
// index: an array of bucket page ids and their local depths, indexed
// by the low bits of a key's hash masked to the directory's global
// depth.
type DirectoryPage struct {
	page *Page
}

// NewDirectoryPage wraps a frame as a DirectoryPage view.
func NewDirectoryPage(page *Page) *DirectoryPage {
	return &DirectoryPage{page: page}
}

// Init sets global depth to zero and marks every bucket slot
// unpopulated with local depth zero.
func (d *DirectoryPage) Init() {
	binary.LittleEndian.PutUint32(d.page.data[directoryGlobalDepthOffset:], 0)
	for i := uint32(0); i < directoryArraySize; i++ {
		d.SetBucketPageID(i, InvalidID)
		d.SetLocalDepth(i, 0)
	}
	d.page.dirty = true
}

// GlobalDepth returns the directory's current global depth.
func (d *DirectoryPage) GlobalDepth() uint32 {
	return binary.LittleEndian.Uint32(d.page.data[directoryGlobalDepthOffset:])
}

// Size returns 2^GlobalDepth, the number of bucket slots in use.
func (d *DirectoryPage) Size() uint32 {
	return 1 << d.GlobalDepth()
}

func (d *DirectoryPage) globalDepthMask() uint32 {
	full := uint32(1<<config.MaxDirectoryDepth) - 1
	return full >> (config.MaxDirectoryDepth - d.GlobalDepth())
}

// LocalDepthMask returns a mask of the low LocalDepth(bucketIdx) bits,
// used by the hash table to enumerate every directory slot that
// mirrors a given bucket after a split or merge.
func (d *DirectoryPage) LocalDepthMask(bucketIdx uint32) uint32 {
	full := uint32(1<<config.MaxDirectoryDepth) - 1
	return full >> (config.MaxDirectoryDepth - uint32(d.LocalDepth(bucketIdx)))
}

// HashToBucketIndex maps a key's hash to a bucket slot using the
// directory's global depth mask.
func (d *DirectoryPage) HashToBucketIndex(hash uint32) uint32 {
	return hash & d.globalDepthMask()
}

func (d *DirectoryPage) bucketSlotOffset(idx uint32) int {
	return directoryBucketIDsOffset + int(idx)*directoryBucketIDSize
}

// BucketPageID returns the bucket page id at the given directory slot.
func (d *DirectoryPage) BucketPageID(idx uint32) ID {
	off := d.bucketSlotOffset(idx)
	return ID(int32(binary.LittleEndian.Uint32(d.page.data[off:])))
}

// SetBucketPageID assigns the bucket page id at the given directory slot.
func (d *DirectoryPage) SetBucketPageID(idx uint32, id ID) {
	off := d.bucketSlotOffset(idx)
	binary.LittleEndian.PutUint32(d.page.data[off:], uint32(int32(id)))
	d.page.dirty = true
}

// LocalDepth returns the local depth of the bucket at the given slot.
func (d *DirectoryPage) LocalDepth(idx uint32) uint8 {
	return d.page.data[directoryLocalDepthsOffset+int(idx)]
}

// SetLocalDepth assigns the local depth of the bucket at the given slot.
func (d *DirectoryPage) SetLocalDepth(idx uint32, depth uint8) {
	d.page.data[directoryLocalDepthsOffset+int(idx)] = depth
	d.page.dirty = true
}

// IncrLocalDepth increments the local depth of the bucket at the given slot.
func (d *DirectoryPage) IncrLocalDepth(idx uint32) {
	d.SetLocalDepth(idx, d.LocalDepth(idx)+1)
}

// DecrLocalDepth decrements the local depth of the bucket at the given slot.
func (d *DirectoryPage) DecrLocalDepth(idx uint32) {
	d.SetLocalDepth(idx, d.LocalDepth(idx)-1)
}

// GetSplitImageIndex returns the index of the bucket that shares a
// parent with bucketIdx after a split: flipping the bit at the
// bucket's local depth.
func (d *DirectoryPage) GetSplitImageIndex(bucketIdx uint32) uint32 {
	return bucketIdx ^ (1 << d.LocalDepth(bucketIdx))
}

// IncrGlobalDepth doubles the directory by duplicating every existing
// slot into its mirror at [i+size), then increments global depth.
// Panics if the directory is already at MaxDirectoryDepth: growing
// further would overflow the fixed-size on-page arrays.
func (d *DirectoryPage) IncrGlobalDepth() {
	depth := d.GlobalDepth()
	if depth >= config.MaxDirectoryDepth {
		panic("dpage: directory already at max depth")
	}
	size := d.Size()
	for i := uint32(0); i < size; i++ {
		d.SetBucketPageID(i+size, d.BucketPageID(i))
		d.SetLocalDepth(i+size, d.LocalDepth(i))
	}
	binary.LittleEndian.PutUint32(d.page.data[directoryGlobalDepthOffset:], depth+1)
	d.page.dirty = true
}

// DecrGlobalDepth halves the directory's addressable range by
// decrementing global depth. Panics if global depth is already zero.
func (d *DirectoryPage) DecrGlobalDepth() {
	depth := d.GlobalDepth()
	if depth == 0 {
		panic("dpage: directory already at depth zero")
	}
	binary.LittleEndian.PutUint32(d.page.data[directoryGlobalDepthOffset:], depth-1)
	d.page.dirty = true
}

// CanShrink reports whether every bucket's local depth is strictly
// less than the directory's global depth, meaning DecrGlobalDepth
// would not orphan any bucket's distinguishing bit.
func (d *DirectoryPage) CanShrink() bool {
	depth := d.GlobalDepth()
	for i := uint32(0); i < d.Size(); i++ {
		if uint32(d.LocalDepth(i)) == depth {
			return false
		}
	}
	return true
}
