package dpage

import (
	"encoding/binary"

	"driftdb/pkg/config"
)

// headerArraySize is the number of directory page id slots a header
// page can ever address, sized to the hard ceiling on header depth.
const headerArraySize = 1 << config.MaxHeaderDepth

const (
	headerMaxDepthOffset = 0
	headerMaxDepthSize   = 4
	headerDirIDsOffset   = headerMaxDepthOffset + headerMaxDepthSize
	headerDirIDSize      = 4
)

// HeaderPage is the top level of a three-level extendible hash index:
// a fixed array of directory page ids, indexed by the high bits of a
// key's hash.
type HeaderPage struct {
	page *Page
}

// NewHeaderPage wraps a frame as a HeaderPage view. The frame's
// contents are read lazily through the accessor methods below, so
// callers must call Init on a freshly allocated page.
func NewHeaderPage(page *Page) *HeaderPage {
	return &HeaderPage{page: page}
}

// Init sets the header's max depth and marks every directory slot as
// unpopulated.
func (h *HeaderPage) Init(maxDepth uint32) {
	binary.LittleEndian.PutUint32(h.page.data[headerMaxDepthOffset:], maxDepth)
	h.page.dirty = true
	for i := uint32(0); i < headerArraySize; i++ {
		h.SetDirectoryPageID(i, InvalidID)
	}
}

// MaxDepth returns the header's configured max depth.
func (h *HeaderPage) MaxDepth() uint32 {
	return binary.LittleEndian.Uint32(h.page.data[headerMaxDepthOffset:])
}

// MaxSize returns 2^MaxDepth, the number of directory slots in use.
func (h *HeaderPage) MaxSize() uint32 {
	return 1 << h.MaxDepth()
}

// HashToDirectoryIndex maps a key's hash to a directory slot using the
// hash's high bits.
func (h *HeaderPage) HashToDirectoryIndex(hash uint32) uint32 {
	maxDepth := h.MaxDepth()
	if maxDepth == 0 {
		return 0
	}
	return hash >> (32 - maxDepth)
}

func (h *HeaderPage) slotOffset(idx uint32) int {
	return headerDirIDsOffset + int(idx)*headerDirIDSize
}

// DirectoryPageID returns the directory page id at the given slot.
func (h *HeaderPage) DirectoryPageID(idx uint32) ID {
	off := h.slotOffset(idx)
	return ID(int32(binary.LittleEndian.Uint32(h.page.data[off:])))
}

// SetDirectoryPageID assigns the directory page id at the given slot.
func (h *HeaderPage) SetDirectoryPageID(idx uint32, id ID) {
	off := h.slotOffset(idx)
	binary.LittleEndian.PutUint32(h.page.data[off:], uint32(int32(id)))
	h.page.dirty = true
}
