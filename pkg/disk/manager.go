// Package disk implements page-granular file I/O and the single
// background worker that serializes it: a DiskManager that knows how
// to read and write PAGE_SIZE-aligned blocks of a backing file, and a
// DiskScheduler that queues requests for it in strict FIFO order.
package disk

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/ncw/directio"
	"github.com/otiai10/copy"

	"driftdb/pkg/config"
	"driftdb/pkg/dpage"
)

// ErrOutOfRange is returned by ReadPage/WritePage for a negative or
// otherwise invalid page id.
var ErrOutOfRange = errors.New("disk: page id out of range")

// DiskManager is the blocking, whole-page I/O surface a DiskScheduler
// dispatches requests to.
type DiskManager interface {
	ReadPage(id dpage.ID, out []byte) error
	WritePage(id dpage.ID, in []byte) error
	AllocatePage() dpage.ID
	DeallocatePage(id dpage.ID)
	Backup(dir string) error
	Close() error
}

// FileDiskManager backs a DiskManager with a single flat file, one
// PAGE_SIZE slot per page id, opened with O_DIRECT so pages bypass the
// kernel page cache (the buffer pool is the only cache this system
// gets).
type FileDiskManager struct {
	file       *os.File
	path       string
	nextPageID atomic.Int64
}

// Open (re-)initializes a FileDiskManager backed by the file at path,
// creating it and any parent directories if they don't exist.
func Open(path string) (*FileDiskManager, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0775); err != nil {
			return nil, err
		}
	}
	file, err := directio.OpenFile(path, os.O_RDWR|os.O_CREATE, 0666)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	if info.Size()%config.PageSize != 0 {
		file.Close()
		return nil, errors.New("disk: backing file size is not a multiple of the page size")
	}
	dm := &FileDiskManager{file: file, path: path}
	dm.nextPageID.Store(info.Size() / config.PageSize)
	return dm, nil
}

func (d *FileDiskManager) checkID(id dpage.ID) error {
	if id < 0 {
		return ErrOutOfRange
	}
	return nil
}

// ReadPage reads the page at id into out, which must be exactly
// config.PageSize bytes. Reading a page beyond the end of the file
// (one that was allocated but never written) zero-fills out.
func (d *FileDiskManager) ReadPage(id dpage.ID, out []byte) error {
	if err := d.checkID(id); err != nil {
		return err
	}
	offset := int64(id) * config.PageSize
	n, err := d.file.ReadAt(out, offset)
	if err != nil && n == 0 {
		for i := range out {
			out[i] = 0
		}
		return nil
	}
	if err != nil {
		return err
	}
	return nil
}

// WritePage writes in (exactly config.PageSize bytes) to the page at id.
func (d *FileDiskManager) WritePage(id dpage.ID, in []byte) error {
	if err := d.checkID(id); err != nil {
		return err
	}
	if len(in) != config.PageSize {
		return fmt.Errorf("disk: WritePage got %d bytes, want %d", len(in), config.PageSize)
	}
	offset := int64(id) * config.PageSize
	_, err := d.file.WriteAt(in, offset)
	return err
}

// AllocatePage returns the next never-before-used page id.
func (d *FileDiskManager) AllocatePage() dpage.ID {
	return dpage.ID(d.nextPageID.Add(1) - 1)
}

// DeallocatePage marks a page id as free. The system carries no
// on-disk free-space bitmap, matching spec.md's stated non-goal of
// space reclamation, so this is currently a no-op left for a future
// allocator to hook into.
func (d *FileDiskManager) DeallocatePage(id dpage.ID) {}

// Backup snapshots the backing file into dir, copying it under its
// own base name; dir is created if missing.
func (d *FileDiskManager) Backup(dir string) error {
	if err := os.MkdirAll(dir, 0775); err != nil {
		return err
	}
	dst := filepath.Join(dir, filepath.Base(d.path))
	return copy.Copy(d.path, dst)
}

// Close closes the backing file.
func (d *FileDiskManager) Close() error {
	return d.file.Close()
}
