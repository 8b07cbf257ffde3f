package dpage

import (
	"testing"

	"driftdb/pkg/entry"
)

func ridFor(slot uint32) entry.RID {
	return entry.RID{PageID: 1, SlotNum: slot}
}

func TestPagePinUnpin(t *testing.T) {
	p := New()
	if p.PinCount() != 0 {
		t.Fatalf("new page pin count = %d, want 0", p.PinCount())
	}
	p.Pin()
	p.Pin()
	if got := p.Unpin(); got != 1 {
		t.Fatalf("after 2 pins and 1 unpin, pin count = %d, want 1", got)
	}
}

func TestPageUpdateMarksDirty(t *testing.T) {
	p := New()
	if p.IsDirty() {
		t.Fatal("new page should not be dirty")
	}
	p.Update([]byte{1, 2, 3}, 0, 3)
	if !p.IsDirty() {
		t.Fatal("page should be dirty after Update")
	}
	if p.Data()[0] != 1 || p.Data()[1] != 2 || p.Data()[2] != 3 {
		t.Fatalf("unexpected data after update: %v", p.Data()[:3])
	}
}

func TestHeaderPageDirectoryIndex(t *testing.T) {
	h := NewHeaderPage(New())
	h.Init(2)
	if h.MaxSize() != 4 {
		t.Fatalf("MaxSize() = %d, want 4", h.MaxSize())
	}
	for i := uint32(0); i < h.MaxSize(); i++ {
		if got := h.DirectoryPageID(i); got != InvalidID {
			t.Fatalf("slot %d = %d, want InvalidID", i, got)
		}
	}
	h.SetDirectoryPageID(3, ID(42))
	if got := h.DirectoryPageID(3); got != 42 {
		t.Fatalf("slot 3 = %d, want 42", got)
	}

	// Top 2 bits of a 32-bit hash select the directory index.
	hash := uint32(0b11) << 30
	if got := h.HashToDirectoryIndex(hash); got != 3 {
		t.Fatalf("HashToDirectoryIndex = %d, want 3", got)
	}
}

func TestHeaderPageZeroDepth(t *testing.T) {
	h := NewHeaderPage(New())
	h.Init(0)
	if h.MaxSize() != 1 {
		t.Fatalf("MaxSize() = %d, want 1", h.MaxSize())
	}
	if got := h.HashToDirectoryIndex(0xffffffff); got != 0 {
		t.Fatalf("HashToDirectoryIndex at depth 0 = %d, want 0", got)
	}
}

func TestDirectoryPageGrowShrink(t *testing.T) {
	d := NewDirectoryPage(New())
	d.Init()
	if d.GlobalDepth() != 0 || d.Size() != 1 {
		t.Fatalf("fresh directory: depth=%d size=%d, want 0/1", d.GlobalDepth(), d.Size())
	}
	d.SetBucketPageID(0, ID(7))
	d.SetLocalDepth(0, 0)

	d.IncrGlobalDepth()
	if d.GlobalDepth() != 1 || d.Size() != 2 {
		t.Fatalf("after IncrGlobalDepth: depth=%d size=%d, want 1/2", d.GlobalDepth(), d.Size())
	}
	if got := d.BucketPageID(1); got != 7 {
		t.Fatalf("mirrored slot 1 = %d, want 7 (copied from slot 0)", got)
	}

	if !d.CanShrink() {
		t.Fatal("directory with all local depths 0 < global depth 1 should be shrinkable")
	}
	d.SetLocalDepth(1, 1)
	if d.CanShrink() {
		t.Fatal("directory with a local depth == global depth should not be shrinkable")
	}
	d.SetLocalDepth(1, 0)
	d.DecrGlobalDepth()
	if d.GlobalDepth() != 0 {
		t.Fatalf("GlobalDepth after decr = %d, want 0", d.GlobalDepth())
	}
}

func TestDirectoryPageSplitImageIndex(t *testing.T) {
	d := NewDirectoryPage(New())
	d.Init()
	d.IncrGlobalDepth() // depth 1, size 2
	// Both slots still alias one bucket of local depth 0: the state a
	// split starts from, before the local depth is raised.
	d.SetLocalDepth(0, 0)
	d.SetLocalDepth(1, 0)
	if got := d.GetSplitImageIndex(0); got != 1 {
		t.Fatalf("GetSplitImageIndex(0) = %d, want 1", got)
	}
	if got := d.GetSplitImageIndex(1); got != 0 {
		t.Fatalf("GetSplitImageIndex(1) = %d, want 0", got)
	}
}

func TestBucketPageInsertLookupRemove(t *testing.T) {
	b := NewBucketPage[int64](New(), Int64Codec{})
	b.Init(3)
	if !b.IsEmpty() {
		t.Fatal("fresh bucket should be empty")
	}

	values := map[int64]uint32{10: 1, 5: 2, 20: 3}
	for k, slot := range values {
		if !b.Insert(k, ridFor(slot)) {
			t.Fatalf("Insert(%d) failed unexpectedly", k)
		}
	}
	if b.Size() != 3 {
		t.Fatalf("Size() = %d, want 3", b.Size())
	}
	if !b.IsFull() {
		t.Fatal("bucket at max size should report full")
	}

	// Insert should keep entries sorted by key.
	if k := b.KeyAt(0); k != 5 {
		t.Fatalf("KeyAt(0) = %d, want 5 (smallest key first)", k)
	}

	if b.Insert(99, ridFor(4)) {
		t.Fatal("Insert into a full bucket should fail")
	}

	rid, ok := b.Lookup(20)
	if !ok || rid.SlotNum != 3 {
		t.Fatalf("Lookup(20) = %+v, %v; want slot 3, true", rid, ok)
	}

	if !b.Remove(5) {
		t.Fatal("Remove(5) should succeed")
	}
	if b.Size() != 2 {
		t.Fatalf("Size() after remove = %d, want 2", b.Size())
	}
	if _, ok := b.Lookup(5); ok {
		t.Fatal("Lookup(5) should fail after removal")
	}

	if b.Remove(5) {
		t.Fatal("removing an absent key should return false")
	}
}

func TestBucketPageDuplicateKeyRejected(t *testing.T) {
	b := NewBucketPage[int64](New(), Int64Codec{})
	b.Init(4)
	if !b.Insert(1, ridFor(1)) {
		t.Fatal("first insert should succeed")
	}
	if b.Insert(1, ridFor(2)) {
		t.Fatal("inserting a duplicate key should fail")
	}
	if b.Size() != 1 {
		t.Fatalf("Size() = %d, want 1", b.Size())
	}
}
