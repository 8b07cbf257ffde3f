package hashindex

import (
	"path/filepath"
	"testing"

	"driftdb/pkg/buffer"
	"driftdb/pkg/disk"
	"driftdb/pkg/dpage"
	"driftdb/pkg/entry"
)

func setupTable(t *testing.T, directoryMaxDepth, bucketMaxSize uint32) *ExtendibleHashTable[int64] {
	path := filepath.Join(t.TempDir(), "test.db")
	dm, err := disk.Open(path)
	if err != nil {
		t.Fatalf("disk.Open() failed: %v", err)
	}
	bpm := buffer.New(64, dm, 2)
	t.Cleanup(func() { bpm.Close() })

	// headerMaxDepth 0 keeps every key routed through a single
	// directory, so tests can reason about one directory's split/merge
	// behavior without worrying about which header slot a key's hash
	// happens to land in.
	table, err := NewWithParams[int64](bpm, dpage.Int64Codec{}, XXHash, 0, directoryMaxDepth, bucketMaxSize)
	if err != nil {
		t.Fatalf("NewWithParams() failed: %v", err)
	}
	return table
}

func ridFor(key int64) entry.RID {
	return entry.RID{PageID: int32(key), SlotNum: 0}
}

func TestInsertAndGetValueRoundTrip(t *testing.T) {
	table := setupTable(t, 9, 4)
	for i := int64(0); i < 20; i++ {
		if err := table.Insert(i, ridFor(i)); err != nil {
			t.Fatalf("Insert(%d) failed: %v", i, err)
		}
	}
	for i := int64(0); i < 20; i++ {
		rid, found, err := table.GetValue(i)
		if err != nil {
			t.Fatalf("GetValue(%d) failed: %v", i, err)
		}
		if !found {
			t.Fatalf("GetValue(%d) not found", i)
		}
		if rid != ridFor(i) {
			t.Fatalf("GetValue(%d) = %v, want %v", i, rid, ridFor(i))
		}
	}
}

func TestGetValueMissingKey(t *testing.T) {
	table := setupTable(t, 9, 4)
	table.Insert(1, ridFor(1))
	if _, found, _ := table.GetValue(999); found {
		t.Fatal("GetValue(999) should not be found")
	}
}

func TestInsertDuplicateKeyRejected(t *testing.T) {
	table := setupTable(t, 9, 4)
	if err := table.Insert(5, ridFor(5)); err != nil {
		t.Fatalf("Insert() failed: %v", err)
	}
	if err := table.Insert(5, ridFor(50)); err != ErrDuplicateKey {
		t.Fatalf("Insert() duplicate = %v, want ErrDuplicateKey", err)
	}
}

func TestInsertTriggersSplitAndKeepsAllKeysFindable(t *testing.T) {
	// bucketMaxSize of 4 forces multiple splits well before 200 keys.
	table := setupTable(t, 9, 4)
	const n = 200
	for i := int64(0); i < n; i++ {
		if err := table.Insert(i, ridFor(i)); err != nil {
			t.Fatalf("Insert(%d) failed: %v", i, err)
		}
	}
	for i := int64(0); i < n; i++ {
		rid, found, err := table.GetValue(i)
		if err != nil || !found || rid != ridFor(i) {
			t.Fatalf("GetValue(%d) = (%v, %v, %v), want (%v, true, nil)", i, rid, found, err, ridFor(i))
		}
	}
}

func TestInsertFailsWhenDirectoryAtMaxDepth(t *testing.T) {
	// directoryMaxDepth of 0 means a single bucket that can never split.
	table := setupTable(t, 0, 2)
	if err := table.Insert(1, ridFor(1)); err != nil {
		t.Fatalf("Insert(1) failed: %v", err)
	}
	if err := table.Insert(2, ridFor(2)); err != nil {
		t.Fatalf("Insert(2) failed: %v", err)
	}
	if err := table.Insert(3, ridFor(3)); err != ErrTableFull {
		t.Fatalf("Insert(3) = %v, want ErrTableFull", err)
	}
}

func TestRemoveDeletesKeyAndAllowsReinsert(t *testing.T) {
	table := setupTable(t, 9, 4)
	table.Insert(7, ridFor(7))

	removed, err := table.Remove(7)
	if err != nil {
		t.Fatalf("Remove(7) failed: %v", err)
	}
	if !removed {
		t.Fatal("Remove(7) should report the key was found")
	}
	if _, found, _ := table.GetValue(7); found {
		t.Fatal("GetValue(7) after Remove should not find the key")
	}
	if err := table.Insert(7, ridFor(70)); err != nil {
		t.Fatalf("re-Insert(7) failed: %v", err)
	}
	rid, found, _ := table.GetValue(7)
	if !found || rid != ridFor(70) {
		t.Fatalf("GetValue(7) after re-insert = (%v, %v), want (%v, true)", rid, found, ridFor(70))
	}
}

func TestRemoveMissingKeyReportsNotFound(t *testing.T) {
	table := setupTable(t, 9, 4)
	removed, err := table.Remove(123)
	if err != nil {
		t.Fatalf("Remove() failed: %v", err)
	}
	if removed {
		t.Fatal("Remove() of a missing key should report false")
	}
}

func TestInsertSplitThenRemoveBackToEmptyKeepsConsistency(t *testing.T) {
	table := setupTable(t, 9, 4)
	const n = 100
	for i := int64(0); i < n; i++ {
		table.Insert(i, ridFor(i))
	}
	for i := int64(0); i < n; i++ {
		removed, err := table.Remove(i)
		if err != nil || !removed {
			t.Fatalf("Remove(%d) = (%v, %v), want (true, nil)", i, removed, err)
		}
	}
	for i := int64(0); i < n; i++ {
		if _, found, _ := table.GetValue(i); found {
			t.Fatalf("GetValue(%d) should not be found after removing everything", i)
		}
	}
}

func TestLatchAuditRecordsNoInversionAcrossSplitAndMerge(t *testing.T) {
	table := setupTable(t, 9, 4)
	graph := table.EnableLatchAudit()

	const n = 100
	for i := int64(0); i < n; i++ {
		if err := table.Insert(i, ridFor(i)); err != nil {
			t.Fatalf("Insert(%d) failed: %v", i, err)
		}
		if _, _, err := table.GetValue(i); err != nil {
			t.Fatalf("GetValue(%d) failed: %v", i, err)
		}
	}
	for i := int64(0); i < n; i++ {
		if _, err := table.Remove(i); err != nil {
			t.Fatalf("Remove(%d) failed: %v", i, err)
		}
	}

	if graph.HasInversion() {
		t.Fatal("HasInversion() = true after real Insert/GetValue/Remove traffic, want no inversion")
	}
}
