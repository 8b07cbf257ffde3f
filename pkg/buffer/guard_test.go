package buffer

import "testing"

func TestBasicGuardDropUnpins(t *testing.T) {
	bpm := setupPool(t, 1)
	id, guard, ok := NewPageBasic(bpm)
	if !ok {
		t.Fatal("NewPageBasic() returned ok=false")
	}
	guard.Drop()

	if _, _, ok := bpm.NewPage(); !ok {
		t.Fatal("frame should be evictable after guard.Drop()")
	}
	_ = id
}

func TestBasicGuardDropIsIdempotent(t *testing.T) {
	bpm := setupPool(t, 1)
	_, guard, _ := NewPageBasic(bpm)
	guard.Drop()
	guard.Drop() // must not double-unpin
}

func TestUpgradeReadSeesPageData(t *testing.T) {
	bpm := setupPool(t, 1)
	_, basic, _ := NewPageBasic(bpm)
	rg := basic.UpgradeRead()
	defer rg.Drop()

	copy(rg.Page().Data(), []byte("abc"))
	if string(rg.Page().Data()[:3]) != "abc" {
		t.Fatal("read guard should see written data")
	}
}

func TestWriteGuardDirtyPageCleanAfterFlush(t *testing.T) {
	bpm := setupPool(t, 4)
	id, wg, _ := NewPageWrite(bpm)
	copy(wg.Page().Data(), []byte("xyz"))
	wg.MarkDirty()
	wg.Drop()

	if !bpm.FlushPage(id) {
		t.Fatal("FlushPage() should succeed")
	}
	fetched, _ := bpm.FetchPage(id)
	if fetched.IsDirty() {
		t.Fatal("page should be clean immediately after flush")
	}
	bpm.UnpinPage(id, false)
}

func TestFetchPageReadGuardRoundTrip(t *testing.T) {
	bpm := setupPool(t, 4)
	id, wg, _ := NewPageWrite(bpm)
	copy(wg.Page().Data(), []byte("stored"))
	wg.MarkDirty()
	wg.Drop()

	rg, ok := FetchPageRead(bpm, id)
	if !ok {
		t.Fatal("FetchPageRead() returned ok=false")
	}
	defer rg.Drop()
	if string(rg.Page().Data()[:6]) != "stored" {
		t.Fatalf("got %q, want %q", rg.Page().Data()[:6], "stored")
	}
}
