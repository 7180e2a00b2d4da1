package pager

import (
	"path/filepath"
	"testing"
)

func openTemp(t *testing.T, maxSize int64) *Pager {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	p, err := Open(path, maxSize)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

func TestOpenReservesPageZero(t *testing.T) {
	p := openTemp(t, 0)
	if p.NextFree() != 1 {
		t.Fatalf("NextFree() = %d, want 1", p.NextFree())
	}
}

func TestAllocateBumpsNextFree(t *testing.T) {
	p := openTemp(t, 0)
	first, err := p.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if first.Number() != 1 {
		t.Fatalf("first page = %d, want 1", first.Number())
	}
	second, err := p.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if second.Number() != 2 {
		t.Fatalf("second page = %d, want 2", second.Number())
	}
	if p.NextFree() != 3 {
		t.Fatalf("NextFree() = %d, want 3", p.NextFree())
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	p := openTemp(t, 0)
	view, err := p.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	copy(view.Bytes(), []byte("hello"))

	read, err := p.GetPage(view.Number())
	if err != nil {
		t.Fatalf("GetPage: %v", err)
	}
	if string(read.Bytes()[:5]) != "hello" {
		t.Fatalf("read back %q, want hello", read.Bytes()[:5])
	}
}

func TestGetPageOutOfBounds(t *testing.T) {
	p := openTemp(t, 0)
	if _, err := p.GetPage(5); err == nil {
		t.Fatalf("expected error for out-of-bounds page")
	}
}

func TestGrowInvalidatesOldView(t *testing.T) {
	pageSize := openTemp(t, 0).PageSize()
	p := openTemp(t, int64(pageSize))

	stale, err := p.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	// Force enough allocations to outgrow the current mapping and
	// trigger ensureCapacity's remap again.
	for i := 0; i < 4096; i++ {
		if _, err := p.Allocate(); err != nil {
			t.Fatalf("Allocate during grow: %v", err)
		}
	}

	defer func() {
		r := recover()
		if r != ErrStaleView {
			t.Fatalf("expected panic(ErrStaleView), got %v", r)
		}
	}()
	_ = stale.Bytes()
	t.Fatalf("expected panic reading stale view")
}

func TestRestoreSetsNextFree(t *testing.T) {
	p := openTemp(t, 0)
	p.Restore(42)
	if p.NextFree() != 42 {
		t.Fatalf("NextFree() = %d, want 42", p.NextFree())
	}
}
