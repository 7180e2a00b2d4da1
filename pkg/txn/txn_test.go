package txn

import (
	"path/filepath"
	"testing"

	"github.com/weids-dev/radarbase/pkg/storage"
	"github.com/weids-dev/radarbase/pkg/tree"
)

func openTestStorage(t *testing.T) *storage.Storage {
	t.Helper()
	path := filepath.Join(t.TempDir(), "txn.db")
	s, err := storage.Open(path, 0)
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestWriteTransactionSeesOwnStagedWrites(t *testing.T) {
	s := openTestStorage(t)
	tableID, err := s.GetOrCreateTable("t")
	if err != nil {
		t.Fatal(err)
	}

	w := BeginWrite(s, tableID)
	w.Insert([]byte("a"), []byte("1"))
	if v, ok := w.Get([]byte("a")); !ok || string(v) != "1" {
		t.Fatalf("Get(a) before commit = %s, ok=%v", v, ok)
	}
	if err := w.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	r := NewRead(s, tableID)
	if v, ok := r.Get([]byte("a")); !ok || string(v) != "1" {
		t.Fatalf("Get(a) after commit = %s, ok=%v", v, ok)
	}
}

func TestReadTransactionIsolatedFromLaterCommit(t *testing.T) {
	s := openTestStorage(t)
	tableID, err := s.GetOrCreateTable("t")
	if err != nil {
		t.Fatal(err)
	}

	w1 := BeginWrite(s, tableID)
	w1.Insert([]byte("a"), []byte("1"))
	if err := w1.Commit(); err != nil {
		t.Fatal(err)
	}

	snapshot := NewRead(s, tableID)
	if snapshot.Len() != 1 {
		t.Fatalf("snapshot Len() = %d, want 1", snapshot.Len())
	}

	w2 := BeginWrite(s, tableID)
	w2.Insert([]byte("b"), []byte("2"))
	if err := w2.Commit(); err != nil {
		t.Fatal(err)
	}

	if snapshot.Len() != 1 {
		t.Fatalf("pinned snapshot Len() changed to %d after a later commit, want 1", snapshot.Len())
	}
	if _, ok := snapshot.Get([]byte("b")); ok {
		t.Fatalf("pinned snapshot must not observe a key committed after it was created")
	}

	fresh := NewRead(s, tableID)
	if fresh.Len() != 2 {
		t.Fatalf("fresh read transaction Len() = %d, want 2", fresh.Len())
	}
}

func TestAbortDiscardsStagedWrites(t *testing.T) {
	s := openTestStorage(t)
	tableID, err := s.GetOrCreateTable("t")
	if err != nil {
		t.Fatal(err)
	}

	w := BeginWrite(s, tableID)
	w.Insert([]byte("a"), []byte("1"))
	w.Abort()

	r := NewRead(s, tableID)
	if !r.IsEmpty() {
		t.Fatalf("expected empty table after abort, Len()=%d", r.Len())
	}
}

func TestRemoveWithinWriteTransaction(t *testing.T) {
	s := openTestStorage(t)
	tableID, err := s.GetOrCreateTable("t")
	if err != nil {
		t.Fatal(err)
	}

	w := BeginWrite(s, tableID)
	w.Insert([]byte("a"), []byte("1"))
	if err := w.Commit(); err != nil {
		t.Fatal(err)
	}

	w2 := BeginWrite(s, tableID)
	w2.Remove([]byte("a"))
	if _, ok := w2.Get([]byte("a")); ok {
		t.Fatalf("expected staged removal to shadow the committed value")
	}
	if err := w2.Commit(); err != nil {
		t.Fatal(err)
	}

	r := NewRead(s, tableID)
	if !r.IsEmpty() {
		t.Fatalf("expected table empty after committed remove, Len()=%d", r.Len())
	}
}

func TestGetRangeOverCommittedSnapshot(t *testing.T) {
	s := openTestStorage(t)
	tableID, err := s.GetOrCreateTable("t")
	if err != nil {
		t.Fatal(err)
	}

	w := BeginWrite(s, tableID)
	for _, k := range []string{"a", "b", "c", "d"} {
		w.Insert([]byte(k), []byte(k))
	}
	if err := w.Commit(); err != nil {
		t.Fatal(err)
	}

	r := NewRead(s, tableID)
	it := r.GetRange(
		tree.Bound{Bytes: []byte("b"), Present: true, Inclusive: true},
		tree.Bound{Bytes: []byte("c"), Present: true, Inclusive: true},
	)
	var got []string
	for it.Next() {
		got = append(got, string(it.Entry().Key.Bytes))
	}
	if it.Err() != nil {
		t.Fatalf("range error: %v", it.Err())
	}
	if len(got) != 2 || got[0] != "b" || got[1] != "c" {
		t.Fatalf("got %v, want [b c]", got)
	}
}

func TestInsertReserveFillsBufferBeforeCommit(t *testing.T) {
	s := openTestStorage(t)
	tableID, err := s.GetOrCreateTable("t")
	if err != nil {
		t.Fatal(err)
	}

	w := BeginWrite(s, tableID)
	buf := w.InsertReserve([]byte("a"), 3)
	copy(buf, []byte("xyz"))
	if err := w.Commit(); err != nil {
		t.Fatal(err)
	}

	r := NewRead(s, tableID)
	v, ok := r.Get([]byte("a"))
	if !ok || string(v) != "xyz" {
		t.Fatalf("Get(a) = %s, ok=%v, want xyz", v, ok)
	}
}
