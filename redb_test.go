package redb

import (
	"bytes"
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T) *Database {
	t.Helper()
	path := filepath.Join(t.TempDir(), "redb_test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenTableLenAndGet(t *testing.T) {
	db := openTestDB(t)
	table, err := db.OpenTable("users")
	if err != nil {
		t.Fatalf("OpenTable: %v", err)
	}

	w := table.BeginWrite()
	w.Insert([]byte("alice"), []byte("1"))
	w.Insert([]byte("bob"), []byte("2"))
	if err := w.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	r := table.ReadTransaction()
	if r.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", r.Len())
	}
	v, ok := r.Get([]byte("alice"))
	if !ok || string(v) != "1" {
		t.Fatalf("Get(alice) = %s, ok=%v", v, ok)
	}
}

func TestMultipleTablesDoNotCollide(t *testing.T) {
	db := openTestDB(t)
	users, err := db.OpenTable("users")
	if err != nil {
		t.Fatal(err)
	}
	orders, err := db.OpenTable("orders")
	if err != nil {
		t.Fatal(err)
	}

	w1 := users.BeginWrite()
	w1.Insert([]byte("k"), []byte("user-value"))
	if err := w1.Commit(); err != nil {
		t.Fatal(err)
	}
	w2 := orders.BeginWrite()
	w2.Insert([]byte("k"), []byte("order-value"))
	if err := w2.Commit(); err != nil {
		t.Fatal(err)
	}

	ru := users.ReadTransaction()
	ro := orders.ReadTransaction()
	uv, _ := ru.Get([]byte("k"))
	ov, _ := ro.Get([]byte("k"))
	if string(uv) != "user-value" || string(ov) != "order-value" {
		t.Fatalf("table isolation broken: users=%s orders=%s", uv, ov)
	}
}

func TestOverwriteWithinOneCommit(t *testing.T) {
	db := openTestDB(t)
	table, err := db.OpenTable("t")
	if err != nil {
		t.Fatal(err)
	}
	w := table.BeginWrite()
	w.Insert([]byte("a"), []byte("old"))
	w.Insert([]byte("a"), []byte("new"))
	if err := w.Commit(); err != nil {
		t.Fatal(err)
	}
	r := table.ReadTransaction()
	v, _ := r.Get([]byte("a"))
	if string(v) != "new" {
		t.Fatalf("got %s, want new", v)
	}
	if r.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", r.Len())
	}
}

func TestDeleteAcrossTransactions(t *testing.T) {
	db := openTestDB(t)
	table, err := db.OpenTable("t")
	if err != nil {
		t.Fatal(err)
	}
	w1 := table.BeginWrite()
	w1.Insert([]byte("a"), []byte("1"))
	w1.Insert([]byte("b"), []byte("2"))
	if err := w1.Commit(); err != nil {
		t.Fatal(err)
	}

	w2 := table.BeginWrite()
	w2.Remove([]byte("a"))
	if err := w2.Commit(); err != nil {
		t.Fatal(err)
	}

	r := table.ReadTransaction()
	if _, ok := r.Get([]byte("a")); ok {
		t.Fatalf("expected a to be removed")
	}
	if r.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", r.Len())
	}
}

func TestReadIsolationAcrossCommit(t *testing.T) {
	db := openTestDB(t)
	table, err := db.OpenTable("t")
	if err != nil {
		t.Fatal(err)
	}
	w1 := table.BeginWrite()
	w1.Insert([]byte("a"), []byte("1"))
	if err := w1.Commit(); err != nil {
		t.Fatal(err)
	}

	snapshot := table.ReadTransaction()

	w2 := table.BeginWrite()
	w2.Insert([]byte("b"), []byte("2"))
	if err := w2.Commit(); err != nil {
		t.Fatal(err)
	}

	if snapshot.Len() != 1 {
		t.Fatalf("snapshot Len() = %d, want 1 (must not observe later commit)", snapshot.Len())
	}
}

func TestRangeQuery(t *testing.T) {
	db := openTestDB(t)
	table, err := db.OpenTable("t")
	if err != nil {
		t.Fatal(err)
	}
	w := table.BeginWrite()
	for _, k := range []string{"a", "b", "c", "d", "e"} {
		w.Insert([]byte(k), []byte(k))
	}
	if err := w.Commit(); err != nil {
		t.Fatal(err)
	}

	r := table.ReadTransaction()
	it := r.GetRange(
		Bound{Bytes: []byte("b"), Present: true, Inclusive: true},
		Bound{Bytes: []byte("d"), Present: true, Inclusive: false},
	)
	var got []string
	for it.Next() {
		got = append(got, string(it.Entry().Key.Bytes))
	}
	if it.Err() != nil {
		t.Fatalf("range error: %v", it.Err())
	}
	want := []string{"b", "c"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

// reverseKeyCompare orders keys by reversing their bytes, matching the
// original project's ReverseKey custom-comparator test.
func reverseKeyCompare(a, b []byte) int {
	ra := make([]byte, len(a))
	for i, c := range a {
		ra[len(a)-1-i] = c
	}
	rb := make([]byte, len(b))
	for i, c := range b {
		rb[len(b)-1-i] = c
	}
	return bytes.Compare(ra, rb)
}

func TestCustomComparator(t *testing.T) {
	db := openTestDB(t)
	table, err := db.OpenTableWithComparator("t", Comparator(reverseKeyCompare))
	if err != nil {
		t.Fatal(err)
	}
	w := table.BeginWrite()
	w.Insert([]byte("1a"), []byte("x"))
	w.Insert([]byte("2a"), []byte("y"))
	w.Insert([]byte("1b"), []byte("z"))
	if err := w.Commit(); err != nil {
		t.Fatal(err)
	}

	r := table.ReadTransaction()
	it := r.GetRange(Unbounded, Unbounded)
	var got []string
	for it.Next() {
		got = append(got, string(it.Entry().Key.Bytes))
	}
	// Reversed byte order puts "1a"/"2a" (reverse "a1"/"a2") before "1b"
	// (reverse "b1"); "1a" < "2a" by last-byte digit once reversed.
	want := []string{"1a", "2a", "1b"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v under custom comparator", got, want)
		}
	}
}
