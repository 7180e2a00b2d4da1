package ramtree

import "testing"

func intLess(a, b int) bool { return a < b }

func TestInsertAndSearch(t *testing.T) {
	tr := New[int, string](intLess)
	for i := 0; i < 50; i++ {
		tr.Insert(i, "v")
	}
	for i := 0; i < 50; i++ {
		if v, ok := tr.Search(i); !ok || v != "v" {
			t.Fatalf("Search(%d) = %s, %v", i, v, ok)
		}
	}
	if _, ok := tr.Search(100); ok {
		t.Fatalf("expected 100 to be absent")
	}
}

func TestInsertOverwrites(t *testing.T) {
	tr := New[int, string](intLess)
	tr.Insert(1, "a")
	tr.Insert(1, "b")
	v, ok := tr.Search(1)
	if !ok || v != "b" {
		t.Fatalf("Search(1) = %s, %v, want b", v, ok)
	}
	if len(tr.Traverse()) != 1 {
		t.Fatalf("expected 1 entry after overwrite, got %d", len(tr.Traverse()))
	}
}

func TestTraverseIsSorted(t *testing.T) {
	tr := New[int, int](intLess)
	values := []int{50, 10, 90, 30, 70, 20, 60, 40, 80, 5}
	for _, v := range values {
		tr.Insert(v, v)
	}
	pairs := tr.Traverse()
	for i := 1; i < len(pairs); i++ {
		if pairs[i-1].Key >= pairs[i].Key {
			t.Fatalf("Traverse not sorted at index %d: %v", i, pairs)
		}
	}
	if len(pairs) != len(values) {
		t.Fatalf("Traverse returned %d pairs, want %d", len(pairs), len(values))
	}
}

func TestDeleteLeafAndInternal(t *testing.T) {
	tr := NewWithDegree[int, int](2, intLess)
	for i := 1; i <= 20; i++ {
		tr.Insert(i, i*10)
	}
	for _, k := range []int{5, 1, 20, 10, 15} {
		if !tr.Delete(k) {
			t.Fatalf("Delete(%d) reported not found", k)
		}
		if _, ok := tr.Search(k); ok {
			t.Fatalf("key %d still present after delete", k)
		}
	}
	remaining := tr.Traverse()
	if len(remaining) != 15 {
		t.Fatalf("expected 15 remaining entries, got %d", len(remaining))
	}
	for i := 1; i < len(remaining); i++ {
		if remaining[i-1].Key >= remaining[i].Key {
			t.Fatalf("tree not sorted after deletes: %v", remaining)
		}
	}
}

func TestDeleteMissingKeyReturnsFalse(t *testing.T) {
	tr := New[int, int](intLess)
	tr.Insert(1, 1)
	if tr.Delete(99) {
		t.Fatalf("expected Delete of missing key to return false")
	}
}

func TestDeleteAllEmptiesTree(t *testing.T) {
	tr := New[int, int](intLess)
	for i := 0; i < 10; i++ {
		tr.Insert(i, i)
	}
	for i := 0; i < 10; i++ {
		if !tr.Delete(i) {
			t.Fatalf("Delete(%d) failed", i)
		}
	}
	if len(tr.Traverse()) != 0 {
		t.Fatalf("expected empty tree, got %v", tr.Traverse())
	}
	if _, ok := tr.Search(0); ok {
		t.Fatalf("expected empty tree to report no matches")
	}
}
