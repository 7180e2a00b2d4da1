// Package txn implements the write-staging and read-snapshot transaction
// model of spec §4.5: a write transaction accumulates added/removed
// entries in memory and folds them into a new root at commit; a read
// transaction pins a root page number at creation and never observes
// later commits.
package txn

import (
	"github.com/weids-dev/radarbase/pkg/storage"
	"github.com/weids-dev/radarbase/pkg/tree"
)

// WriteTransaction stages inserts and removes for one table, scoped to
// the table's key space, and folds them into a new root at Commit.
type WriteTransaction struct {
	storage *storage.Storage
	tableID uint64

	added   map[string][]byte
	removed map[string]struct{}

	committed bool
	aborted   bool
}

// BeginWrite starts a write transaction scoped to tableID.
func BeginWrite(s *storage.Storage, tableID uint64) *WriteTransaction {
	return newWriteTransaction(s, tableID)
}

func newWriteTransaction(s *storage.Storage, tableID uint64) *WriteTransaction {
	return &WriteTransaction{
		storage: s,
		tableID: tableID,
		added:   make(map[string][]byte),
		removed: make(map[string]struct{}),
	}
}

// Insert stages key -> value, overwriting any prior staged value and
// clearing a prior staged removal of the same key.
func (w *WriteTransaction) Insert(key, value []byte) {
	delete(w.removed, string(key))
	buf := make([]byte, len(value))
	copy(buf, value)
	w.added[string(key)] = buf
}

// InsertReserve stages a zero-filled buffer of length n for key and
// returns it for the caller to fill in place before Commit.
func (w *WriteTransaction) InsertReserve(key []byte, n int) []byte {
	delete(w.removed, string(key))
	buf := make([]byte, n)
	w.added[string(key)] = buf
	return buf
}

// Remove stages key for deletion, discarding any staged insert of it.
func (w *WriteTransaction) Remove(key []byte) {
	delete(w.added, string(key))
	w.removed[string(key)] = struct{}{}
}

// Get returns the value visible to this transaction: its own staged
// writes take precedence over the committed root, and a staged removal
// shadows the committed value ("no dirty reads" for other readers, but
// a writer always sees its own pending mutations).
func (w *WriteTransaction) Get(key []byte) ([]byte, bool) {
	if v, ok := w.added[string(key)]; ok {
		out := make([]byte, len(v))
		copy(out, v)
		return out, true
	}
	if _, ok := w.removed[string(key)]; ok {
		return nil, false
	}
	v, ok, err := w.storage.Get(w.tableID, key)
	if err != nil {
		return nil, false
	}
	return v, ok
}

// Commit folds added into storage.BulkInsert, then applies each removed
// key, then flushes pages and publishes the new root, per the
// folds-then-removes-then-fsync-then-publish ordering of §4.5.
func (w *WriteTransaction) Commit() error {
	newRoot, err := w.storage.BulkInsert(w.tableID, w.added)
	if err != nil {
		return err
	}
	for key := range w.removed {
		r, _, err := w.storage.RemoveAt(w.tableID, []byte(key), newRoot)
		if err != nil {
			return err
		}
		newRoot = r
	}
	if err := w.storage.FlushPages(); err != nil {
		return err
	}
	if err := w.storage.Publish(newRoot); err != nil {
		return err
	}
	w.committed = true
	return nil
}

// Abort discards all staged state; it has no disk effect.
func (w *WriteTransaction) Abort() {
	w.added = nil
	w.removed = nil
	w.aborted = true
}

// ReadTransaction pins the root page number current at construction and
// answers every subsequent query against that fixed snapshot.
type ReadTransaction struct {
	storage *storage.Storage
	tableID uint64
	root    uint64
}

// NewRead starts a read transaction scoped to tableID, pinning the
// current root immediately.
func NewRead(s *storage.Storage, tableID uint64) *ReadTransaction {
	return newReadTransaction(s, tableID)
}

func newReadTransaction(s *storage.Storage, tableID uint64) *ReadTransaction {
	return &ReadTransaction{storage: s, tableID: tableID, root: s.RootPageNumber()}
}

// Get looks up key under the pinned snapshot.
func (r *ReadTransaction) Get(key []byte) ([]byte, bool) {
	v, ok, err := r.storage.GetAt(r.tableID, key, r.root)
	if err != nil {
		return nil, false
	}
	return v, ok
}

// Len counts this table's entries under the pinned snapshot.
func (r *ReadTransaction) Len() int {
	n, err := r.storage.LenAt(r.tableID, r.root)
	if err != nil {
		return 0
	}
	return n
}

// IsEmpty reports whether Len() == 0.
func (r *ReadTransaction) IsEmpty() bool { return r.Len() == 0 }

// GetRange returns an ascending iterator over [lower, upper] under the
// pinned snapshot.
func (r *ReadTransaction) GetRange(lower, upper tree.Bound) *tree.Iterator {
	return r.storage.Range(r.tableID, r.root, lower, upper, false)
}

// GetRangeReversed returns a descending iterator over [lower, upper]
// under the pinned snapshot.
func (r *ReadTransaction) GetRangeReversed(lower, upper tree.Bound) *tree.Iterator {
	return r.storage.Range(r.tableID, r.root, lower, upper, true)
}
