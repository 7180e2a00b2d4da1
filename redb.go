// Package redb is the thin handle layer spec marks out of core scope
// but still requires at the boundary: it binds a Database to a file and
// a Table to a name, and wraps pkg/txn's write transactions with the
// engine's logging and metrics (read transactions are pkg/txn's own).
package redb

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/weids-dev/radarbase/internal/logger"
	"github.com/weids-dev/radarbase/internal/metrics"
	"github.com/weids-dev/radarbase/pkg/node"
	"github.com/weids-dev/radarbase/pkg/storage"
	"github.com/weids-dev/radarbase/pkg/tree"
	"github.com/weids-dev/radarbase/pkg/txn"
)

// Comparator installs a custom total order over a table's key bytes.
type Comparator = node.Comparator

// Bound is one end of a range query.
type Bound = tree.Bound

// Unbounded is the absent bound, for open-ended range queries.
var Unbounded = tree.Unbounded

// Database owns one open store file.
type Database struct {
	storage *storage.Storage
	log     *logger.Logger
	metrics *metrics.Metrics
}

// Open creates or opens the file at path with a default initial size.
func Open(path string) (*Database, error) {
	return OpenSized(path, storage.DefaultMaxSize)
}

// OpenSized creates or opens the file at path, sized to at least maxSize
// (rounded down to a page-size multiple); the pager grows it further on
// demand regardless.
func OpenSized(path string, maxSize int64) (*Database, error) {
	s, err := storage.Open(path, maxSize)
	if err != nil {
		return nil, err
	}
	log := logger.GetGlobalLogger()
	log.LogOpen(path, s.PageSize())

	m := metrics.NewMetrics()
	s.SetSyncHook(m.RecordFsync)
	s.SetRangeScanHook(m.RecordRangeScan)

	db := &Database{storage: s, log: log, metrics: m}
	db.refreshStorageStats()
	return db, nil
}

// Registry returns this Database's private Prometheus registry, for an
// embedder to serve at its own /metrics endpoint (see
// internal/observability.NewServer). Each Database gets its own
// registry so that opening more than one in a process never collides
// on duplicate metric registration.
func (d *Database) Registry() *prometheus.Registry { return d.metrics.Registry() }

func (d *Database) refreshStorageStats() {
	d.metrics.UpdateStorageStats(
		d.storage.FileSizeBytes(),
		int64(d.storage.PagesAllocated()),
		int64(d.storage.TableCount()),
	)
}

// OpenTable creates or opens a named table with the default byte-wise
// lexicographic key order. name must be non-empty.
func (d *Database) OpenTable(name string) (*Table, error) {
	return d.OpenTableWithComparator(name, nil)
}

// OpenTableWithComparator is OpenTable with a custom key order installed
// for this table.
func (d *Database) OpenTableWithComparator(name string, cmp Comparator) (*Table, error) {
	id, err := d.storage.GetOrCreateTable(name)
	if err != nil {
		return nil, err
	}
	if cmp != nil {
		d.storage.SetComparator(id, cmp)
	}
	return &Table{db: d, id: id}, nil
}

// Close unmaps and closes the underlying file without a further flush.
func (d *Database) Close() error {
	return d.storage.Close()
}

// Table is a named, id-bound view into a Database's shared tree.
type Table struct {
	db *Database
	id uint64
}

// BeginWrite starts a write transaction scoped to this table.
func (t *Table) BeginWrite() *WriteTransaction {
	return &WriteTransaction{
		inner: txn.BeginWrite(t.db.storage, t.id),
		db:    t.db,
		id:    t.id,
	}
}

// ReadTransaction starts a read transaction pinned to the current root.
func (t *Table) ReadTransaction() *txn.ReadTransaction {
	return txn.NewRead(t.db.storage, t.id)
}

// WriteTransaction wraps pkg/txn's WriteTransaction with commit logging
// and commit/abort metrics.
type WriteTransaction struct {
	inner *txn.WriteTransaction
	db    *Database
	id    uint64
}

// Insert stages key -> value.
func (w *WriteTransaction) Insert(key, value []byte) { w.inner.Insert(key, value) }

// InsertReserve stages a zero-filled buffer of length n for the caller
// to fill before Commit.
func (w *WriteTransaction) InsertReserve(key []byte, n int) []byte {
	return w.inner.InsertReserve(key, n)
}

// Remove stages key for deletion.
func (w *WriteTransaction) Remove(key []byte) { w.inner.Remove(key) }

// Get returns the value visible to this transaction (its own staged
// writes plus the committed snapshot).
func (w *WriteTransaction) Get(key []byte) ([]byte, bool) { return w.inner.Get(key) }

// Commit folds staged writes into a new root and publishes it.
func (w *WriteTransaction) Commit() error {
	start := time.Now()
	err := w.inner.Commit()
	dur := time.Since(start)
	if err != nil {
		w.db.metrics.RecordEngineOperation("commit", "error", dur)
		w.db.log.EngineLogger("commit").Error(err.Error()).Send()
		return err
	}
	w.db.metrics.RecordCommit(dur)
	w.db.log.LogCommit(w.id, w.db.storage.RootPageNumber(), dur)
	w.db.refreshStorageStats()
	return nil
}

// Abort discards all staged state.
func (w *WriteTransaction) Abort() {
	w.inner.Abort()
	w.db.metrics.RecordAbort()
}
