// Package storage owns the memory-mapped file's metadata page (magic,
// next-free-page counter, root pointer, table directory) and the
// high-level bulk_insert/remove/get/len/fsync operations layered on top
// of pkg/tree, per spec §4.4.
package storage

import (
	"bytes"
	"encoding/binary"
	"time"

	"github.com/weids-dev/radarbase/pkg/node"
	"github.com/weids-dev/radarbase/pkg/pager"
	"github.com/weids-dev/radarbase/pkg/redberr"
	"github.com/weids-dev/radarbase/pkg/tree"
)

// Magic is the four-byte marker written last during initialization, so
// that a half-initialized file is detectable on reopen.
var Magic = [4]byte{'r', 'e', 'd', 'b'}

const (
	offMagic     = 0
	offNextFree  = 4
	offRoot      = 12
	offDirectory = 20
)

// Storage is the file-header-and-tree-directory layer over a Pager.
type Storage struct {
	pager         *pager.Pager
	tree          *tree.Tree
	tables        map[string]uint64
	nextTableID   uint64
	root          uint64
	rangeScanHook func(entriesServed int)
}

// DefaultMaxSize is used by callers that do not need to tune the initial
// file size; the pager grows the mapping on demand past it regardless.
const DefaultMaxSize = 16 << 20

// Open creates or opens the file at path and initializes or restores its
// metadata page.
func Open(path string, maxSize int64) (*Storage, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	p, err := pager.Open(path, maxSize)
	if err != nil {
		return nil, err
	}
	s := &Storage{
		pager:       p,
		tree:        tree.New(p),
		tables:      make(map[string]uint64),
		nextTableID: 1,
		root:        pager.NoPage,
	}
	if err := s.initialize(); err != nil {
		p.Close()
		return nil, err
	}
	return s, nil
}

// Tree exposes the underlying tree ops, for the txn package's staged
// bulk_insert/remove folding and range-iterator construction.
func (s *Storage) Tree() *tree.Tree { return s.tree }

// PageSize reports the platform page size determined when the file was
// first opened.
func (s *Storage) PageSize() int { return s.pager.PageSize() }

// PagesAllocated reports how many pages the page manager has handed out.
func (s *Storage) PagesAllocated() uint64 { return s.pager.NextFree() - 1 }

// TableCount reports the number of tables in the directory.
func (s *Storage) TableCount() int { return len(s.tables) }

// FileSizeBytes reports the current size of the mapped file.
func (s *Storage) FileSizeBytes() int64 {
	return int64(s.pager.Capacity()) * int64(s.pager.PageSize())
}

// SetSyncHook installs fn to be called with the duration of every
// durable flush, for an embedder to feed into its own metrics.
func (s *Storage) SetSyncHook(fn func(time.Duration)) { s.pager.SetSyncHook(fn) }

// SetRangeScanHook installs fn to be called once per range iterator,
// when that iterator is exhausted cleanly, with the number of entries
// it served.
func (s *Storage) SetRangeScanHook(fn func(entriesServed int)) { s.rangeScanHook = fn }

func (s *Storage) metaView() ([]byte, error) {
	view, err := s.pager.GetPage(0)
	if err != nil {
		return nil, err
	}
	return view.Bytes(), nil
}

// initialize reads the metadata page. If the magic marker is absent, it
// writes next-free=1, root=sentinel, an empty directory, flushes, then
// writes the magic marker and flushes again — magic last, per invariant 6.
func (s *Storage) initialize() error {
	buf, err := s.metaView()
	if err != nil {
		return err
	}
	if bytes.Equal(buf[offMagic:offMagic+4], Magic[:]) {
		return s.restore(buf)
	}

	binary.BigEndian.PutUint64(buf[offNextFree:offNextFree+8], 1)
	binary.BigEndian.PutUint64(buf[offRoot:offRoot+8], pager.NoPage)
	writeDirectory(buf[offDirectory:], nil)
	if err := s.pager.Sync(); err != nil {
		return err
	}
	copy(buf[offMagic:offMagic+4], Magic[:])
	if err := s.pager.Sync(); err != nil {
		return err
	}
	s.pager.Restore(1)
	s.root = pager.NoPage
	return nil
}

func (s *Storage) restore(buf []byte) error {
	nextFree := binary.BigEndian.Uint64(buf[offNextFree : offNextFree+8])
	root := binary.BigEndian.Uint64(buf[offRoot : offRoot+8])
	dir, err := readDirectory(buf[offDirectory:])
	if err != nil {
		return err
	}
	s.pager.Restore(nextFree)
	s.root = root
	s.tables = dir
	maxID := uint64(0)
	for _, id := range dir {
		if id > maxID {
			maxID = id
		}
	}
	s.nextTableID = maxID + 1
	return nil
}

// writeDirectory encodes the table-name -> id directory as
// [count u64][nameLen u64][name][id u64]*count.
func writeDirectory(buf []byte, dir map[string]uint64) int {
	off := 8
	binary.BigEndian.PutUint64(buf[0:8], uint64(len(dir)))
	for name, id := range dir {
		binary.BigEndian.PutUint64(buf[off:off+8], uint64(len(name)))
		off += 8
		copy(buf[off:off+len(name)], name)
		off += len(name)
		binary.BigEndian.PutUint64(buf[off:off+8], id)
		off += 8
	}
	return off
}

func readDirectory(buf []byte) (map[string]uint64, error) {
	dir := make(map[string]uint64)
	count := binary.BigEndian.Uint64(buf[0:8])
	off := 8
	for i := uint64(0); i < count; i++ {
		nameLen := binary.BigEndian.Uint64(buf[off : off+8])
		off += 8
		name := string(buf[off : off+int(nameLen)])
		off += int(nameLen)
		id := binary.BigEndian.Uint64(buf[off : off+8])
		off += 8
		dir[name] = id
	}
	return dir, nil
}

func (s *Storage) directorySize() int {
	n := 8
	for name := range s.tables {
		n += 8 + len(name) + 8
	}
	return n
}

// GetOrCreateTable looks up name in the directory, allocating a fresh id
// on first use. name must be non-empty.
func (s *Storage) GetOrCreateTable(name string) (uint64, error) {
	if name == "" {
		return 0, redberr.ErrTableNameEmpty
	}
	if id, ok := s.tables[name]; ok {
		return id, nil
	}
	id := s.nextTableID
	s.nextTableID++
	s.tables[name] = id
	if err := s.writeMeta(); err != nil {
		delete(s.tables, name)
		s.nextTableID--
		return 0, err
	}
	return id, nil
}

// writeMeta writes next-free, root, and the directory into page 0 and
// flushes. It does not touch the magic marker.
func (s *Storage) writeMeta() error {
	buf, err := s.metaView()
	if err != nil {
		return err
	}
	if s.directorySize() > len(buf)-offDirectory {
		return redberr.Corruption("table directory exceeds metadata page")
	}
	binary.BigEndian.PutUint64(buf[offNextFree:offNextFree+8], s.pager.NextFree())
	binary.BigEndian.PutUint64(buf[offRoot:offRoot+8], s.root)
	writeDirectory(buf[offDirectory:], s.tables)
	return s.pager.Sync()
}

// RootPageNumber returns the current committed root, or pager.NoPage.
func (s *Storage) RootPageNumber() uint64 { return s.root }

// Get looks up (tableID, key) under the current committed root.
func (s *Storage) Get(tableID uint64, key []byte) ([]byte, bool, error) {
	return s.GetAt(tableID, key, s.root)
}

// GetAt looks up (tableID, key) under an explicit root, for use by read
// transactions pinned to an older snapshot.
func (s *Storage) GetAt(tableID uint64, key []byte, root uint64) ([]byte, bool, error) {
	return s.tree.Lookup(root, node.Key{TableID: tableID, Bytes: key})
}

// Len counts entries for tableID under the current committed root.
func (s *Storage) Len(tableID uint64) (int, error) {
	return s.LenAt(tableID, s.root)
}

// LenAt counts entries for tableID under an explicit root. Exposed
// separately so read transactions pinned to a historical root can count
// without going through the current committed snapshot.
func (s *Storage) LenAt(tableID uint64, root uint64) (int, error) {
	return s.tree.Size(root, tableID)
}

// BulkInsert folds a staged (key -> value) map for tableID into the live
// tree by collecting every existing entry across every table, replacing
// any whose (tableID, key) matches a staged write, adding the rest of
// the staged writes, and rebuilding via Tree.Build. It returns the new
// root; callers are responsible for publishing it (see Publish).
func (s *Storage) BulkInsert(tableID uint64, added map[string][]byte) (uint64, error) {
	if len(added) == 0 {
		return s.root, nil
	}
	all, err := s.tree.CollectAll(s.root)
	if err != nil {
		return 0, err
	}
	kept := all[:0]
	for _, e := range all {
		if e.Key.TableID == tableID {
			if _, overridden := added[string(e.Key.Bytes)]; overridden {
				continue
			}
		}
		kept = append(kept, e)
	}
	for k, v := range added {
		kept = append(kept, node.Entry{Key: node.Key{TableID: tableID, Bytes: []byte(k)}, Value: v})
	}
	return s.tree.Build(kept)
}

// Remove applies a COW delete of (tableID, key) against the current
// committed root, returning the new root. existed reports whether the
// key was present.
func (s *Storage) Remove(tableID uint64, key []byte) (newRoot uint64, existed bool, err error) {
	return s.RemoveAt(tableID, key, s.root)
}

// RemoveAt applies a COW delete of (tableID, key) against an explicit
// root, returning the new root. Used during commit to fold a batch of
// staged removes onto the root BulkInsert just produced, before either
// is published.
func (s *Storage) RemoveAt(tableID uint64, key []byte, root uint64) (newRoot uint64, existed bool, err error) {
	return s.tree.Delete(root, node.Key{TableID: tableID, Bytes: key})
}

// Publish adopts newRoot as the current committed root and durably
// writes it (plus the next-free counter) to page 0, per the
// write-pages -> fsync -> write-root -> fsync ordering of §4.4. The
// caller must have already flushed any newly written tree pages via
// FlushPages before calling Publish.
func (s *Storage) Publish(newRoot uint64) error {
	s.root = newRoot
	return s.writeMeta()
}

// FlushPages durably flushes the mapping without touching the metadata
// page's root field; step 2 of the commit ordering in §4.4.
func (s *Storage) FlushPages() error {
	return s.pager.Sync()
}

// SetComparator installs a custom key order for tableID.
func (s *Storage) SetComparator(tableID uint64, cmp node.Comparator) {
	s.tree.SetComparator(tableID, cmp)
}

// Range constructs a range iterator over tableID's entries at an
// explicit root (forward or reversed). If a range-scan hook is
// installed, it fires once the iterator is exhausted cleanly.
func (s *Storage) Range(tableID uint64, root uint64, lower, upper tree.Bound, reverse bool) *tree.Iterator {
	it := tree.NewRange(s.tree, root, tableID, lower, upper, reverse)
	if s.rangeScanHook != nil {
		it.SetExhaustionHook(s.rangeScanHook)
	}
	return it
}

// Close unmaps the file and closes its descriptor. It does not flush the
// mapping itself; commits and table creation already sync what they write.
func (s *Storage) Close() error {
	return s.pager.Close()
}
