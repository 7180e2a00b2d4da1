// Package tree implements the copy-on-write binary search tree described
// in spec §4.3: recursive insert/delete/lookup/size operations that never
// mutate a reachable page in place, plus a bottom-up bulk builder and a
// five-state range-iteration stack machine.
package tree

import (
	"sort"

	"github.com/weids-dev/radarbase/pkg/node"
	"github.com/weids-dev/radarbase/pkg/pager"
	"github.com/weids-dev/radarbase/pkg/redberr"
)

// Tree wraps a Pager with the COW tree algorithms. A single Tree spans
// every table stored in the file; table identity only participates in
// ordering via the compound (table_id, key) comparison.
type Tree struct {
	pager       *pager.Pager
	comparators map[uint64]node.Comparator
}

// New returns a Tree backed by p, with every table defaulting to
// byte-wise lexicographic key ordering.
func New(p *pager.Pager) *Tree {
	return &Tree{pager: p, comparators: make(map[uint64]node.Comparator)}
}

// SetComparator installs a custom total order for tableID's key bytes.
// Passing nil reverts the table to the default lexicographic order.
func (t *Tree) SetComparator(tableID uint64, cmp node.Comparator) {
	if cmp == nil {
		delete(t.comparators, tableID)
		return
	}
	t.comparators[tableID] = cmp
}

func (t *Tree) cmpFor(tableID uint64) node.Comparator {
	if c, ok := t.comparators[tableID]; ok && c != nil {
		return c
	}
	return node.DefaultComparator
}

// compareKeys orders the compound (table_id, key) pair, using the
// table-specific comparator only once table ids are known equal.
func (t *Tree) compareKeys(a, b node.Key) int {
	if a.TableID != b.TableID {
		if a.TableID < b.TableID {
			return -1
		}
		return 1
	}
	return t.cmpFor(a.TableID)(a.Bytes, b.Bytes)
}

func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func copyKey(k node.Key) node.Key {
	return node.Key{TableID: k.TableID, Bytes: copyBytes(k.Bytes)}
}

func copyEntry(e node.Entry) node.Entry {
	return node.Entry{Key: copyKey(e.Key), Value: copyBytes(e.Value)}
}

// allocLeaf allocates a fresh page and encodes a leaf node into it.
func (t *Tree) allocLeaf(lesser node.Entry, greater *node.Entry) (uint64, error) {
	if node.LeafSize(lesser, greater) > t.pager.PageSize() {
		return 0, redberr.ErrValueTooLarge
	}
	pm, err := t.pager.Allocate()
	if err != nil {
		return 0, err
	}
	node.WriteLeaf(pm.Bytes(), lesser, greater)
	return pm.Number(), nil
}

// allocInternal allocates a fresh page and encodes an internal node into it.
func (t *Tree) allocInternal(key node.Key, ltePage, gtPage uint64) (uint64, error) {
	if node.InternalSize(key) > t.pager.PageSize() {
		return 0, redberr.ErrValueTooLarge
	}
	pm, err := t.pager.Allocate()
	if err != nil {
		return 0, err
	}
	node.WriteInternal(pm.Bytes(), key, ltePage, gtPage)
	return pm.Number(), nil
}

// Lookup returns the value stored for key, following root.
func (t *Tree) Lookup(root uint64, key node.Key) ([]byte, bool, error) {
	pn := root
	for {
		if pn == pager.NoPage {
			return nil, false, nil
		}
		view, err := t.pager.GetPage(pn)
		if err != nil {
			return nil, false, err
		}
		buf := view.Bytes()
		switch node.Type(buf) {
		case node.TypeLeaf:
			leaf := node.AsLeaf(buf)
			lesser := leaf.Lesser()
			switch c := t.compareKeys(key, lesser.Key); {
			case c == 0:
				return copyBytes(lesser.Value), true, nil
			case c < 0:
				return nil, false, nil
			}
			if greater, ok := leaf.Greater(); ok && t.compareKeys(key, greater.Key) == 0 {
				return copyBytes(greater.Value), true, nil
			}
			return nil, false, nil
		case node.TypeInternal:
			in := node.AsInternal(buf)
			if t.compareKeys(key, in.Key()) <= 0 {
				pn = in.LtePage()
			} else {
				pn = in.GtPage()
			}
		default:
			return nil, false, redberr.Corruption("unknown node type byte")
		}
	}
}

// Insert folds (key, value) into the tree rooted at root, returning the
// new root. A nil/NoPage root is treated as an empty tree.
func (t *Tree) Insert(root uint64, key node.Key, value []byte) (uint64, error) {
	return t.insert(root, key, value)
}

func (t *Tree) insert(pn uint64, key node.Key, value []byte) (uint64, error) {
	if pn == pager.NoPage {
		return t.allocLeaf(node.Entry{Key: key, Value: value}, nil)
	}
	view, err := t.pager.GetPage(pn)
	if err != nil {
		return 0, err
	}
	buf := view.Bytes()
	switch node.Type(buf) {
	case node.TypeLeaf:
		leaf := node.AsLeaf(buf)
		entries := make([]node.Entry, 0, 2)
		entries = append(entries, copyEntry(leaf.Lesser()))
		if g, ok := leaf.Greater(); ok {
			entries = append(entries, copyEntry(g))
		}
		merged := t.upsert(entries, node.Entry{Key: copyKey(key), Value: copyBytes(value)})
		switch len(merged) {
		case 1:
			return t.allocLeaf(merged[0], nil)
		case 2:
			return t.allocLeaf(merged[0], &merged[1])
		default: // 3: split
			leftPn, err := t.allocLeaf(merged[0], nil)
			if err != nil {
				return 0, err
			}
			rightPn, err := t.allocLeaf(merged[1], &merged[2])
			if err != nil {
				return 0, err
			}
			return t.allocInternal(merged[0].Key, leftPn, rightPn)
		}
	case node.TypeInternal:
		in := node.AsInternal(buf)
		pivot := copyKey(in.Key())
		ltePage, gtPage := in.LtePage(), in.GtPage()
		if t.compareKeys(key, pivot) <= 0 {
			newLte, err := t.insert(ltePage, key, value)
			if err != nil {
				return 0, err
			}
			return t.allocInternal(pivot, newLte, gtPage)
		}
		newGt, err := t.insert(gtPage, key, value)
		if err != nil {
			return 0, err
		}
		return t.allocInternal(pivot, ltePage, newGt)
	default:
		return 0, redberr.Corruption("unknown node type byte")
	}
}

// upsert merges existing (1 or 2, sorted, distinct) entries with e,
// overwriting on a matching key and returning the sorted result.
func (t *Tree) upsert(existing []node.Entry, e node.Entry) []node.Entry {
	merged := make([]node.Entry, 0, len(existing)+1)
	replaced := false
	for _, ex := range existing {
		if t.compareKeys(ex.Key, e.Key) == 0 {
			merged = append(merged, e)
			replaced = true
		} else {
			merged = append(merged, ex)
		}
	}
	if !replaced {
		merged = append(merged, e)
	}
	sort.Slice(merged, func(i, j int) bool { return t.compareKeys(merged[i].Key, merged[j].Key) < 0 })
	return merged
}

// Delete removes key from the tree rooted at root. existed reports
// whether the key was present. The returned root is pager.NoPage if the
// subtree became empty.
func (t *Tree) Delete(root uint64, key node.Key) (newRoot uint64, existed bool, err error) {
	newRoot, existed, empty, err := t.delete(root, key)
	if err != nil {
		return 0, false, err
	}
	if empty {
		return pager.NoPage, existed, nil
	}
	return newRoot, existed, nil
}

func (t *Tree) delete(pn uint64, key node.Key) (newPn uint64, existed bool, empty bool, err error) {
	if pn == pager.NoPage {
		return pager.NoPage, false, true, nil
	}
	view, err := t.pager.GetPage(pn)
	if err != nil {
		return 0, false, false, err
	}
	buf := view.Bytes()
	switch node.Type(buf) {
	case node.TypeLeaf:
		leaf := node.AsLeaf(buf)
		lesser := copyEntry(leaf.Lesser())
		greater, hasGreater := leaf.Greater()
		if t.compareKeys(lesser.Key, key) == 0 {
			if hasGreater {
				p, err := t.allocLeaf(copyEntry(greater), nil)
				return p, true, false, err
			}
			return pager.NoPage, true, true, nil
		}
		if hasGreater && t.compareKeys(greater.Key, key) == 0 {
			p, err := t.allocLeaf(lesser, nil)
			return p, true, false, err
		}
		return pn, false, false, nil
	case node.TypeInternal:
		in := node.AsInternal(buf)
		pivot := copyKey(in.Key())
		ltePage, gtPage := in.LtePage(), in.GtPage()
		if t.compareKeys(key, pivot) <= 0 {
			newLte, existedChild, lteEmpty, err := t.delete(ltePage, key)
			if err != nil {
				return 0, false, false, err
			}
			if !existedChild {
				return pn, false, false, nil
			}
			if lteEmpty {
				return gtPage, true, false, nil
			}
			p, err := t.allocInternal(pivot, newLte, gtPage)
			return p, true, false, err
		}
		newGt, existedChild, gtEmpty, err := t.delete(gtPage, key)
		if err != nil {
			return 0, false, false, err
		}
		if !existedChild {
			return pn, false, false, nil
		}
		if gtEmpty {
			return ltePage, true, false, nil
		}
		p, err := t.allocInternal(pivot, ltePage, newGt)
		return p, true, false, err
	default:
		return 0, false, false, redberr.Corruption("unknown node type byte")
	}
}

// Size returns the number of entries belonging to tableID reachable from
// root.
func (t *Tree) Size(root uint64, tableID uint64) (int, error) {
	if root == pager.NoPage {
		return 0, nil
	}
	view, err := t.pager.GetPage(root)
	if err != nil {
		return 0, err
	}
	buf := view.Bytes()
	switch node.Type(buf) {
	case node.TypeLeaf:
		leaf := node.AsLeaf(buf)
		n := 0
		if leaf.Lesser().Key.TableID == tableID {
			n++
		}
		if g, ok := leaf.Greater(); ok && g.Key.TableID == tableID {
			n++
		}
		return n, nil
	case node.TypeInternal:
		in := node.AsInternal(buf)
		l, err := t.Size(in.LtePage(), tableID)
		if err != nil {
			return 0, err
		}
		r, err := t.Size(in.GtPage(), tableID)
		if err != nil {
			return 0, err
		}
		return l + r, nil
	default:
		return 0, redberr.Corruption("unknown node type byte")
	}
}

// CollectAll performs a full in-order traversal of the tree rooted at
// root, returning deep-copied entries for every table. Storage uses this
// to fold a batch of staged writes into a freshly rebuilt global tree.
func (t *Tree) CollectAll(root uint64) ([]node.Entry, error) {
	var out []node.Entry
	var walk func(pn uint64) error
	walk = func(pn uint64) error {
		if pn == pager.NoPage {
			return nil
		}
		view, err := t.pager.GetPage(pn)
		if err != nil {
			return err
		}
		buf := view.Bytes()
		switch node.Type(buf) {
		case node.TypeLeaf:
			leaf := node.AsLeaf(buf)
			out = append(out, copyEntry(leaf.Lesser()))
			if g, ok := leaf.Greater(); ok {
				out = append(out, copyEntry(g))
			}
			return nil
		case node.TypeInternal:
			in := node.AsInternal(buf)
			if err := walk(in.LtePage()); err != nil {
				return err
			}
			return walk(in.GtPage())
		default:
			return redberr.Corruption("unknown node type byte")
		}
	}
	if err := walk(root); err != nil {
		return nil, err
	}
	return out, nil
}
