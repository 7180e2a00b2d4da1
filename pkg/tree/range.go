package tree

import (
	"github.com/weids-dev/radarbase/pkg/node"
	"github.com/weids-dev/radarbase/pkg/pager"
	"github.com/weids-dev/radarbase/pkg/redberr"
)

// state names the five per-node traversal states of §4.3's cursor.
type state int

const (
	stateInitial state = iota
	stateLeafLeft
	stateLeafRight
	stateInternalLeft
	stateInternalRight
)

type frame struct {
	pn    uint64
	state state
}

// Bound is one end of a range query: present-and-inclusive, present-and-
// exclusive, or absent (unbounded).
type Bound struct {
	Bytes     []byte
	Present   bool
	Inclusive bool
}

// Unbounded is the absent bound.
var Unbounded = Bound{}

// Iterator walks the entries of a single table between two bounds,
// forward or backward, as an explicit stack of traversal frames (never
// as callback-driven recursion, per §9).
type Iterator struct {
	tree    *Tree
	tableID uint64
	lower   Bound
	upper   Bound
	reverse bool

	stack []frame
	done  bool
	cur   node.Entry
	err   error

	served         int
	exhaustionHook func(entriesServed int)
	hookFired      bool
}

// NewRange constructs an iterator over tableID's entries in [lower,
// upper] (subject to each Bound's inclusivity) reachable from root.
// reverse selects get_range_reversed semantics.
func NewRange(t *Tree, root uint64, tableID uint64, lower, upper Bound, reverse bool) *Iterator {
	it := &Iterator{tree: t, tableID: tableID, lower: lower, upper: upper, reverse: reverse}
	if root != pager.NoPage {
		it.stack = []frame{{pn: root, state: stateInitial}}
	}
	return it
}

// SetExhaustionHook installs fn to be called exactly once, with the
// total number of entries served, as soon as the iterator determines it
// has no more entries to yield (a clean exhaustion, not an error).
func (it *Iterator) SetExhaustionHook(fn func(entriesServed int)) { it.exhaustionHook = fn }

func (it *Iterator) fireExhaustionHook() {
	if it.exhaustionHook != nil && !it.hookFired {
		it.hookFired = true
		it.exhaustionHook(it.served)
	}
}

// Err returns the first error encountered during iteration, if any.
func (it *Iterator) Err() error { return it.err }

// Entry returns the entry produced by the most recent successful Next.
func (it *Iterator) Entry() node.Entry { return it.cur }

// accept decides whether entry e belongs to the iterator's table and lies
// within its bounds. terminate signals that iteration has passed the far
// bound (or the table's key space) and must stop.
func (it *Iterator) accept(e node.Entry) (ok bool, terminate bool) {
	if e.Key.TableID != it.tableID {
		if !it.reverse {
			if e.Key.TableID > it.tableID {
				return false, true
			}
			return false, false
		}
		if e.Key.TableID < it.tableID {
			return false, true
		}
		return false, false
	}
	cmp := it.tree.cmpFor(it.tableID)
	if !it.reverse {
		if it.upper.Present {
			c := cmp(e.Key.Bytes, it.upper.Bytes)
			if c > 0 || (c == 0 && !it.upper.Inclusive) {
				return false, true
			}
		}
		if it.lower.Present {
			c := cmp(e.Key.Bytes, it.lower.Bytes)
			if c < 0 || (c == 0 && !it.lower.Inclusive) {
				return false, false
			}
		}
		return true, false
	}
	if it.lower.Present {
		c := cmp(e.Key.Bytes, it.lower.Bytes)
		if c < 0 || (c == 0 && !it.lower.Inclusive) {
			return false, true
		}
	}
	if it.upper.Present {
		c := cmp(e.Key.Bytes, it.upper.Bytes)
		if c > 0 || (c == 0 && !it.upper.Inclusive) {
			return false, false
		}
	}
	return true, false
}

// Next advances the cursor. It returns false once the range is
// exhausted or terminated early by a bound crossing; callers must check
// Err afterward to distinguish clean exhaustion from a read failure. On
// a clean (non-error) false, the exhaustion hook (if any) fires exactly
// once with the total number of entries served.
func (it *Iterator) Next() bool {
	ok := it.next()
	if ok {
		it.served++
	} else if it.err == nil {
		it.fireExhaustionHook()
	}
	return ok
}

func (it *Iterator) next() bool {
	if it.err != nil || it.done {
		return false
	}
	for len(it.stack) > 0 {
		i := len(it.stack) - 1
		pn := it.stack[i].pn
		if pn == pager.NoPage {
			it.stack = it.stack[:i]
			continue
		}
		view, err := it.tree.pager.GetPage(pn)
		if err != nil {
			it.err = err
			return false
		}
		buf := view.Bytes()
		switch node.Type(buf) {
		case node.TypeLeaf:
			leaf := node.AsLeaf(buf)
			switch it.stack[i].state {
			case stateInitial:
				if it.reverse {
					it.stack[i].state = stateLeafRight
				} else {
					it.stack[i].state = stateLeafLeft
				}
			case stateLeafLeft:
				if it.reverse {
					it.stack = it.stack[:i]
				} else {
					it.stack[i].state = stateLeafRight
				}
				e := copyEntry(leaf.Lesser())
				ok, term := it.accept(e)
				if term {
					it.done = true
					return false
				}
				if ok {
					it.cur = e
					return true
				}
			case stateLeafRight:
				if it.reverse {
					it.stack[i].state = stateLeafLeft
				} else {
					it.stack = it.stack[:i]
				}
				g, has := leaf.Greater()
				if !has {
					continue
				}
				e := copyEntry(g)
				ok, term := it.accept(e)
				if term {
					it.done = true
					return false
				}
				if ok {
					it.cur = e
					return true
				}
			}
		case node.TypeInternal:
			in := node.AsInternal(buf)
			switch it.stack[i].state {
			case stateInitial:
				if it.reverse {
					it.stack[i].state = stateInternalRight
				} else {
					it.stack[i].state = stateInternalLeft
				}
			case stateInternalLeft:
				child := in.LtePage()
				if it.reverse {
					it.stack = it.stack[:i]
				} else {
					it.stack[i].state = stateInternalRight
				}
				it.stack = append(it.stack, frame{pn: child, state: stateInitial})
			case stateInternalRight:
				child := in.GtPage()
				if it.reverse {
					it.stack[i].state = stateInternalLeft
				} else {
					it.stack = it.stack[:i]
				}
				it.stack = append(it.stack, frame{pn: child, state: stateInitial})
			}
		default:
			it.err = redberr.Corruption("unknown node type byte")
			return false
		}
	}
	return false
}
