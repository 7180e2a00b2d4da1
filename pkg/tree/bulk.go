package tree

import (
	"fmt"
	"sort"

	"github.com/weids-dev/radarbase/pkg/node"
	"github.com/weids-dev/radarbase/pkg/pager"
)

// buildNode is the in-memory intermediate representation produced by the
// bottom-up bulk builder before it is materialized into pages.
type buildNode struct {
	leaf    bool
	lesser  node.Entry
	greater *node.Entry
	left    *buildNode
	right   *buildNode
	pivot   node.Key
}

func (n *buildNode) maxKey() node.Key {
	if n.leaf {
		if n.greater != nil {
			return n.greater.Key
		}
		return n.lesser.Key
	}
	return n.right.maxKey()
}

// Build sorts entries by (table_id, key) under the tree's per-table
// comparators, pairs them into leaves, then repeatedly combines adjacent
// nodes into internal nodes pivoted on the left subtree's max key, until
// a single root remains. It panics on a duplicate (table_id, key) within
// the batch, matching spec's "programmer error" rule (the write
// transaction is responsible for deduplicating before calling).
func (t *Tree) Build(entries []node.Entry) (uint64, error) {
	if len(entries) == 0 {
		return pager.NoPage, nil
	}
	sorted := make([]node.Entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return t.compareKeys(sorted[i].Key, sorted[j].Key) < 0 })
	for i := 1; i < len(sorted); i++ {
		if t.compareKeys(sorted[i-1].Key, sorted[i].Key) == 0 {
			panic(fmt.Sprintf("tree: duplicate key in bulk build batch: table=%d", sorted[i].Key.TableID))
		}
	}

	level := make([]*buildNode, 0, (len(sorted)+1)/2)
	for i := 0; i < len(sorted); {
		if i+1 < len(sorted) {
			level = append(level, &buildNode{leaf: true, lesser: sorted[i], greater: &sorted[i+1]})
			i += 2
		} else {
			level = append(level, &buildNode{leaf: true, lesser: sorted[i]})
			i++
		}
	}

	for len(level) > 1 {
		next := make([]*buildNode, 0, (len(level)+1)/2)
		for i := 0; i < len(level); {
			if i+1 < len(level) {
				left, right := level[i], level[i+1]
				next = append(next, &buildNode{left: left, right: right, pivot: left.maxKey()})
				i += 2
			} else {
				next = append(next, level[i])
				i++
			}
		}
		level = next
	}

	return t.writeBuildNode(level[0])
}

func (t *Tree) writeBuildNode(n *buildNode) (uint64, error) {
	if n.leaf {
		return t.allocLeaf(n.lesser, n.greater)
	}
	leftPn, err := t.writeBuildNode(n.left)
	if err != nil {
		return 0, err
	}
	rightPn, err := t.writeBuildNode(n.right)
	if err != nil {
		return 0, err
	}
	return t.allocInternal(n.pivot, leftPn, rightPn)
}
