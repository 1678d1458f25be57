package regions

import "fmt"

// Verify checks every structural invariant of the tree:
//   - the root and the sentinel are black
//   - no red node has a red child
//   - every root-to-leaf path has the same number of black nodes
//   - child/parent links agree
//   - ranges are non-empty, disjoint and in ascending order in-order
//   - the node count matches Len
//
// It returns an error wrapping ErrCorrupt on the first violation.
func (t *Tree[T]) Verify() error {
	if t.n(sentinel).color != black {
		return t.corrupt(sentinel, "sentinel is red")
	}
	if t.root == sentinel {
		if t.size != 0 {
			return t.corrupt(sentinel, fmt.Sprintf("empty tree reports %d nodes", t.size))
		}
		return nil
	}
	if t.n(t.root).color != black {
		return t.corrupt(t.root, "root is red")
	}
	if t.n(t.root).parent != sentinel {
		return t.corrupt(t.root, "root has a parent")
	}

	count := 0
	var prevEnd uint64
	havePrev := false
	var check func(id NodeID) (int, error)
	check = func(id NodeID) (int, error) {
		if id == sentinel {
			return 1, nil
		}
		if !t.valid(id) {
			return 0, t.corrupt(id, "link to released node")
		}
		n := t.n(id)
		if n.end <= n.start {
			return 0, t.corrupt(id, "empty range")
		}
		for _, c := range []NodeID{n.left, n.right} {
			if c == sentinel {
				continue
			}
			if t.n(c).parent != id {
				return 0, t.corrupt(c, fmt.Sprintf("parent link %d, want %d", t.n(c).parent, id))
			}
			if n.color == red && t.n(c).color == red {
				return 0, t.corrupt(c, "red node with red parent")
			}
		}

		lh, err := check(n.left)
		if err != nil {
			return 0, err
		}

		if havePrev && n.start < prevEnd {
			return 0, t.corrupt(id, fmt.Sprintf("range [%#x, %#x) overlaps or precedes previous end %#x",
				n.start, n.end, prevEnd))
		}
		prevEnd, havePrev = n.end, true
		count++

		rh, err := check(n.right)
		if err != nil {
			return 0, err
		}
		if lh != rh {
			return 0, t.corrupt(id, fmt.Sprintf("black height mismatch: left %d, right %d", lh, rh))
		}
		if n.color == black {
			lh++
		}
		return lh, nil
	}

	if _, err := check(t.root); err != nil {
		return err
	}
	if count != t.size {
		return t.corrupt(t.root, fmt.Sprintf("walked %d nodes, tree reports %d", count, t.size))
	}
	return nil
}

// BlackHeight returns the number of black nodes on the leftmost path,
// counting the sentinel. Intended for tests and diagnostics.
func (t *Tree[T]) BlackHeight() int {
	h := 1
	for x := t.root; x != sentinel; x = t.n(x).left {
		if t.n(x).color == black {
			h++
		}
	}
	return h
}

func (t *Tree[T]) corrupt(id NodeID, msg string) error {
	return fmt.Errorf("%w: node %d: %s", ErrCorrupt, id, msg)
}
