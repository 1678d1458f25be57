package regions

import (
	"fmt"
	"math"
)

type node[T any] struct {
	start  uint64
	end    uint64
	typ    Type
	owner  T
	color  Color
	parent NodeID
	left   NodeID
	right  NodeID
	inUse  bool
}

// Tree is a red-black tree of disjoint address ranges.
type Tree[T any] struct {
	nodes []node[T] // nodes[0] is the sentinel (black)
	free  []NodeID
	root  NodeID
	size  int
}

// sentinel is the arena slot of the nil node.
const sentinel NodeID = 0

// New constructs an empty tree with a black sentinel.
func New[T any]() *Tree[T] {
	t := &Tree[T]{nodes: make([]node[T], 1, 64)}
	t.nodes[sentinel].color = black
	return t
}

// Len returns the number of regions in the tree.
func (t *Tree[T]) Len() int { return t.size }

func (t *Tree[T]) n(id NodeID) *node[T] { return &t.nodes[id] }

// Insert records [start, end) as a region of the given type.
func (t *Tree[T]) Insert(start, end uint64, typ Type, owner T) (NodeID, error) {
	if end <= start {
		return sentinel, fmt.Errorf("%w: [%#x, %#x)", ErrEmptyRange, start, end)
	}

	y := sentinel
	x := t.root
	for x != sentinel {
		y = x
		xn := t.n(x)
		switch {
		case end <= xn.start:
			x = xn.left
		case start >= xn.end:
			x = xn.right
		default:
			return sentinel, fmt.Errorf("%w: %w: [%#x, %#x) intersects [%#x, %#x) (%s)",
				ErrCorrupt, ErrOverlap, start, end, xn.start, xn.end, xn.typ)
		}
	}

	z := t.allocNode()
	zn := t.n(z)
	zn.start, zn.end = start, end
	zn.typ = typ
	zn.owner = owner
	zn.color = red
	zn.left, zn.right = sentinel, sentinel
	zn.parent = y

	if y == sentinel {
		t.root = z
	} else if end <= t.n(y).start {
		t.n(y).left = z
	} else {
		t.n(y).right = z
	}
	t.insertFixup(z)
	t.size++
	return z, nil
}

// Find returns the region containing addr.
func (t *Tree[T]) Find(addr uint64) (Node[T], bool) {
	if addr == math.MaxUint64 {
		// [addr, addr+1) is not representable; no region can hold it anyway.
		return Node[T]{}, false
	}

	s := t.n(sentinel)
	s.start, s.end = addr, addr+1

	p := t.root
	for {
		pn := t.n(p)
		if addr >= pn.start && addr < pn.end {
			break
		}
		if addr < pn.start {
			p = pn.left
		} else {
			p = pn.right
		}
	}

	s = t.n(sentinel)
	s.start, s.end = 0, 0
	if p == sentinel {
		return Node[T]{}, false
	}
	return t.view(p), true
}

// Get returns the region with the given id.
func (t *Tree[T]) Get(id NodeID) (Node[T], bool) {
	if !t.valid(id) {
		return Node[T]{}, false
	}
	return t.view(id), true
}

// Delete removes the region with the given id.
func (t *Tree[T]) Delete(id NodeID) error {
	if !t.valid(id) {
		return fmt.Errorf("%w: %w: node %d", ErrCorrupt, ErrNotPresent, id)
	}
	t.deleteNode(id)
	t.releaseNode(id)
	t.size--
	return nil
}

// Walk visits every region in ascending address order until fn returns false.
func (t *Tree[T]) Walk(fn func(Node[T]) bool) {
	for n := t.minNode(t.root); n != sentinel; n = t.next(n) {
		if !fn(t.view(n)) {
			return
		}
	}
}

// Nodes returns every region in ascending address order.
func (t *Tree[T]) Nodes() []Node[T] {
	out := make([]Node[T], 0, t.size)
	t.Walk(func(n Node[T]) bool {
		out = append(out, n)
		return true
	})
	return out
}

/******************** Internal helpers ********************/

func (t *Tree[T]) valid(id NodeID) bool {
	return id > sentinel && int(id) < len(t.nodes) && t.nodes[id].inUse
}

func (t *Tree[T]) view(id NodeID) Node[T] {
	n := t.n(id)
	return Node[T]{ID: id, Start: n.start, End: n.end, Type: n.typ, Owner: n.owner}
}

func (t *Tree[T]) allocNode() NodeID {
	var id NodeID
	if k := len(t.free); k > 0 {
		id = t.free[k-1]
		t.free = t.free[:k-1]
	} else {
		t.nodes = append(t.nodes, node[T]{})
		id = NodeID(len(t.nodes) - 1)
	}
	t.nodes[id].inUse = true
	return id
}

func (t *Tree[T]) releaseNode(id NodeID) {
	t.nodes[id] = node[T]{}
	t.free = append(t.free, id)
}

func (t *Tree[T]) minNode(x NodeID) NodeID {
	if x == sentinel {
		return sentinel
	}
	for t.n(x).left != sentinel {
		x = t.n(x).left
	}
	return x
}

func (t *Tree[T]) next(x NodeID) NodeID {
	if t.n(x).right != sentinel {
		return t.minNode(t.n(x).right)
	}
	p := t.n(x).parent
	for p != sentinel && x == t.n(p).right {
		x = p
		p = t.n(p).parent
	}
	return p
}

func (t *Tree[T]) leftRotate(x NodeID) {
	y := t.n(x).right
	t.n(x).right = t.n(y).left
	if t.n(y).left != sentinel {
		t.n(t.n(y).left).parent = x
	}
	t.n(y).parent = t.n(x).parent
	xp := t.n(x).parent
	if xp == sentinel {
		t.root = y
	} else if x == t.n(xp).left {
		t.n(xp).left = y
	} else {
		t.n(xp).right = y
	}
	t.n(y).left = x
	t.n(x).parent = y
}

func (t *Tree[T]) rightRotate(y NodeID) {
	x := t.n(y).left
	t.n(y).left = t.n(x).right
	if t.n(x).right != sentinel {
		t.n(t.n(x).right).parent = y
	}
	t.n(x).parent = t.n(y).parent
	yp := t.n(y).parent
	if yp == sentinel {
		t.root = x
	} else if y == t.n(yp).right {
		t.n(yp).right = x
	} else {
		t.n(yp).left = x
	}
	t.n(x).right = y
	t.n(y).parent = x
}

func (t *Tree[T]) insertFixup(z NodeID) {
	for t.n(t.n(z).parent).color == red {
		zp := t.n(z).parent
		zpp := t.n(zp).parent
		if zp == t.n(zpp).left {
			y := t.n(zpp).right
			if t.n(y).color == red {
				t.n(zp).color = black
				t.n(y).color = black
				t.n(zpp).color = red
				z = zpp
			} else {
				if z == t.n(zp).right {
					z = zp
					t.leftRotate(z)
				}
				zp = t.n(z).parent
				zpp = t.n(zp).parent
				t.n(zp).color = black
				t.n(zpp).color = red
				t.rightRotate(zpp)
			}
		} else {
			y := t.n(zpp).left
			if t.n(y).color == red {
				t.n(zp).color = black
				t.n(y).color = black
				t.n(zpp).color = red
				z = zpp
			} else {
				if z == t.n(zp).left {
					z = zp
					t.rightRotate(z)
				}
				zp = t.n(z).parent
				zpp = t.n(zp).parent
				t.n(zp).color = black
				t.n(zpp).color = red
				t.leftRotate(zpp)
			}
		}
	}
	t.n(t.root).color = black
}

func (t *Tree[T]) transplant(u, v NodeID) {
	up := t.n(u).parent
	if up == sentinel {
		t.root = v
	} else if u == t.n(up).left {
		t.n(up).left = v
	} else {
		t.n(up).right = v
	}
	t.n(v).parent = up
}

func (t *Tree[T]) deleteNode(z NodeID) {
	y := z
	yOrigColor := t.n(y).color
	var x NodeID

	if t.n(z).left == sentinel {
		x = t.n(z).right
		t.transplant(z, x)
	} else if t.n(z).right == sentinel {
		x = t.n(z).left
		t.transplant(z, x)
	} else {
		y = t.minNode(t.n(z).right)
		yOrigColor = t.n(y).color
		x = t.n(y).right
		if t.n(y).parent == z {
			t.n(x).parent = y
		} else {
			t.transplant(y, t.n(y).right)
			t.n(y).right = t.n(z).right
			t.n(t.n(y).right).parent = y
		}
		t.transplant(z, y)
		t.n(y).left = t.n(z).left
		t.n(t.n(y).left).parent = y
		t.n(y).color = t.n(z).color
	}

	if yOrigColor == black {
		t.deleteFixup(x)
	}
	// The sentinel's parent is scribbled on by the fixup; keep it clean.
	t.n(sentinel).parent = sentinel
}

func (t *Tree[T]) deleteFixup(x NodeID) {
	for x != t.root && t.n(x).color == black {
		xp := t.n(x).parent
		if x == t.n(xp).left {
			w := t.n(xp).right
			if t.n(w).color == red {
				t.n(w).color = black
				t.n(xp).color = red
				t.leftRotate(xp)
				w = t.n(xp).right
			}
			if t.n(t.n(w).left).color == black && t.n(t.n(w).right).color == black {
				t.n(w).color = red
				x = xp
			} else {
				if t.n(t.n(w).right).color == black {
					t.n(t.n(w).left).color = black
					t.n(w).color = red
					t.rightRotate(w)
					w = t.n(xp).right
				}
				t.n(w).color = t.n(xp).color
				t.n(xp).color = black
				t.n(t.n(w).right).color = black
				t.leftRotate(xp)
				x = t.root
			}
		} else {
			w := t.n(xp).left
			if t.n(w).color == red {
				t.n(w).color = black
				t.n(xp).color = red
				t.rightRotate(xp)
				w = t.n(xp).left
			}
			if t.n(t.n(w).right).color == black && t.n(t.n(w).left).color == black {
				t.n(w).color = red
				x = xp
			} else {
				if t.n(t.n(w).left).color == black {
					t.n(t.n(w).right).color = black
					t.n(w).color = red
					t.leftRotate(w)
					w = t.n(xp).left
				}
				t.n(w).color = t.n(xp).color
				t.n(xp).color = black
				t.n(t.n(w).left).color = black
				t.rightRotate(xp)
				x = t.root
			}
		}
	}
	t.n(x).color = black
}
