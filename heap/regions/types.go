package regions

import "fmt"

// Type classifies the memory occupying a region.
type Type uint8

const (
	TypeNone        Type = iota
	TypeCons             // cons cell block
	TypeString           // string header block
	TypeSymbol           // symbol block
	TypeFloat            // float block
	TypeVectorBlock      // block of small vector-like objects
	TypeVectorLike       // one large vector-like object
	TypeSpare            // emergency reserve
)

func (t Type) String() string {
	switch t {
	case TypeNone:
		return "none"
	case TypeCons:
		return "cons"
	case TypeString:
		return "string"
	case TypeSymbol:
		return "symbol"
	case TypeFloat:
		return "float"
	case TypeVectorBlock:
		return "vector-block"
	case TypeVectorLike:
		return "vectorlike"
	case TypeSpare:
		return "spare"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

// NodeID addresses a node in the tree's arena. The zero value is the sentinel.
type NodeID int32

// Color is a red-black node color.
type Color uint8

const (
	red   Color = 0
	black Color = 1
)

func (c Color) String() string {
	if c == red {
		return "red"
	}
	return "black"
}

// Node is a read-only view of one region.
type Node[T any] struct {
	ID    NodeID
	Start uint64 // first address
	End   uint64 // one past the last address
	Type  Type
	Owner T
}

// Contains reports whether addr lies inside the region.
func (n Node[T]) Contains(addr uint64) bool {
	return addr >= n.Start && addr < n.End
}

// Size returns the byte length of the region.
func (n Node[T]) Size() uint64 { return n.End - n.Start }
