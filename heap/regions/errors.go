package regions

import "errors"

var (
	// ErrCorrupt is wrapped by every error reporting a broken index.
	ErrCorrupt = errors.New("regions: index corrupt")

	// ErrOverlap indicates an insert whose range intersects an existing node.
	ErrOverlap = errors.New("regions: overlapping range")

	// ErrNotPresent indicates a delete or lookup of a node that is not in the tree.
	ErrNotPresent = errors.New("regions: node not present")

	// ErrEmptyRange indicates an insert with end <= start.
	ErrEmptyRange = errors.New("regions: empty range")
)
