// Package regions implements the heap region index: a red-black tree that
// maps disjoint address ranges to the kind of memory occupying them.
//
// # Overview
//
// Every chunk the heap obtains from the system allocator (a pool block, a
// large standalone object, the emergency reserve) is recorded here. The
// collector asks the index whether an arbitrary 64-bit pattern found on the
// mutator stack falls inside one of those ranges before treating it as a
// reference.
//
// # Node Arena
//
// Nodes live in a slice and refer to each other by NodeID. Slot 0 is the
// black sentinel that terminates every path. Freed slots are recycled, so a
// NodeID must not be used after Delete.
//
// # Lookup
//
// Find temporarily sets the sentinel's range to [addr, addr+1) so the
// descent always stops: either on the node containing addr or on the
// sentinel itself, which means "not found".
//
// # Corruption
//
// Overlapping inserts and deletes of absent nodes return errors wrapping
// ErrCorrupt. The heap treats those as fatal. Verify re-checks every
// red-black and ordering invariant and is used by tests and heap.Verify.
//
// # Thread Safety
//
// Tree instances are not thread-safe.
package regions
