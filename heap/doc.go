// Package heap is the memory manager of an interpreter runtime: typed
// allocation of conses, floats, symbols, strings and vector-like objects,
// and a non-moving, stop-the-world mark-and-sweep collector that reclaims
// them.
//
// # Memory layout
//
// Memory comes from a sysmem.Allocator in chunks. Each chunk has an id and
// every address inside it is id<<32 | offset, so a Value is a plain
// uint64 with a 3-bit type tag in its low bits. Chunks holding objects are
// registered in a red-black region index (package regions) that maps any
// address back to its chunk and object type.
//
//   - Conses, floats, symbols and string headers live in cell blocks, one
//     pool per kind, with free cells threaded into a free list.
//   - Vector-like objects live in vector blocks with segregated free lists,
//     or in a chunk of their own when larger than half a block.
//   - String bytes live in separate payload blocks that are compacted on
//     every collection.
//   - A fixed pure arena holds immutable, deduplicated literal data that is
//     never collected.
//
// # Roots
//
// A collection starts from the static root table (StaticPro), the protect
// stack (Protect/Unprotect), interned symbols, registered RootProviders,
// and a conservative scan of the mutator Stack: any word there that looks
// like a reference to a live object keeps that object alive.
//
// A Value kept only in a Go variable is not a root. Any allocating call may
// collect, so protect values that must outlive one.
//
// # Finalizers
//
// MakeFinalizer registers a callback for a target. Reachability of the
// target is decided without the finalizer's help; once unreachable, the
// record moves to a doomed list and the callback runs after the collection
// finishes, exactly once.
//
// # Failure
//
// Recoverable conditions (exhausted memory, wrong types, mutation of pure
// data) come back as errors. Heap corruption and misuse from inside a
// collection are fatal: the heap logs, calls Options.OnFatal, and panics
// with a *FatalError.
//
// NOT thread-safe.
package heap
