package heap

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfMemory indicates the system allocator failed even after the
	// emergency reserve was released. The heap stays usable; callers may
	// drop references, collect, and retry.
	ErrOutOfMemory = errors.New("heap: memory exhausted")

	// ErrWrongType indicates a value of the wrong kind was passed to an accessor.
	ErrWrongType = errors.New("heap: wrong type argument")

	// ErrDeadObject indicates a reference to an object that has been reclaimed.
	ErrDeadObject = errors.New("heap: reference to reclaimed object")

	// ErrOutOfRange indicates an index outside a vector or record.
	ErrOutOfRange = errors.New("heap: index out of range")

	// ErrPureMutation indicates an attempt to modify an object in the pure arena.
	ErrPureMutation = errors.New("heap: attempt to modify pure storage")

	// ErrNotPurifiable indicates a value that cannot be copied into the pure arena.
	ErrNotPurifiable = errors.New("heap: value cannot be made pure")

	// ErrCircular indicates a circular list passed where a proper list is required.
	ErrCircular = errors.New("heap: circular list")

	// ErrCollectionInhibited indicates Collect was called inside InhibitCollection.
	ErrCollectionInhibited = errors.New("heap: collection inhibited")

	// ErrCollectionDeferred indicates Collect was called while finalizers were
	// running. The collection runs once the finalizer queue is drained.
	ErrCollectionDeferred = errors.New("heap: collection deferred until finalizers finish")

	// ErrNotCallable indicates a finalizer callback that is neither a subr nor
	// accepted by Options.Funcall.
	ErrNotCallable = errors.New("heap: value is not callable")

	// ErrNotUnibyte indicates a multibyte string holding characters above U+00FF.
	ErrNotUnibyte = errors.New("heap: string cannot be represented as unibyte")

	// ErrStackOverflow indicates a push beyond the mutator stack's capacity.
	ErrStackOverflow = errors.New("heap: mutator stack overflow")

	// ErrStackUnderflow indicates a pop below the mutator stack's base.
	ErrStackUnderflow = errors.New("heap: mutator stack underflow")

	// ErrClosed indicates use of a heap after Close.
	ErrClosed = errors.New("heap: closed")

	// ErrBadOptions indicates invalid construction options.
	ErrBadOptions = errors.New("heap: invalid options")
)

// Fatal internal conditions. These never come back as errors; they reach
// the fatal path wrapped in a *FatalError.
var (
	ErrAllocDuringGC    = errors.New("heap: allocation while a collection is in progress")
	ErrRecursiveGC      = errors.New("heap: collection started while one is in progress")
	ErrStaticRootsFull  = errors.New("heap: static root table full")
	ErrProtectUnderflow = errors.New("heap: unprotect past the protect stack")
	ErrDanglingRef      = errors.New("heap: reference to memory holding no live object")
	ErrReserveRelease   = errors.New("heap: cannot release emergency reserve")
	ErrRegionCorruption = errors.New("heap: region index corrupt")
)

// FatalError is the panic value raised when the heap detects corruption or
// misuse it cannot recover from. Execution must not continue past it, since
// the damage may already have reached live data.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return "heap: fatal: " + e.Err.Error() }

func (e *FatalError) Unwrap() error { return e.Err }

// ValidationError reports a broken heap invariant found by Verify.
type ValidationError struct {
	Type    string
	Message string
	Addr    uint64 // address the problem was found at (0 if N/A)
	Details map[string]interface{}
}

func (e *ValidationError) Error() string {
	if e.Addr != 0 {
		return fmt.Sprintf("%s at %#x: %s", e.Type, e.Addr, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func wrongType(op string, want Kind, got Kind) error {
	return fmt.Errorf("%w: %s wants %s, got %s", ErrWrongType, op, want, got)
}
