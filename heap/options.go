package heap

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joshuapare/heapkit/internal/sysmem"
)

// Runtime flag for reference checking - controlled by HEAPKIT_GC_CHECK env var.
var checkRefsEnv = os.Getenv("HEAPKIT_GC_CHECK") != ""

// Defaults applied to zero-valued Options fields.
const (
	DefaultConsThreshold  = 800000
	DefaultConsPercentage = 0.1
	DefaultPureSize       = 256 * 1024
	DefaultMaxStaticRoots = 2048
	DefaultStackSize      = 64 * 1024
	DefaultReserveSize    = 16 * 1024

	// minPureSize leaves room for the dead sentinel, nil and t.
	minPureSize = 512
)

// FuncallFunc invokes an interpreter function value. It backs finalizer
// callbacks that are not subrs.
type FuncallFunc func(h *Heap, fn Value, args []Value) (Value, error)

// Options configures a Heap. Zero-valued fields take their defaults.
type Options struct {
	// Allocator supplies chunks. Nil selects sysmem.New().
	Allocator sysmem.Allocator

	// Logger receives collector events. Nil selects the package logger
	// (silent unless HEAPKIT_LOG_GC is set).
	Logger *slog.Logger

	// ConsThreshold is the minimum number of bytes allocated between
	// automatic collections. Zero selects DefaultConsThreshold; use
	// Heap.SetConsThreshold(0) to collect on every allocation.
	ConsThreshold int64

	// ConsPercentage is the fraction of the live heap that must be
	// allocated before an automatic collection. Zero selects
	// DefaultConsPercentage like every other field; pass a negative value
	// to turn the proportional term off.
	ConsPercentage float64

	// PureSize is the byte size of the pure arena.
	PureSize int

	// DisablePureDedup turns off hash-consing in the pure arena.
	DisablePureDedup bool

	// MaxStaticRoots is the capacity of the static root table.
	MaxStaticRoots int

	// StackSize is the byte capacity of the mutator stack.
	StackSize int

	// ValueAlignment is the alignment values are guaranteed to have on the
	// mutator stack: 1, 2, 4 or 8. Below 8 the conservative scan makes one
	// pass per possible misalignment.
	ValueAlignment int

	// ReserveSize is the size of the emergency reserve released on the
	// first allocation failure.
	ReserveSize int

	// CheckReferences validates every reference the mark phase follows
	// against the region index. Also enabled by HEAPKIT_GC_CHECK.
	CheckReferences bool

	// DeferFinalizers leaves doomed finalizers queued after a collection
	// until RunFinalizers is called.
	DeferFinalizers bool

	// Funcall invokes non-subr finalizer callbacks.
	Funcall FuncallFunc

	// OnFatal is called with the error before the heap panics on a fatal
	// condition.
	OnFatal func(err error)
}

// DefaultOptions returns the options New uses when given nil.
func DefaultOptions() Options {
	return Options{
		ConsThreshold:  DefaultConsThreshold,
		ConsPercentage: DefaultConsPercentage,
		PureSize:       DefaultPureSize,
		MaxStaticRoots: DefaultMaxStaticRoots,
		StackSize:      DefaultStackSize,
		ValueAlignment: 8,
		ReserveSize:    DefaultReserveSize,
	}
}

// normalize fills defaults and validates.
func (o Options) normalize() (Options, error) {
	if o.ConsThreshold == 0 {
		o.ConsThreshold = DefaultConsThreshold
	}
	if o.ConsPercentage == 0 {
		o.ConsPercentage = DefaultConsPercentage
	}
	if o.PureSize == 0 {
		o.PureSize = DefaultPureSize
	}
	if o.MaxStaticRoots == 0 {
		o.MaxStaticRoots = DefaultMaxStaticRoots
	}
	if o.StackSize == 0 {
		o.StackSize = DefaultStackSize
	}
	if o.ValueAlignment == 0 {
		o.ValueAlignment = 8
	}
	if o.ReserveSize == 0 {
		o.ReserveSize = DefaultReserveSize
	}

	switch {
	case o.ConsThreshold < 0:
		return o, fmt.Errorf("%w: negative ConsThreshold %d", ErrBadOptions, o.ConsThreshold)
	case o.PureSize < minPureSize:
		return o, fmt.Errorf("%w: PureSize %d below %d", ErrBadOptions, o.PureSize, minPureSize)
	case o.MaxStaticRoots < 0:
		return o, fmt.Errorf("%w: negative MaxStaticRoots", ErrBadOptions)
	case o.StackSize < 0:
		return o, fmt.Errorf("%w: negative StackSize", ErrBadOptions)
	case o.ReserveSize < 0:
		return o, fmt.Errorf("%w: negative ReserveSize", ErrBadOptions)
	}
	switch o.ValueAlignment {
	case 1, 2, 4, 8:
	default:
		return o, fmt.Errorf("%w: ValueAlignment %d", ErrBadOptions, o.ValueAlignment)
	}
	if checkRefsEnv {
		o.CheckReferences = true
	}
	return o, nil
}
