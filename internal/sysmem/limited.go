package sysmem

import "fmt"

// Limited wraps an Allocator with a byte budget. It lets a heap be capped
// below what the machine offers and makes out-of-memory paths testable.
//
// NOT thread-safe.
type Limited struct {
	a     Allocator
	limit int64
	used  int64

	// failNext forces the next n Alloc calls to fail regardless of budget.
	failNext int
}

// NewLimited wraps a with a budget of limit bytes. A limit <= 0 means no limit.
func NewLimited(a Allocator, limit int64) *Limited {
	if a == nil {
		a = New()
	}
	return &Limited{a: a, limit: limit}
}

// Alloc implements Allocator.
func (l *Limited) Alloc(size int) ([]byte, error) {
	if l.failNext > 0 {
		l.failNext--
		return nil, fmt.Errorf("%w: injected failure for %d bytes", ErrExhausted, size)
	}
	if l.limit > 0 && l.used+int64(size) > l.limit {
		return nil, fmt.Errorf("%w: %d bytes requested, %d of %d in use",
			ErrExhausted, size, l.used, l.limit)
	}
	mem, err := l.a.Alloc(size)
	if err != nil {
		return nil, err
	}
	l.used += int64(len(mem))
	return mem, nil
}

// Free implements Allocator.
func (l *Limited) Free(mem []byte) error {
	if err := l.a.Free(mem); err != nil {
		return err
	}
	l.used -= int64(len(mem))
	return nil
}

// Used returns the number of bytes currently handed out.
func (l *Limited) Used() int64 { return l.used }

// Limit returns the current budget (<= 0 means unlimited).
func (l *Limited) Limit() int64 { return l.limit }

// SetLimit changes the budget. Lowering it below Used does not reclaim
// anything; it only makes further Alloc calls fail.
func (l *Limited) SetLimit(limit int64) { l.limit = limit }

// FailNext makes the next n Alloc calls fail.
func (l *Limited) FailNext(n int) { l.failNext = n }
