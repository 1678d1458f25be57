package heap

import (
	"fmt"

	"github.com/joshuapare/heapkit/internal/format"
)

// Stack is the mutator's scratch stack. The collector does not know which
// words on it are values, so it scans every word between the base and the
// stack pointer and keeps alive anything that looks like a reference to a
// live object.
//
// Values pushed after raw bytes of odd length land misaligned; they are only
// found when Options.ValueAlignment admits that offset.
type Stack struct {
	mem []byte
	sp  int
}

func newStack(size int) *Stack {
	return &Stack{mem: make([]byte, size)}
}

// SP returns the stack pointer as a byte offset from the base.
func (s *Stack) SP() int { return s.sp }

// Cap returns the stack's capacity in bytes.
func (s *Stack) Cap() int { return len(s.mem) }

// Push stores v at the stack pointer.
func (s *Stack) Push(v Value) error {
	if s.sp+format.WordSize > len(s.mem) {
		return fmt.Errorf("%w: push at %d of %d", ErrStackOverflow, s.sp, len(s.mem))
	}
	format.PutWord(s.mem, s.sp, uint64(v))
	s.sp += format.WordSize
	return nil
}

// PushBytes stores raw bytes at the stack pointer.
func (s *Stack) PushBytes(b []byte) error {
	if s.sp+len(b) > len(s.mem) {
		return fmt.Errorf("%w: push %d bytes at %d of %d", ErrStackOverflow, len(b), s.sp, len(s.mem))
	}
	copy(s.mem[s.sp:], b)
	s.sp += len(b)
	return nil
}

// Pop removes and returns the word below the stack pointer.
func (s *Stack) Pop() (Value, error) {
	if s.sp < format.WordSize {
		return 0, ErrStackUnderflow
	}
	s.sp -= format.WordSize
	v := Value(format.ReadWord(s.mem, s.sp))
	format.PutWord(s.mem, s.sp, 0)
	return v, nil
}

// Reset unwinds the stack to a previously saved SP. The released bytes are
// zeroed so stale words stop pinning objects.
func (s *Stack) Reset(sp int) error {
	if sp < 0 || sp > s.sp {
		return fmt.Errorf("%w: reset to %d with sp %d", ErrStackUnderflow, sp, s.sp)
	}
	clear(s.mem[sp:s.sp])
	s.sp = sp
	return nil
}

// Get reads the word at byte offset off.
func (s *Stack) Get(off int) (Value, error) {
	if off < 0 || off+format.WordSize > s.sp {
		return 0, fmt.Errorf("%w: stack offset %d", ErrOutOfRange, off)
	}
	return Value(format.ReadWord(s.mem, off)), nil
}

// Set overwrites the word at byte offset off.
func (s *Stack) Set(off int, v Value) error {
	if off < 0 || off+format.WordSize > s.sp {
		return fmt.Errorf("%w: stack offset %d", ErrOutOfRange, off)
	}
	format.PutWord(s.mem, off, uint64(v))
	return nil
}

func (s *Stack) live() []byte { return s.mem[:s.sp] }
