package heap

import (
	"fmt"

	"github.com/joshuapare/heapkit/internal/format"
)

// Cons allocates a pair.
func (h *Heap) Cons(car, cdr Value) (Value, error) {
	if err := h.beginAlloc(car, cdr); err != nil {
		return 0, err
	}
	addr, err := h.allocCell(&h.conses)
	if err != nil {
		return 0, err
	}
	h.setWord(addr+format.ConsCarOffset, uint64(car))
	h.setWord(addr+format.ConsCdrOffset, uint64(cdr))
	h.noteAlloc(KindCons, format.ConsSize)
	return makeRef(addr, TagCons), nil
}

// List allocates a proper list of vals.
func (h *Heap) List(vals ...Value) (Value, error) {
	f := h.protectSlice(vals)
	defer h.Unprotect(f)

	acc := h.nilV
	h.Protect(&acc)
	for i := len(vals) - 1; i >= 0; i-- {
		c, err := h.Cons(vals[i], acc)
		if err != nil {
			return 0, err
		}
		acc = c
	}
	return acc, nil
}

// Car returns the first element of a pair. The car of nil is nil.
func (h *Heap) Car(v Value) (Value, error) {
	if v == h.nilV {
		return h.nilV, nil
	}
	addr, err := h.objectAddr("car", v, KindCons)
	if err != nil {
		return 0, err
	}
	return Value(h.word(addr + format.ConsCarOffset)), nil
}

// Cdr returns the second element of a pair. The cdr of nil is nil.
func (h *Heap) Cdr(v Value) (Value, error) {
	if v == h.nilV {
		return h.nilV, nil
	}
	addr, err := h.objectAddr("cdr", v, KindCons)
	if err != nil {
		return 0, err
	}
	return Value(h.word(addr + format.ConsCdrOffset)), nil
}

// SetCar replaces the first element of a pair.
func (h *Heap) SetCar(v, car Value) error {
	addr, err := h.objectAddr("setcar", v, KindCons)
	if err != nil {
		return err
	}
	if err := h.checkMutable("setcar", v); err != nil {
		return err
	}
	h.setWord(addr+format.ConsCarOffset, uint64(car))
	return nil
}

// SetCdr replaces the second element of a pair.
func (h *Heap) SetCdr(v, cdr Value) error {
	addr, err := h.objectAddr("setcdr", v, KindCons)
	if err != nil {
		return err
	}
	if err := h.checkMutable("setcdr", v); err != nil {
		return err
	}
	h.setWord(addr+format.ConsCdrOffset, uint64(cdr))
	return nil
}

// ListSlice returns the elements of a proper list.
func (h *Heap) ListSlice(v Value) ([]Value, error) {
	var out []Value
	slow := v
	for i := 0; v != h.nilV; i++ {
		if v.Tag() != TagCons {
			return nil, fmt.Errorf("%w: list ends in %s", ErrWrongType, h.KindOf(v))
		}
		car, err := h.Car(v)
		if err != nil {
			return nil, err
		}
		out = append(out, car)
		if v, err = h.Cdr(v); err != nil {
			return nil, err
		}
		// Advance a second cursor at half speed; meeting it means a cycle.
		if i%2 == 1 {
			slow, _ = h.Cdr(slow)
			if slow == v && v != h.nilV {
				return nil, ErrCircular
			}
		}
	}
	return out, nil
}
