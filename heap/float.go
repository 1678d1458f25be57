package heap

import (
	"math"

	"github.com/joshuapare/heapkit/internal/format"
)

// MakeFloat allocates a boxed float.
func (h *Heap) MakeFloat(f float64) (Value, error) {
	if err := h.beginAlloc(); err != nil {
		return 0, err
	}
	addr, err := h.allocCell(&h.floats)
	if err != nil {
		return 0, err
	}
	h.setWord(addr, math.Float64bits(f))
	h.noteAlloc(KindFloat, format.FloatSize)
	return makeRef(addr, TagFloat), nil
}

// FloatValue returns the number held by a float.
func (h *Heap) FloatValue(v Value) (float64, error) {
	addr, err := h.objectAddr("float-value", v, KindFloat)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(h.word(addr)), nil
}
