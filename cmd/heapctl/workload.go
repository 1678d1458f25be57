package main

import (
	"errors"
	"fmt"

	"github.com/joshuapare/heapkit/heap"
)

// workload describes a synthetic interpreter run. Every Keep-th object of
// each kind is kept reachable from a protected list; the rest is garbage.
type workload struct {
	Lists      int `json:"lists"`
	ListLen    int `json:"list_len"`
	Strings    int `json:"strings"`
	Vectors    int `json:"vectors"`
	Large      int `json:"large_vectors"`
	Finalizers int `json:"finalizers"`
	Constants  int `json:"constants"`
	Keep       int `json:"keep_every"`
}

func defaultWorkload() workload {
	return workload{
		Lists:      2000,
		ListLen:    16,
		Strings:    5000,
		Vectors:    2000,
		Large:      8,
		Finalizers: 100,
		Constants:  50,
		Keep:       10,
	}
}

type workloadResult struct {
	Workload      workload     `json:"workload"`
	Kept          int          `json:"kept"`
	FinalizersRun int          `json:"finalizers_run"`
	OutOfMemory   bool         `json:"out_of_memory"`
	FinalCollect  *heap.Report `json:"final_collection"`
	Stats         heap.Stats   `json:"stats"`
}

// runWorkload allocates w on h, then forces a final collection.
func runWorkload(h *heap.Heap, w workload) (*workloadResult, error) {
	if w.Keep <= 0 {
		w.Keep = 1
	}
	res := &workloadResult{Workload: w}

	fin, err := h.MakeSubr("heapctl-finalize", func(h *heap.Heap, args []heap.Value) (heap.Value, error) {
		res.FinalizersRun++
		return h.Nil(), nil
	})
	if err != nil {
		return nil, err
	}
	keep := h.Nil()
	frame := h.Protect(&keep, &fin)
	defer h.Unprotect(frame)

	retain := func(i int, v heap.Value) error {
		if i%w.Keep != 0 {
			return nil
		}
		l, err := h.Cons(v, keep)
		if err != nil {
			return err
		}
		keep = l
		res.Kept++
		return nil
	}

	step := func(what string, n int, alloc func(i int) (heap.Value, error)) error {
		printVerbose("Allocating %d %s\n", n, what)
		for i := 0; i < n; i++ {
			v, err := alloc(i)
			if err != nil {
				return fmt.Errorf("%s %d: %w", what, i, err)
			}
			if err := retain(i, v); err != nil {
				return fmt.Errorf("%s %d: %w", what, i, err)
			}
		}
		return nil
	}

	steps := []struct {
		what  string
		n     int
		alloc func(i int) (heap.Value, error)
	}{
		{"lists", w.Lists, func(i int) (heap.Value, error) {
			l := h.Nil()
			for j := 0; j < w.ListLen; j++ {
				var err error
				if l, err = h.Cons(heap.Fixnum(int64(j)), l); err != nil {
					return 0, err
				}
			}
			return l, nil
		}},
		{"strings", w.Strings, func(i int) (heap.Value, error) {
			return h.MakeString(fmt.Sprintf("string-%d", i))
		}},
		{"vectors", w.Vectors, func(i int) (heap.Value, error) {
			f, err := h.MakeFloat(float64(i) / 2)
			if err != nil {
				return 0, err
			}
			return h.Vector(f, heap.Fixnum(int64(i)), h.T())
		}},
		{"large vectors", w.Large, func(i int) (heap.Value, error) {
			return h.MakeVector(1024, heap.Fixnum(int64(i)))
		}},
		{"finalizers", w.Finalizers, func(i int) (heap.Value, error) {
			target, err := h.MakeString(fmt.Sprintf("finalized-%d", i))
			if err != nil {
				return 0, err
			}
			if _, err := h.MakeFinalizer(target, fin); err != nil {
				return 0, err
			}
			return target, nil
		}},
		{"constants", w.Constants, func(i int) (heap.Value, error) {
			// Half the constants repeat, so de-duplication has work to do.
			s, err := h.MakeString(fmt.Sprintf("constant-%d", i%(w.Constants/2+1)))
			if err != nil {
				return 0, err
			}
			l, err := h.List(heap.Fixnum(int64(i%3)), s)
			if err != nil {
				return 0, err
			}
			return h.Purecopy(l)
		}},
	}

	for _, s := range steps {
		if err := step(s.what, s.n, s.alloc); err != nil {
			if errors.Is(err, heap.ErrOutOfMemory) {
				res.OutOfMemory = true
				printVerbose("Stopping early: %v\n", err)
				break
			}
			return nil, err
		}
	}

	rep, err := h.Collect()
	if err != nil {
		return nil, fmt.Errorf("final collection: %w", err)
	}
	res.FinalCollect = rep
	res.Stats = h.Stats()
	return res, nil
}
