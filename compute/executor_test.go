package compute

import (
	"errors"
	"sync/atomic"
	"testing"
)

func TestRunCoversRange(t *testing.T) {
	type spec struct {
		r Range
	}

	specs := []spec{
		{Range1D(100, 8)},
		{Range2D(17, 9, 8, 8)},
		{Range3D(5, 6, 7, 4)},
	}

	ex := NewExecutor(3)
	for specIndex, s := range specs {
		total := s.r.Global[0] * s.r.Global[1] * s.r.Global[2]
		hits := make([]int32, total)

		k := Kernel{
			Name: "mark",
			Phases: []func(it *Item){
				func(it *Item) {
					if !it.InRange {
						return
					}
					g := it.Global
					atomic.AddInt32(&hits[g[0]+s.r.Global[0]*(g[1]+s.r.Global[1]*g[2])], 1)
				},
			},
		}
		if _, err := ex.Run(k, s.r); err != nil {
			t.Fatalf("[spec %d] unexpected error: %v", specIndex, err)
		}

		for i, h := range hits {
			if h != 1 {
				t.Fatalf("[spec %d] expected item %d to run once; ran %d times", specIndex, i, h)
			}
		}
	}
}

func TestPhaseBarrier(t *testing.T) {
	// Every item records the group-wide count seen after the first phase.
	w, h := 16, 16
	seen := make([]int32, w*h)
	k := Kernel{
		Name:       "barrier",
		SharedInts: 1,
		Phases: []func(it *Item){
			func(it *Item) {
				it.Shared[0]++
			},
			func(it *Item) {
				seen[it.Global[1]*w+it.Global[0]] = it.Shared[0]
			},
		},
	}

	if _, err := NewExecutor(4).Run(k, Range2D(w, h, 8, 8)); err != nil {
		t.Fatal(err)
	}
	for i, v := range seen {
		if v != 64 {
			t.Fatalf("[item %d] expected to observe 64 increments before barrier; got %d", i, v)
		}
	}
}

func TestKernelPanicIsRecovered(t *testing.T) {
	k := Kernel{
		Name: "boom",
		Phases: []func(it *Item){
			func(it *Item) {
				if it.Global[0] == 5 {
					panic("out of bounds")
				}
			},
		},
	}

	_, err := NewExecutor(2).Run(k, Range1D(64, 4))
	if !errors.Is(err, ErrKernelPanic) {
		t.Fatalf("expected ErrKernelPanic; got %v", err)
	}
}

func TestInvalidRange(t *testing.T) {
	_, err := NewExecutor(1).Run(Kernel{Phases: []func(*Item){func(*Item) {}}}, Range1D(0, 8))
	if !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange; got %v", err)
	}
}
