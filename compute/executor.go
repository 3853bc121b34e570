package compute

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/achilleasa/volren/log"
)

var (
	ErrInvalidRange = errors.New("compute: invalid work range")
	ErrKernelPanic  = errors.New("compute: kernel panicked")
)

// An NDRange with up to three dimensions. Unused dimensions must be set to 1.
type Range struct {
	Global [3]int
	Local  [3]int
}

// Build a 1D range.
func Range1D(n, local int) Range {
	return Range{Global: [3]int{n, 1, 1}, Local: [3]int{local, 1, 1}}
}

// Build a 2D range.
func Range2D(w, h, localX, localY int) Range {
	return Range{Global: [3]int{w, h, 1}, Local: [3]int{localX, localY, 1}}
}

// Build a 3D range.
func Range3D(x, y, z, local int) Range {
	return Range{Global: [3]int{x, y, z}, Local: [3]int{local, local, local}}
}

// Number of work-groups along each axis.
func (r Range) Groups() [3]int {
	var g [3]int
	for i := 0; i < 3; i++ {
		g[i] = (r.Global[i] + r.Local[i] - 1) / r.Local[i]
	}
	return g
}

func (r Range) validate() error {
	for i := 0; i < 3; i++ {
		if r.Global[i] < 1 || r.Local[i] < 1 {
			return fmt.Errorf("%w: global %v, local %v", ErrInvalidRange, r.Global, r.Local)
		}
	}
	return nil
}

// A work-item as seen by a kernel phase.
type Item struct {
	Global [3]int
	Local  [3]int
	Group  [3]int

	// False for padding items that fall outside the global range. They still
	// take part in every phase so that work-group reductions see the full
	// group.
	InRange bool

	// Work-group local memory shared by all items of the group.
	Shared []int32
}

// A kernel is an ordered list of phases. All items of a work-group complete a
// phase before any item starts the next one.
type Kernel struct {
	Name string

	// Number of int32 slots of work-group local memory.
	SharedInts int

	Phases []func(it *Item)
}

// Executor runs kernels on a pool of goroutines, one work-group at a time per
// worker.
type Executor struct {
	logger  log.Logger
	workers int
}

// Create an executor. If workers <= 0, runtime.NumCPU() workers are used.
func NewExecutor(workers int) *Executor {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Executor{
		logger:  log.New("compute"),
		workers: workers,
	}
}

// Number of workers.
func (e *Executor) Workers() int {
	return e.workers
}

type groupTask struct {
	group [3]int
}

// Run kernel over the given range and block until every work-group completes.
func (e *Executor) Run(k Kernel, r Range) (time.Duration, error) {
	if err := r.validate(); err != nil {
		return 0, err
	}
	if len(k.Phases) == 0 {
		return 0, nil
	}

	start := time.Now()
	groups := r.Groups()
	numGroups := groups[0] * groups[1] * groups[2]
	numWorkers := e.workers
	if numWorkers > numGroups {
		numWorkers = numGroups
	}

	taskQueue := make(chan groupTask, numGroups)
	errQueue := make(chan error, numWorkers)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := newWorker(k, r)
			for task := range taskQueue {
				if err := w.runGroup(task.group); err != nil {
					errQueue <- err
					// Drain remaining tasks so the producer never blocks.
					for range taskQueue {
					}
					return
				}
			}
		}()
	}

	for gz := 0; gz < groups[2]; gz++ {
		for gy := 0; gy < groups[1]; gy++ {
			for gx := 0; gx < groups[0]; gx++ {
				taskQueue <- groupTask{group: [3]int{gx, gy, gz}}
			}
		}
	}
	close(taskQueue)
	wg.Wait()
	close(errQueue)

	if err, ok := <-errQueue; ok {
		e.logger.Errorf("kernel %s failed: %v", k.Name, err)
		return time.Since(start), err
	}
	return time.Since(start), nil
}

type worker struct {
	kernel Kernel
	rng    Range
	items  []Item
	shared []int32
}

func newWorker(k Kernel, r Range) *worker {
	w := &worker{
		kernel: k,
		rng:    r,
		items:  make([]Item, r.Local[0]*r.Local[1]*r.Local[2]),
	}
	if k.SharedInts > 0 {
		w.shared = make([]int32, k.SharedInts)
	}
	return w
}

func (w *worker) runGroup(group [3]int) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %s group %v: %v", ErrKernelPanic, w.kernel.Name, group, rec)
		}
	}()

	for i := range w.shared {
		w.shared[i] = 0
	}

	idx := 0
	for lz := 0; lz < w.rng.Local[2]; lz++ {
		for ly := 0; ly < w.rng.Local[1]; ly++ {
			for lx := 0; lx < w.rng.Local[0]; lx++ {
				it := &w.items[idx]
				it.Local = [3]int{lx, ly, lz}
				it.Group = group
				it.Global = [3]int{
					group[0]*w.rng.Local[0] + lx,
					group[1]*w.rng.Local[1] + ly,
					group[2]*w.rng.Local[2] + lz,
				}
				it.InRange = it.Global[0] < w.rng.Global[0] &&
					it.Global[1] < w.rng.Global[1] &&
					it.Global[2] < w.rng.Global[2]
				it.Shared = w.shared
				idx++
			}
		}
	}

	for _, phase := range w.kernel.Phases {
		for i := range w.items {
			phase(&w.items[i])
		}
	}
	return nil
}
