package bricks

import (
	"fmt"

	"github.com/achilleasa/volren/compute"
	"github.com/achilleasa/volren/log"
	"github.com/achilleasa/volren/tff"
	"github.com/achilleasa/volren/volume"
)

var logger = log.New("bricks")

// DefaultDivisor yields bricks of roughly res/64 voxels per axis.
const DefaultDivisor = 64

type Options struct {
	// Brick edge length is RoundPow2(res/Divisor) per axis.
	Divisor int
}

// Grid stores the [min, max] density of every brick of one volume timestep.
// Ranges include a one voxel apron so that filtered samples taken anywhere
// inside a brick are bounded by its range.
type Grid struct {
	res      [3]int
	timestep int
	edge     [3]int
	dims     [3]int
	rgba     bool

	// Interleaved (min, max) pairs, x fastest.
	cells []float32
}

// Round v to the nearest power of two.
func RoundPow2(v float64) int {
	if v <= 1 {
		return 1
	}
	lo := 1
	for lo*2 <= int(v) {
		lo *= 2
	}
	if v-float64(lo) < float64(lo*2)-v {
		return lo
	}
	return lo * 2
}

// Brick edge length for an axis of res voxels.
func EdgeLength(res, divisor int) int {
	if divisor <= 0 {
		divisor = DefaultDivisor
	}
	return RoundPow2(float64(res) / float64(divisor))
}

// Build the brick grid for timestep t of v. For RGBA volumes the range covers
// the alpha channel; otherwise it covers the density channel.
func Build(v *volume.Volume, t int, opts Options, exec *compute.Executor) (*Grid, error) {
	if t < 0 || t >= v.Timesteps() {
		return nil, fmt.Errorf("bricks: timestep %d out of range [0, %d)", t, v.Timesteps())
	}

	g := &Grid{
		res:      v.Resolution(),
		timestep: t,
		rgba:     v.Layout() == volume.RGBA,
	}
	for i := 0; i < 3; i++ {
		g.edge[i] = EdgeLength(g.res[i], opts.Divisor)
		g.dims[i] = (g.res[i] + g.edge[i] - 1) / g.edge[i]
	}
	g.cells = make([]float32, 2*g.dims[0]*g.dims[1]*g.dims[2])

	field := v.Field(t)
	channel := 0
	if g.rgba {
		channel = 3
	}

	k := compute.Kernel{
		Name: "buildBricks",
		Phases: []func(it *compute.Item){
			func(it *compute.Item) {
				if !it.InRange {
					return
				}
				g.reduceCell(field, channel, it.Global[0], it.Global[1], it.Global[2])
			},
		},
	}
	elapsed, err := exec.Run(k, compute.Range3D(g.dims[0], g.dims[1], g.dims[2], 4))
	if err != nil {
		return nil, err
	}
	logger.Debugf("built %v grid of %v voxel bricks for timestep %d in %s", g.dims, g.edge, t, elapsed)
	return g, nil
}

func (g *Grid) reduceCell(f volume.Field, channel, bx, by, bz int) {
	var lo, hi [3]int
	b := [3]int{bx, by, bz}
	for i := 0; i < 3; i++ {
		lo[i] = b[i]*g.edge[i] - 1
		hi[i] = (b[i]+1)*g.edge[i] + 1
		if lo[i] < 0 {
			lo[i] = 0
		}
		if hi[i] > g.res[i] {
			hi[i] = g.res[i]
		}
	}

	min, max := f.Voxel(lo[0], lo[1], lo[2], channel), f.Voxel(lo[0], lo[1], lo[2], channel)
	for z := lo[2]; z < hi[2]; z++ {
		for y := lo[1]; y < hi[1]; y++ {
			for x := lo[0]; x < hi[0]; x++ {
				s := f.Voxel(x, y, z, channel)
				if s < min {
					min = s
				}
				if s > max {
					max = s
				}
			}
		}
	}

	idx := 2 * ((bz*g.dims[1]+by)*g.dims[0] + bx)
	g.cells[idx], g.cells[idx+1] = min, max
}

// Number of bricks along each axis.
func (g *Grid) Dims() [3]int {
	return g.dims
}

// Brick edge length in voxels along each axis.
func (g *Grid) BrickEdge() [3]int {
	return g.edge
}

// Resolution of the volume the grid was built from.
func (g *Grid) Resolution() [3]int {
	return g.res
}

// The timestep the grid was built from.
func (g *Grid) Timestep() int {
	return g.timestep
}

// True if the ranges describe the alpha channel of an RGBA volume.
func (g *Grid) RGBA() bool {
	return g.rgba
}

// Interleaved (min, max) pairs for device upload. Must not be modified.
func (g *Grid) Data() []float32 {
	return g.cells
}

// The (min, max) range of a brick.
func (g *Grid) Cell(x, y, z int) (float32, float32) {
	idx := 2 * ((z*g.dims[1]+y)*g.dims[0] + x)
	return g.cells[idx], g.cells[idx+1]
}

// Report whether g was built for a volume with v's resolution and layout.
func (g *Grid) Matches(v *volume.Volume) bool {
	return v != nil && g.res == v.Resolution() && g.rgba == (v.Layout() == volume.RGBA)
}

// Report whether a brick contributes nothing under the given transfer
// function.
func (g *Grid) Empty(x, y, z int, tf *tff.Table) bool {
	min, max := g.Cell(x, y, z)
	if g.rgba {
		return max == 0
	}
	return tf.IsTransparent(min, max)
}

// Count bricks that are empty under tf.
func (g *Grid) CountEmpty(tf *tff.Table) int {
	n := 0
	for z := 0; z < g.dims[2]; z++ {
		for y := 0; y < g.dims[1]; y++ {
			for x := 0; x < g.dims[0]; x++ {
				if g.Empty(x, y, z, tf) {
					n++
				}
			}
		}
	}
	return n
}
