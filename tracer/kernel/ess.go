package kernel

import (
	"github.com/chewxy/math32"

	"github.com/achilleasa/volren/tff"
	"github.com/achilleasa/volren/volume"
)

// Report whether brick (x, y, z) contributes nothing under the current
// transfer function.
func (in *integrator) brickEmpty(x, y, z int) bool {
	dims := in.sc.BrickDims
	i := ((z*dims[1]+y)*dims[0] + x) * 2
	lo, hi := in.sc.Bricks[i], in.sc.Bricks[i+1]
	if in.sc.Layout == volume.RGBA {
		return hi <= 0
	}
	return tff.RangeTransparent(in.sc.Prefix, tff.Index(lo), tff.Index(hi))
}

// Walk the brick grid with a 3D DDA and only evaluate samples that fall in
// non-empty bricks. Sample positions are identical to the plain march.
func (m *march) marchBricks() {
	in := m.in
	res := in.sc.Volume.Res
	dims := in.sc.BrickDims

	// The ray is linear in texture space: uvw(t) = o + d*t.
	o := in.toUVW(m.ray.Origin)
	var d, cellSize [3]float32
	var cell, dir [3]int
	p0 := in.toUVW(m.ray.At(m.base))
	for a := 0; a < 3; a++ {
		d[a] = m.ray.Dir[a] * in.invScale[a] * 0.5
		cellSize[a] = float32(in.sc.BrickEdge[a]) / float32(res[a])
		cell[a] = clampInt(int(math32.Floor(p0[a]/cellSize[a])), 0, dims[a]-1)
		switch {
		case d[a] > 0:
			dir[a] = 1
		case d[a] < 0:
			dir[a] = -1
		}
	}

	i := 0
	for i < m.steps {
		tExit := math32.Inf(1)
		axis := -1
		for a := 0; a < 3; a++ {
			if dir[a] == 0 {
				continue
			}
			bound := float32(cell[a]) * cellSize[a]
			if dir[a] > 0 {
				bound += cellSize[a]
			}
			if ta := (bound - o[a]) / d[a]; ta < tExit {
				tExit = ta
				axis = a
			}
		}

		if in.brickEmpty(cell[0], cell[1], cell[2]) {
			skip := math32.Ceil((tExit - m.base) / m.step)
			if axis < 0 || skip >= float32(m.steps) {
				return
			}
			if int(skip) > i {
				i = int(skip)
			}
		} else {
			for ; i < m.steps && m.sampleT(i) < tExit; i++ {
				if m.sample(i) {
					return
				}
			}
		}

		if axis < 0 {
			break
		}
		cell[axis] += dir[axis]
		if cell[axis] < 0 || cell[axis] >= dims[axis] {
			break
		}
	}

	// Rounding can leave a few samples past the last grid cell.
	for ; i < m.steps; i++ {
		if m.sample(i) {
			return
		}
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
