package kernel

import (
	"errors"
	"fmt"

	"github.com/achilleasa/volren/bricks"
	"github.com/achilleasa/volren/tff"
	"github.com/achilleasa/volren/types"
	"github.com/achilleasa/volren/volume"
)

// Work-group edge length of the render kernel.
const TileSize = 8

var ErrTargetSize = errors.New("kernel: render target size mismatch")

// Scene bundles the read-only inputs of a dispatch.
type Scene struct {
	Volume     volume.Field
	Layout     volume.Layout
	ModelScale types.Vec3

	// Brick (min, max) pairs; nil disables object-order skipping.
	Bricks    []float32
	BrickDims [3]int
	BrickEdge [3]int

	// tff.TableSize normalized RGBA entries and the alpha prefix sum.
	TFF    []float32
	Prefix []uint32
}

// Assemble a scene for timestep t.
func NewScene(vol *volume.Volume, t int, grid *bricks.Grid, tf *tff.Table) *Scene {
	sc := &Scene{
		Volume:     vol.Field(t),
		Layout:     vol.Layout(),
		ModelScale: vol.ModelScale(),
		TFF:        tf.Floats(),
		Prefix:     tf.PrefixSum(),
	}
	if grid != nil {
		sc.Bricks = grid.Data()
		sc.BrickDims = grid.Dims()
		sc.BrickEdge = grid.BrickEdge()
	}
	return sc
}

// Targets are the frame-persistent buffers of one dispatch. Prev and Curr
// never alias.
type Targets struct {
	AccumPrev []float32
	AccumCurr []float32
	HitPrev   []uint8
	HitCurr   []uint8
}

// Dimensions of the per-tile hit bitmap for a w x h frame.
func HitDims(w, h int) (int, int) {
	return w/TileSize + 1, h/TileSize + 1
}

func (tg *Targets) validate(w, h int) error {
	pixels := w * h * 4
	if len(tg.AccumPrev) != pixels || len(tg.AccumCurr) != pixels {
		return fmt.Errorf("%w: accumulation buffers hold %d/%d floats; expected %d", ErrTargetSize, len(tg.AccumPrev), len(tg.AccumCurr), pixels)
	}
	hw, hh := HitDims(w, h)
	if len(tg.HitPrev) != hw*hh || len(tg.HitCurr) != hw*hh {
		return fmt.Errorf("%w: hit bitmaps hold %d/%d cells; expected %d", ErrTargetSize, len(tg.HitPrev), len(tg.HitCurr), hw*hh)
	}
	return nil
}
