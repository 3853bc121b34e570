package renderer

import (
	"image"
	"image/color"
)

// A rendered frame. Pixels are normalized RGBA floats with premultiplied
// color, row-major with the first row at the top.
type Frame struct {
	Width  int
	Height int
	Pixels []float32
}

// Color of pixel (x, y).
func (f *Frame) At(x, y int) [4]float32 {
	i := (y*f.Width + x) * 4
	return [4]float32{f.Pixels[i], f.Pixels[i+1], f.Pixels[i+2], f.Pixels[i+3]}
}

// Convert the frame to an 8-bit image.
func (f *Frame) Image() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			c := f.At(x, y)
			a := to8(c[3])
			img.SetRGBA(x, y, color.RGBA{
				R: min8(to8(c[0]), a),
				G: min8(to8(c[1]), a),
				B: min8(to8(c[2]), a),
				A: a,
			})
		}
	}
	return img
}

func to8(v float32) uint8 {
	switch {
	case !(v > 0):
		return 0
	case v >= 1:
		return 255
	}
	return uint8(v*255 + 0.5)
}

// Premultiplied channels may not exceed alpha.
func min8(v, a uint8) uint8 {
	if v > a {
		return a
	}
	return v
}
