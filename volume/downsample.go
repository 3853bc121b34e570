package volume

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/achilleasa/volren/compute"
)

var ErrDownsample = errors.New("volume: invalid downsampling request")

// Opens the output files of WriteRawDat.
var createFile = func(path string) (io.WriteCloser, error) {
	return os.Create(path)
}

// Reduction applied to the voxels of a downsampling block.
type Metric uint8

const (
	Max Metric = iota
	Min
	Avg
)

func (m Metric) String() string {
	switch m {
	case Min:
		return "min"
	case Avg:
		return "avg"
	}
	return "max"
}

// Parse a metric name.
func ParseMetric(name string) (Metric, error) {
	switch strings.ToLower(name) {
	case "", "max":
		return Max, nil
	case "min":
		return Min, nil
	case "avg", "mean":
		return Avg, nil
	}
	return Max, fmt.Errorf("%w: unknown metric %q", ErrDownsample, name)
}

type DownsampleOptions struct {
	Factor int
	Metric Metric

	// Smallest allowed resolution of any downsampled axis. Defaults to 64.
	MinResolution int
}

// Reduce timestep t of v by opts.Factor along every axis.
func Downsample(v *Volume, t int, opts DownsampleOptions, exec *compute.Executor) (*Volume, error) {
	if t < 0 || t >= v.Timesteps() {
		return nil, fmt.Errorf("%w: %d of %d", ErrTimestepRange, t, v.Timesteps())
	}
	if opts.Factor < 2 {
		return nil, fmt.Errorf("%w: factor %d must be at least 2", ErrDownsample, opts.Factor)
	}
	if opts.MinResolution <= 0 {
		opts.MinResolution = 64
	}

	src := v.Field(t)
	var res [3]int
	for i := 0; i < 3; i++ {
		res[i] = (src.Res[i] + opts.Factor - 1) / opts.Factor
		if res[i] < opts.MinResolution {
			return nil, fmt.Errorf("%w: axis %d would shrink to %d voxels (min %d)", ErrDownsample, i, res[i], opts.MinResolution)
		}
	}

	channels := src.Channels
	out := make([]float32, res[0]*res[1]*res[2]*channels)
	k := compute.Kernel{
		Name: "downsample",
		Phases: []func(it *compute.Item){
			func(it *compute.Item) {
				if !it.InRange {
					return
				}
				x, y, z := it.Global[0], it.Global[1], it.Global[2]
				dst := ((z*res[1]+y)*res[0] + x) * channels
				for c := 0; c < channels; c++ {
					out[dst+c] = reduceBlock(src, x*opts.Factor, y*opts.Factor, z*opts.Factor, opts.Factor, c, opts.Metric)
				}
			},
		},
	}
	if _, err := exec.Run(k, compute.Range3D(res[0], res[1], res[2], 4)); err != nil {
		return nil, err
	}

	meta := v.Metadata()
	meta.Resolution = res
	meta.Timesteps = 1
	for i := 0; i < 3; i++ {
		meta.SliceThickness[i] *= float32(opts.Factor)
	}
	return FromFloats(out, meta, v.Scale(t))
}

func reduceBlock(f Field, x0, y0, z0, n, c int, metric Metric) float32 {
	var acc float32
	switch metric {
	case Min:
		acc = float32(math.Inf(1))
	case Max:
		acc = float32(math.Inf(-1))
	}

	count := 0
	for z := z0; z < z0+n && z < f.Res[2]; z++ {
		for y := y0; y < y0+n && y < f.Res[1]; y++ {
			for x := x0; x < x0+n && x < f.Res[0]; x++ {
				s := f.Voxel(x, y, z, c)
				switch metric {
				case Min:
					if s < acc {
						acc = s
					}
				case Max:
					if s > acc {
						acc = s
					}
				default:
					acc += s
				}
				count++
			}
		}
	}
	if metric == Avg && count > 0 {
		acc /= float32(count)
	}
	return acc
}

// Write timestep 0 of v as <basePath>_<x>.raw in its source format together
// with a <basePath>_<x>.dat sidecar. Returns the path of both files.
func WriteRawDat(v *Volume, basePath string) (string, string, error) {
	meta := v.Metadata()
	stem := fmt.Sprintf("%s_%d", basePath, meta.Resolution[0])
	rawPath, datPath := stem+".raw", stem+".dat"

	if err := writeRaw(v, rawPath); err != nil {
		return "", "", err
	}
	if err := writeDat(meta, rawPath, datPath); err != nil {
		return "", "", err
	}
	return rawPath, datPath, nil
}

func writeDat(meta Metadata, rawPath, datPath string) (err error) {
	f, err := createFile(datPath)
	if err != nil {
		return err
	}
	defer closeFile(f, &err)

	_, err = fmt.Fprintf(f,
		"ObjectFileName: \t%s\nResolution: \t\t%d %d %d\nSliceThickness: \t%g %g %g\nFormat: \t\t\t%s\n",
		filepath.Base(rawPath),
		meta.Resolution[0], meta.Resolution[1], meta.Resolution[2],
		meta.SliceThickness[0], meta.SliceThickness[1], meta.SliceThickness[2],
		meta.Format,
	)
	return err
}

// Close f and report the close error unless an earlier one is pending.
func closeFile(f io.Closer, err *error) {
	if closeErr := f.Close(); *err == nil {
		*err = closeErr
	}
}

func writeRaw(v *Volume, path string) (err error) {
	f, err := createFile(path)
	if err != nil {
		return err
	}
	defer closeFile(f, &err)

	meta := v.Metadata()
	scale := v.Scale(0)
	w := bufio.NewWriter(f)
	buf := make([]byte, 4)
	for _, s := range v.Data(0) {
		src := float64(s * scale)
		switch meta.Format {
		case Uint8:
			buf[0] = uint8(clampRound(src, 255))
			_, err = w.Write(buf[:1])
		case Uint16:
			meta.ByteOrder.PutUint16(buf, uint16(clampRound(src, 65535)))
			_, err = w.Write(buf[:2])
		default:
			meta.ByteOrder.PutUint32(buf, math.Float32bits(float32(src)))
			_, err = w.Write(buf[:4])
		}
		if err != nil {
			return err
		}
	}
	return w.Flush()
}

func clampRound(v, max float64) float64 {
	v = math.Round(v)
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}
