package opencl

import (
	"fmt"
	"sort"

	"github.com/achilleasa/volren/tracer"
	"github.com/achilleasa/volren/tracer/opencl/device"
)

// Strategy names.
const (
	SharingStrategy = "opencl-sharing"
	GpuStrategy     = "opencl-gpu"
	CpuStrategy     = "opencl-cpu"
)

// Strategies returns the opencl entries of the device initialization chain
// in preference order: a GPU that can share buffers with the display, any
// GPU and finally an opencl CPU device. Sharing is skipped when allowSharing
// is false.
func Strategies(allowSharing bool) []tracer.Strategy {
	list := make([]tracer.Strategy, 0, 3)
	if allowSharing {
		list = append(list, tracer.Strategy{
			Name: SharingStrategy,
			Init: func(opts tracer.InitOptions) (tracer.Tracer, error) {
				if opts.Surface == nil {
					return nil, fmt.Errorf("%w: no display surface", tracer.ErrNoSharing)
				}
				dev, err := pickDevice(device.GpuDevice, opts, true)
				if err != nil {
					return nil, err
				}
				return initTracer("opencl-sharing-0", dev, tracer.GPU|tracer.DisplaySharing, opts.Surface)
			},
			Devices: listDevices(device.GpuDevice, true),
		})
	}

	list = append(list,
		tracer.Strategy{
			Name: GpuStrategy,
			Init: func(opts tracer.InitOptions) (tracer.Tracer, error) {
				dev, err := pickDevice(device.GpuDevice, opts, false)
				if err != nil {
					return nil, err
				}
				return initTracer("opencl-gpu-0", dev, tracer.GPU, nil)
			},
			Devices: listDevices(device.GpuDevice, false),
		},
		tracer.Strategy{
			Name: CpuStrategy,
			Init: func(opts tracer.InitOptions) (tracer.Tracer, error) {
				dev, err := pickDevice(device.CpuDevice, opts, false)
				if err != nil {
					return nil, err
				}
				return initTracer("opencl-cpu-0", dev, 0, nil)
			},
			Devices: listDevices(device.CpuDevice, false),
		},
	)
	return list
}

func initTracer(id string, dev *device.Device, flags tracer.Flag, surface tracer.DisplaySurface) (tracer.Tracer, error) {
	tr, err := newTracer(id, dev, flags, surface)
	if err != nil {
		return nil, err
	}
	return tr, nil
}

// Select devices of the given type that pass the filters, fastest first.
func candidates(typeMask device.DeviceType, opts tracer.InitOptions, needSharing bool) ([]*device.Device, error) {
	devList, err := device.SelectDevices(typeMask, "")
	if err != nil {
		return nil, err
	}

	out := make([]*device.Device, 0, len(devList))
	for _, dev := range devList {
		if needSharing && !dev.HasExtension(device.GLSharingExtension) {
			continue
		}
		if !tracer.DeviceAllowed(dev.Name, opts) {
			continue
		}
		out = append(out, dev)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Speed > out[j].Speed })
	return out, nil
}

func pickDevice(typeMask device.DeviceType, opts tracer.InitOptions, needSharing bool) (*device.Device, error) {
	devList, err := candidates(typeMask, opts, needSharing)
	if err != nil {
		return nil, err
	}
	if len(devList) == 0 {
		if needSharing {
			return nil, fmt.Errorf("%w: no %s device supports %s", tracer.ErrNoSharing, typeMask, device.GLSharingExtension)
		}
		return nil, fmt.Errorf("%w: no %s device", tracer.ErrNoDevices, typeMask)
	}
	return devList[0], nil
}

func listDevices(typeMask device.DeviceType, needSharing bool) func() ([]tracer.DeviceInfo, error) {
	return func() ([]tracer.DeviceInfo, error) {
		devList, err := candidates(typeMask, tracer.InitOptions{}, needSharing)
		if err != nil {
			return nil, err
		}
		out := make([]tracer.DeviceInfo, len(devList))
		for i, dev := range devList {
			out[i] = deviceInfo(dev)
		}
		return out, nil
	}
}

func deviceInfo(dev *device.Device) tracer.DeviceInfo {
	return tracer.DeviceInfo{
		Id:           fmt.Sprintf("%s/%s", dev.Platform, dev.Name),
		Backend:      "opencl",
		Platform:     dev.Platform,
		Name:         dev.Name,
		Type:         dev.Type.String(),
		ComputeUnits: dev.ComputeUnits(),
		ClockMHz:     dev.ClockSpeed(),
		Speed:        dev.Speed,
		Sharing:      dev.HasExtension(device.GLSharingExtension),
	}
}
