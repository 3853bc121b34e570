package device

import (
	"bytes"
	"fmt"
	"strings"
	"unsafe"

	"github.com/achilleasa/gopencl/v1.2/cl"
)

const (
	platformBufferSize = 100
	deviceBufferSize   = 100
	dataBufferSize     = 1024

	// Extension lists easily exceed dataBufferSize.
	extensionBufferSize = 16384
)

// Information about a system's opencl platform and supported devices.
type PlatformInfo struct {
	Profile    string
	Version    string
	Name       string
	Vendor     string
	Extensions string
	Devices    []*Device
}

func (pl PlatformInfo) String() string {
	var buf bytes.Buffer

	fmt.Fprintf(&buf,
		"Version:    %s\nName:       %s\nVendor:     %s\nExtensions: %s\nDevices:\n",
		pl.Version,
		pl.Name,
		pl.Vendor,
		pl.Extensions,
	)

	for dIdx, d := range pl.Devices {
		fmt.Fprintf(&buf, "  Device %02d:\n", dIdx)
		buf.WriteString(indentRegex.ReplaceAllString(d.String(), "    "))
		buf.WriteString("\n\n")
	}

	return buf.String()
}

// Trim the trailing NUL of a string returned by the driver.
func clString(data []byte, dataLen uint64) string {
	if dataLen == 0 || dataLen > uint64(len(data)) {
		return ""
	}
	return strings.TrimRight(string(data[0:dataLen]), "\x00")
}

// An info query fills value with up to size bytes and reports the full size.
type infoQuery func(size uint64, value unsafe.Pointer, sizeRet *uint64)

func queryString(q infoQuery, data []byte) string {
	var dataLen uint64
	q(uint64(len(data)), unsafe.Pointer(&data[0]), &dataLen)
	return clString(data, dataLen)
}

// Get information about supported opencl platforms and devices. Returns
// ErrNoPlatform if no opencl runtime is installed.
func GetPlatformInfo() ([]PlatformInfo, error) {
	pids := make([]cl.PlatformID, platformBufferSize)
	data := make([]byte, dataBufferSize)
	extData := make([]byte, extensionBufferSize)
	devices := make([]cl.DeviceId, deviceBufferSize)

	pidCount := uint32(0)
	cl.GetPlatformIDs(uint32(len(pids)), &pids[0], &pidCount)
	if pidCount == 0 {
		return nil, ErrNoPlatform
	}

	infoList := make([]PlatformInfo, int(pidCount))
	for pIdx := 0; pIdx < int(pidCount); pIdx++ {
		pid := pids[pIdx]
		info := &infoList[pIdx]
		info.Profile = queryString(func(s uint64, v unsafe.Pointer, r *uint64) { cl.GetPlatformInfo(pid, cl.PLATFORM_PROFILE, s, v, r) }, data)
		info.Version = queryString(func(s uint64, v unsafe.Pointer, r *uint64) { cl.GetPlatformInfo(pid, cl.PLATFORM_VERSION, s, v, r) }, data)
		info.Name = queryString(func(s uint64, v unsafe.Pointer, r *uint64) { cl.GetPlatformInfo(pid, cl.PLATFORM_NAME, s, v, r) }, data)
		info.Vendor = queryString(func(s uint64, v unsafe.Pointer, r *uint64) { cl.GetPlatformInfo(pid, cl.PLATFORM_VENDOR, s, v, r) }, data)
		info.Extensions = queryString(func(s uint64, v unsafe.Pointer, r *uint64) { cl.GetPlatformInfo(pid, cl.PLATFORM_EXTENSIONS, s, v, r) }, extData)

		addDevices := func(devType DeviceType, deviceCount uint32) {
			for dIdx := 0; dIdx < int(deviceCount); dIdx++ {
				id := devices[dIdx]
				info.Devices = append(info.Devices, &Device{
					Name:       queryString(func(s uint64, v unsafe.Pointer, r *uint64) { cl.GetDeviceInfo(id, cl.DEVICE_NAME, s, v, r) }, data),
					Platform:   info.Name,
					Id:         id,
					Type:       devType,
					Extensions: queryString(func(s uint64, v unsafe.Pointer, r *uint64) { cl.GetDeviceInfo(id, cl.DEVICE_EXTENSIONS, s, v, r) }, extData),
				})
			}
		}

		// Enumerate CPU devices
		deviceCount := uint32(0)
		cl.GetDeviceIDs(pid, cl.DEVICE_TYPE_CPU, uint32(deviceBufferSize), &devices[0], &deviceCount)
		addDevices(CpuDevice, deviceCount)

		// Enumerate GPU devices
		deviceCount = 0
		cl.GetDeviceIDs(pid, cl.DEVICE_TYPE_GPU, uint32(deviceBufferSize), &devices[0], &deviceCount)
		addDevices(GpuDevice, deviceCount)

		// Enumerate speed for all platform devices
		for _, dev := range info.Devices {
			if err := dev.detectSpeed(); err != nil {
				return nil, err
			}
		}
	}

	return infoList, nil
}

// Scan all available opencl platforms and select devices that match the given query.
func SelectDevices(typeMask DeviceType, matchName string) ([]*Device, error) {
	platforms, err := GetPlatformInfo()
	if err != nil {
		return nil, err
	}
	list := make([]*Device, 0)
	for _, p := range platforms {
		for _, d := range p.Devices {
			// Match type
			if d.Type&typeMask != d.Type {
				continue
			}

			// Match name
			if matchName != "" && !strings.Contains(d.Name, matchName) {
				continue
			}

			list = append(list, d)
		}
	}
	return list, nil
}
