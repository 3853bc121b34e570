package device

import (
	"errors"
	"strings"
	"testing"

	"github.com/achilleasa/gopencl/v1.2/cl"
)

const testProgram = `
__kernel void square(__global const int *in, __global int *out, const uint count) {
	uint i = get_global_id(0);
	if (i < count) {
		out[i] = in[i] * in[i];
	}
}

__kernel void mapBlock(__global const int *in, __global int *out, const uint count) {
	uint i = get_global_id(1) * get_global_size(0) + get_global_id(0);
	if (i < count) {
		out[i] = in[i];
	}
}

__kernel void scale(__global float *data, const float factor) {
	uint i = get_global_id(0);
	data[i] *= factor;
}
`

// Open the first CPU device and build the test program. Skips the calling
// test if no opencl runtime is available.
func createCpuTestDevice(t *testing.T) *Device {
	t.Helper()
	devList, err := SelectDevices(CpuDevice, "")
	if errors.Is(err, ErrNoPlatform) {
		t.Skip("no opencl platform available")
	}
	if err != nil {
		t.Fatal(err)
	}
	if len(devList) == 0 {
		t.Skip("no opencl CPU device available")
	}

	dev := devList[0]
	if err = dev.Init(testProgram, ""); err != nil {
		t.Fatalf("error initializing device '%s': %v", dev.Name, err)
	}
	return dev
}

func TestSelectDevices(t *testing.T) {
	devList, err := SelectDevices(CpuDevice, "")
	if errors.Is(err, ErrNoPlatform) {
		t.Skip("no opencl platform available")
	}
	if err != nil {
		t.Fatal(err)
	}

	for _, dev := range devList {
		if dev.Type != CpuDevice {
			t.Fatalf("expected only CPU devices; got %s for %s", dev.Type, dev.Name)
		}
		if dev.Platform == "" {
			t.Fatalf("expected device %s to record its platform", dev.Name)
		}
	}
}

func TestDeviceInit(t *testing.T) {
	dev := createCpuTestDevice(t)
	defer dev.Close()

	if dev.Type.String() != "CPU" {
		t.Fatalf("expected device type to be CpuDevice; got %s", dev.Type.String())
	}

	// Init is idempotent.
	if err := dev.Init(testProgram, ""); err != nil {
		t.Fatal(err)
	}
}

func TestBuildFailureIncludesLog(t *testing.T) {
	devList, err := SelectDevices(CpuDevice, "")
	if err != nil || len(devList) == 0 {
		t.Skip("no opencl CPU device available")
	}

	dev := devList[0]
	err = dev.Init("__kernel void broken( {", "")
	defer dev.Close()
	if !errors.Is(err, ErrDeviceInit) {
		t.Fatalf("expected ErrDeviceInit; got %v", err)
	}
	if !strings.Contains(err.Error(), "could not build kernel") {
		t.Fatalf("expected build failure message; got %v", err)
	}
}

func TestKernelErrors(t *testing.T) {
	dev := createCpuTestDevice(t)
	defer dev.Close()

	if _, err := dev.Kernel("foo"); err == nil {
		t.Fatal("expected to get an error while trying to load an unknown kernel")
	}
}

func TestHasExtension(t *testing.T) {
	type spec struct {
		ext string
		exp bool
	}

	dev := &Device{Extensions: "cl_khr_fp64 cl_khr_gl_sharing  cl_khr_icd"}
	specs := []spec{
		{GLSharingExtension, true},
		{"cl_khr_icd", true},
		{"cl_khr_gl", false},
		{"", false},
	}
	for specIndex, s := range specs {
		if got := dev.HasExtension(s.ext); got != s.exp {
			t.Fatalf("[spec %d] expected HasExtension(%q) to be %t; got %t", specIndex, s.ext, s.exp, got)
		}
	}
}

func TestErrorName(t *testing.T) {
	type spec struct {
		code int32
		exp  string
	}

	specs := []spec{
		{0, "SUCCESS"},
		{-11, "BUILD_PROGRAM_FAILURE"},
		{-54, "INVALID_WORK_GROUP_SIZE"},
		{-999, "unknown error code -999"},
	}
	for specIndex, s := range specs {
		if got := ErrorName(cl.ErrorCode(s.code)); got != s.exp {
			t.Fatalf("[spec %d] expected %q; got %q", specIndex, s.exp, got)
		}
	}
}
