package device

import (
	"testing"

	"github.com/achilleasa/gopencl/v1.2/cl"

	"github.com/achilleasa/volren/types"
)

func runIntKernel(t *testing.T, dev *Device, name string, exec func(k *Kernel, n int) error, n int) []int32 {
	t.Helper()
	kernel, err := dev.Kernel(name)
	if err != nil {
		t.Fatal(err)
	}
	defer kernel.Release()

	dataIn := make([]int32, n)
	dataOut := make([]int32, n)
	for i := 0; i < n; i++ {
		dataIn[i] = int32(i)
	}

	bufIn := dev.Buffer("in")
	defer bufIn.Release()
	if err = bufIn.AllocateAndWriteData(dataIn, cl.MEM_READ_ONLY); err != nil {
		t.Fatal(err)
	}

	bufOut := dev.Buffer("out")
	defer bufOut.Release()
	if err = bufOut.AllocateToFitData(dataOut, cl.MEM_READ_WRITE); err != nil {
		t.Fatal(err)
	}

	if err = kernel.SetArgs(bufIn, bufOut, uint32(n)); err != nil {
		t.Fatal(err)
	}
	if err = exec(kernel, n); err != nil {
		t.Fatal(err)
	}
	if err = bufOut.ReadData(0, 0, 0, dataOut); err != nil {
		t.Fatal(err)
	}
	return dataOut
}

func TestKernelExec1D(t *testing.T) {
	dev := createCpuTestDevice(t)
	defer dev.Close()

	for _, local := range []int{0, 1, 8} {
		out := runIntKernel(t, dev, "square", func(k *Kernel, n int) error {
			_, err := k.Exec1D(0, n, local)
			return err
		}, 32)
		for i, v := range out {
			if exp := int32(i * i); v != exp {
				t.Fatalf("[local %d] expected item %d to be %d; got %d", local, i, exp, v)
			}
		}
	}
}

func TestKernelExec2D(t *testing.T) {
	dev := createCpuTestDevice(t)
	defer dev.Close()

	for _, local := range []int{0, 1, 4} {
		out := runIntKernel(t, dev, "mapBlock", func(k *Kernel, n int) error {
			_, err := k.Exec2D(0, 0, 8, 8, local, local)
			return err
		}, 64)
		for i, v := range out {
			if v != int32(i) {
				t.Fatalf("[local %d] expected item %d to be copied; got %d", local, i, v)
			}
		}
	}
}

func TestSetArgsRejectsUnsupportedTypes(t *testing.T) {
	dev := createCpuTestDevice(t)
	defer dev.Close()

	kernel, err := dev.Kernel("scale")
	if err != nil {
		t.Fatal(err)
	}
	defer kernel.Release()

	if err = kernel.SetArgs("nope"); err == nil {
		t.Fatal("expected an error for a string argument")
	}
	if err = kernel.SetArgs(types.XYZW(1, 2, 3, 4), int64(1)); err == nil {
		t.Fatal("expected an error for an int64 argument")
	}
}
