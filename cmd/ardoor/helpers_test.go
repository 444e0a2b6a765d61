package main

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func matFromBytes(t *testing.T, rows, cols int, mt gocv.MatType, data []byte) gocv.Mat {
	t.Helper()

	mat, err := gocv.NewMatFromBytes(rows, cols, mt, data)
	require.NoError(t, err)
	return mat
}

func filled(n int, v byte) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = v
	}
	return data
}

// fakeCameraFrame serves fixed views and records Close().
type fakeCameraFrame struct {
	rgba   gocv.Mat
	gray   gocv.Mat
	closed int
}

var _ CameraFrame = &fakeCameraFrame{}

func newFakeCameraFrame(t *testing.T, rows, cols int, rgbaValue, grayValue byte) *fakeCameraFrame {
	t.Helper()

	return &fakeCameraFrame{
		rgba: matFromBytes(t, rows, cols, gocv.MatTypeCV8UC4, filled(rows*cols*4, rgbaValue)),
		gray: matFromBytes(t, rows, cols, gocv.MatTypeCV8UC1, filled(rows*cols, grayValue)),
	}
}

func (f *fakeCameraFrame) RGBA() gocv.Mat {
	return f.rgba
}

func (f *fakeCameraFrame) Gray() gocv.Mat {
	return f.gray
}

func (f *fakeCameraFrame) Close() error {
	f.closed++
	return nil
}

// release frees the mats for real; Close() only counts.
func (f *fakeCameraFrame) release() {
	_ = f.rgba.Close()
	_ = f.gray.Close()
}

// countingTransformer records calls and returns whatever fn returns.
type countingTransformer struct {
	calls int
	fn    func(gray gocv.Mat) (gocv.Mat, bool)
}

func (c *countingTransformer) Transform(gray gocv.Mat) (gocv.Mat, bool) {
	c.calls++
	return c.fn(gray)
}

func frameBytes(f *Frame) []byte {
	mat := f.Mat()
	return mat.ToBytes()
}
