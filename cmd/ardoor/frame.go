package main

import (
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

type PixelFormat int8

const (
	FormatUnknown PixelFormat = iota
	FormatBGR
	FormatRGBA
	FormatGray
)

func (f PixelFormat) String() string {
	switch f {
	case FormatBGR:
		return "BGR"
	case FormatRGBA:
		return "RGBA"
	case FormatGray:
		return "GRAY"
	default:
		return "UNKNOWN"
	}
}

// Channels is the number of 8-bit channels a pixel of this format has.
func (f PixelFormat) Channels() int {
	switch f {
	case FormatBGR:
		return 3
	case FormatRGBA:
		return 4
	case FormatGray:
		return 1
	default:
		return 0
	}
}

// Frame is one image on its way to the display.
//
// The mat is the native handle of the image. A Frame that owns its mat releases it on Close(); a Frame that
// borrows it (e.g., the source's buffer in pass-through mode) leaves it alone.
type Frame struct {
	mat    gocv.Mat
	format PixelFormat
	owned  bool
}

// NewFrame wraps a mat the caller keeps owning.
func NewFrame(mat gocv.Mat, format PixelFormat) *Frame {
	return &Frame{mat: mat, format: format, owned: false}
}

// NewOwnedFrame wraps a mat whose ownership is transferred to the frame.
func NewOwnedFrame(mat gocv.Mat, format PixelFormat) *Frame {
	return &Frame{mat: mat, format: format, owned: true}
}

func (f *Frame) Mat() gocv.Mat {
	return f.mat
}

func (f *Frame) Format() PixelFormat {
	return f.format
}

func (f *Frame) Width() int {
	return f.mat.Cols()
}

func (f *Frame) Height() int {
	return f.mat.Rows()
}

func (f *Frame) Owned() bool {
	return f.owned
}

// Detach returns a frame that owns a copy of the image, so it outlives the buffer it was borrowed from.
// Owned frames are returned as they are.
func (f *Frame) Detach() *Frame {
	if f.owned {
		return f
	}

	return NewOwnedFrame(f.mat.Clone(), f.format)
}

func (f *Frame) Close() error {
	if f == nil || !f.owned {
		return nil
	}

	f.owned = false
	return f.mat.Close()
}

// CameraFrame is what a frame source delivers: one captured image with on-demand color and gray views.
type CameraFrame interface {
	RGBA() gocv.Mat
	Gray() gocv.Mat
	Close() error
}

// capturedFrame implements CameraFrame over a BGR capture. The views are converted on first use and owned by
// the frame until Close().
type capturedFrame struct {
	bgr  gocv.Mat
	rgba *gocv.Mat
	gray *gocv.Mat
}

var _ CameraFrame = &capturedFrame{}

// newCapturedFrame takes ownership of bgr.
func newCapturedFrame(bgr gocv.Mat) *capturedFrame {
	return &capturedFrame{bgr: bgr}
}

func (cf *capturedFrame) RGBA() gocv.Mat {
	if cf.rgba == nil {
		rgba := gocv.NewMat()
		cf.convert(&rgba, gocv.ColorBGRToRGBA)
		cf.rgba = &rgba
	}

	return *cf.rgba
}

func (cf *capturedFrame) Gray() gocv.Mat {
	if cf.gray == nil {
		gray := gocv.NewMat()
		cf.convert(&gray, gocv.ColorBGRToGray)
		cf.gray = &gray
	}

	return *cf.gray
}

func (cf *capturedFrame) convert(dst *gocv.Mat, code gocv.ColorConversionCode) {
	if cf.bgr.Empty() {
		return
	}

	err := gocv.CvtColor(cf.bgr, dst, code)
	if err != nil {
		// The view stays empty; the transform reports no output for it.
		logger.WithError(err).Debugf("Color conversion %d failed", code)
	}
}

func (cf *capturedFrame) Close() error {
	errs := []error{
		errors.Wrap(cf.bgr.Close(), "bgr buffer"),
	}

	if cf.rgba != nil {
		errs = append(errs, errors.Wrap(cf.rgba.Close(), "rgba buffer"))
		cf.rgba = nil
	}
	if cf.gray != nil {
		errs = append(errs, errors.Wrap(cf.gray.Close(), "gray buffer"))
		cf.gray = nil
	}

	return flattenErrors(errs...)
}
