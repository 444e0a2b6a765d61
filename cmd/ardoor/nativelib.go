package main

import (
	"image"
	"sync"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// Transformer turns one single-channel 8-bit image into a new image.
//
// A false ok means there is no output for this frame; the returned mat is then invalid and must not be used.
// On success the caller owns the returned mat. The input is never closed by the transformer.
type Transformer interface {
	Transform(gray gocv.Mat) (out gocv.Mat, ok bool)
}

// TransformerFunc adapts a plain function to the Transformer interface.
type TransformerFunc func(gray gocv.Mat) (gocv.Mat, bool)

func (f TransformerFunc) Transform(gray gocv.Mat) (gocv.Mat, bool) {
	return f(gray)
}

// NativeLib is the handle to the initialized image processing library. Everything that calls into OpenCV is
// built from it, so nothing runs before the library was checked.
type NativeLib struct {
	goCVVersion   string
	openCVVersion string
}

var (
	nativeLibOnce sync.Once
	nativeLib     *NativeLib
	nativeLibErr  error
)

// LoadNativeLib initializes the library once per process. Later calls return the same handle and error.
func LoadNativeLib() (*NativeLib, error) {
	nativeLibOnce.Do(func() {
		nativeLib, nativeLibErr = loadNativeLib()
	})

	return nativeLib, nativeLibErr
}

func loadNativeLib() (lib *NativeLib, err error) {
	defer func() {
		if r := recover(); r != nil {
			lib, err = nil, errors.Errorf("OpenCV runtime check panicked: %v", r)
		}
	}()

	check := gocv.NewMatWithSize(1, 1, gocv.MatTypeCV8UC1)
	defer check.Close()

	if check.Empty() || check.Channels() != 1 {
		return nil, errors.New("OpenCV runtime check failed: cannot allocate a test image")
	}

	lib = &NativeLib{
		goCVVersion:   gocv.Version(),
		openCVVersion: gocv.OpenCVVersion(),
	}

	logger.
		WithField("gocv", lib.goCVVersion).
		WithField("opencv", lib.openCVVersion).
		Infof("Native image library loaded.")

	return lib, nil
}

func (lib *NativeLib) GoCVVersion() string {
	return lib.goCVVersion
}

func (lib *NativeLib) OpenCVVersion() string {
	return lib.openCVVersion
}

// Canny returns the edge transform. Call Close() on it when done.
func (lib *NativeLib) Canny(p *CannyParameters) *CannyTransform {
	return &CannyTransform{
		p:      p,
		kernel: gocv.GetStructuringElement(gocv.MorphRect, image.Pt(3, 3)),
	}
}

// CannyParameters configures the edge transform.
type CannyParameters struct {
	lowThreshold  float64
	highThreshold float64

	// postOps is applied to the edge map; see AllImageOps.
	postOps string
}

func NewCannyParameters(lowThreshold, highThreshold float64, postOps string) *CannyParameters {
	return &CannyParameters{
		lowThreshold:  lowThreshold,
		highThreshold: highThreshold,
		postOps:       postOps,
	}
}

func DefaultCannyParameters() *CannyParameters {
	return NewCannyParameters(30.0, 150.0, "")
}

func (p *CannyParameters) Validate() error {
	if p.lowThreshold < 0 || p.highThreshold < 0 {
		return errors.Errorf("canny thresholds must not be negative: low=%v high=%v", p.lowThreshold, p.highThreshold)
	}
	if p.lowThreshold > p.highThreshold {
		return errors.Errorf("canny low threshold %v is above high threshold %v", p.lowThreshold, p.highThreshold)
	}
	if !validImageOps.MatchString(p.postOps) {
		return errors.New(UnknownImageOpErrMsg(AllImageOps))
	}
	return nil
}

// CannyTransform computes an edge map of a gray image.
type CannyTransform struct {
	p      *CannyParameters
	kernel gocv.Mat
}

var _ Transformer = &CannyTransform{}

func (c *CannyTransform) Transform(gray gocv.Mat) (gocv.Mat, bool) {
	if gray.Empty() || gray.Channels() != 1 {
		return gocv.Mat{}, false
	}

	edges := gocv.NewMat()
	err := gocv.Canny(gray, &edges, float32(c.p.lowThreshold), float32(c.p.highThreshold))
	if err != nil || edges.Empty() {
		_ = edges.Close()
		return gocv.Mat{}, false
	}

	if err := runOps(c.p.postOps, &edges, &c.kernel); err != nil {
		logger.WithError(err).Warn("canny post-processing failed")
		_ = edges.Close()
		return gocv.Mat{}, false
	}

	return edges, true
}

func (c *CannyTransform) Close() error {
	return errors.Wrap(c.kernel.Close(), "canny kernel teardown error")
}
