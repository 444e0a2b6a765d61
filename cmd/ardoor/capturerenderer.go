package main

import (
	"image"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

const (
	rendererTag = "ARDoor::Renderer"

	// Size of the texture the captured frame is scaled to.
	textureSize = 1024
)

// frameReader is the part of gocv.VideoCapture the renderer needs.
type frameReader interface {
	Read(m *gocv.Mat) bool
	Close() error
}

type captureOpenerFunc func(sourceId string, width, height int) (frameReader, error)

func openCaptureReader(sourceId string, width, height int) (frameReader, error) {
	videoCapture, err := openVideoCapture(sourceId, width, height)
	if err != nil {
		return nil, err
	}

	return videoCapture, nil
}

// CaptureRenderer draws camera frames onto a surface. The capture is opened when the surface gets its size,
// and every draw publishes the latest frame as an RGB texture.
type CaptureRenderer struct {
	sourceId string
	open     captureOpenerFunc
	texture  func(image.Image)

	capture frameReader
	inFrame gocv.Mat
	rgb     gocv.Mat
	scaled  gocv.Mat
	errs    surfaceErrorQueue

	undistorter *Undistorter
	undistorted gocv.Mat
}

var _ SurfaceRenderer = &CaptureRenderer{}

func (lib *NativeLib) CaptureRenderer(sourceId string, texture func(image.Image)) *CaptureRenderer {
	return newCaptureRenderer(sourceId, openCaptureReader, texture)
}

func newCaptureRenderer(sourceId string, open captureOpenerFunc, texture func(image.Image)) *CaptureRenderer {
	return &CaptureRenderer{
		sourceId: sourceId,
		open:     open,
		texture:  texture,
		inFrame:  gocv.NewMat(),
		rgb:      gocv.NewMat(),
		scaled:   gocv.NewMat(),

		undistorted: gocv.NewMat(),
	}
}

// WithUndistorter corrects every captured frame before it is scaled. The renderer does not take ownership of u.
func (r *CaptureRenderer) WithUndistorter(u *Undistorter) *CaptureRenderer {
	r.undistorter = u
	return r
}

func (r *CaptureRenderer) OnSurfaceCreated() {
	r.closeCapture()
	DrainErrors(rendererTag, "onSurfaceCreated", r.errs.next)
}

func (r *CaptureRenderer) OnSurfaceChanged(width, height int) {
	r.closeCapture()

	capture, err := r.open(r.sourceId, width, height)
	if err != nil {
		r.errs.push(errors.Wrapf(err, "cannot open capture for %dx%d surface", width, height))
	} else {
		r.capture = capture
	}

	DrainErrors(rendererTag, "onSurfaceChanged", r.errs.next)
}

func (r *CaptureRenderer) OnDrawFrame() {
	if r.capture == nil {
		return
	}
	defer DrainErrors(rendererTag, "onDrawFrame", r.errs.next)

	if ok := r.capture.Read(&r.inFrame); !ok || r.inFrame.Empty() {
		r.errs.push(errors.New("capture read returned no frame"))
		return
	}

	frame := r.inFrame
	if r.undistorter != nil {
		if err := r.undistorter.Undistort(r.inFrame, &r.undistorted); err != nil {
			r.errs.push(errors.Wrap(err, "undistortion failed"))
			return
		}
		frame = r.undistorted
	}

	if err := gocv.CvtColor(frame, &r.rgb, gocv.ColorBGRToRGB); err != nil {
		r.errs.push(errors.Wrap(err, "color conversion failed"))
		return
	}

	err := gocv.Resize(r.rgb, &r.scaled, image.Pt(textureSize, textureSize), 0, 0, gocv.InterpolationLinear)
	if err != nil {
		r.errs.push(errors.Wrap(err, "resize failed"))
		return
	}

	tex, err := rgbMatToImage(r.scaled)
	if err != nil {
		r.errs.push(err)
		return
	}

	r.texture(tex)
}

func (r *CaptureRenderer) closeCapture() {
	if r.capture == nil {
		return
	}

	r.errs.push(errors.Wrap(r.capture.Close(), "capture close failed"))
	r.capture = nil
}

func (r *CaptureRenderer) Close() error {
	r.closeCapture()
	err := r.errs.next()
	return flattenErrors(
		err,
		errors.Wrap(r.inFrame.Close(), "input frame teardown error"),
		errors.Wrap(r.rgb.Close(), "rgb frame teardown error"),
		errors.Wrap(r.scaled.Close(), "scaled frame teardown error"),
		errors.Wrap(r.undistorted.Close(), "undistorted frame teardown error"),
	)
}

// rgbMatToImage uploads a 3-channel RGB or 1-channel gray mat into an opaque RGBA image.
func rgbMatToImage(mat gocv.Mat) (image.Image, error) {
	channels := mat.Channels()
	if channels != 3 && channels != 1 {
		return nil, errors.Errorf("unsupported texture with %d channels", channels)
	}

	cols, rows := mat.Cols(), mat.Rows()
	data := mat.ToBytes()
	if len(data) != cols*rows*channels {
		return nil, errors.Errorf("texture has %d bytes, expected %d", len(data), cols*rows*channels)
	}

	img := image.NewRGBA(image.Rect(0, 0, cols, rows))
	for i, j := 0, 0; i < len(data); i, j = i+channels, j+4 {
		if channels == 1 {
			img.Pix[j], img.Pix[j+1], img.Pix[j+2] = data[i], data[i], data[i]
		} else {
			img.Pix[j], img.Pix[j+1], img.Pix[j+2] = data[i], data[i+1], data[i+2]
		}
		img.Pix[j+3] = 0xff
	}

	return img, nil
}
