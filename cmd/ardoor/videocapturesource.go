package main

import (
	"io"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/data/binding"
	"fyne.io/fyne/v2/layout"
	"fyne.io/fyne/v2/widget"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

const (
	flipBoth      int = -1
	flipUpDown    int = 0
	flipLeftRight int = 1
)

// CameraFrameSource delivers one CameraFrame per captured image. Each frame owns its buffers; whoever receives
// it must Close() it.
type CameraFrameSource struct {
	*SourceNode[CameraFrame]
	p *VideoSourceParameters
}

var _ Node = &CameraFrameSource{}

func NewCameraFrameSource(name string, p *VideoSourceParameters) *CameraFrameSource {
	cfs := &CameraFrameSource{
		SourceNode: NewSourceNode[CameraFrame](name),
		p:          p,
	}

	var videoCapture *gocv.VideoCapture

	cfs.SetupFunc(func() error {
		var err error

		// NOTE: This turns on the video capture.
		//  If the source is a (web) camera, then it means that the camera starts recording. The status
		//  indicator LED of the camera should also turn on.
		videoCapture, err = openVideoCapture(cfs.p.sourceId, cfs.p.width, cfs.p.height)
		return err
	})

	cfs.TeardownFunc(func() error {
		return errors.Wrapf(videoCapture.Close(), "video capture source teardown error")
	})

	cfs.StepFunc(func() (CameraFrame, error) {
		bgr := gocv.NewMat()
		if ok := videoCapture.Read(&bgr); !ok {
			_ = bgr.Close()
			return nil, io.EOF
		}

		if bgr.Empty() {
			// Cameras deliver a few empty frames while warming up.
			_ = bgr.Close()
			return nil, SkipValue
		}

		bgr, err := cfs.p.undistort(bgr)
		if err != nil {
			return nil, err
		}

		if err := cfs.p.flip(&bgr); err != nil {
			_ = bgr.Close()
			return nil, err
		}

		return newCapturedFrame(bgr), nil
	})

	return cfs
}

func openVideoCapture(sourceId string, width, height int) (*gocv.VideoCapture, error) {
	videoCapture, err := gocv.OpenVideoCapture(sourceId)
	if err != nil {
		logger.WithError(err).Errorf("OpenVideoCapture failed")
		return nil, errors.Wrapf(err, "failed to open video capture source '%s'", sourceId)
	}

	if width > 0 && height > 0 {
		videoCapture.Set(gocv.VideoCaptureFrameWidth, float64(width))
		videoCapture.Set(gocv.VideoCaptureFrameHeight, float64(height))
	}

	return videoCapture, nil
}

type VideoSourceParameters struct {
	sourceId string
	lrFlip   bool
	udFlip   bool

	// Requested capture size; zero keeps the device default.
	width  int
	height int

	// undistorter corrects the lens distortion before the flip; nil leaves frames as captured.
	undistorter *Undistorter
}

var _ SettingsContainerMaker = &VideoSourceParameters{}

func NewVideoSourceParameters(sourceId string, lrFlip bool, udFlip bool) *VideoSourceParameters {
	return &VideoSourceParameters{
		sourceId: sourceId,
		lrFlip:   lrFlip,
		udFlip:   udFlip,
	}
}

func (p *VideoSourceParameters) WithSize(width, height int) *VideoSourceParameters {
	p.width = width
	p.height = height
	return p
}

func (p *VideoSourceParameters) WithUndistorter(u *Undistorter) *VideoSourceParameters {
	p.undistorter = u
	return p
}

func (p *VideoSourceParameters) undistort(bgr gocv.Mat) (gocv.Mat, error) {
	if p.undistorter == nil {
		return bgr, nil
	}

	undistorted := gocv.NewMat()
	err := p.undistorter.Undistort(bgr, &undistorted)
	_ = bgr.Close()
	if err != nil {
		_ = undistorted.Close()
		return gocv.Mat{}, err
	}
	return undistorted, nil
}

func (p *VideoSourceParameters) flip(img *gocv.Mat) error {
	var err error
	if p.lrFlip && p.udFlip {
		err = gocv.Flip(*img, img, flipBoth)
	} else if p.lrFlip {
		err = gocv.Flip(*img, img, flipLeftRight)
	} else if p.udFlip {
		err = gocv.Flip(*img, img, flipUpDown)
	}
	return errors.Wrap(err, "flip failed")
}

func (p *VideoSourceParameters) MakeSettingsContainer(_ fyne.Window) *fyne.Container {
	lrFlipCheck := widget.NewCheckWithData("LR", binding.BindBool(&p.lrFlip))
	udFlipCheck := widget.NewCheckWithData("UD", binding.BindBool(&p.udFlip))

	return container.New(layout.NewGridLayout(2),
		widget.NewLabel("SourceId:"),
		widget.NewLabel(p.sourceId),

		widget.NewLabel("Flip:"),
		container.New(layout.NewHBoxLayout(),
			lrFlipCheck,
			udFlipCheck,
		),
	)
}
