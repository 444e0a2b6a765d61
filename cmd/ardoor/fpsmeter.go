package main

import (
	"fmt"
	"image"
	"image/color"
	"time"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// fpsMeter measures the frame rate over windows of at least one second.
type fpsMeter struct {
	window      time.Duration
	windowStart time.Time
	frames      int
	fps         float64
}

func newFPSMeter() *fpsMeter {
	return &fpsMeter{window: time.Second}
}

// Measure counts one frame at now and returns the rate of the last complete window.
func (m *fpsMeter) Measure(now time.Time) float64 {
	if m.windowStart.IsZero() {
		m.windowStart = now
		return m.fps
	}

	m.frames++
	if elapsed := now.Sub(m.windowStart); elapsed >= m.window {
		m.fps = float64(m.frames) / elapsed.Seconds()
		m.frames = 0
		m.windowStart = now
	}

	return m.fps
}

func fpsText(fps float64, width, height int) string {
	return fmt.Sprintf("%.2f FPS@%dx%d", fps, width, height)
}

// FPSMeter draws the current frame rate and frame size onto every frame.
type FPSMeter struct {
	*TransformerNode[*Frame]
	now func() time.Time
}

var _ Node = &FPSMeter{}

func NewFPSMeter(name string, inChan <-chan *Frame) *FPSMeter {
	fm := &FPSMeter{
		TransformerNode: NewTransformerNode[*Frame](name, inChan),
		now:             time.Now,
	}

	meter := newFPSMeter()
	textColor := color.RGBA{R: 255, G: 255, B: 255, A: 255}

	fm.StepFunc(func(frame *Frame) (*Frame, error) {
		if frame == nil {
			return nil, SkipValue
		}

		fps := meter.Measure(fm.now())

		// Drawing modifies the image, so never draw into a borrowed one.
		frame = frame.Detach()
		mat := frame.Mat()
		err := gocv.PutText(&mat, fpsText(fps, frame.Width(), frame.Height()), image.Pt(10, 30),
			gocv.FontHersheySimplex, 0.8, textColor, 2)
		if err != nil {
			_ = frame.Close()
			return nil, errors.Wrap(err, "fps overlay failed")
		}

		return frame, nil
	})

	return fm
}
