package main

import (
	"context"
	"image"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/layout"
)

// SurfaceView drives a SurfaceBridge from a fyne window: created and sized once when started, then one draw
// per tick until the context is done.
type SurfaceView struct {
	bridge   *SurfaceBridge
	width    int
	height   int
	interval time.Duration

	viewContainer *fyne.Container
	viewImg       *canvas.Image
	errChan       chan error
}

func NewSurfaceView(width, height int, fps float64) *SurfaceView {
	return &SurfaceView{
		width:         width,
		height:        height,
		interval:      time.Duration(float64(time.Second) / fps),
		viewContainer: container.New(layout.NewCenterLayout(), DefaultNoSignalImage(fyne.NewSize(float32(width), float32(height)))),
		errChan:       make(chan error, 1),
	}
}

func (sv *SurfaceView) Attach(bridge *SurfaceBridge) {
	sv.bridge = bridge
}

func (sv *SurfaceView) ViewContainer() *fyne.Container {
	return sv.viewContainer
}

// ShowTexture is the renderer's texture sink. It may be called from any goroutine.
func (sv *SurfaceView) ShowTexture(img image.Image) {
	fyne.Do(func() {
		if sv.viewImg == nil {
			sv.viewImg = canvas.NewImageFromImage(img)
			sv.viewImg.SetMinSize(fyne.NewSize(float32(sv.width), float32(sv.height)))
			sv.viewImg.FillMode = canvas.ImageFillStretch
			sv.viewContainer.Objects[0] = sv.viewImg
			sv.viewContainer.Refresh()
			return
		}

		sv.viewImg.Image = img
		sv.viewImg.Refresh()
	})
}

func (sv *SurfaceView) Run(ctx context.Context) {
	go sv.loop(ctx)
}

func (sv *SurfaceView) Err() <-chan error {
	return sv.errChan
}

func (sv *SurfaceView) loop(ctx context.Context) {
	sv.bridge.OnSurfaceCreated()
	if err := sv.bridge.OnSurfaceChanged(sv.width, sv.height); err != nil {
		sv.errChan <- err
		return
	}

	ticker := time.NewTicker(sv.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			sv.errChan <- nil
			return

		case <-ticker.C:
			if err := sv.bridge.OnDrawFrame(); err != nil {
				sv.errChan <- err
				return
			}
		}
	}
}

func surfaceMain(parentCtx context.Context, args *CliArgs) error {
	lib, err := LoadNativeLib()
	if err != nil {
		return err
	}

	undistorter, err := undistorterFor(args.Calibration)
	if err != nil {
		return err
	}
	defer func() {
		if err := undistorter.Close(); err != nil {
			logger.WithError(err).Warn("Undistorter teardown failed.")
		}
	}()

	_, window := newAppWindow("ARDoor Surface")

	view := NewSurfaceView(args.Width, args.Height, args.FPS)
	renderer := lib.CaptureRenderer(args.SourceId, view.ShowTexture).WithUndistorter(undistorter)
	view.Attach(NewSurfaceBridge(renderer))

	window.SetContent(view.ViewContainer())

	ctx, cancelCtx := context.WithCancel(parentCtx)
	defer cancelCtx()

	view.Run(ctx)
	viewErr := make(chan error, 1)
	go func() {
		viewErr <- <-view.Err()
		fyne.Do(window.Close)
	}()

	logger.Infof("Starting surface view.")
	window.ShowAndRun()
	cancelCtx()

	if err := <-viewErr; err != nil {
		logger.WithError(err).Error("Surface view failed.")
	}

	// The draw loop has stopped, so the renderer is no longer in use.
	if err := renderer.Close(); err != nil {
		logger.WithError(err).Warn("Renderer teardown failed.")
	}

	logger.Infof("Shutdown complete.")
	return nil
}
