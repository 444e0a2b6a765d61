package main

import (
	"context"
	"image"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/layout"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
	"github.com/google/uuid"
)

func newAppWindow(title string) (fyne.App, fyne.Window) {
	ardoor := app.NewWithID("ch.bfh.cpvr.ardoor")
	ardoor.SetIcon(theme.ColorPaletteIcon())

	window := ardoor.NewWindow(title)
	window.SetMaster()

	return ardoor, window
}

func cameraMain(parentCtx context.Context, args *CliArgs) error {
	lib, err := LoadNativeLib()
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	logger := logger.WithField("run", runID)

	canny := lib.Canny(args.Canny)
	defer func() {
		if err := canny.Close(); err != nil {
			logger.WithError(err).Warn("Canny teardown failed.")
		}
	}()

	undistorter, err := undistorterFor(args.Calibration)
	if err != nil {
		return err
	}
	defer func() {
		if err := undistorter.Close(); err != nil {
			logger.WithError(err).Warn("Undistorter teardown failed.")
		}
	}()

	ctrl := NewPipelineController(canny, args.PassThrough)

	ctx, cancelCtx := context.WithCancel(parentCtx)
	defer cancelCtx()

	var store *FrameStore
	if args.HTTPAddr != "" {
		store = NewFrameStore()
		sink := NewHTTPSink("HTTP", args.HTTPAddr, runID, ctrl, store)
		sink.Run(ctx)
		go func() {
			if err := <-sink.Err(); !isGracefulStop(err) {
				logger.WithError(err).Error("HTTP sink stopped.")
			}
		}()
	}

	// Create app window.

	_, window := newAppWindow("ARDoor")

	// Create GUI components.

	toolbar := widget.NewToolbar()

	vsParams := NewVideoSourceParameters(args.SourceId, false, false).
		WithSize(args.Width, args.Height).
		WithUndistorter(undistorter)
	graphFn := func(g *Graph, frames <-chan CameraFrame, view func(<-chan image.Image) Node) {
		out := AddFrameProcessing(g, frames, ctrl, PipelineOptions{
			FPSMeter: args.FPSMeter,
			Store:    store,
		})

		cnv := NewFrameConverter("CNV", out)
		g.SetNode(cnv)
		g.SetNode(view(cnv.Stream()))
	}

	player := NewCameraPlayer(window, toolbar, vsParams, ctrl, graphFn)

	toolbar.Append(player.ToolbarAction())
	toolbar.Append(player.ModeToolbarAction())
	toolbar.Append(widget.NewToolbarSeparator())
	toolbar.Append(widget.NewToolbarSpacer())

	mainView := container.New(layout.NewHBoxLayout(),
		player.SettingsContainer(),
		player.ViewContainer(),
	)

	// Populate window.
	window.SetContent(container.New(layout.NewVBoxLayout(),
		toolbar,
		mainView,
	))

	// Run background loop.
	logger.Tracef("Starting camera player.")
	player.Run(ctx)
	playerErr := make(chan error, 1)
	go func() {
		playerErr <- <-player.Err()
		fyne.Do(window.Close)
	}()

	// Start GUI.
	logger.Infof("Starting GUI application.")
	window.ShowAndRun()
	cancelCtx()
	logger.Tracef("GUI application stopped.")

	// Shutdown.
	logger.Tracef("Waiting for the camera player to stop...")
	if err := <-playerErr; err != nil {
		logger.WithError(err).Error("Camera player failed.")
	}

	logger.WithField("stats", ctrl.Stats()).Infof("Shutdown complete.")
	return nil
}
