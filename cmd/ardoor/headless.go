package main

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// serveMain runs the pipeline without a window. The HTTP sink is the display and the mode switch.
func serveMain(ctx context.Context, args *CliArgs) error {
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
	store := NewFrameStore()

	g := NewGraph("SERVE")

	vsParams := NewVideoSourceParameters(args.SourceId, false, false).
		WithSize(args.Width, args.Height).
		WithUndistorter(undistorter)
	src := NewCameraFrameSource("VSRC", vsParams)
	g.SetNode(src)

	out := AddFrameProcessing(g, src.Stream(), ctrl, PipelineOptions{
		FPSMeter: args.FPSMeter,
		Store:    store,
	})
	g.SetNodes(
		NewFrameSink("SINK", out, NewFrameSinkParameters(args.SnapshotDir, args.SnapshotInterval)),
		NewHTTPSink("HTTP", args.HTTPAddr, runID, ctrl, store),
	)

	logger.Infof("Serving frames from '%s'.", args.SourceId)
	g.Run(ctx)
	err = <-g.Err()

	logger.WithField("stats", ctrl.Stats()).Infof("Shutdown complete.")
	return err
}

func calibrateMain(ctx context.Context, args *CliArgs) error {
	if _, err := LoadNativeLib(); err != nil {
		return err
	}

	if args.Views <= 0 {
		return errors.Errorf("number of views must be positive, got %d", args.Views)
	}

	g := NewGraph("CALIBRATE")

	src := NewCameraFrameSource("VSRC", NewVideoSourceParameters(args.SourceId, false, false).WithSize(args.Width, args.Height))
	g.SetNodes(src, NewCalibrator("CALIB", src.Stream(), NewCalibratorParameters(args.Views, args.OutFile)))

	logger.Infof("Show a %dx%d chessboard to '%s' from %d different angles.",
		DefaultBoardSize.X, DefaultBoardSize.Y, args.SourceId, args.Views)
	g.Run(ctx)
	return <-g.Err()
}
