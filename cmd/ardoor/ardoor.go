package main

import (
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

// CliArgs stores the parsed command line arguments.
type CliArgs struct {
	// SourceId identifies the source for the frames for GoCV.
	// It can be a device ID, a file name, a URL, etc.
	// See https://pkg.go.dev/gocv.io/x/gocv#OpenVideoCapture
	SourceId string

	// Width and Height request a capture (or surface) size. Zero keeps the device default.
	Width  int
	Height int

	// PassThrough starts the pipeline showing the camera image instead of its transform.
	PassThrough bool

	// FPSMeter draws the frame rate onto the displayed frames.
	FPSMeter bool

	CannyLow  float64
	CannyHigh float64
	PostOps   string

	// Canny is built from CannyLow, CannyHigh and PostOps by ValidateCanny().
	Canny *CannyParameters

	// HTTPAddr is the listen address of the HTTP sink; empty disables it in GUI mode.
	HTTPAddr string

	SnapshotDir      string
	SnapshotInterval time.Duration

	// FPS is the draw rate of the surface view.
	FPS float64

	// Views is the number of chessboard views collected before calibrating.
	Views int

	// OutFile receives the calibration result; "-" is stdout.
	OutFile string

	// CalibrationFile is a result of the calibrate command; frames are undistorted with it when given.
	CalibrationFile string

	// Calibration is loaded from CalibrationFile by ValidateCalibration().
	Calibration *CalibrationResult

	// LogLevelString can be used to override the default log level.
	LogLevelString string

	// logLevel is the numeric representation of the log level.
	logLevel logrus.Level
}

func DefaultCliArgs() *CliArgs {
	defaultCanny := DefaultCannyParameters()

	return &CliArgs{
		SourceId:         "0",
		Width:            0,
		Height:           0,
		PassThrough:      false,
		FPSMeter:         false,
		CannyLow:         defaultCanny.lowThreshold,
		CannyHigh:        defaultCanny.highThreshold,
		PostOps:          defaultCanny.postOps,
		Canny:            nil, // set by ValidateCanny()
		HTTPAddr:         "",
		SnapshotDir:      "",
		SnapshotInterval: 5 * time.Second,
		FPS:              30.0,
		Views:            20,
		OutFile:          "-",
		CalibrationFile:  "",
		Calibration:      nil, // set by ValidateCalibration()
		LogLevelString:   "INFO",
		logLevel:         logrus.InfoLevel,
	}
}

func (args *CliArgs) ValidateCanny() error {
	p := NewCannyParameters(args.CannyLow, args.CannyHigh, args.PostOps)
	if err := p.Validate(); err != nil {
		return err
	}

	args.Canny = p
	return nil
}

func (args *CliArgs) ValidateSize() error {
	if args.Width < 0 || args.Height < 0 {
		return errors.Errorf("size must not be negative: %dx%d", args.Width, args.Height)
	}
	if (args.Width == 0) != (args.Height == 0) {
		return errors.Errorf("width and height must be given together: %dx%d", args.Width, args.Height)
	}

	return nil
}

func (args *CliArgs) ValidateSurface() error {
	if args.Width <= 0 || args.Height <= 0 {
		return errors.Errorf("surface size must be positive: %dx%d", args.Width, args.Height)
	}
	if args.FPS <= 0 {
		return errors.Errorf("surface fps must be positive: %v", args.FPS)
	}

	return nil
}

func (args *CliArgs) ValidateCalibration() error {
	if args.CalibrationFile == "" {
		args.Calibration = nil
		return nil
	}

	result, err := LoadCalibrationResult(args.CalibrationFile)
	if err != nil {
		return err
	}

	args.Calibration = result
	return nil
}

func (args *CliArgs) ValidateLogLevelString() error {
	l, err := logrus.ParseLevel(args.LogLevelString)
	if err != nil {
		return err
	}

	args.logLevel = l
	return nil
}

func sourceFlag(args *CliArgs) cli.Flag {
	return &cli.StringFlag{
		Name:        "source",
		Aliases:     []string{"s"},
		Usage:       "source frame stream; e.g., device ID, file name, URL, etc.",
		Value:       args.SourceId,
		Destination: &args.SourceId,
	}
}

func sizeFlags(args *CliArgs, width, height int) []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:        "width",
			Usage:       "requested frame width; 0 keeps the device default",
			Value:       width,
			Destination: &args.Width,
		},
		&cli.IntFlag{
			Name:        "height",
			Usage:       "requested frame height; 0 keeps the device default",
			Value:       height,
			Destination: &args.Height,
		},
	}
}

func calibrationFlag(args *CliArgs) cli.Flag {
	return &cli.StringFlag{
		Name:        "calibration",
		Usage:       "undistort the frames with this calibration file, as written by the calibrate command",
		Destination: &args.CalibrationFile,
	}
}

func pipelineFlags(args *CliArgs) []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:        "pass-through",
			Aliases:     []string{"p"},
			Usage:       "start in pass-through mode",
			Destination: &args.PassThrough,
		},
		&cli.BoolFlag{
			Name:        "fps-meter",
			Usage:       "draw the frame rate onto the displayed frames",
			Destination: &args.FPSMeter,
		},
		&cli.Float64Flag{
			Name:        "canny-low",
			Usage:       "lower hysteresis threshold of the edge transform",
			Value:       args.CannyLow,
			Destination: &args.CannyLow,
		},
		&cli.Float64Flag{
			Name:        "canny-high",
			Usage:       "upper hysteresis threshold of the edge transform",
			Value:       args.CannyHigh,
			Destination: &args.CannyHigh,
		},
		&cli.StringFlag{
			Name:        "post-ops",
			Usage:       fmt.Sprintf("morphology ops on the edge map; %s", UnknownImageOpErrMsg(AllImageOps)),
			Value:       args.PostOps,
			Destination: &args.PostOps,
		},
	}
}

func flags(groups ...[]cli.Flag) []cli.Flag {
	var all []cli.Flag
	for _, group := range groups {
		all = append(all, group...)
	}
	return all
}

func NewApp(args *CliArgs) *cli.App {
	return &cli.App{
		Name:  "ardoor",
		Usage: "camera frame pipeline with an edge transform",

		Before: func(c *cli.Context) error {
			err := args.ValidateLogLevelString()
			if err != nil {
				return err
			}

			initLogger(args.logLevel)
			return nil
		},

		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       fmt.Sprintf("log level: [%s]", allLogLevels),
				Value:       args.LogLevelString,
				Destination: &args.LogLevelString,
			},
		},

		Commands: []*cli.Command{
			{
				Name:  "camera",
				Usage: "Run the camera view; tap the view to toggle pass-through",

				Flags: flags(
					[]cli.Flag{sourceFlag(args), calibrationFlag(args)},
					sizeFlags(args, 0, 0),
					pipelineFlags(args),
					[]cli.Flag{
						&cli.StringFlag{
							Name:        "http",
							Usage:       "also serve the displayed frames on this address; e.g., :8080",
							Destination: &args.HTTPAddr,
						},
					},
				),

				Before: func(c *cli.Context) error {
					return flattenErrors(args.ValidateSize(), args.ValidateCanny(), args.ValidateCalibration())
				},

				Action: func(c *cli.Context) error {
					logger.Infof("Running with arguments: %+v", *args)
					return cameraMain(c.Context, args)
				},
			},

			{
				Name:  "surface",
				Usage: "Run the render surface view",

				Flags: flags(
					[]cli.Flag{sourceFlag(args), calibrationFlag(args)},
					sizeFlags(args, 640, 480),
					[]cli.Flag{
						&cli.Float64Flag{
							Name:        "fps",
							Usage:       "draw rate of the surface",
							Value:       args.FPS,
							Destination: &args.FPS,
						},
					},
				),

				Before: func(c *cli.Context) error {
					return flattenErrors(args.ValidateSurface(), args.ValidateCalibration())
				},

				Action: func(c *cli.Context) error {
					logger.Infof("Running with arguments: %+v", *args)
					return surfaceMain(c.Context, args)
				},
			},

			{
				Name:  "serve",
				Usage: "Run the pipeline headless and serve the frames over HTTP",

				Flags: flags(
					[]cli.Flag{sourceFlag(args), calibrationFlag(args)},
					sizeFlags(args, 0, 0),
					pipelineFlags(args),
					[]cli.Flag{
						&cli.StringFlag{
							Name:        "addr",
							Usage:       "listen address of the HTTP sink",
							Value:       ":8080",
							Destination: &args.HTTPAddr,
						},
						&cli.StringFlag{
							Name:        "snapshot-dir",
							Usage:       "write PNG snapshots of the displayed frames into this directory",
							Destination: &args.SnapshotDir,
						},
						&cli.DurationFlag{
							Name:        "snapshot-interval",
							Usage:       "minimum time between two snapshots",
							Value:       args.SnapshotInterval,
							Destination: &args.SnapshotInterval,
						},
					},
				),

				Before: func(c *cli.Context) error {
					return flattenErrors(args.ValidateSize(), args.ValidateCanny(), args.ValidateCalibration())
				},

				Action: func(c *cli.Context) error {
					logger.Infof("Running with arguments: %+v", *args)
					return serveMain(c.Context, args)
				},
			},

			{
				Name:  "calibrate",
				Usage: "Calibrate the camera with a chessboard",

				Flags: flags(
					[]cli.Flag{sourceFlag(args)},
					sizeFlags(args, 0, 0),
					[]cli.Flag{
						&cli.IntFlag{
							Name:        "views",
							Usage:       "number of chessboard views to collect",
							Value:       args.Views,
							Destination: &args.Views,
						},
						&cli.StringFlag{
							Name:        "out",
							Aliases:     []string{"o"},
							Usage:       "calibration output file; - is stdout",
							Value:       args.OutFile,
							Destination: &args.OutFile,
						},
					},
				),

				Before: func(c *cli.Context) error {
					return args.ValidateSize()
				},

				Action: func(c *cli.Context) error {
					logger.Infof("Running with arguments: %+v", *args)
					return calibrateMain(c.Context, args)
				},
			},
		},
	}
}

func main() {
	err := NewApp(DefaultCliArgs()).Run(os.Args)
	if err != nil {
		fmt.Println("Application failed:", err.Error())
		os.Exit(1)
	}
}
