package main

import (
	"encoding/json"
	"image"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// DefaultBoardSize is the number of inner corners of the calibration chessboard.
var DefaultBoardSize = image.Pt(9, 6)

// CalibrationResult holds the intrinsics computed from the collected views.
type CalibrationResult struct {
	RMS          float64       `json:"rms"`
	Views        int           `json:"views"`
	ImageWidth   int           `json:"image_width"`
	ImageHeight  int           `json:"image_height"`
	CameraMatrix [3][3]float64 `json:"camera_matrix"`
	Distortion   []float64     `json:"distortion"`
}

// CalibrationCollector looks for the chessboard in gray frames, at most once per interval, and keeps the
// corners of every view it found.
type CalibrationCollector struct {
	boardSize   image.Point
	minInterval time.Duration

	imagePoints [][]gocv.Point2f
	imageSize   image.Point
	lastAttempt time.Time
}

func NewCalibrationCollector(boardSize image.Point, minInterval time.Duration) *CalibrationCollector {
	return &CalibrationCollector{
		boardSize:   boardSize,
		minInterval: minInterval,
	}
}

func (c *CalibrationCollector) Views() int {
	return len(c.imagePoints)
}

// Observe tries to find the board in gray. It returns true when a new view was collected.
func (c *CalibrationCollector) Observe(gray gocv.Mat, now time.Time) (bool, error) {
	if !c.lastAttempt.IsZero() && now.Sub(c.lastAttempt) < c.minInterval {
		return false, nil
	}
	c.lastAttempt = now

	if gray.Empty() || gray.Channels() != 1 {
		return false, nil
	}

	corners := gocv.NewMat()
	defer corners.Close()

	found := gocv.FindChessboardCorners(gray, c.boardSize, &corners, gocv.CalibCBAdaptiveThresh|gocv.CalibCBNormalizeImage)
	if !found {
		return false, nil
	}

	points, err := cornersToPoints(corners)
	if err != nil {
		return false, err
	}
	if len(points) != c.boardSize.X*c.boardSize.Y {
		return false, errors.Errorf("found %d corners, expected %d", len(points), c.boardSize.X*c.boardSize.Y)
	}

	c.imagePoints = append(c.imagePoints, points)
	c.imageSize = image.Pt(gray.Cols(), gray.Rows())
	return true, nil
}

func cornersToPoints(corners gocv.Mat) ([]gocv.Point2f, error) {
	data, err := corners.DataPtrFloat32()
	if err != nil {
		return nil, errors.Wrap(err, "cannot read chessboard corners")
	}
	if len(data)%2 != 0 {
		return nil, errors.Errorf("odd number of corner coordinates: %d", len(data))
	}

	points := make([]gocv.Point2f, 0, len(data)/2)
	for i := 0; i < len(data); i += 2 {
		points = append(points, gocv.Point2f{X: data[i], Y: data[i+1]})
	}
	return points, nil
}

// boardObjectPoints lays the board corners out on the z=0 plane, one unit apart, row by row.
func boardObjectPoints(boardSize image.Point) []gocv.Point3f {
	points := make([]gocv.Point3f, 0, boardSize.X*boardSize.Y)
	for i := 0; i < boardSize.Y; i++ {
		for j := 0; j < boardSize.X; j++ {
			points = append(points, gocv.Point3f{X: float32(j), Y: float32(i), Z: 0})
		}
	}
	return points
}

// Calibrate computes the camera intrinsics from the collected views.
func (c *CalibrationCollector) Calibrate(minViews int) (*CalibrationResult, error) {
	if len(c.imagePoints) == 0 || len(c.imagePoints) < minViews {
		return nil, errors.Errorf("not enough views for calibration: have %d, need %d", len(c.imagePoints), minViews)
	}

	objectPoints := gocv.NewPoints3fVector()
	defer objectPoints.Close()
	imagePoints := gocv.NewPoints2fVector()
	defer imagePoints.Close()

	boardPoints := boardObjectPoints(c.boardSize)
	for _, view := range c.imagePoints {
		obj := gocv.NewPoint3fVectorFromPoints(boardPoints)
		objectPoints.Append(obj)
		obj.Close()

		img := gocv.NewPoint2fVectorFromPoints(view)
		imagePoints.Append(img)
		img.Close()
	}

	cameraMatrix := gocv.NewMat()
	defer cameraMatrix.Close()
	distCoeffs := gocv.NewMat()
	defer distCoeffs.Close()
	rvecs := gocv.NewMat()
	defer rvecs.Close()
	tvecs := gocv.NewMat()
	defer tvecs.Close()

	rms := gocv.CalibrateCamera(objectPoints, imagePoints, c.imageSize,
		&cameraMatrix, &distCoeffs, &rvecs, &tvecs, gocv.CalibFlag(0))

	result := &CalibrationResult{
		RMS:         rms,
		Views:       len(c.imagePoints),
		ImageWidth:  c.imageSize.X,
		ImageHeight: c.imageSize.Y,
	}

	if cameraMatrix.Rows() != 3 || cameraMatrix.Cols() != 3 {
		return nil, errors.Errorf("unexpected camera matrix size %dx%d", cameraMatrix.Rows(), cameraMatrix.Cols())
	}
	for r := 0; r < 3; r++ {
		for col := 0; col < 3; col++ {
			result.CameraMatrix[r][col] = cameraMatrix.GetDoubleAt(r, col)
		}
	}

	for i := 0; i < distCoeffs.Total(); i++ {
		if distCoeffs.Rows() == 1 {
			result.Distortion = append(result.Distortion, distCoeffs.GetDoubleAt(0, i))
		} else {
			result.Distortion = append(result.Distortion, distCoeffs.GetDoubleAt(i, 0))
		}
	}

	return result, nil
}

func (r *CalibrationResult) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return errors.Wrap(enc.Encode(r), "failed to encode calibration result")
}

// Calibrator collects chessboard views from the camera and writes the calibration once it has enough of them.
type Calibrator struct {
	*SinkNode[CameraFrame]
	p *CalibratorParameters
}

var _ Node = &Calibrator{}

func NewCalibrator(name string, inChan <-chan CameraFrame, p *CalibratorParameters) *Calibrator {
	cal := &Calibrator{
		SinkNode: NewSinkNode[CameraFrame](name, inChan),
		p:        p,
	}

	collector := NewCalibrationCollector(p.boardSize, p.minInterval)
	logger := logger.WithField("node", name)

	cal.StepFunc(func(cf CameraFrame) error {
		if cf == nil {
			return nil
		}
		defer cf.Close()

		found, err := collector.Observe(cf.Gray(), time.Now())
		if err != nil {
			return err
		}
		if !found {
			return nil
		}

		logger.Infof("Chessboard found (%d/%d views).", collector.Views(), cal.p.views)
		if collector.Views() < cal.p.views {
			return nil
		}

		result, err := collector.Calibrate(cal.p.views)
		if err != nil {
			return err
		}
		if err := cal.p.writeResult(result); err != nil {
			return err
		}

		logger.WithField("rms", result.RMS).Infof("Calibration done.")

		// Enough views; stop the graph.
		return io.EOF
	})

	return cal
}

type CalibratorParameters struct {
	boardSize   image.Point
	minInterval time.Duration
	views       int
	outFile     string
}

func NewCalibratorParameters(views int, outFile string) *CalibratorParameters {
	return &CalibratorParameters{
		boardSize:   DefaultBoardSize,
		minInterval: 1 * time.Second,
		views:       views,
		outFile:     outFile,
	}
}

func (p *CalibratorParameters) writeResult(result *CalibrationResult) error {
	if p.outFile == "" || p.outFile == "-" {
		return result.WriteJSON(os.Stdout)
	}

	f, err := os.Create(p.outFile)
	if err != nil {
		return errors.Wrapf(err, "failed to create calibration file '%s'", p.outFile)
	}

	return flattenErrors(
		result.WriteJSON(f),
		errors.Wrapf(f.Close(), "failed to close calibration file '%s'", p.outFile),
	)
}
