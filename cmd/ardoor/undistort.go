package main

import (
	"encoding/json"
	"image"
	"image/color"
	"os"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// Validate checks that the result can be used to undistort frames.
func (r *CalibrationResult) Validate() error {
	if r.CameraMatrix[0][0] <= 0 || r.CameraMatrix[1][1] <= 0 {
		return errors.Errorf("focal lengths must be positive: fx=%v fy=%v", r.CameraMatrix[0][0], r.CameraMatrix[1][1])
	}

	switch len(r.Distortion) {
	case 0, 4, 5, 8, 12, 14:
		return nil
	default:
		return errors.Errorf("unsupported number of distortion coefficients: %d", len(r.Distortion))
	}
}

// LoadCalibrationResult reads a result written by the calibrate command.
func LoadCalibrationResult(path string) (*CalibrationResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open calibration file '%s'", path)
	}
	defer f.Close()

	var result CalibrationResult
	if err := json.NewDecoder(f).Decode(&result); err != nil {
		return nil, errors.Wrapf(err, "failed to decode calibration file '%s'", path)
	}

	if err := result.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid calibration file '%s'", path)
	}

	return &result, nil
}

// Undistorter removes the lens distortion described by a CalibrationResult. The remap tables are computed for
// the first frame and reused while the frame size stays the same.
//
// An Undistorter is not safe for concurrent use.
type Undistorter struct {
	cameraMatrix gocv.Mat
	distCoeffs   gocv.Mat

	mapX   gocv.Mat
	mapY   gocv.Mat
	size   image.Point
	builds int
}

func NewUndistorter(result *CalibrationResult) (*Undistorter, error) {
	if err := result.Validate(); err != nil {
		return nil, err
	}

	cameraMatrix := gocv.NewMatWithSize(3, 3, gocv.MatTypeCV64FC1)
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			cameraMatrix.SetDoubleAt(r, c, result.CameraMatrix[r][c])
		}
	}

	// An empty matrix means no distortion.
	distCoeffs := gocv.NewMat()
	if n := len(result.Distortion); n > 0 {
		_ = distCoeffs.Close()
		distCoeffs = gocv.NewMatWithSize(1, n, gocv.MatTypeCV64FC1)
		for i, k := range result.Distortion {
			distCoeffs.SetDoubleAt(0, i, k)
		}
	}

	return &Undistorter{
		cameraMatrix: cameraMatrix,
		distCoeffs:   distCoeffs,
		mapX:         gocv.NewMat(),
		mapY:         gocv.NewMat(),
	}, nil
}

// undistorterFor returns nil when there is no calibration to apply.
func undistorterFor(result *CalibrationResult) (*Undistorter, error) {
	if result == nil {
		return nil, nil
	}
	return NewUndistorter(result)
}

// Undistort writes the corrected src into dst. src and dst must be different mats.
func (u *Undistorter) Undistort(src gocv.Mat, dst *gocv.Mat) error {
	if src.Empty() {
		return errors.New("cannot undistort an empty image")
	}

	size := image.Pt(src.Cols(), src.Rows())
	if size != u.size {
		// No rectification, and the corrected image keeps the original camera matrix.
		r := gocv.NewMat()
		defer r.Close()
		newCameraMatrix := gocv.NewMat()
		defer newCameraMatrix.Close()

		err := gocv.InitUndistortRectifyMap(u.cameraMatrix, u.distCoeffs, r, newCameraMatrix, size,
			int(gocv.MatTypeCV32FC1), u.mapX, u.mapY)
		if err != nil {
			u.size = image.Point{}
			return errors.Wrapf(err, "cannot build undistortion maps for %dx%d", size.X, size.Y)
		}

		u.size = size
		u.builds++
		logger.WithField("size", size).Debugf("Undistortion maps built.")
	}

	err := gocv.Remap(src, dst, &u.mapX, &u.mapY, gocv.InterpolationLinear, gocv.BorderConstant, color.RGBA{})
	return errors.Wrap(err, "remap failed")
}

func (u *Undistorter) Close() error {
	if u == nil {
		return nil
	}

	return flattenErrors(
		errors.Wrap(u.cameraMatrix.Close(), "camera matrix teardown error"),
		errors.Wrap(u.distCoeffs.Close(), "distortion teardown error"),
		errors.Wrap(u.mapX.Close(), "map x teardown error"),
		errors.Wrap(u.mapY.Close(), "map y teardown error"),
	)
}
