package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// FrameSink is the end of a headless pipeline. It releases every frame and, when a snapshot directory is set,
// writes a PNG of a frame at most once per interval.
type FrameSink struct {
	*SinkNode[*Frame]
	p *FrameSinkParameters
}

var _ Node = &FrameSink{}

func NewFrameSink(name string, inChan <-chan *Frame, p *FrameSinkParameters) *FrameSink {
	fs := &FrameSink{
		SinkNode: NewSinkNode[*Frame](name, inChan),
		p:        p,
	}

	var (
		lastSnapshot time.Time
		snapshotSeq  int
	)

	fs.SetupFunc(func() error {
		if fs.p.snapshotDir == "" {
			return nil
		}

		return errors.Wrapf(os.MkdirAll(fs.p.snapshotDir, 0o755), "failed to create snapshot directory '%s'", fs.p.snapshotDir)
	})

	fs.StepFunc(func(frame *Frame) error {
		if frame == nil {
			return nil
		}
		defer frame.Close()

		if fs.p.snapshotDir == "" {
			return nil
		}

		now := time.Now()
		if !lastSnapshot.IsZero() && now.Sub(lastSnapshot) < fs.p.snapshotInterval {
			return nil
		}

		snapshotSeq++
		path := filepath.Join(fs.p.snapshotDir, fmt.Sprintf("frame-%06d.png", snapshotSeq))
		if err := writeSnapshot(path, frame); err != nil {
			return err
		}

		lastSnapshot = now
		logger.WithField("node", fs.Name()).Debugf("Snapshot written: %s", path)
		return nil
	})

	return fs
}

func writeSnapshot(path string, frame *Frame) error {
	mat := frame.Mat()

	if frame.Format() == FormatRGBA {
		bgr := gocv.NewMat()
		defer bgr.Close()

		if err := gocv.CvtColor(mat, &bgr, gocv.ColorRGBAToBGR); err != nil {
			return errors.Wrap(err, "failed to convert frame for snapshot")
		}
		mat = bgr
	}

	if ok := gocv.IMWrite(path, mat); !ok {
		return errors.Errorf("failed to write snapshot '%s'", path)
	}

	return nil
}

type FrameSinkParameters struct {
	snapshotDir      string
	snapshotInterval time.Duration
}

func NewFrameSinkParameters(snapshotDir string, snapshotInterval time.Duration) *FrameSinkParameters {
	return &FrameSinkParameters{
		snapshotDir:      snapshotDir,
		snapshotInterval: snapshotInterval,
	}
}
