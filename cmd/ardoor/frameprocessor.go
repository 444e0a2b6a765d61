package main

import (
	"github.com/pkg/errors"
)

// FrameProcessor runs every camera frame through the pipeline controller.
//
// It owns the camera frames it receives. Frames it emits own their images, so the camera frame can be released
// right away; frames without output are dropped here and never reach the display.
type FrameProcessor struct {
	*ConverterNode[CameraFrame, *Frame]
	ctrl *PipelineController
}

var _ Node = &FrameProcessor{}

func NewFrameProcessor(name string, inChan <-chan CameraFrame, ctrl *PipelineController) *FrameProcessor {
	fp := &FrameProcessor{
		ConverterNode: NewConverterNode[CameraFrame, *Frame](name, inChan),
		ctrl:          ctrl,
	}

	logger := logger.WithField("node", name)

	fp.StepFunc(func(cf CameraFrame) (*Frame, error) {
		if cf == nil {
			return nil, SkipValue
		}

		out, ok := fp.ctrl.Process(cf)
		if ok {
			out = detachFromCameraFrame(out, cf)
		}

		if err := cf.Close(); err != nil {
			if out != nil {
				_ = out.Close()
			}
			return nil, errors.Wrap(err, "failed to release camera frame")
		}

		if !ok {
			logger.Trace("Transform produced no output, frame skipped.")
			return nil, SkipValue
		}

		return out, nil
	})

	return fp
}

// detachFromCameraFrame returns a frame that stays valid after cf is closed. Pass-through frames borrow the
// color buffer of cf, and a transform may hand back the gray view of cf as its result.
func detachFromCameraFrame(out *Frame, cf CameraFrame) *Frame {
	if !out.Owned() {
		return out.Detach()
	}

	if out.Format() != FormatGray {
		return out
	}

	outMat := out.Mat()
	gray := cf.Gray()
	if outMat.Ptr() != gray.Ptr() {
		return out
	}

	// The output is the camera frame's own buffer, so it is not ours to close.
	return NewFrame(outMat, FormatGray).Detach()
}
