package main

import (
	"sync/atomic"
)

// PipelineController decides per frame whether to show the camera image as is or its transform.
//
// The mode flag is written by the UI (tap, HTTP) and read by the frame thread, once per frame. A toggle that
// races with an in-flight Process() applies to that frame or to the next one.
type PipelineController struct {
	transformer Transformer
	passThrough atomic.Bool

	processed   atomic.Uint64
	passed      atomic.Uint64
	transformed atomic.Uint64
	noOutput    atomic.Uint64
}

// ControllerStats is a snapshot of the controller counters.
type ControllerStats struct {
	PassThrough bool   `json:"pass_through"`
	Processed   uint64 `json:"processed"`
	Passed      uint64 `json:"passed"`
	Transformed uint64 `json:"transformed"`
	NoOutput    uint64 `json:"no_output"`
}

func NewPipelineController(transformer Transformer, passThrough bool) *PipelineController {
	pc := &PipelineController{
		transformer: transformer,
	}
	pc.passThrough.Store(passThrough)

	return pc
}

// Process returns the frame to display for one camera frame.
//
// In pass-through mode it is the color image of the camera frame, borrowed from it. Otherwise the gray image
// goes through the transformer and the result is a new frame owning the transformer's output. ok is false when
// the transformer produced nothing; the caller must skip display then.
func (pc *PipelineController) Process(frame CameraFrame) (out *Frame, ok bool) {
	pc.processed.Add(1)

	if pc.passThrough.Load() {
		pc.passed.Add(1)
		return NewFrame(frame.RGBA(), FormatRGBA), true
	}

	mat, ok := pc.transformer.Transform(frame.Gray())
	if !ok {
		pc.noOutput.Add(1)
		return nil, false
	}

	pc.transformed.Add(1)
	return NewOwnedFrame(mat, FormatGray), true
}

// TogglePassThrough flips the mode and returns the new one.
func (pc *PipelineController) TogglePassThrough() bool {
	for {
		old := pc.passThrough.Load()
		if pc.passThrough.CompareAndSwap(old, !old) {
			return !old
		}
	}
}

func (pc *PipelineController) SetPassThrough(passThrough bool) {
	pc.passThrough.Store(passThrough)
}

func (pc *PipelineController) PassThrough() bool {
	return pc.passThrough.Load()
}

func (pc *PipelineController) Stats() ControllerStats {
	return ControllerStats{
		PassThrough: pc.passThrough.Load(),
		Processed:   pc.processed.Load(),
		Passed:      pc.passed.Load(),
		Transformed: pc.transformed.Load(),
		NoOutput:    pc.noOutput.Load(),
	}
}
