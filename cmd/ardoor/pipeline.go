package main

// PipelineOptions selects the optional stages between the controller and the display.
type PipelineOptions struct {
	FPSMeter bool

	// Store receives every displayed frame when set.
	Store *FrameStore
}

// AddFrameProcessing appends the frame pipeline to the graph: controller, then the optional FPS meter and
// publisher. It returns the stream of frames ready for display.
func AddFrameProcessing(g *Graph, frames <-chan CameraFrame, ctrl *PipelineController, opts PipelineOptions) <-chan *Frame {
	proc := NewFrameProcessor("PROC", frames, ctrl)
	g.SetNode(proc)
	out := proc.Stream()

	if opts.FPSMeter {
		fps := NewFPSMeter("FPS", out)
		g.SetNode(fps)
		out = fps.Stream()
	}

	if opts.Store != nil {
		pub := NewFramePublisher("PUB", out, opts.Store)
		g.SetNode(pub)
		out = pub.Stream()
	}

	return out
}
