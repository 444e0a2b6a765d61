package main

import (
	"context"
	"image"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/layout"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
)

// CameraPlayer is the camera view widget: a play/stop toolbar action, the processed view (tap to toggle the
// pipeline mode) and the settings panel.
type CameraPlayer struct {
	toolbar    *widget.Toolbar
	action     *widget.ToolbarAction
	modeAction *widget.ToolbarAction
	modeLabel  *widget.Label

	imgViewContainer *fyne.Container
	imgViewObjIdx    int
	tappableView     *fyne.Container

	settingsContainer *fyne.Container

	vsParams *VideoSourceParameters
	ctrl     *PipelineController
	graphFn  cameraGraphFunc

	states         map[state]stateDetails
	state          state
	stateChange    chan state
	cancelStateCtx context.CancelFunc
	stateErr       <-chan error
	errChan        chan error
}

// cameraGraphFunc adds the processing and display nodes to the graph, reading the source stream, and writes
// the displayed images to the view.
type cameraGraphFunc func(g *Graph, frames <-chan CameraFrame, view func(<-chan image.Image) Node)

type SettingsContainerMaker interface {
	MakeSettingsContainer(fyne.Window) *fyne.Container
}

func NewCameraPlayer(
	win fyne.Window,
	toolbar *widget.Toolbar,
	vsParams *VideoSourceParameters,
	ctrl *PipelineController,
	graphFn cameraGraphFunc,
) *CameraPlayer {
	cp := &CameraPlayer{
		toolbar:           toolbar,
		imgViewContainer:  container.New(layout.NewCenterLayout(), DefaultNoSignalImage(fyne.NewSize(640.0, 480.0))),
		imgViewObjIdx:     0,   // added the default image above as the first in imgViewContainer
		settingsContainer: nil, // set by makeSettingsContainer() below

		vsParams: vsParams,
		ctrl:     ctrl,
		graphFn:  graphFn,

		state:       stopped,
		stateChange: make(chan state),
		stateErr:    nil, // set when state loop is started; nil means "not yet started"
		errChan:     make(chan error),
	}

	cp.states = map[state]stateDetails{
		stopped: {
			name:       "STOPPED",
			buttonIcon: theme.MediaPlayIcon(),
			stateLoop:  cp.stoppedState,
		},
		playing: {
			name:       "PLAYING",
			buttonIcon: theme.MediaStopIcon(),
			stateLoop:  cp.playingState,
		},
	}

	initialIcon := cp.states[cp.state].buttonIcon
	cp.action = widget.NewToolbarAction(initialIcon, cp.changeState)
	cp.modeAction = widget.NewToolbarAction(theme.ViewRefreshIcon(), cp.toggleMode)
	cp.modeLabel = widget.NewLabel(modeName(ctrl.PassThrough()))
	cp.tappableView = NewTappableView(cp.imgViewContainer, cp.toggleMode)

	cp.makeSettingsContainer(win)

	return cp
}

func modeName(passThrough bool) string {
	if passThrough {
		return "Mode: pass-through"
	}
	return "Mode: transform"
}

func (cp *CameraPlayer) makeSettingsContainer(win fyne.Window) {
	cp.settingsContainer = container.New(layout.NewVBoxLayout(),
		widget.NewSeparator(),
		cp.vsParams.MakeSettingsContainer(win),
		widget.NewSeparator(),
		cp.modeLabel,
		widget.NewSeparator(),
	)
}

func (cp *CameraPlayer) ToolbarAction() *widget.ToolbarAction {
	return cp.action
}

func (cp *CameraPlayer) ModeToolbarAction() *widget.ToolbarAction {
	return cp.modeAction
}

func (cp *CameraPlayer) ViewContainer() *fyne.Container {
	return cp.tappableView
}

func (cp *CameraPlayer) SettingsContainer() *fyne.Container {
	return cp.settingsContainer
}

func (cp *CameraPlayer) Run(ctx context.Context) {
	cp.runState()
	go cp.loop(ctx)
}

func (cp *CameraPlayer) Err() <-chan error {
	return cp.errChan
}

func (cp *CameraPlayer) toggleMode() {
	passThrough := cp.ctrl.TogglePassThrough()
	logger.WithField("widget", "PLAYER").Infof("Pass-through: %v", passThrough)
	cp.refreshModeLabel()
}

// refreshModeLabel shows the controller's current mode, which the HTTP sink may have changed since the last
// frame. Must run on the fyne thread.
func (cp *CameraPlayer) refreshModeLabel() {
	text := modeName(cp.ctrl.PassThrough())
	if cp.modeLabel.Text != text {
		cp.modeLabel.SetText(text)
	}
}

func (cp *CameraPlayer) loop(ctx context.Context) {
	logger := logger.WithField("widget", "PLAYER")

	for {
		select {
		case <-ctx.Done():
			cp.cancelStateCtx()
			cp.errChan <- nil
			return

		case newState := <-cp.stateChange:
			cp.switchState(newState)

		case err := <-cp.stateErr:
			if err != nil {
				logger.WithError(err).Tracef("State error.")
				cp.errChan <- err
				return
			}

			logger.Tracef("State terminated successfully.")
			if cp.state != stopped {
				cp.switchState(stopped)
			} else {
				cp.stateErr = nil
			}
		}
	}
}

func (cp *CameraPlayer) changeState() {
	var newState state
	switch cp.state {
	case stopped:
		newState = playing
	default:
		newState = stopped
	}

	cp.changeStateTo(newState)
}

func (cp *CameraPlayer) changeStateTo(newState state) {
	if newState == cp.state {
		return
	}

	go func() {
		cp.stateChange <- newState
	}()
}

func (cp *CameraPlayer) switchState(newState state) {
	cp.cancelStateCtx()

	logger.Tracef("Switching from state '%s' to state '%s' ...",
		cp.states[cp.state].name, cp.states[newState].name)
	cp.state = newState

	fyne.Do(func() {
		cp.action.Icon = cp.states[newState].buttonIcon
		cp.toolbar.Refresh()
	})

	cp.runState()
}

func (cp *CameraPlayer) runState() {
	stateCtx, cancel := context.WithCancel(context.Background())
	cp.cancelStateCtx = cancel

	s := cp.states[cp.state]
	cp.stateErr = s.stateLoop(stateCtx)
}

func (cp *CameraPlayer) stoppedState(ctx context.Context) <-chan error {
	fyne.Do(func() {
		cp.imgViewContainer.Objects[cp.imgViewObjIdx] = DefaultNoSignalImage(fyne.NewSize(640.0, 480.0))
		cp.imgViewContainer.Refresh()
	})

	// Never reports; the state ends by cancellation only.
	return make(chan error)
}

func (cp *CameraPlayer) playingState(ctx context.Context) <-chan error {
	logger := logger.WithField("widget", "PLAYER")

	logger.Tracef("Creating camera graph ...")
	stream := NewGraph("CAMERA")

	src := NewCameraFrameSource("VSRC", cp.vsParams)
	stream.SetNode(src)

	cp.graphFn(stream, src.Stream(), func(images <-chan image.Image) Node {
		return NewImageStreamViewer("VIEW", images, cp.imgViewContainer, cp.imgViewObjIdx).OnShow(cp.refreshModeLabel)
	})

	logger.Tracef("Starting camera graph ...")
	stream.Run(ctx)
	return stream.Err()
}

func DefaultNoSignalImage(size fyne.Size) *canvas.Image {
	img := canvas.NewImageFromResource(theme.MediaVideoIcon())
	img.SetMinSize(size)

	return img
}

type state int8

const (
	stopped state = 0
	playing state = 1
)

type stateDetails struct {
	name       string
	buttonIcon fyne.Resource
	stateLoop  func(context.Context) <-chan error
}
