package main

import (
	"image"
	"testing"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/layout"
	fynetest "fyne.io/fyne/v2/test"
	"fyne.io/fyne/v2/widget"
	"github.com/stretchr/testify/assert"
)

func newTestPlayer(t *testing.T, ctrl *PipelineController) *CameraPlayer {
	t.Helper()

	a := fynetest.NewTempApp(t)
	win := a.NewWindow("test")
	t.Cleanup(win.Close)

	return NewCameraPlayer(win, widget.NewToolbar(), NewVideoSourceParameters("0", false, false), ctrl, nil)
}

func TestCameraPlayer_ModeLabelFollowsController(t *testing.T) {
	ctrl := NewPipelineController(cloneTransformer(), false)
	cp := newTestPlayer(t, ctrl)
	assert.Equal(t, "Mode: transform", cp.modeLabel.Text)

	// A toggle from outside the window, e.g. POST /toggle.
	ctrl.TogglePassThrough()
	assert.Equal(t, "Mode: transform", cp.modeLabel.Text)

	cp.refreshModeLabel()
	assert.Equal(t, "Mode: pass-through", cp.modeLabel.Text)

	cp.toggleMode()
	assert.False(t, ctrl.PassThrough())
	assert.Equal(t, "Mode: transform", cp.modeLabel.Text)
}

func TestImageStreamViewer_OnShow(t *testing.T) {
	fynetest.NewTempApp(t)

	view := container.New(layout.NewCenterLayout(), DefaultNoSignalImage(fyne.NewSize(4, 4)))
	shown := make(chan struct{}, 1)
	isv := NewImageStreamViewer("VIEW", nil, view, 0).OnShow(func() {
		shown <- struct{}{}
	})

	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	assert.NoError(t, isv.step(img))
	recvWithin(t, shown, 5*time.Second)

	// Nil images are not shown.
	assert.NoError(t, isv.step(nil))
	assert.Empty(t, shown)
}
