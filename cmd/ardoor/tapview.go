package main

import (
	"image/color"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
)

// tapLayer is a transparent widget that reports taps anywhere on the view below it.
type tapLayer struct {
	widget.BaseWidget
	onTap func()
}

var _ fyne.Tappable = &tapLayer{}

func newTapLayer(onTap func()) *tapLayer {
	t := &tapLayer{onTap: onTap}
	t.ExtendBaseWidget(t)
	return t
}

func (t *tapLayer) Tapped(_ *fyne.PointEvent) {
	if t.onTap != nil {
		t.onTap()
	}
}

func (t *tapLayer) CreateRenderer() fyne.WidgetRenderer {
	return widget.NewSimpleRenderer(canvas.NewRectangle(color.Transparent))
}

// NewTappableView stacks a tap layer over view.
func NewTappableView(view fyne.CanvasObject, onTap func()) *fyne.Container {
	return container.NewStack(view, newTapLayer(onTap))
}
