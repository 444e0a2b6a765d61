package main

import (
	"image"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
)

// ImageStreamViewer shows every image it receives in one slot of a fyne container.
type ImageStreamViewer struct {
	*SinkNode[image.Image]

	// onShow runs on the fyne thread after each shown image.
	onShow func()
}

var _ Node = &ImageStreamViewer{}

func NewImageStreamViewer(name string, inChan <-chan image.Image, container *fyne.Container, viewObjIdx int) *ImageStreamViewer {
	isv := &ImageStreamViewer{
		SinkNode: NewSinkNode[image.Image](name, inChan),
	}

	var viewImg *canvas.Image

	isv.StepFunc(func(img image.Image) error {
		if img == nil {
			return nil
		}

		fyne.Do(func() {
			showImage(container, viewObjIdx, &viewImg, img)
			if isv.onShow != nil {
				isv.onShow()
			}
		})

		return nil
	})

	return isv
}

func (isv *ImageStreamViewer) OnShow(fn func()) *ImageStreamViewer {
	isv.onShow = fn
	return isv
}

// showImage puts img into the container slot, reusing the canvas image after the first call. Must run on the
// fyne thread.
func showImage(container *fyne.Container, objIdx int, viewImg **canvas.Image, img image.Image) {
	if *viewImg != nil {
		(*viewImg).Image = img
		(*viewImg).Refresh()
		return
	}

	imgBounds := img.Bounds()
	imgSize := fyne.NewSize(float32(imgBounds.Dx()), float32(imgBounds.Dy()))
	*viewImg = canvas.NewImageFromImage(img)
	(*viewImg).SetMinSize(imgSize)
	(*viewImg).FillMode = canvas.ImageFillContain
	container.Objects[objIdx] = *viewImg
	container.Refresh()
}
