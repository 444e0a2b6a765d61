package main

import (
	"image"

	"github.com/pkg/errors"
)

// FrameConverter hands frames over to image.Image based sinks. It is the last owner of the frame, so it
// releases it once the image is copied out.
type FrameConverter struct {
	*ConverterNode[*Frame, image.Image]
}

var _ Node = &FrameConverter{}

func NewFrameConverter(name string, inChan <-chan *Frame) *FrameConverter {
	fc := &FrameConverter{
		ConverterNode: NewConverterNode[*Frame, image.Image](name, inChan),
	}

	fc.StepFunc(func(frame *Frame) (image.Image, error) {
		if frame == nil {
			return nil, SkipValue
		}

		img, err := frameToImage(frame)
		closeErr := frame.Close()
		if err != nil {
			return nil, errors.Wrap(err, "failed to convert frame")
		}
		if closeErr != nil {
			return nil, errors.Wrap(closeErr, "failed to release frame")
		}

		return img, nil
	})

	return fc
}

// frameToImage copies the frame into an image.Image. RGBA frames are copied byte by byte, since gocv reads
// four-channel mats as BGRA.
func frameToImage(frame *Frame) (image.Image, error) {
	mat := frame.Mat()
	if frame.Format() != FormatRGBA {
		return mat.ToImage()
	}

	img := image.NewRGBA(image.Rect(0, 0, mat.Cols(), mat.Rows()))
	data := mat.ToBytes()
	if len(data) != len(img.Pix) {
		return nil, errors.Errorf("RGBA frame has %d bytes, expected %d", len(data), len(img.Pix))
	}
	copy(img.Pix, data)

	return img, nil
}
