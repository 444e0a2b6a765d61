package main

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func TestPixelFormat(t *testing.T) {
	assert.Equal(t, "BGR", FormatBGR.String())
	assert.Equal(t, "RGBA", FormatRGBA.String())
	assert.Equal(t, "GRAY", FormatGray.String())
	assert.Equal(t, "UNKNOWN", FormatUnknown.String())

	assert.Equal(t, 3, FormatBGR.Channels())
	assert.Equal(t, 4, FormatRGBA.Channels())
	assert.Equal(t, 1, FormatGray.Channels())
	assert.Zero(t, FormatUnknown.Channels())
}

func TestFrame_BorrowedCloseKeepsMat(t *testing.T) {
	mat := matFromBytes(t, 1, 2, gocv.MatTypeCV8UC1, []byte{1, 2})
	defer mat.Close()

	f := NewFrame(mat, FormatGray)
	require.NoError(t, f.Close())

	assert.False(t, mat.Empty())
	assert.Equal(t, []byte{1, 2}, mat.ToBytes())
}

func TestFrame_OwnedCloseOnce(t *testing.T) {
	f := NewOwnedFrame(matFromBytes(t, 1, 2, gocv.MatTypeCV8UC1, []byte{1, 2}), FormatGray)

	assert.True(t, f.Owned())
	require.NoError(t, f.Close())
	assert.False(t, f.Owned())
	assert.NoError(t, f.Close())
}

func TestFrame_Detach(t *testing.T) {
	mat := matFromBytes(t, 2, 1, gocv.MatTypeCV8UC4, []byte{1, 2, 3, 4, 5, 6, 7, 8})
	defer mat.Close()

	borrowed := NewFrame(mat, FormatRGBA)
	detached := borrowed.Detach()
	defer detached.Close()

	assert.NotSame(t, borrowed, detached)
	assert.True(t, detached.Owned())
	assert.Equal(t, FormatRGBA, detached.Format())
	assert.Equal(t, mat.ToBytes(), frameBytes(detached))

	detachedMat := detached.Mat()
	assert.False(t, detachedMat.Ptr() == mat.Ptr())

	// Detaching an owned frame is a no-op.
	assert.Same(t, detached, detached.Detach())
}

func TestCapturedFrame_Views(t *testing.T) {
	cf := newCapturedFrame(matFromBytes(t, 2, 2, gocv.MatTypeCV8UC3, solidBGR(2, 2, 10, 20, 30)))

	rgba := cf.RGBA()
	assert.Equal(t, 4, rgba.Channels())
	assert.Equal(t, []byte{30, 20, 10, 255}, rgba.ToBytes()[:4])

	gray := cf.Gray()
	assert.Equal(t, 1, gray.Channels())
	assert.InDelta(t, 22, int(gray.GetUCharAt(0, 0)), 1)

	// Views are converted once.
	again := cf.RGBA()
	assert.True(t, again.Ptr() == rgba.Ptr())

	require.NoError(t, cf.Close())
	assert.Nil(t, cf.rgba)
	assert.Nil(t, cf.gray)
}

func TestCapturedFrame_EmptyCapture(t *testing.T) {
	cf := newCapturedFrame(gocv.NewMat())
	defer cf.Close()

	gray := cf.Gray()
	assert.True(t, gray.Empty())
}

func TestFrameToImage(t *testing.T) {
	t.Run("rgba", func(t *testing.T) {
		mat := matFromBytes(t, 1, 1, gocv.MatTypeCV8UC4, []byte{30, 20, 10, 255})
		defer mat.Close()

		img, err := frameToImage(NewFrame(mat, FormatRGBA))
		require.NoError(t, err)
		assert.Equal(t, color.RGBA{R: 30, G: 20, B: 10, A: 255}, color.RGBAModel.Convert(img.At(0, 0)))
	})

	t.Run("gray", func(t *testing.T) {
		mat := matFromBytes(t, 1, 2, gocv.MatTypeCV8UC1, []byte{0, 255})
		defer mat.Close()

		img, err := frameToImage(NewFrame(mat, FormatGray))
		require.NoError(t, err)
		assert.Equal(t, image.Rect(0, 0, 2, 1), img.Bounds())
		assert.Equal(t, color.Gray{Y: 255}, color.GrayModel.Convert(img.At(1, 0)))
	})
}

func TestFrameConverter_ReleasesFrame(t *testing.T) {
	fc := NewFrameConverter("CNV", nil)

	frame := NewOwnedFrame(matFromBytes(t, 1, 1, gocv.MatTypeCV8UC1, []byte{42}), FormatGray)
	img, err := fc.step(frame)
	require.NoError(t, err)

	assert.Equal(t, color.Gray{Y: 42}, color.GrayModel.Convert(img.At(0, 0)))
	assert.False(t, frame.Owned())

	_, err = fc.step(nil)
	assert.ErrorIs(t, err, SkipValue)
}
