package main

import (
	"image"
	"image/color"
	"io"
	"testing"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

type recordingRenderer struct {
	calls []string
}

func (r *recordingRenderer) OnSurfaceCreated() {
	r.calls = append(r.calls, "created")
}

func (r *recordingRenderer) OnSurfaceChanged(width, height int) {
	r.calls = append(r.calls, "changed")
}

func (r *recordingRenderer) OnDrawFrame() {
	r.calls = append(r.calls, "draw")
}

func TestSurfaceBridge_Ordering(t *testing.T) {
	renderer := &recordingRenderer{}
	bridge := NewSurfaceBridge(renderer)

	assert.ErrorIs(t, bridge.OnSurfaceChanged(640, 480), ErrSurfaceOutOfOrder)
	assert.ErrorIs(t, bridge.OnDrawFrame(), ErrSurfaceOutOfOrder)

	bridge.OnSurfaceCreated()
	assert.ErrorIs(t, bridge.OnDrawFrame(), ErrSurfaceOutOfOrder)
	assert.Error(t, bridge.OnSurfaceChanged(0, 480))

	require.NoError(t, bridge.OnSurfaceChanged(640, 480))
	require.NoError(t, bridge.OnDrawFrame())
	require.NoError(t, bridge.OnDrawFrame())

	w, h := bridge.Size()
	assert.Equal(t, 640, w)
	assert.Equal(t, 480, h)

	// A new surface starts the sequence over.
	bridge.OnSurfaceCreated()
	assert.ErrorIs(t, bridge.OnDrawFrame(), ErrSurfaceOutOfOrder)
	w, h = bridge.Size()
	assert.Zero(t, w)
	assert.Zero(t, h)

	assert.Equal(t, []string{"created", "changed", "draw", "draw", "created"}, renderer.calls)
}

func hookLogger(t *testing.T) *test.Hook {
	t.Helper()

	prev := logger
	logger = newLogger(io.Discard, logrus.TraceLevel)
	hook := test.NewLocal(logger)
	t.Cleanup(func() {
		logger = prev
	})
	return hook
}

func errorEntries(hook *test.Hook) []logrus.Entry {
	var entries []logrus.Entry
	for _, entry := range hook.AllEntries() {
		if entry.Level <= logrus.ErrorLevel {
			entries = append(entries, *entry)
		}
	}
	return entries
}

func TestDrainErrors(t *testing.T) {
	hook := hookLogger(t)

	q := &surfaceErrorQueue{}
	q.push(nil)
	q.push(errors.New("first"))
	q.push(errors.New("second"))

	n := DrainErrors("ARDoor::Test", "onDrawFrame", q.next)

	assert.Equal(t, 2, n)
	assert.NoError(t, q.next())

	entries := hook.AllEntries()
	require.Len(t, entries, 2)
	assert.Equal(t, "onDrawFrame: surface error: first", entries[0].Message)
	assert.Equal(t, "onDrawFrame: surface error: second", entries[1].Message)
	assert.Equal(t, logrus.ErrorLevel, entries[0].Level)
	assert.Equal(t, "ARDoor::Test", entries[0].Data["tag"])
}

func TestDrainErrors_EmptyQueue(t *testing.T) {
	hook := hookLogger(t)

	assert.Zero(t, DrainErrors("ARDoor::Test", "onSurfaceCreated", func() error { return nil }))
	assert.Empty(t, hook.AllEntries())
}

// fakeReader hands out copies of one BGR frame, or fails every read.
type fakeReader struct {
	t      *testing.T
	rows   int
	cols   int
	bgr    []byte
	fail   bool
	reads  int
	closed bool
}

func (r *fakeReader) Read(m *gocv.Mat) bool {
	r.reads++
	if r.fail {
		return false
	}

	frame := matFromBytes(r.t, r.rows, r.cols, gocv.MatTypeCV8UC3, append([]byte(nil), r.bgr...))
	_ = m.Close()
	*m = frame
	return true
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

func solidBGR(rows, cols int, b, g, r byte) []byte {
	data := make([]byte, 0, rows*cols*3)
	for i := 0; i < rows*cols; i++ {
		data = append(data, b, g, r)
	}
	return data
}

func TestCaptureRenderer_DrawsRGBTexture(t *testing.T) {
	hook := hookLogger(t)

	reader := &fakeReader{t: t, rows: 4, cols: 6, bgr: solidBGR(4, 6, 10, 20, 30)}
	var opened []image.Point
	open := func(sourceId string, width, height int) (frameReader, error) {
		assert.Equal(t, "0", sourceId)
		opened = append(opened, image.Pt(width, height))
		return reader, nil
	}

	var textures []image.Image
	renderer := newCaptureRenderer("0", open, func(img image.Image) {
		textures = append(textures, img)
	})
	defer func() {
		assert.NoError(t, renderer.Close())
	}()

	bridge := NewSurfaceBridge(renderer)
	bridge.OnSurfaceCreated()
	require.NoError(t, bridge.OnSurfaceChanged(640, 480))
	require.NoError(t, bridge.OnDrawFrame())

	assert.Equal(t, []image.Point{image.Pt(640, 480)}, opened)
	require.Len(t, textures, 1)

	tex := textures[0]
	assert.Equal(t, image.Rect(0, 0, textureSize, textureSize), tex.Bounds())
	assert.Equal(t, color.RGBA{R: 30, G: 20, B: 10, A: 255}, color.RGBAModel.Convert(tex.At(0, 0)))
	assert.Equal(t, color.RGBA{R: 30, G: 20, B: 10, A: 255}, color.RGBAModel.Convert(tex.At(1023, 1023)))

	assert.Empty(t, errorEntries(hook))
}

func TestCaptureRenderer_ReadFailureIsDrained(t *testing.T) {
	hook := hookLogger(t)

	reader := &fakeReader{t: t, fail: true}
	renderer := newCaptureRenderer("0", func(string, int, int) (frameReader, error) {
		return reader, nil
	}, func(image.Image) {
		t.Fatal("no texture expected")
	})
	defer renderer.Close()

	renderer.OnSurfaceCreated()
	renderer.OnSurfaceChanged(320, 240)
	renderer.OnDrawFrame()
	renderer.OnDrawFrame()

	assert.Equal(t, 2, reader.reads)
	entries := errorEntries(hook)
	require.Len(t, entries, 2)
	for _, entry := range entries {
		assert.Equal(t, "onDrawFrame: surface error: capture read returned no frame", entry.Message)
		assert.Equal(t, rendererTag, entry.Data["tag"])
	}
	assert.NoError(t, renderer.errs.next())
}

func TestCaptureRenderer_OpenFailure(t *testing.T) {
	hook := hookLogger(t)

	renderer := newCaptureRenderer("nope", func(string, int, int) (frameReader, error) {
		return nil, errors.New("no such device")
	}, func(image.Image) {
		t.Fatal("no texture expected")
	})
	defer renderer.Close()

	renderer.OnSurfaceCreated()
	renderer.OnSurfaceChanged(320, 240)
	// Without a capture a draw does nothing.
	renderer.OnDrawFrame()

	entries := errorEntries(hook)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Message, "onSurfaceChanged: surface error: cannot open capture for 320x240 surface")
}

func TestCaptureRenderer_RecreateClosesCapture(t *testing.T) {
	hookLogger(t)

	reader := &fakeReader{t: t, rows: 2, cols: 2, bgr: solidBGR(2, 2, 0, 0, 0)}
	renderer := newCaptureRenderer("0", func(string, int, int) (frameReader, error) {
		return reader, nil
	}, func(image.Image) {})
	defer renderer.Close()

	renderer.OnSurfaceCreated()
	renderer.OnSurfaceChanged(2, 2)
	assert.False(t, reader.closed)

	renderer.OnSurfaceCreated()
	assert.True(t, reader.closed)
	assert.Nil(t, renderer.capture)
}

func TestRgbMatToImage(t *testing.T) {
	gray := matFromBytes(t, 1, 2, gocv.MatTypeCV8UC1, []byte{7, 200})
	defer gray.Close()

	img, err := rgbMatToImage(gray)
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{R: 7, G: 7, B: 7, A: 255}, color.RGBAModel.Convert(img.At(0, 0)))
	assert.Equal(t, color.RGBA{R: 200, G: 200, B: 200, A: 255}, color.RGBAModel.Convert(img.At(1, 0)))

	rgba := matFromBytes(t, 1, 1, gocv.MatTypeCV8UC4, []byte{1, 2, 3, 4})
	defer rgba.Close()

	_, err = rgbMatToImage(rgba)
	assert.Error(t, err)
}
