package main

import (
	"sync"

	"github.com/pkg/errors"
)

var ErrSurfaceOutOfOrder = errors.New("surface lifecycle call out of order")

// SurfaceRenderer receives the lifecycle of a drawing surface: created once, changed whenever the size is
// (re)set, then drawn once per frame.
type SurfaceRenderer interface {
	OnSurfaceCreated()
	OnSurfaceChanged(width, height int)
	OnDrawFrame()
}

type surfaceState int8

const (
	surfaceNone surfaceState = iota
	surfaceCreated
	surfaceSized
)

func (s surfaceState) String() string {
	switch s {
	case surfaceCreated:
		return "CREATED"
	case surfaceSized:
		return "SIZED"
	default:
		return "NONE"
	}
}

// SurfaceBridge forwards lifecycle calls to a renderer and rejects the ones that come out of order. A repeated
// create starts the sequence over.
type SurfaceBridge struct {
	mu       sync.Mutex
	renderer SurfaceRenderer
	state    surfaceState
	width    int
	height   int
}

func NewSurfaceBridge(renderer SurfaceRenderer) *SurfaceBridge {
	return &SurfaceBridge{
		renderer: renderer,
		state:    surfaceNone,
	}
}

func (b *SurfaceBridge) OnSurfaceCreated() {
	b.mu.Lock()
	defer b.mu.Unlock()

	logger.WithField("surface", b.state).Info("onSurfaceCreated")
	b.state = surfaceCreated
	b.width, b.height = 0, 0
	b.renderer.OnSurfaceCreated()
}

func (b *SurfaceBridge) OnSurfaceChanged(width, height int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == surfaceNone {
		return errors.Wrapf(ErrSurfaceOutOfOrder, "onSurfaceChanged(%d, %d) before onSurfaceCreated", width, height)
	}
	if width <= 0 || height <= 0 {
		return errors.Errorf("invalid surface size %dx%d", width, height)
	}

	logger.WithField("surface", b.state).Infof("onSurfaceChanged(%d, %d)", width, height)
	b.state = surfaceSized
	b.width, b.height = width, height
	b.renderer.OnSurfaceChanged(width, height)
	return nil
}

func (b *SurfaceBridge) OnDrawFrame() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != surfaceSized {
		return errors.Wrapf(ErrSurfaceOutOfOrder, "onDrawFrame in state %s", b.state)
	}

	b.renderer.OnDrawFrame()
	return nil
}

// Size is the last size passed to OnSurfaceChanged(); zero before that.
func (b *SurfaceBridge) Size() (width, height int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.width, b.height
}
