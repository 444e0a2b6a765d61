package main

import (
	"context"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func recvWithin[T any](t *testing.T, ch <-chan T, d time.Duration) T {
	t.Helper()

	select {
	case v := <-ch:
		return v
	case <-time.After(d):
		t.Fatalf("nothing received within %v", d)
	}

	var zero T
	return zero
}

func countingSource(name string, n int) *SourceNode[int] {
	src := NewSourceNode[int](name)
	next := 0
	src.StepFunc(func() (int, error) {
		if next >= n {
			return 0, io.EOF
		}
		next++
		return next, nil
	})
	return src
}

func TestGraph_RunsToSourceEOF(t *testing.T) {
	src := countingSource("SRC", 6)

	double := NewConverterNode[int, int]("DOUBLE", src.Stream())
	double.StepFunc(func(v int) (int, error) {
		if v%3 == 0 {
			return 0, SkipValue
		}
		return 2 * v, nil
	})

	var got []int
	tornDown := false
	sink := NewSinkNode[int]("SINK", double.Stream())
	sink.StepFunc(func(v int) error {
		got = append(got, v)
		return nil
	})
	sink.TeardownFunc(func() error {
		tornDown = true
		return nil
	})

	g := NewGraph("TEST")
	g.SetNodes(src, double, sink)
	g.Run(context.Background())

	err := recvWithin(t, g.Err(), 5*time.Second)
	require.NoError(t, err)

	// The graph's error is only sent after every node reported, so the slice is stable here.
	assert.Equal(t, []int{2, 4, 8, 10}, got)
	assert.True(t, tornDown)
}

func TestGraph_ReportsNodeError(t *testing.T) {
	src := countingSource("SRC", 100)

	boom := errors.New("boom")
	sink := NewSinkNode[int]("SINK", src.Stream())
	sink.StepFunc(func(v int) error {
		if v == 3 {
			return boom
		}
		return nil
	})

	g := NewGraph("TEST")
	g.SetNodes(src, sink)
	g.Run(context.Background())

	err := recvWithin(t, g.Err(), 5*time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Graph TEST failed")
	assert.Contains(t, err.Error(), "[Node SINK: boom]")
}

func TestGraph_ReportsSetupError(t *testing.T) {
	src := countingSource("SRC", 100)
	src.SetupFunc(func() error {
		return errors.New("no camera")
	})
	sink := NewSinkNode[int]("SINK", src.Stream())
	sink.StepFunc(func(int) error { return nil })

	g := NewGraph("TEST")
	g.SetNodes(src, sink)
	g.Run(context.Background())

	err := recvWithin(t, g.Err(), 5*time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "setup error: no camera")
}

func TestGraph_CancelIsGraceful(t *testing.T) {
	src := NewSourceNode[int]("SRC")
	src.StepFunc(func() (int, error) {
		return 1, nil
	})
	sink := NewSinkNode[int]("SINK", src.Stream())
	sink.StepFunc(func(int) error { return nil })

	ctx, cancel := context.WithCancel(context.Background())
	g := NewGraph("TEST")
	g.SetNodes(src, sink)
	g.Run(ctx)

	time.Sleep(20 * time.Millisecond)
	cancel()

	err := recvWithin(t, g.Err(), 5*time.Second)
	assert.NoError(t, err)
}

func TestGraph_TeardownTimeout(t *testing.T) {
	g := NewGraph("TEST")
	assert.Equal(t, time.Second, g.teardownTimeoutForNNodes(0))
	assert.Equal(t, time.Second, g.teardownTimeoutForNNodes(1))
	assert.Equal(t, 2*time.Second, g.teardownTimeoutForNNodes(10))
}

func TestSendRecv(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	unbuffered := make(chan int)

	buffered := make(chan int, 1)
	require.NoError(t, BlockingSend(ctx, buffered, 7))
	v, err := BlockingRecv(ctx, buffered)
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	close(buffered)
	_, err = BlockingRecv(ctx, buffered)
	assert.ErrorIs(t, err, ReceivedNothing)

	cancel()
	assert.ErrorIs(t, BlockingSend(ctx, unbuffered, 1), context.Canceled)
	_, err = BlockingRecv(ctx, unbuffered)
	assert.ErrorIs(t, err, context.Canceled)
}

type closeCounter struct {
	closed atomic.Int32
}

func (c *closeCounter) Close() error {
	c.closed.Add(1)
	return nil
}

func TestConverterNode_ReleasesUnsentValueOnCancel(t *testing.T) {
	in := make(chan int, 1)
	in <- 1

	produced := &closeCounter{}
	stepped := make(chan struct{})
	cnv := NewConverterNode[int, *closeCounter]("CNV", in)
	cnv.StepFunc(func(int) (*closeCounter, error) {
		close(stepped)
		return produced, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cnv.Run(ctx)

	// Nobody reads the output, so the send can only end by cancellation.
	recvWithin(t, stepped, 5*time.Second)
	cancel()

	err := recvWithin(t, cnv.Err(), 5*time.Second)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(1), produced.closed.Load())
}

func TestSourceNode_ReleasesUnsentFrameOnCancel(t *testing.T) {
	frame := NewOwnedFrame(matFromBytes(t, 1, 1, gocv.MatTypeCV8UC1, []byte{1}), FormatGray)

	src := NewSourceNode[*Frame]("SRC")
	sent := false
	src.StepFunc(func() (*Frame, error) {
		if sent {
			return nil, io.EOF
		}
		sent = true
		return frame, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src.Run(ctx)

	err := recvWithin(t, src.Err(), 5*time.Second)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, frame.Owned(), "the unsent frame is released")
}

func TestFlattenErrors(t *testing.T) {
	assert.NoError(t, flattenErrors())
	assert.NoError(t, flattenErrors(nil, nil))

	only := errors.New("only")
	assert.Same(t, only, flattenErrors(nil, only, nil))

	err := flattenErrors(errors.New("a"), nil, errors.New("b"))
	require.Error(t, err)
	assert.Equal(t, "a, b", err.Error())
}
