package main

import (
	"context"
	"io"

	"github.com/pkg/errors"
)

type Node interface {
	Name() string
	Run(context.Context)
	Err() <-chan error
}

// lifecycle holds what every node kind has in common: a name, the error channel the graph listens on, and
// the optional setup/teardown hooks around the step loop.
type lifecycle struct {
	name     string
	errChan  chan error
	setup    func() error
	teardown func() error
}

func newLifecycle(name string) lifecycle {
	return lifecycle{
		name:     name,
		errChan:  make(chan error),
		setup:    nil, // set by SetupFunc()
		teardown: nil, // set by TeardownFunc()
	}
}

func (l *lifecycle) Name() string {
	return l.name
}

func (l *lifecycle) SetupFunc(setup func() error) {
	l.setup = setup
}

func (l *lifecycle) TeardownFunc(teardown func() error) {
	l.teardown = teardown
}

func (l *lifecycle) Err() <-chan error {
	return l.errChan
}

// run executes setup, then calls iterate until it fails, then teardown. A node reports exactly once on
// errChan: the setup error, or the loop error joined with the teardown error.
func (l *lifecycle) run(iterate func() error) {
	if l.setup != nil {
		err := l.setup()
		if err != nil {
			l.errChan <- errors.Wrap(err, "setup error")
			return
		}
	}

	var loopErr error
	for loopErr == nil {
		loopErr = iterate()
		if errors.Is(loopErr, SkipValue) {
			loopErr = nil
		}
	}

	var teardownErr error
	if l.teardown != nil {
		err := l.teardown()
		if err != nil {
			teardownErr = errors.Wrap(err, "teardown error")
		}
	}

	l.errChan <- flattenErrors(loopErr, teardownErr)
}

// sendOrRelease sends v downstream. A value that could not be sent has no other owner, so it is closed here if
// it holds resources.
func sendOrRelease[T any](ctx context.Context, outChan chan<- T, v T) error {
	err := BlockingSend(ctx, outChan, v)
	if err != nil {
		if closer, ok := any(v).(io.Closer); ok {
			_ = closer.Close()
		}
	}
	return err
}

type SourceNode[T any] struct {
	lifecycle
	outChan chan T
	step    func() (T, error)
}

var _ Node = &SourceNode[int]{}

func NewSourceNode[T any](name string) *SourceNode[T] {
	return &SourceNode[T]{
		lifecycle: newLifecycle(name),
		outChan:   make(chan T),
		step:      nil, // set by StepFunc()
	}
}

func (n *SourceNode[T]) StepFunc(step func() (T, error)) {
	n.step = step
}

func (n *SourceNode[T]) Run(ctx context.Context) {
	if n.step == nil {
		return
	}

	go n.run(func() error {
		v, err := n.step()
		if err != nil {
			return err
		}

		return sendOrRelease(ctx, n.outChan, v)
	})
}

func (n *SourceNode[T]) Stream() <-chan T {
	return n.outChan
}

type SinkNode[T any] struct {
	lifecycle
	inChan <-chan T
	step   func(T) error
}

var _ Node = &SinkNode[int]{}

func NewSinkNode[T any](name string, inChan <-chan T) *SinkNode[T] {
	return &SinkNode[T]{
		lifecycle: newLifecycle(name),
		inChan:    inChan,
		step:      nil, // set by StepFunc()
	}
}

func (n *SinkNode[T]) StepFunc(step func(T) error) {
	n.step = step
}

func (n *SinkNode[T]) Run(ctx context.Context) {
	if n.step == nil {
		return
	}

	go n.run(func() error {
		v, err := BlockingRecv(ctx, n.inChan)
		if err != nil {
			return err
		}

		return n.step(v)
	})
}

type ConverterNode[From, To any] struct {
	lifecycle
	inChan  <-chan From
	outChan chan To
	step    func(From) (To, error)
}

var _ Node = &ConverterNode[int, int]{}

func NewConverterNode[From, To any](name string, inChan <-chan From) *ConverterNode[From, To] {
	return &ConverterNode[From, To]{
		lifecycle: newLifecycle(name),
		inChan:    inChan,
		outChan:   make(chan To),
		step:      nil, // set by StepFunc()
	}
}

func (n *ConverterNode[From, To]) StepFunc(step func(From) (To, error)) {
	n.step = step
}

func (n *ConverterNode[From, To]) Run(ctx context.Context) {
	if n.step == nil {
		return
	}

	go n.run(func() error {
		v, err := BlockingRecv(ctx, n.inChan)
		if err != nil {
			return err
		}

		v2, err := n.step(v)
		if err != nil {
			return err
		}

		return sendOrRelease(ctx, n.outChan, v2)
	})
}

func (n *ConverterNode[From, To]) Stream() <-chan To {
	return n.outChan
}

// TransformerNode is a ConverterNode that keeps the value type.
type TransformerNode[T any] struct {
	*ConverterNode[T, T]
}

var _ Node = &TransformerNode[int]{}

func NewTransformerNode[T any](name string, inChan <-chan T) *TransformerNode[T] {
	return &TransformerNode[T]{
		ConverterNode: NewConverterNode[T, T](name, inChan),
	}
}
