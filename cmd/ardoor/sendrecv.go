package main

import (
	"context"

	"github.com/pkg/errors"
)

var (
	ReceivedNothing = errors.New("received nothing")

	// SkipValue can be returned by a step function to drop the current value without failing the node.
	SkipValue = errors.New("value skipped")
)

func BlockingSend[T any](ctx context.Context, sendChan chan<- T, sendValue T) error {
	select {
	case <-ctx.Done():
		return context.Canceled

	case sendChan <- sendValue:
		return nil
	}
}

func BlockingRecv[T any](ctx context.Context, recvChan <-chan T) (T, error) {
	var recvValue T

	select {
	case <-ctx.Done():
		return recvValue, context.Canceled

	case v, ok := <-recvChan:
		if !ok {
			return recvValue, ReceivedNothing
		}
		return v, nil
	}
}
