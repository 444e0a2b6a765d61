package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
)

var TeardownTimedOut = errors.New("teardown timed out")

type namedNodes map[string]Node

type nodeResult struct {
	name string
	err  error
}

// Graph runs a set of nodes under one context. The first node to stop brings the whole graph down.
type Graph struct {
	name               string
	isRunningMu        sync.Mutex
	nodes              namedNodes
	errChan            chan error
	minTeardownTimeout time.Duration
}

// The Graph is a Node.
//
// This allows for nesting Graphs inside Graphs.
var _ Node = &Graph{}

func NewGraph(name string) *Graph {
	return &Graph{
		name:               name,
		isRunningMu:        sync.Mutex{},
		nodes:              make(namedNodes, 0),
		errChan:            make(chan error, 1),
		minTeardownTimeout: 1 * time.Second,
	}
}

func (g *Graph) Name() string {
	return g.name
}

func (g *Graph) SetNode(node Node) {
	g.isRunningMu.Lock()
	defer g.isRunningMu.Unlock()

	g.nodes[node.Name()] = node
}

func (g *Graph) SetNodes(nodes ...Node) {
	g.isRunningMu.Lock()
	defer g.isRunningMu.Unlock()

	for _, node := range nodes {
		g.nodes[node.Name()] = node
	}
}

func (g *Graph) Run(ctx context.Context) {
	go g.loop(ctx)
}

func (g *Graph) Err() <-chan error {
	return g.errChan
}

func (g *Graph) teardownTimeoutForNNodes(n int) time.Duration {
	if n <= 1 {
		return g.minTeardownTimeout
	}

	return g.minTeardownTimeout + time.Duration(math.Log10(float64(n))*float64(time.Second))
}

// isGracefulStop tells whether a node stopped because the graph is going down or its input ran out.
func isGracefulStop(err error) bool {
	return err == nil ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, ReceivedNothing)
}

func (g *Graph) loop(parentCtx context.Context) {
	g.isRunningMu.Lock()
	defer g.isRunningMu.Unlock()

	logger := logger.WithField("graph", g.name)

	nodeCtx, cancelNodeCtx := context.WithCancel(parentCtx)
	defer cancelNodeCtx()

	stopped := make(chan nodeResult, len(g.nodes))
	for nodeName, node := range g.nodes {
		node.Run(nodeCtx)
		go func(name string, node Node) {
			stopped <- nodeResult{name: name, err: <-node.Err()}
		}(nodeName, node)
	}

	running := len(g.nodes)
	nodeErrs := make(map[string]error, 0)

	var mainLoopErr error
	select {
	case <-parentCtx.Done():
		logger.Trace("Graph context done.")

	case res := <-stopped:
		running--
		if isGracefulStop(res.err) {
			logger.WithField("node", res.name).Debugf("Node finished: %v", res.err)
		} else {
			logger.
				WithField("node", res.name).
				WithError(res.err).
				Errorf("Node error")

			nodeErrs[res.name] = res.err
			mainLoopErr = errors.New("Node error")
		}
	}

	var teardownErr error
	if running > 0 {
		cancelNodeCtx()
		teardownTimeout := time.NewTimer(g.teardownTimeoutForNNodes(running))
		defer teardownTimeout.Stop()

	TEARDOWN_LOOP:
		for running > 0 {
			select {
			case <-teardownTimeout.C:
				logger.Warn("Teardown timeout.")
				teardownErr = TeardownTimedOut
				break TEARDOWN_LOOP

			case res := <-stopped:
				running--
				if !isGracefulStop(res.err) {
					logger.Tracef("Node '%s' error: %v", res.name, res.err)
					nodeErrs[res.name] = res.err
				}
			}
		}
	}

	var errMsg string
	if mainLoopErr != nil {
		errMsg += fmt.Sprintf("[MainLoop: %s]", mainLoopErr.Error())
	}
	if teardownErr != nil {
		errMsg += fmt.Sprintf("[TearDown: %s]", teardownErr.Error())
	}

	failedNodes := make([]string, 0, len(nodeErrs))
	for nodeName := range nodeErrs {
		failedNodes = append(failedNodes, nodeName)
	}
	sort.Strings(failedNodes)
	for _, nodeName := range failedNodes {
		errMsg += fmt.Sprintf("[Node %s: %v]", nodeName, nodeErrs[nodeName])
	}

	var err error = nil
	if errMsg != "" {
		err = errors.Errorf("Graph %s failed: %s", g.name, errMsg)
	}
	g.errChan <- err
}
