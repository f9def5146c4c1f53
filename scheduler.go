package pkgforge

import (
	"context"
	"errors"
	"runtime"
	"sync"

	"github.com/pdidev/pkgforge/internal/cancel"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// Scheduler runs a set of linked Nodes to completion, respecting their
// DependsOn edges.
type Scheduler struct {
	Bus      *cancel.Bus
	Log      logrus.FieldLogger
	WorkRoot string
	// Pool is the worker pool size. Zero means runtime.NumCPU()+1.
	Pool int
}

// NewScheduler returns a Scheduler bound to bus, logging with log (nil for
// a new default logrus logger writing to stderr), running builds under
// workRoot, with the given
// worker pool size (0 for the default of runtime.NumCPU()+1).
func NewScheduler(bus *cancel.Bus, log logrus.FieldLogger, workRoot string, pool int) *Scheduler {
	if log == nil {
		log = logrus.New()
	}
	return &Scheduler{Bus: bus, Log: log, WorkRoot: workRoot, Pool: pool}
}

type completion struct {
	node Node
	err  error
}

// Run submits nodes respecting their dependency edges until every node has
// finished, failed, or been skipped, or until ErrDeadlockedGraph or the
// first node failure is returned. Nodes must already have been through
// Link.
func (s *Scheduler) Run(ctx context.Context, nodes []Node) error {
	pool := s.Pool
	if pool <= 0 {
		pool = runtime.NumCPU() + 1
	}
	sem := semaphore.NewWeighted(int64(pool))

	waiting := make(map[Node]bool, len(nodes))
	for _, n := range nodes {
		waiting[n] = true
	}

	results := make(chan completion, len(nodes))
	var wg sync.WaitGroup
	inFlight := 0

	var firstErr error

	submit := func(n Node) {
		delete(waiting, n)
		inFlight++
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = sem.Acquire(ctx, 1)
			defer sem.Release(1)
			err := n.Build(ctx, s.WorkRoot)
			results <- completion{node: n, err: err}
		}()
	}

	submitReady := func() {
		for n := range waiting {
			if Ready(n) {
				submit(n)
			}
		}
	}

	submitReady()

	for len(waiting) > 0 || inFlight > 0 {
		if inFlight == 0 && firstErr == nil {
			return ErrDeadlockedGraph
		}
		if inFlight == 0 {
			break
		}

		c := <-results
		inFlight--

		if c.err != nil && !errors.Is(c.err, cancel.ErrCancelled) {
			s.Log.WithFields(logrus.Fields{
				"package": c.node.Name(),
				"release": c.node.Release().String(),
			}).WithError(c.err).Error("node build failed")

			if firstErr == nil {
				firstErr = c.err
				s.Bus.RequestCancel()
			}
		}

		if firstErr == nil {
			submitReady()
		}
	}

	wg.Wait()
	return firstErr
}
