// Package cancel implements the process-wide cooperative cancellation
// discipline used by every long-running call in the orchestrator: a single
// flag plus a registry of live sub-processes and containers.
package cancel

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
)

// ErrCancelled is returned by Check once a termination has been requested.
// Callers must treat it as a non-failure: it should not be surfaced to the
// user as an error of its own, only as the reason a node didn't finish.
var ErrCancelled = errors.New("cancelled")

// Killable is anything that can be asked to stop: an *os.Process, a
// container handle, or a test double.
type Killable interface {
	// Terminate sends a polite shutdown signal (SIGTERM, container stop).
	Terminate() error
	// Kill sends a hard shutdown signal (SIGKILL, container kill).
	Kill() error
}

// Bus is the cancellation bus. The zero value is not usable; use New.
type Bus struct {
	requested atomic.Bool

	mu   sync.Mutex
	live map[int]Killable
	next int
}

// New returns a ready-to-use Bus.
func New() *Bus {
	return &Bus{live: make(map[int]Killable)}
}

// Check fails with ErrCancelled if a termination has been requested, or if
// ctx has been cancelled. It is the sole way the core discovers
// cancellation -- nothing in this package panics or sends signals
// spontaneously.
func (b *Bus) Check(ctx context.Context) error {
	if b.requested.Load() {
		return ErrCancelled
	}
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(ErrCancelled, err.Error())
		}
	}
	return nil
}

// Requested reports whether RequestCancel has been called.
func (b *Bus) Requested() bool {
	return b.requested.Load()
}

// Register adds k to the set of live processes and returns a handle that
// must be passed to Unregister on every exit path (success, failure, or
// cancellation).
func (b *Bus) Register(k Killable) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	h := b.next
	b.next++
	b.live[h] = k
	return h
}

// Unregister removes a handle previously returned by Register. It is a
// no-op if the handle is unknown (double-unregister is tolerated).
func (b *Bus) Unregister(handle int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.live, handle)
}

// RequestCancel sets the termination flag and politely terminates every
// currently registered process. It does not wait for them to exit. It is
// idempotent: calling it more than once only re-dispatches the signal to
// whatever is still registered.
func (b *Bus) RequestCancel() {
	b.requested.Store(true)

	b.mu.Lock()
	targets := make([]Killable, 0, len(b.live))
	for _, k := range b.live {
		targets = append(targets, k)
	}
	b.mu.Unlock()

	for _, k := range targets {
		// Best-effort: a process that already exited will just error here,
		// which we deliberately ignore -- there is no one left to report to.
		_ = k.Terminate()
	}
}
