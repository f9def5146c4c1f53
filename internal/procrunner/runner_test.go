package procrunner_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pdidev/pkgforge/internal/cancel"
	"github.com/pdidev/pkgforge/internal/procrunner"
	"gotest.tools/v3/assert"
)

func TestRunCapturesStdout(t *testing.T) {
	r := procrunner.New(cancel.New(), nil)
	out, err := r.Run(context.Background(), []string{"echo", "hello"}, procrunner.RunOpts{Capture: procrunner.CaptureStdout})
	assert.NilError(t, err)
	assert.Equal(t, string(out), "hello\n")
}

func TestRunNonZeroExit(t *testing.T) {
	r := procrunner.New(cancel.New(), nil)
	_, err := r.Run(context.Background(), []string{"sh", "-c", "echo boom >&2; exit 3"}, procrunner.RunOpts{Capture: procrunner.CaptureCombined})

	var failed *procrunner.SubprocessFailedError
	assert.Assert(t, errors.As(err, &failed))
	assert.Equal(t, failed.ExitCode, 3)
	assert.Equal(t, string(failed.Output), "boom\n")
}

func TestRunRejectsWhenAlreadyCancelled(t *testing.T) {
	bus := cancel.New()
	bus.RequestCancel()
	r := procrunner.New(bus, nil)

	_, err := r.Run(context.Background(), []string{"true"}, procrunner.RunOpts{})
	assert.ErrorIs(t, err, cancel.ErrCancelled)
}

func TestRunEscalatesToHardKill(t *testing.T) {
	bus := cancel.New()
	r := procrunner.New(bus, nil)

	done := make(chan error, 1)
	go func() {
		_, err := r.Run(context.Background(), []string{"sh", "-c", "trap '' TERM; sleep 5"}, procrunner.RunOpts{
			Capture:   procrunner.CaptureCombined,
			KillGrace: 100 * time.Millisecond,
		})
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	bus.RequestCancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("process was not hard-killed within the expected window")
	}
}
