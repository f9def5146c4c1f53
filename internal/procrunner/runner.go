// Package procrunner provides the scoped external-command launcher:
// every packaging tool, signer, and the containerized builder itself are
// all invoked through the same Run call so they register with the
// cancellation bus uniformly.
package procrunner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/pdidev/pkgforge/internal/cancel"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Capture controls how a child's stdout/stderr are handled.
type Capture int

const (
	// CaptureNone inherits the parent's stdout and stderr (verbose mode).
	CaptureNone Capture = iota
	// CaptureCombined merges stdout+stderr into a single captured buffer.
	CaptureCombined
	// CaptureStdout captures stdout separately from stderr, returning
	// stdout to the caller while still capturing stderr for diagnostics.
	CaptureStdout
)

// RunOpts configures a single invocation.
type RunOpts struct {
	Cwd     string
	Env     []string
	Capture Capture
	Stdin   io.Reader

	// KillGrace is the delay between a polite Terminate and a hard Kill
	// once cancellation has been requested. Defaults to 5s when zero.
	KillGrace time.Duration
}

// SubprocessFailedError is raised when a child exits non-zero.
type SubprocessFailedError struct {
	Argv     []string
	ExitCode int
	Output   []byte
}

func (e *SubprocessFailedError) Error() string {
	return fmt.Sprintf("command %q exited with code %d", strings.Join(e.Argv, " "), e.ExitCode)
}

// Runner launches external commands and registers them with a cancellation
// Bus for the duration of their run.
type Runner struct {
	Bus *cancel.Bus
	Log logrus.FieldLogger
}

// New returns a Runner bound to bus. log may be nil, in which case a new
// logrus logger with default settings (writing to stderr) is used.
func New(bus *cancel.Bus, log logrus.FieldLogger) *Runner {
	if log == nil {
		log = logrus.New()
	}
	return &Runner{Bus: bus, Log: log}
}

// watchForHardKill polls for cancellation while a child runs. A registered
// process already receives a polite Terminate as soon as RequestCancel is
// called; this loop escalates to Kill if the process is still alive once
// the grace period elapses.
func (r *Runner) watchForHardKill(ctx context.Context, pk *procKillable, grace time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	var cancelledAt time.Time
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			cancelled := r.Bus.Requested() || ctx.Err() != nil
			if !cancelled {
				continue
			}
			if cancelledAt.IsZero() {
				cancelledAt = time.Now()
				continue
			}
			if time.Since(cancelledAt) >= grace {
				r.Log.WithField("pid", pk.proc.Pid).Warn("subprocess did not exit after grace period, sending SIGKILL")
				_ = pk.Kill()
				return
			}
		}
	}
}

type procKillable struct {
	proc *os.Process
}

func (p *procKillable) Terminate() error {
	return p.proc.Signal(syscall.SIGTERM)
}

func (p *procKillable) Kill() error {
	return p.proc.Kill()
}

// Run launches argv and waits for it to complete, honoring cancellation.
// It returns the captured stdout when opts.Capture is CaptureStdout, or the
// combined output when CaptureCombined, for attaching to any resulting
// SubprocessFailedError or for callers that parse tool output.
func (r *Runner) Run(ctx context.Context, argv []string, opts RunOpts) ([]byte, error) {
	if len(argv) == 0 {
		return nil, errors.New("procrunner: empty argv")
	}

	if err := r.Bus.Check(ctx); err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = opts.Cwd
	cmd.Env = opts.Env
	cmd.Stdin = opts.Stdin

	var combined, stdoutOnly bytes.Buffer
	switch opts.Capture {
	case CaptureNone:
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	case CaptureCombined:
		cmd.Stdout = &combined
		cmd.Stderr = &combined
	case CaptureStdout:
		cmd.Stdout = io.MultiWriter(&stdoutOnly, &combined)
		cmd.Stderr = &combined
	}

	r.Log.WithField("argv", argv).Debug("starting subprocess")

	if err := cmd.Start(); err != nil {
		return nil, errors.Wrapf(err, "failed to start %q", argv[0])
	}

	pk := &procKillable{proc: cmd.Process}
	handle := r.Bus.Register(pk)
	defer r.Bus.Unregister(handle)

	grace := opts.KillGrace
	if grace == 0 {
		grace = 5 * time.Second
	}
	stopWatch := make(chan struct{})
	defer close(stopWatch)
	go r.watchForHardKill(ctx, pk, grace, stopWatch)

	waitErr := cmd.Wait()

	if err := r.Bus.Check(ctx); err != nil {
		return nil, errors.Wrapf(err, "command %q", strings.Join(argv, " "))
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return nil, &SubprocessFailedError{
				Argv:     argv,
				ExitCode: exitErr.ExitCode(),
				Output:   combined.Bytes(),
			}
		}
		return nil, errors.Wrapf(waitErr, "failed running %q", strings.Join(argv, " "))
	}

	switch opts.Capture {
	case CaptureStdout:
		return stdoutOnly.Bytes(), nil
	case CaptureCombined:
		return combined.Bytes(), nil
	default:
		return nil, nil
	}
}
