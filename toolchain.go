package pkgforge

import (
	"context"
	"runtime"

	"github.com/docker/go-units"
	"github.com/google/shlex"
	"github.com/pdidev/pkgforge/internal/cancel"
	"github.com/pdidev/pkgforge/internal/download"
	"github.com/pdidev/pkgforge/internal/gpgctx"
	"github.com/pdidev/pkgforge/internal/procrunner"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// commandRunner is the subset of *procrunner.Runner that node builds
// depend on, accepted as an interface so tests can substitute a fake
// without spawning real subprocesses.
type commandRunner interface {
	Run(ctx context.Context, argv []string, opts procrunner.RunOpts) ([]byte, error)
}

var _ commandRunner = (*procrunner.Runner)(nil)

// Toolchain bundles the shared collaborators every PackageNode's Build
// pipeline needs: the process runner, the GPG signing context, the
// download cache, and the container registry/parallelism settings that
// shape the containerized build invocation.
type Toolchain struct {
	Bus         *cancel.Bus
	Runner      commandRunner
	GPG         *gpgctx.Context
	Downloads   *download.Cache
	Log         logrus.FieldLogger
	Registry    string
	Parallelism int
	// Verbose inherits every containerized build's stdout/stderr instead
	// of capturing it, and forces Parallelism to 1.
	Verbose bool

	// ShmSize is the container build's shared-memory size, e.g. "5g".
	// Empty defaults to "5g".
	ShmSize string
	// ExtraDockerArgs is a shell-quoted string of additional arguments
	// spliced into every containerized build invocation.
	ExtraDockerArgs string
}

func (t *Toolchain) logger() logrus.FieldLogger {
	if t.Log == nil {
		return logrus.New()
	}
	return t.Log
}

// parallelism returns the inner build concurrency forwarded as -j to the
// containerized builder: 1 in verbose mode, else the configured value,
// else the local CPU count.
func (t *Toolchain) parallelism() int {
	if t.Verbose {
		return 1
	}
	if t.Parallelism > 0 {
		return t.Parallelism
	}
	return runtime.NumCPU()
}

// buildCapture picks the output mode for the containerized build: inherit
// in verbose mode, else capture combined output for failure reporting.
func (t *Toolchain) buildCapture() procrunner.Capture {
	if t.Verbose {
		return procrunner.CaptureNone
	}
	return procrunner.CaptureCombined
}

// shmSize returns the validated shm-size string for the containerized
// build.
func (t *Toolchain) shmSize() (string, error) {
	size := t.ShmSize
	if size == "" {
		size = "5g"
	}
	if _, err := units.RAMInBytes(size); err != nil {
		return "", errors.Wrapf(err, "invalid shm size %q", size)
	}
	return size, nil
}

// extraDockerArgs splits ExtraDockerArgs into argv the same way a shell
// would, for splicing into the container invocation's argument list.
func (t *Toolchain) extraDockerArgs() ([]string, error) {
	if t.ExtraDockerArgs == "" {
		return nil, nil
	}
	args, err := shlex.Split(t.ExtraDockerArgs)
	if err != nil {
		return nil, errors.Wrap(err, "splitting extra docker args")
	}
	return args, nil
}
