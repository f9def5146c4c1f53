package pkgforge

import (
	"fmt"

	"github.com/pdidev/pkgforge/internal/cancel"
	"github.com/pdidev/pkgforge/internal/download"
	"github.com/pdidev/pkgforge/internal/procrunner"
)

// ErrCancelled is re-exported from internal/cancel so callers outside this
// module's internal tree can match it with errors.Is without reaching into
// internal packages.
var ErrCancelled = cancel.ErrCancelled

// SubprocessFailedError and DownloadFailedError are re-exported so callers
// can type-switch on them without importing the internal packages that
// define them.
type SubprocessFailedError = procrunner.SubprocessFailedError
type DownloadFailedError = download.FailedError

// ErrDeadlockedGraph is raised by the Scheduler when waiting nodes remain
// but none are ready -- a linker invariant violation.
var ErrDeadlockedGraph = fmt.Errorf("dependency graph deadlocked: ready set is empty but nodes remain waiting")

// ConfigError wraps malformed configuration, unknown distributions, or an
// unsupported source package format.
type ConfigError struct {
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("config error: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("config error: %s", e.Reason)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// DuplicateProvidesError is raised by Link when two distinct nodes in the
// same release both declare that they produce the same binary package.
type DuplicateProvidesError struct {
	Binary  string
	Release Release
	First   string
	Second  string
}

func (e *DuplicateProvidesError) Error() string {
	return fmt.Sprintf("package %q on %s is provided by both %q and %q", e.Binary, e.Release, e.First, e.Second)
}
