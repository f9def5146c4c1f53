// Package pkgforge implements the parallel, dependency-aware build
// orchestrator: the intra-build dependency graph derived from
// source-package metadata, the per-package containerized build pipeline,
// and the cooperative cancellation discipline that keeps the whole fleet
// of in-flight sub-processes responsive to shutdown.
package pkgforge

import (
	"fmt"
	"strings"
)

// Release identifies one distribution family instance: a specific
// (distribution, version) pair such as "debian bookworm" or "fedora 38".
// Release is immutable once constructed.
type Release struct {
	// DistroID is the package-family identity, e.g. "debian", "ubuntu",
	// "fedora", "centos".
	DistroID string
	// IDLike is the set of families this release behaves like for the
	// purposes of dispatch -- it must contain "debian" or "fedora".
	IDLike []string
	// NumericID is the release's numeric version, e.g. 12 for bookworm or
	// 38 for Fedora 38.
	NumericID int
	// Codename is the marketing/release name, e.g. "bookworm". Empty for
	// families that don't use one.
	Codename string
	// Suite is the rolling pointer name, e.g. "stable", "testing". Empty
	// when not applicable.
	Suite string
	// Supported marks whether this release is still within its support
	// window, used by the "supported" release selector.
	Supported bool
}

// IsDebianLike reports whether this release should be dispatched to the
// Debian packaging branch (source_kind debian-quilt/debian-native, C7/C8
// Debian branch).
func (r Release) IsDebianLike() bool {
	return containsFold(r.IDLike, "debian")
}

// IsFedoraLike reports whether this release should be dispatched to the
// RPM packaging branch.
func (r Release) IsFedoraLike() bool {
	return containsFold(r.IDLike, "fedora")
}

// UID returns a filesystem-safe unique string for this release, used as a
// path component for per-node work directories and as the aptly repo key.
func (r Release) UID() string {
	if r.Codename != "" {
		return fmt.Sprintf("%s-%s", r.DistroID, r.Codename)
	}
	return fmt.Sprintf("%s-%d", r.DistroID, r.NumericID)
}

// String implements fmt.Stringer for log messages and error text, e.g.
// "debian bookworm" or "fedora 38".
func (r Release) String() string {
	if r.Codename != "" {
		return fmt.Sprintf("%s %s", r.DistroID, r.Codename)
	}
	return fmt.Sprintf("%s %d", r.DistroID, r.NumericID)
}

// Matches reports whether token -- a literal codename, suite, or numeric
// id -- identifies this release.
func (r Release) Matches(token string) bool {
	if strings.EqualFold(r.Codename, token) {
		return true
	}
	if strings.EqualFold(r.Suite, token) {
		return true
	}
	if fmt.Sprint(r.NumericID) == token {
		return true
	}
	return false
}

func containsFold(haystack []string, needle string) bool {
	for _, s := range haystack {
		if strings.EqualFold(s, needle) {
			return true
		}
	}
	return false
}
