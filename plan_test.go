package pkgforge

import (
	"testing"

	"github.com/pdidev/pkgforge/internal/config"
	"gotest.tools/v3/assert"
)

var planReleases = []Release{
	{DistroID: "debian", IDLike: []string{"debian"}, NumericID: 11, Codename: "bullseye", Suite: "oldstable"},
	{DistroID: "debian", IDLike: []string{"debian"}, NumericID: 12, Codename: "bookworm", Suite: "stable"},
	{DistroID: "ubuntu", IDLike: []string{"debian", "ubuntu"}, NumericID: 2004, Codename: "focal"},
}

func TestFilterReleasesByCodename(t *testing.T) {
	filters := []config.Filter{{Distro: "debian", Selector: "bookworm", Kind: config.FilterCodename}}

	got := filterReleases(filters, "debian", planReleases[:2])
	assert.Equal(t, len(got), 1)
	assert.Equal(t, got[0].Codename, "bookworm")
}

func TestFilterReleasesWholeDistro(t *testing.T) {
	filters := []config.Filter{{Distro: "debian", Kind: config.FilterAnyRelease}}

	got := filterReleases(filters, "debian", planReleases[:2])
	assert.Equal(t, len(got), 2)
}

func TestFilterReleasesNoFiltersPassesAll(t *testing.T) {
	got := filterReleases(nil, "debian", planReleases[:2])
	assert.Equal(t, len(got), 2)
}

func TestDistroSelected(t *testing.T) {
	filters := []config.Filter{{Distro: "debian", Kind: config.FilterAnyRelease}}

	assert.Assert(t, distroSelected(filters, "debian"))
	assert.Assert(t, !distroSelected(filters, "fedora"))
	assert.Assert(t, distroSelected(nil, "fedora"))
}

func TestReleaseDisabled(t *testing.T) {
	disabled := []Release{planReleases[0]}

	assert.Assert(t, releaseDisabled(disabled, planReleases[0]))
	assert.Assert(t, !releaseDisabled(disabled, planReleases[1]))
}

func TestPackageSelected(t *testing.T) {
	filters := []config.Filter{{Distro: "debian", Selector: "widget", Kind: config.FilterPackageName}}

	assert.Assert(t, packageSelected(filters, "debian", "widget"))
	assert.Assert(t, !packageSelected(filters, "debian", "gadget"))
	// No package-name filter for this distro: everything is planned.
	assert.Assert(t, packageSelected(filters, "fedora", "gadget"))
	assert.Assert(t, packageSelected(nil, "debian", "gadget"))
}

func TestCatalogFor(t *testing.T) {
	got := catalogFor(planReleases, "ubuntu")
	assert.Equal(t, len(got), 1)
	assert.Equal(t, got[0].Codename, "focal")
}
