package config

import (
	"testing"

	"gotest.tools/v3/assert"
)

var catalog = []Release{
	{DistroID: "debian", Codename: "bullseye", NumericID: 11, Supported: false},
	{DistroID: "debian", Codename: "bookworm", NumericID: 12, Supported: true},
	{DistroID: "debian", Codename: "trixie", NumericID: 13, Suite: "testing", Supported: true},
}

func TestResolveReleasesLiteral(t *testing.T) {
	rs, err := ResolveReleases(catalog, []string{"bookworm"})
	assert.NilError(t, err)
	assert.Equal(t, len(rs), 1)
	assert.Equal(t, rs[0].Codename, "bookworm")
}

func TestResolveReleasesSupported(t *testing.T) {
	rs, err := ResolveReleases(catalog, []string{"supported"})
	assert.NilError(t, err)
	assert.Equal(t, len(rs), 2)
}

func TestResolveReleasesAll(t *testing.T) {
	rs, err := ResolveReleases(catalog, []string{"all"})
	assert.NilError(t, err)
	assert.Equal(t, len(rs), 3)
}

func TestResolveReleasesPlusExtendsForward(t *testing.T) {
	rs, err := ResolveReleases(catalog, []string{"bookworm", "+"})
	assert.NilError(t, err)
	assert.Equal(t, len(rs), 2)
	assert.Equal(t, rs[0].Codename, "bookworm")
	assert.Equal(t, rs[1].Codename, "trixie")
}

func TestResolveReleasesMinusExtendsBackward(t *testing.T) {
	rs, err := ResolveReleases(catalog, []string{"bookworm", "-"})
	assert.NilError(t, err)
	assert.Equal(t, len(rs), 2)
	assert.Equal(t, rs[1].Codename, "bullseye")
}

func TestResolveReleasesPlusOperatesOnImmediatePreceding(t *testing.T) {
	// "bookworm" then "bullseye" then "+" must extend only bullseye's
	// result (adding bookworm again), not the cumulative running set,
	// which would also extend bookworm forward to trixie.
	rs, err := ResolveReleases(catalog, []string{"bookworm", "bullseye", "+"})
	assert.NilError(t, err)
	names := map[string]bool{}
	for _, r := range rs {
		names[r.Codename] = true
	}
	assert.Assert(t, names["bullseye"])
	assert.Assert(t, names["bookworm"])
	assert.Assert(t, !names["trixie"])
}

func TestResolveReleasesUnknownToken(t *testing.T) {
	_, err := ResolveReleases(catalog, []string{"nosuchrelease"})
	assert.ErrorContains(t, err, "no release matches")
}

func TestResolveReleasesPlusWithoutPreceding(t *testing.T) {
	_, err := ResolveReleases(catalog, []string{"+"})
	assert.ErrorContains(t, err, "no preceding selector")
}

func TestParseFilterDistroOnly(t *testing.T) {
	f, err := ParseFilter("debian")
	assert.NilError(t, err)
	assert.Equal(t, f.Distro, "debian")
	assert.Equal(t, f.Kind, FilterAnyRelease)
}

func TestParseFilterNumericID(t *testing.T) {
	f, err := ParseFilter("fedora:38")
	assert.NilError(t, err)
	assert.Equal(t, f.Kind, FilterNumericID)
	assert.Equal(t, f.Selector, "38")
}

func TestParseFilterCodenameReclassifiedAsPackage(t *testing.T) {
	f, err := ParseFilter("debian:widget")
	assert.NilError(t, err)
	assert.Equal(t, f.Kind, FilterCodename)

	f = f.Reclassify(false, true)
	assert.Equal(t, f.Kind, FilterPackageName)
}

func TestParseFilterEmptySelector(t *testing.T) {
	_, err := ParseFilter("debian:")
	assert.ErrorContains(t, err, "empty selector")
}
