package localrepo

import (
	"os"
	"path/filepath"
	"testing"

	"gotest.tools/v3/assert"
)

func TestRPMArch(t *testing.T) {
	cases := map[string]string{
		"widget-1.0-1.el9.x86_64.rpm": "x86_64",
		"widget-1.0-1.el9.noarch.rpm": "noarch",
		"widget-1.0-1.el9.src.rpm":    "src",
		"widget":                      "noarch",
	}
	for name, want := range cases {
		assert.Equal(t, rpmArch(name), want)
	}
}

func TestReleaseUID(t *testing.T) {
	r := Release{DistroID: "fedora", NumericID: 38}
	assert.Equal(t, r.UID(), "fedora-38")

	r2 := Release{DistroID: "debian", Codename: "bookworm"}
	assert.Equal(t, r2.UID(), "debian-bookworm")
}

func TestLinkOrCopy(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	assert.NilError(t, os.WriteFile(src, []byte("hello"), 0o644))

	dest := filepath.Join(dir, "dest.txt")
	assert.NilError(t, linkOrCopy(src, dest))

	got, err := os.ReadFile(dest)
	assert.NilError(t, err)
	assert.Equal(t, string(got), "hello")
}

func TestLinkOrCopyPropagatesLinkErrors(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	assert.NilError(t, os.WriteFile(src, []byte("hello"), 0o644))

	// Destination directory does not exist: not a cross-device error, so
	// the failure must surface instead of being masked by a copy attempt.
	err := linkOrCopy(src, filepath.Join(dir, "missing", "dest.txt"))
	assert.Assert(t, err != nil)
}

func TestRenderDebianDocs(t *testing.T) {
	dir := t.TempDir()
	err := renderDebianDocs(dir, ArchiveInfo{Name: "widget-repo", URL: "https://pkg.example.com", Description: "Widget packages."}, []Release{
		{DistroID: "debian", Codename: "bookworm"},
	})
	assert.NilError(t, err)

	readme, err := os.ReadFile(filepath.Join(dir, "README.md"))
	assert.NilError(t, err)
	assert.Assert(t, len(readme) > 0)

	install, err := os.ReadFile(filepath.Join(dir, "INSTALL-bookworm.md"))
	assert.NilError(t, err)
	assert.Assert(t, len(install) > 0)
}
