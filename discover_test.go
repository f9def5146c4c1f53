package pkgforge

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"gotest.tools/v3/assert"
)

func TestDiscoverAbsentNodeSkips(t *testing.T) {
	repoRoot := t.TempDir()
	assert.NilError(t, os.MkdirAll(filepath.Join(repoRoot, "ghost"), 0o755))

	n, err := Discover(context.Background(), repoRoot, "ghost", bookworm, &Toolchain{}, "")
	assert.NilError(t, err)
	assert.Equal(t, n.SourceKind(), SourceAbsent)
	assert.Equal(t, n.Provides().Len(), 0)

	assert.NilError(t, n.Build(context.Background(), t.TempDir()))
	assert.Equal(t, n.State(), StateSkipped)
	assert.Equal(t, n.OutDir(), "")
}

func TestDiscoverDebianNode(t *testing.T) {
	repoRoot := t.TempDir()
	debianDir := filepath.Join(repoRoot, "widget", "debian")
	assert.NilError(t, os.MkdirAll(debianDir, 0o755))
	assert.NilError(t, os.WriteFile(filepath.Join(debianDir, "control"), []byte(sampleControl), 0o644))

	n, err := Discover(context.Background(), repoRoot, "widget", bookworm, &Toolchain{}, "")
	assert.NilError(t, err)
	assert.Equal(t, n.SourceKind(), SourceDebianQuilt)
	assert.Assert(t, n.Provides().Has("widget"))
	assert.Assert(t, n.Provides().Has("libwidget1"))
	assert.Assert(t, n.Requires().Has("cmake"))
	assert.Equal(t, n.State(), StatePending)
	assert.Assert(t, !n.Resolved())
}

func TestUnresolvedNodeIsNeverReady(t *testing.T) {
	n := newFakeNode("a", bookworm, []string{"liba"}, nil)
	assert.Assert(t, !Ready(n))

	n.SetDependsOn(nil)
	assert.Assert(t, Ready(n))
}

func TestClosureIncludesTransitiveDeps(t *testing.T) {
	a := newFakeNode("a", bookworm, []string{"liba"}, nil)
	b := newFakeNode("b", bookworm, []string{"libb"}, []string{"liba"})
	c := newFakeNode("c", bookworm, []string{"libc"}, []string{"libb"})
	assert.NilError(t, Link([]Node{a, b, c}))

	closure := Closure(c)
	assert.Equal(t, len(closure), 3)

	names := map[string]bool{}
	for _, n := range closure {
		names[n.Name()] = true
	}
	assert.Assert(t, names["a"] && names["b"] && names["c"])
}
