package pkgforge

import (
	"context"
	"errors"
	"testing"

	"gotest.tools/v3/assert"
	"k8s.io/apimachinery/pkg/util/sets"
)

type fakeNode struct {
	base
	provides sets.Set[string]
	requires sets.Set[string]
}

func newFakeNode(name string, rel Release, provides, requires []string) *fakeNode {
	return &fakeNode{
		base:     newBase(name, rel),
		provides: sets.New(provides...),
		requires: sets.New(requires...),
	}
}

func (n *fakeNode) SourceKind() SourceKind  { return SourceDebianNative }
func (n *fakeNode) Provides() sets.Set[string] { return n.provides }
func (n *fakeNode) Requires() sets.Set[string] { return n.requires }
func (n *fakeNode) Build(ctx context.Context, workRoot string) error { return nil }

var bookworm = Release{DistroID: "debian", IDLike: []string{"debian"}, Codename: "bookworm"}

func TestLinkWiresDirectDependencies(t *testing.T) {
	a := newFakeNode("a", bookworm, []string{"liba"}, nil)
	b := newFakeNode("b", bookworm, []string{"libb"}, []string{"liba"})
	c := newFakeNode("c", bookworm, []string{"libc"}, []string{"liba", "libb"})

	err := Link([]Node{a, b, c})
	assert.NilError(t, err)

	assert.Assert(t, a.Resolved())
	assert.Equal(t, len(a.DependsOn()), 0)

	bDeps := b.DependsOn()
	assert.Equal(t, len(bDeps), 1)
	assert.Equal(t, bDeps[0], Node(a))

	cDeps := c.DependsOn()
	assert.Equal(t, len(cDeps), 2)
}

func TestLinkUnmatchedRequireBecomesRoot(t *testing.T) {
	a := newFakeNode("a", bookworm, []string{"liba"}, []string{"libunknown"})
	err := Link([]Node{a})
	assert.NilError(t, err)
	assert.Equal(t, len(a.DependsOn()), 0)
}

func TestLinkDuplicateProvidesIsConfigError(t *testing.T) {
	a := newFakeNode("a", bookworm, []string{"libshared"}, nil)
	b := newFakeNode("b", bookworm, []string{"libshared"}, nil)

	err := Link([]Node{a, b})
	assert.Assert(t, err != nil)

	var cfgErr *ConfigError
	assert.Assert(t, errors.As(err, &cfgErr))

	var dup *DuplicateProvidesError
	assert.Assert(t, errors.As(err, &dup))
	assert.Equal(t, dup.Binary, "libshared")
}

func TestLinkSeparatesByRelease(t *testing.T) {
	trixie := Release{DistroID: "debian", IDLike: []string{"debian"}, Codename: "trixie"}

	a1 := newFakeNode("a", bookworm, []string{"liba"}, nil)
	a2 := newFakeNode("a", trixie, []string{"liba"}, nil)

	err := Link([]Node{a1, a2})
	assert.NilError(t, err)
}
