package pkgforge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"k8s.io/apimachinery/pkg/util/sets"
)

// Discover constructs the PackageNode for <repoRoot>/<name> against
// release: a debian/control file means a Debian node, a <name>.spec file
// means an RPM node, and the absence of either produces a node that
// trivially skips.
func Discover(ctx context.Context, repoRoot, name string, release Release, tc *Toolchain, origURLTemplate string) (Node, error) {
	srcDir := filepath.Join(repoRoot, name)
	controlPath := filepath.Join(srcDir, "debian", "control")
	specPath := filepath.Join(srcDir, name+".spec")

	if _, err := os.Stat(controlPath); err == nil {
		stanzas, err := parseControl(controlPath)
		if err != nil {
			return nil, fmt.Errorf("discovering %s: %w", name, err)
		}
		provides, requires := debianProvidesRequires(stanzas)
		return &debianNode{
			base:        newBase(name, release),
			srcDir:      srcDir,
			provides:    provides,
			requires:    requires,
			tc:          tc,
			origURLTmpl: origURLTemplate,
		}, nil
	}

	if _, err := os.Stat(specPath); err == nil {
		provides, requires, err := rpmProvidesRequires(ctx, tc.Runner, specPath)
		if err != nil {
			return nil, fmt.Errorf("discovering %s: %w", name, err)
		}
		return &rpmNode{
			base:     newBase(name, release),
			srcDir:   srcDir,
			specPath: specPath,
			provides: provides,
			requires: requires,
			tc:       tc,
		}, nil
	}

	return &absentNode{
		base:     newBase(name, release),
		provides: sets.New[string](),
		requires: sets.New[string](),
	}, nil
}

// absentNode implements Node for a declared package with neither a
// debian/control nor a <name>.spec present. Its build trivially skips.
type absentNode struct {
	base
	provides sets.Set[string]
	requires sets.Set[string]
}

func (n *absentNode) SourceKind() SourceKind     { return SourceAbsent }
func (n *absentNode) Provides() sets.Set[string] { return n.provides }
func (n *absentNode) Requires() sets.Set[string] { return n.requires }

func (n *absentNode) Build(ctx context.Context, workRoot string) error {
	n.setState(StateSkipped)
	return nil
}
