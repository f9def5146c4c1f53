package pkgforge

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"github.com/pdidev/pkgforge/internal/cancel"
	"github.com/pdidev/pkgforge/internal/changelog"
	"github.com/pdidev/pkgforge/internal/download"
	"github.com/pdidev/pkgforge/internal/localrepo"
	"github.com/pdidev/pkgforge/internal/procrunner"
	"github.com/pkg/errors"
	"k8s.io/apimachinery/pkg/util/sets"
)

// debianNode is the Node implementation for a source package carrying a
// debian/control file.
type debianNode struct {
	base

	srcDir      string
	provides    sets.Set[string]
	requires    sets.Set[string]
	tc          *Toolchain
	origURLTmpl string

	// kind starts out as debian-quilt and is corrected to debian-native
	// once dpkg-source has reported the actual source format during Build.
	kind SourceKind
}

func (n *debianNode) SourceKind() SourceKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.kind == "" {
		return SourceDebianQuilt
	}
	return n.kind
}

func (n *debianNode) setKind(k SourceKind) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.kind = k
}

func (n *debianNode) Provides() sets.Set[string] { return n.provides }
func (n *debianNode) Requires() sets.Set[string] { return n.requires }

// debianWorkDirs is the fixed subdirectory layout every Debian build
// pipeline run creates under its per-node work directory.
type debianWorkDirs struct {
	root, output, pkg, deps, repo string
}

func newDebianWorkDirs(workRoot string, n *debianNode) debianWorkDirs {
	root := filepath.Join(workRoot, fmt.Sprintf("%s.%s.deb-build", n.name, n.release.UID()))
	return debianWorkDirs{
		root:   root,
		output: filepath.Join(root, "output"),
		pkg:    filepath.Join(root, "pkg"),
		deps:   filepath.Join(root, "deps"),
		repo:   filepath.Join(root, "repo"),
	}
}

func (n *debianNode) Build(ctx context.Context, workRoot string) error {
	log := n.tc.logger().WithField("package", n.name).WithField("release", n.release.String())

	if err := n.tc.Bus.Check(ctx); err != nil {
		n.setState(StateCancelled)
		return err
	}
	n.setState(StateBuilding)
	log.Info("building debian package")

	err := n.build(ctx, workRoot)
	switch {
	case err == nil:
		n.setState(StateFinished)
		log.Info("debian package build finished")
	case errors.Is(err, cancel.ErrCancelled):
		n.setState(StateCancelled)
	default:
		n.setState(StateFailed)
	}
	return err
}

func (n *debianNode) build(ctx context.Context, workRoot string) error {
	dirs := newDebianWorkDirs(workRoot, n)
	for _, d := range []string{dirs.output, dirs.pkg, dirs.deps, dirs.repo} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return errors.Wrapf(err, "creating %s", d)
		}
	}

	format, err := n.runner().Run(ctx, []string{"dpkg-source", "--print-format", n.srcDir}, procrunner.RunOpts{Capture: procrunner.CaptureStdout})
	if err != nil {
		return errors.Wrap(err, "querying source format")
	}
	srcFormat := strings.TrimSpace(string(format))
	var quilt bool
	switch srcFormat {
	case "3.0 (quilt)":
		quilt = true
		n.setKind(SourceDebianQuilt)
	case "3.0 (native)":
		quilt = false
		n.setKind(SourceDebianNative)
	default:
		return &ConfigError{Reason: fmt.Sprintf("unsupported source format %q for %s", srcFormat, n.name)}
	}

	origChangelog, err := os.ReadFile(filepath.Join(n.srcDir, "debian", "changelog"))
	if err != nil {
		return errors.Wrap(err, "reading debian/changelog")
	}
	top, err := changelog.ParseTop(origChangelog)
	if err != nil {
		return errors.Wrap(err, "parsing debian/changelog")
	}

	now := time.Now()
	suffix := changelog.RebuildSuffix(top, n.release.NumericID, now)
	newVersion := top.Version + suffix
	newChangelog := changelog.InsertRebuild(origChangelog, top, newVersion, n.release.String(), n.release.Codename, n.tc.GPG.UID(), now)

	upstreamVersion := upstreamVersionOf(top.Version)
	pkgDir := filepath.Join(dirs.pkg, fmt.Sprintf("%s-%s", n.name, upstreamVersion))
	if quilt {
		if err := copyTree(filepath.Join(n.srcDir, "debian"), filepath.Join(pkgDir, "debian")); err != nil {
			return errors.Wrap(err, "copying debian/ directory")
		}
		if err := n.fetchOrigTarball(ctx, dirs.pkg, upstreamVersion); err != nil {
			return err
		}
	} else {
		if err := copyTree(n.srcDir, pkgDir); err != nil {
			return errors.Wrap(err, "copying native source tree")
		}
	}
	if err := os.WriteFile(filepath.Join(pkgDir, "debian", "changelog"), newChangelog, 0o644); err != nil {
		return errors.Wrap(err, "writing rebuilt changelog")
	}

	if _, err := n.runner().Run(ctx, []string{
		"mk-build-deps", "-P" + n.release.DistroID + "," + n.release.Codename, filepath.Join(pkgDir, "debian", "control"),
	}, procrunner.RunOpts{Cwd: dirs.deps, Capture: procrunner.CaptureCombined}); err != nil {
		return errors.Wrap(err, "running mk-build-deps")
	}

	if err := localrepo.BuildDebian(ctx, n.runner(), n.tc.GPG, filepath.Join(dirs.root, "aptly-scratch"), dirs.repo,
		localrepo.ArchiveInfo{Name: n.name}, closureArtifacts(n)); err != nil {
		return errors.Wrap(err, "building local dependency repo")
	}

	if err := n.runContainerBuild(ctx, dirs); err != nil {
		return err
	}

	os.RemoveAll(dirs.deps)
	os.RemoveAll(dirs.repo)

	if _, err := n.runner().Run(ctx, []string{
		"debsign", "--no-conf",
		"-p" + n.tc.GPG.WrapperPath(),
		"-k" + n.tc.GPG.KeyID(),
		"--debs-dir", dirs.pkg,
	}, procrunner.RunOpts{Cwd: dirs.pkg, Capture: procrunner.CaptureCombined}); err != nil {
		return errors.Wrap(err, "signing with debsign")
	}

	if err := moveTopLevelFiles(dirs.pkg, dirs.output); err != nil {
		return errors.Wrap(err, "moving build artifacts to output")
	}
	os.RemoveAll(dirs.pkg)

	if err := n.tc.Bus.Check(ctx); err != nil {
		return err
	}

	n.setOutDir(dirs.output)
	return nil
}

func (n *debianNode) runner() commandRunner { return n.tc.Runner }

func (n *debianNode) fetchOrigTarball(ctx context.Context, destDir, upstreamVersion string) error {
	tmpl, err := template.New("orig").Parse(n.origURLTmpl)
	if err != nil {
		return errors.Wrap(err, "parsing orig url template")
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, struct{ Package, Version string }{n.name, upstreamVersion}); err != nil {
		return errors.Wrap(err, "rendering orig url template")
	}
	url := buf.String()

	placeholder := n.name + "-orig.download"
	path, err := n.tc.Downloads.Get(ctx, url, destDir, placeholder)
	if err != nil {
		return errors.Wrapf(err, "downloading orig tarball for %s", n.name)
	}
	ext, err := download.SniffExtension(path)
	if err != nil {
		return errors.Wrap(err, "identifying orig tarball format")
	}
	final := filepath.Join(destDir, fmt.Sprintf("%s_%s.orig%s", n.name, upstreamVersion, ext))
	return os.Rename(path, final)
}

func (n *debianNode) runContainerBuild(ctx context.Context, dirs debianWorkDirs) error {
	image := fmt.Sprintf("%s/%s_builder:%s", n.tc.Registry, n.release.DistroID, n.release.Codename)

	shm, err := n.tc.shmSize()
	if err != nil {
		return err
	}
	extra, err := n.tc.extraDockerArgs()
	if err != nil {
		return err
	}

	argv := []string{
		"docker", "run", "--rm",
		"-v", dirs.pkg + ":/src",
		"-v", dirs.deps + ":/deps",
		"-v", dirs.repo + ":/localrepo",
		"--tmpfs", "/tmp:exec",
		"--shm-size", shm,
	}
	argv = append(argv, extra...)
	argv = append(argv, image,
		fmt.Sprintf("-j%d", n.tc.parallelism()), "-sa", "-P"+n.release.DistroID+","+n.release.Codename,
	)
	if _, err := n.runner().Run(ctx, argv, procrunner.RunOpts{Capture: n.tc.buildCapture()}); err != nil {
		return errors.Wrap(err, "running containerized build")
	}
	return nil
}

// upstreamVersionOf strips a Debian revision suffix ("-<revision>") from a
// full package version, leaving the upstream version used in orig tarball
// names and the pkg/<name>-<version>/ directory.
func upstreamVersionOf(version string) string {
	if i := strings.LastIndex(version, "-"); i >= 0 {
		return version[:i]
	}
	return version
}
