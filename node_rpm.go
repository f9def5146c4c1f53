package pkgforge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pdidev/pkgforge/internal/cancel"
	"github.com/pdidev/pkgforge/internal/localrepo"
	"github.com/pdidev/pkgforge/internal/procrunner"
	"github.com/pkg/errors"
	"k8s.io/apimachinery/pkg/util/sets"
)

// rpmNode is the Node implementation for a source package carrying a
// <name>.spec file.
type rpmNode struct {
	base

	srcDir   string
	specPath string
	provides sets.Set[string]
	requires sets.Set[string]
	tc       *Toolchain
}

func (n *rpmNode) SourceKind() SourceKind     { return SourceRPM }
func (n *rpmNode) Provides() sets.Set[string] { return n.provides }
func (n *rpmNode) Requires() sets.Set[string] { return n.requires }

type rpmWorkDirs struct {
	root, output, pkg, repo string
}

func newRPMWorkDirs(workRoot string, n *rpmNode) rpmWorkDirs {
	root := filepath.Join(workRoot, fmt.Sprintf("%s.%s.rpm-build", n.name, n.release.UID()))
	return rpmWorkDirs{
		root:   root,
		output: filepath.Join(root, "output"),
		pkg:    filepath.Join(root, "pkg"),
		repo:   filepath.Join(root, "repo"),
	}
}

func (n *rpmNode) Build(ctx context.Context, workRoot string) error {
	log := n.tc.logger().WithField("package", n.name).WithField("release", n.release.String())

	if err := n.tc.Bus.Check(ctx); err != nil {
		n.setState(StateCancelled)
		return err
	}
	n.setState(StateBuilding)
	log.Info("building rpm package")

	err := n.build(ctx, workRoot)
	switch {
	case err == nil:
		n.setState(StateFinished)
		log.Info("rpm package build finished")
	case errors.Is(err, cancel.ErrCancelled):
		n.setState(StateCancelled)
	default:
		n.setState(StateFailed)
	}
	return err
}

func (n *rpmNode) build(ctx context.Context, workRoot string) error {
	dirs := newRPMWorkDirs(workRoot, n)
	for _, d := range []string{dirs.output, dirs.pkg, dirs.repo} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return errors.Wrapf(err, "creating %s", d)
		}
	}

	if err := copyFile(n.specPath, filepath.Join(dirs.pkg, filepath.Base(n.specPath)), 0o644); err != nil {
		return errors.Wrap(err, "copying spec file")
	}

	if err := localrepo.BuildRPM(ctx, n.runner(), n.tc.GPG, dirs.repo, n.tc.Registry,
		localrepo.ArchiveInfo{Name: n.name}, closureArtifacts(n)); err != nil {
		return errors.Wrap(err, "building local dependency repo")
	}

	urls, err := rpmSourceURLs(ctx, n.runner(), n.specPath)
	if err != nil {
		return errors.Wrap(err, "enumerating spec sources")
	}
	for _, u := range urls {
		filename := rpmSourceFilename(u)
		if _, err := n.tc.Downloads.Get(ctx, u, dirs.pkg, filename); err != nil {
			return errors.Wrapf(err, "downloading source %s", u)
		}
	}

	if err := n.runContainerBuild(ctx, dirs); err != nil {
		return err
	}

	os.RemoveAll(dirs.repo)

	if err := n.signRPMs(ctx, dirs.pkg); err != nil {
		return err
	}

	if err := moveRPMFiles(dirs.pkg, dirs.output); err != nil {
		return errors.Wrap(err, "moving build artifacts to output")
	}
	os.RemoveAll(dirs.pkg)

	if err := n.tc.Bus.Check(ctx); err != nil {
		return err
	}

	n.setOutDir(dirs.output)
	return nil
}

func (n *rpmNode) runner() commandRunner { return n.tc.Runner }

func (n *rpmNode) runContainerBuild(ctx context.Context, dirs rpmWorkDirs) error {
	image := fmt.Sprintf("%s/%s_builder:%d", n.tc.Registry, n.release.DistroID, n.release.NumericID)
	repoMount := filepath.Join(dirs.repo, fmt.Sprint(n.release.NumericID))

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
		"-v", repoMount + ":/localrepo",
		"--tmpfs", "/tmp:exec",
		"--shm-size", shm,
	}
	argv = append(argv, extra...)
	argv = append(argv, image)
	if _, err := n.runner().Run(ctx, argv, procrunner.RunOpts{Capture: n.tc.buildCapture()}); err != nil {
		return errors.Wrap(err, "running containerized build")
	}
	return nil
}

// signRPMs invokes the RPM signer once per *.rpm file in dir, binding the
// GPG context into the rpm macro set.
func (n *rpmNode) signRPMs(ctx context.Context, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return errors.Wrapf(err, "reading %s", dir)
	}

	gpg := n.tc.GPG
	macros := []string{
		"--define", "_gpg_bin " + gpg.WrapperPath(),
		"--define", "__gpg " + gpg.WrapperPath(),
		"--define", "_gpg_home " + gpg.HomeDir(),
		"--define", "_gpg_name " + gpg.KeyID(),
	}

	for _, e := range entries {
		if filepath.Ext(e.Name()) != ".rpm" {
			continue
		}
		argv := append([]string{"rpm"}, macros...)
		argv = append(argv, "--resign", filepath.Join(dir, e.Name()))
		if _, err := n.runner().Run(ctx, argv, procrunner.RunOpts{Capture: procrunner.CaptureCombined}); err != nil {
			return errors.Wrapf(err, "signing %s", e.Name())
		}
	}
	return nil
}

func moveRPMFiles(src, dst string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return errors.Wrapf(err, "reading %s", src)
	}
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".rpm" {
			continue
		}
		if err := os.Rename(filepath.Join(src, e.Name()), filepath.Join(dst, e.Name())); err != nil {
			return errors.Wrapf(err, "moving %s", e.Name())
		}
	}
	return nil
}
