// Package localrepo assembles signed package repositories: given a set
// of per-node artifact directories, it produces a signed,
// published repository -- an aptly-managed archive for Debian-family
// releases, a hand-assembled createrepo_c tree for Fedora-family releases.
package localrepo

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"text/template"

	"github.com/pdidev/pkgforge/internal/gpgctx"
	"github.com/pdidev/pkgforge/internal/procrunner"
	"github.com/pkg/errors"
)

// Release is the subset of release identity the repo builder needs,
// mirroring the root package's Release type without importing it (internal
// packages stay below the root package in the import graph).
type Release struct {
	DistroID  string
	IDLike    []string
	NumericID int
	Codename  string
	Suite     string
}

func (r Release) debianLike() bool { return containsFold(r.IDLike, "debian") }
func (r Release) fedoraLike() bool { return containsFold(r.IDLike, "fedora") }

// UID mirrors the root package's Release.UID: a filesystem-safe key.
func (r Release) UID() string {
	if r.Codename != "" {
		return fmt.Sprintf("%s-%s", r.DistroID, r.Codename)
	}
	return fmt.Sprintf("%s-%d", r.DistroID, r.NumericID)
}

func containsFold(haystack []string, needle string) bool {
	for _, s := range haystack {
		if strings.EqualFold(s, needle) {
			return true
		}
	}
	return false
}

// Artifact is one built node's contribution to the repo: its signed output
// directory for a single release.
type Artifact struct {
	Name    string
	Release Release
	OutDir  string
}

// Runner is the subset of *procrunner.Runner the repo builder needs.
type Runner interface {
	Run(ctx context.Context, argv []string, opts procrunner.RunOpts) ([]byte, error)
}

// ArchiveInfo names the published archive for templated README/INSTALL
// output and, for Debian, the aptly publish -origin/-label metadata. URL
// is empty for transient per-node dependency repos, which suppresses the
// keyring export and client-facing snippets.
type ArchiveInfo struct {
	Name        string
	URL         string
	Description string
}

var readmeTmpl = template.Must(template.New("README.md").Parse(`# {{.Name}}

{{.Description}}

Available releases:
{{range .Releases}}
- {{.}}
{{- end}}
`))

var installTmplDebian = template.Must(template.New("INSTALL.md").Parse(`## {{.Codename}}

` + "```" + `
echo "deb {{.BaseURL}} {{.Codename}} main" | sudo tee /etc/apt/sources.list.d/{{.Name}}.list
wget -qO - {{.BaseURL}}/{{.Name}}-archive-keyring.gpg | sudo tee /etc/apt/trusted.gpg.d/{{.Name}}.asc
sudo apt-get update
` + "```" + `
`))

var installTmplRPM = template.Must(template.New("INSTALL.md").Parse(`## {{.DistRelease}}

` + "```" + `
curl -o /etc/yum.repos.d/{{.Name}}.repo {{.BaseURL}}/{{.DistRelease}}/{{.Name}}.repo
` + "```" + `
`))

var repoFileTmpl = template.Must(template.New(".repo").Parse(`[{{.Name}}]
name={{.Name}}
type=rpm-md
baseurl={{.BaseURL}}/{{.DistRelease}}/
gpgcheck=1
repo_gpgcheck=1
gpgkey={{.BaseURL}}/{{.Name}}.key
enabled=1
`))

// BuildDebian implements the Debian branch of C7/C8: an aptly-managed
// archive published under destDir.
func BuildDebian(ctx context.Context, runner Runner, gpg *gpgctx.Context, scratchDir, destDir string, archive ArchiveInfo, artifacts []Artifact) error {
	var debianArtifacts []Artifact
	for _, a := range artifacts {
		if a.Release.debianLike() {
			debianArtifacts = append(debianArtifacts, a)
		}
	}
	if len(debianArtifacts) == 0 {
		return nil
	}

	if err := os.MkdirAll(scratchDir, 0o755); err != nil {
		return errors.Wrap(err, "creating aptly scratch dir")
	}
	confPath := filepath.Join(scratchDir, "aptly.conf")
	rootDir := filepath.Join(scratchDir, "aptly-root")
	conf := fmt.Sprintf(`{
  "rootDir": %q,
  "FileSystemPublishEndpoints": {
    "default": {"rootDir": %q, "linkMethod": "hardlink"}
  }
}
`, rootDir, destDir)
	if err := os.WriteFile(confPath, []byte(conf), 0o644); err != nil {
		return errors.Wrap(err, "writing aptly config")
	}

	byRelease := map[string][]Artifact{}
	var releases []Release
	seen := map[string]bool{}
	for _, a := range debianArtifacts {
		key := a.Release.UID()
		byRelease[key] = append(byRelease[key], a)
		if !seen[key] {
			seen[key] = true
			releases = append(releases, a.Release)
		}
	}

	for _, rel := range releases {
		repoKeys := []string{rel.UID()}
		if rel.Suite != "" {
			repoKeys = append(repoKeys, rel.UID()+":"+rel.Suite)
		}

		for _, repoKey := range repoKeys {
			if _, err := runner.Run(ctx, []string{"aptly", "-config=" + confPath, "repo", "create", "-distribution=" + rel.Codename, repoKey}, procrunner.RunOpts{Capture: procrunner.CaptureCombined}); err != nil {
				return errors.Wrapf(err, "creating aptly repo %s", repoKey)
			}

			for _, a := range byRelease[rel.UID()] {
				if _, err := runner.Run(ctx, []string{"aptly", "-config=" + confPath, "repo", "add", "-force-replace", repoKey, a.OutDir}, procrunner.RunOpts{Capture: procrunner.CaptureCombined}); err != nil {
					return errors.Wrapf(err, "adding %s to aptly repo %s", a.Name, repoKey)
				}
			}

			publishArgs := []string{
				"aptly", "-config=" + confPath,
				"-keyring=" + filepath.Join(gpg.HomeDir(), "pubring.kbx"),
				"-gpg-key=" + gpg.ShortKeyID(),
				"-passphrase=" + gpg.Passphrase(),
				"publish", "repo",
			}
			if archive.URL != "" {
				publishArgs = append(publishArgs, "-label="+archive.Name, "-origin="+archive.Name)
			}
			publishArgs = append(publishArgs, repoKey, "default:.")
			if _, err := runner.Run(ctx, publishArgs, procrunner.RunOpts{Capture: procrunner.CaptureCombined}); err != nil {
				return errors.Wrapf(err, "publishing aptly repo %s", repoKey)
			}
		}
	}

	if archive.URL != "" {
		keyring, err := runner.Run(ctx, []string{
			"gpg", "--homedir", gpg.HomeDir(), "--batch", "--export", "--armor", gpg.KeyID(),
		}, procrunner.RunOpts{Capture: procrunner.CaptureStdout})
		if err != nil {
			return errors.Wrap(err, "exporting archive keyring")
		}
		keyringPath := filepath.Join(destDir, archive.Name+"-archive-keyring.gpg")
		if err := os.WriteFile(keyringPath, keyring, 0o644); err != nil {
			return errors.Wrap(err, "writing archive keyring")
		}

		return renderDebianDocs(destDir, archive, releases)
	}

	return nil
}

func renderDebianDocs(destDir string, archive ArchiveInfo, releases []Release) error {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return errors.Wrap(err, "creating repo output dir")
	}

	names := make([]string, len(releases))
	for i, r := range releases {
		names[i] = r.Codename
	}
	if err := renderReadme(destDir, archive, names); err != nil {
		return err
	}

	for _, r := range releases {
		var install bytes.Buffer
		if err := installTmplDebian.Execute(&install, struct {
			Codename, BaseURL, Name string
		}{r.Codename, archive.URL, archive.Name}); err != nil {
			return errors.Wrap(err, "rendering INSTALL.md")
		}
		path := filepath.Join(destDir, fmt.Sprintf("INSTALL-%s.md", r.Codename))
		if err := os.WriteFile(path, install.Bytes(), 0o644); err != nil {
			return errors.Wrap(err, "writing INSTALL.md")
		}
	}
	return nil
}

func renderReadme(destDir string, archive ArchiveInfo, releaseNames []string) error {
	var readme bytes.Buffer
	if err := readmeTmpl.Execute(&readme, struct {
		Name, Description string
		Releases          []string
	}{archive.Name, archive.Description, releaseNames}); err != nil {
		return errors.Wrap(err, "rendering README")
	}
	if err := os.WriteFile(filepath.Join(destDir, "README.md"), readme.Bytes(), 0o644); err != nil {
		return errors.Wrap(err, "writing README")
	}
	return nil
}

// BuildRPM implements the Fedora-family branch of C7/C8: a hand-assembled
// <numeric_id>/<arch>/ tree indexed with createrepo_c, signed, and -- when
// archive.URL is set -- accompanied by the client-facing .repo file, key
// export, and README.
func BuildRPM(ctx context.Context, runner Runner, gpg *gpgctx.Context, destDir, registry string, archive ArchiveInfo, artifacts []Artifact) error {
	byRelease := map[int][]Artifact{}
	var numericIDs []int
	seen := map[int]bool{}
	for _, a := range artifacts {
		if !a.Release.fedoraLike() {
			continue
		}
		byRelease[a.Release.NumericID] = append(byRelease[a.Release.NumericID], a)
		if !seen[a.Release.NumericID] {
			seen[a.Release.NumericID] = true
			numericIDs = append(numericIDs, a.Release.NumericID)
		}
	}
	if len(numericIDs) == 0 {
		return nil
	}

	for _, id := range numericIDs {
		relDir := filepath.Join(destDir, fmt.Sprint(id))
		for _, a := range byRelease[id] {
			entries, err := os.ReadDir(a.OutDir)
			if err != nil {
				return errors.Wrapf(err, "reading output of %s", a.Name)
			}
			for _, e := range entries {
				if !strings.HasSuffix(e.Name(), ".rpm") {
					continue
				}
				arch := rpmArch(e.Name())
				archDir := filepath.Join(relDir, arch)
				if err := os.MkdirAll(archDir, 0o755); err != nil {
					return errors.Wrap(err, "creating arch dir")
				}
				if err := linkOrCopy(filepath.Join(a.OutDir, e.Name()), filepath.Join(archDir, e.Name())); err != nil {
					return errors.Wrapf(err, "placing %s", e.Name())
				}
			}
		}

		if _, err := runner.Run(ctx, []string{
			"docker", "run", "--rm",
			"-v", relDir + ":/repo",
			"-u", fmt.Sprintf("%d:%d", os.Getuid(), os.Getgid()),
			registry + "/rpm_tools", "createrepo_c", "/repo",
		}, procrunner.RunOpts{Capture: procrunner.CaptureCombined}); err != nil {
			return errors.Wrapf(err, "running createrepo_c for %d", id)
		}

		repomd := filepath.Join(relDir, "repodata", "repomd.xml")
		if _, err := runner.Run(ctx, []string{
			"gpg", "--homedir", gpg.HomeDir(), "--batch", "--pinentry-mode", "loopback",
			"--passphrase", gpg.Passphrase(), "--detach-sign", "--armor", "-o", repomd + ".asc", repomd,
		}, procrunner.RunOpts{Capture: procrunner.CaptureCombined}); err != nil {
			return errors.Wrapf(err, "signing repomd.xml for %d", id)
		}

		if archive.URL != "" {
			var repoFile bytes.Buffer
			if err := repoFileTmpl.Execute(&repoFile, struct {
				Name, BaseURL string
				DistRelease   int
			}{archive.Name, archive.URL, id}); err != nil {
				return errors.Wrap(err, "rendering .repo file")
			}
			repoPath := filepath.Join(relDir, archive.Name+".repo")
			if err := os.WriteFile(repoPath, repoFile.Bytes(), 0o644); err != nil {
				return errors.Wrap(err, "writing .repo file")
			}
		}
	}

	if archive.URL != "" {
		key, err := runner.Run(ctx, []string{
			"gpg", "--homedir", gpg.HomeDir(), "--batch", "--export", "--armor", gpg.KeyID(),
		}, procrunner.RunOpts{Capture: procrunner.CaptureStdout})
		if err != nil {
			return errors.Wrap(err, "exporting signing key")
		}
		if err := os.WriteFile(filepath.Join(destDir, archive.Name+".key"), key, 0o644); err != nil {
			return errors.Wrap(err, "writing signing key")
		}

		return renderRPMDocs(destDir, archive, numericIDs)
	}

	return nil
}

func renderRPMDocs(destDir string, archive ArchiveInfo, numericIDs []int) error {
	names := make([]string, len(numericIDs))
	for i, id := range numericIDs {
		names[i] = fmt.Sprint(id)
	}
	if err := renderReadme(destDir, archive, names); err != nil {
		return err
	}

	for _, id := range numericIDs {
		var install bytes.Buffer
		if err := installTmplRPM.Execute(&install, struct {
			Name, BaseURL string
			DistRelease   int
		}{archive.Name, archive.URL, id}); err != nil {
			return errors.Wrap(err, "rendering INSTALL.md")
		}
		path := filepath.Join(destDir, fmt.Sprintf("INSTALL-%d.md", id))
		if err := os.WriteFile(path, install.Bytes(), 0o644); err != nil {
			return errors.Wrap(err, "writing INSTALL.md")
		}
	}
	return nil
}

// rpmArch derives the arch directory name from an rpm filename: the
// second-to-last dot-separated component, e.g. "foo-1.0-1.x86_64.rpm" ->
// "x86_64".
func rpmArch(filename string) string {
	name := strings.TrimSuffix(filename, ".rpm")
	parts := strings.Split(name, ".")
	if len(parts) < 2 {
		return "noarch"
	}
	return parts[len(parts)-1]
}

// linkOrCopy hardlinks src to dest, falling back to a plain copy only
// when the two paths live on different filesystems (EXDEV). Any other
// link failure is returned.
func linkOrCopy(src, dest string) error {
	err := os.Link(src, dest)
	if err == nil {
		return nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
