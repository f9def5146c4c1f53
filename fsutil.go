package pkgforge

import (
	"io"
	"os"
	"path/filepath"

	"github.com/pdidev/pkgforge/internal/localrepo"
	"github.com/pkg/errors"
)

// closureArtifacts converts the dependency closure of n, excluding n
// itself, into the localrepo.Artifact list needed to assemble the repo
// fed into n's build container. Only nodes
// that actually produced output are included; a node still building or
// skipped contributes nothing.
func closureArtifacts(n Node) []localrepo.Artifact {
	var artifacts []localrepo.Artifact
	for _, d := range Closure(n) {
		if d == n {
			continue
		}
		if d.State() != StateFinished {
			continue
		}
		rel := d.Release()
		artifacts = append(artifacts, localrepo.Artifact{
			Name: d.Name(),
			Release: localrepo.Release{
				DistroID:  rel.DistroID,
				IDLike:    rel.IDLike,
				NumericID: rel.NumericID,
				Codename:  rel.Codename,
				Suite:     rel.Suite,
			},
			OutDir: d.OutDir(),
		})
	}
	return artifacts
}

// copyTree recursively copies src into dst, preserving the directory
// structure and regular file permissions. Symlinks are copied as symlinks.
func copyTree(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		if info.Mode()&os.ModeSymlink != 0 {
			linkDest, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(linkDest, target)
		}
		if info.IsDir() {
			return os.MkdirAll(target, info.Mode().Perm())
		}
		return copyFile(path, target, info.Mode().Perm())
	})
}

func copyFile(src, dst string, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// moveTopLevelFiles moves every regular file directly inside src (not
// recursing into subdirectories) into dst.
func moveTopLevelFiles(src, dst string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return errors.Wrapf(err, "reading %s", src)
	}
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		oldPath := filepath.Join(src, e.Name())
		newPath := filepath.Join(dst, e.Name())
		if err := os.Rename(oldPath, newPath); err != nil {
			return errors.Wrapf(err, "moving %s", e.Name())
		}
	}
	return nil
}
