package config

import (
	"os"
	"path/filepath"
	"testing"

	"gotest.tools/v3/assert"
)

const sampleConf = `
distribs:
  debian:
    gpg: {file: /etc/pkgforge/debian.key, id: ABCDEF01, uid: "Pkg Bot"}
    versions:
      debian: ["bookworm", "+"]
    repository: {path: /srv/repo/debian, url: "https://pkg.example.com/debian", name: widget-repo, description: "Widget packages"}
packages:
  widget:
    orig: "https://upstream.example.com/widget-{{.Version}}.tar.gz"
    disable:
      debian: ["bullseye"]
`

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "build.conf")
	assert.NilError(t, os.WriteFile(path, []byte(sampleConf), 0o644))

	cfg, err := Load(path)
	assert.NilError(t, err)

	d, ok := cfg.Distribs["debian"]
	assert.Assert(t, ok)
	assert.Equal(t, d.GPG.ID, "ABCDEF01")
	assert.DeepEqual(t, d.Versions["debian"], []string{"bookworm", "+"})
	assert.Equal(t, d.Repository.Name, "widget-repo")

	p, ok := cfg.Packages["widget"]
	assert.Assert(t, ok)
	assert.Equal(t, p.Orig, "https://upstream.example.com/widget-{{.Version}}.tar.gz")
	assert.DeepEqual(t, p.Disable["debian"], []string{"bullseye"})
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/build.conf")
	assert.ErrorContains(t, err, "config error")
}

func TestValidateRejectsUnknownDistro(t *testing.T) {
	cfg := &Config{
		Distribs: map[string]DistribConfig{"debian": {}},
		Packages: map[string]PackageConfig{
			"widget": {Disable: map[string][]string{"fedora": {"38"}}},
		},
	}
	err := cfg.Validate()
	assert.ErrorContains(t, err, "unknown distribution")
}
