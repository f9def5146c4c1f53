package download_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pdidev/pkgforge/internal/download"
	"gotest.tools/v3/assert"
)

func TestSniffExtensionGzip(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "blob")
	assert.NilError(t, os.WriteFile(p, []byte{0x1f, 0x8b, 0x08, 0x00}, 0o644))

	ext, err := download.SniffExtension(p)
	assert.NilError(t, err)
	assert.Equal(t, ext, ".tar.gz")
}

func TestSniffExtensionUnknown(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "blob")
	assert.NilError(t, os.WriteFile(p, []byte("not an archive"), 0o644))

	_, err := download.SniffExtension(p)
	assert.ErrorContains(t, err, "unrecognized archive format")
}
