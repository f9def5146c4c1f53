package download

import (
	"bytes"
	"os"

	"github.com/pkg/errors"
)

// magic signatures for the tarball compressions an orig source is commonly
// published under. The spec requires sniffing content rather than trusting
// the URL's extension.
var magicExtensions = []struct {
	sig []byte
	ext string
}{
	{[]byte{0x1f, 0x8b}, ".tar.gz"},
	{[]byte("BZh"), ".tar.bz2"},
	{[]byte{0xfd, '7', 'z', 'X', 'Z', 0x00}, ".tar.xz"},
	{[]byte{0x28, 0xb5, 0x2f, 0xfd}, ".tar.zst"},
}

// SniffExtension reads the magic bytes of path and returns the extension
// implied by its compression, or ".tar" if it looks like an uncompressed
// POSIX tar (ustar magic at offset 257).
func SniffExtension(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.Wrap(err, "opening file to sniff extension")
	}
	defer f.Close()

	head := make([]byte, 512)
	n, err := f.Read(head)
	if err != nil && n == 0 {
		return "", errors.Wrap(err, "reading file header to sniff extension")
	}
	head = head[:n]

	for _, m := range magicExtensions {
		if bytes.HasPrefix(head, m.sig) {
			return m.ext, nil
		}
	}

	if n >= 262 && bytes.Equal(head[257:262], []byte("ustar")) {
		return ".tar", nil
	}

	return "", errors.Errorf("unrecognized archive format for %q", path)
}
