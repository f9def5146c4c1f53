package pkgforge

import (
	"context"
	"strings"
	"testing"

	"github.com/pdidev/pkgforge/internal/procrunner"
	"gotest.tools/v3/assert"
)

func TestSplitRPMNames(t *testing.T) {
	out := []byte("gcc\nmake >= 4.0\npkgconfig(libcurl)\n\n  openssl-devel  \n")
	got := splitRPMNames(out)
	assert.DeepEqual(t, got, []string{"gcc", "make", "pkgconfig", "openssl-devel"})
}

func TestRPMSourceFilename(t *testing.T) {
	cases := map[string]string{
		"https://example.com/pub/widget-1.0.tar.gz":               "widget-1.0.tar.gz",
		"https://example.com/download?project=widget&file=w.tgz":  "w.tgz",
		"https://example.com/a/b/c.tar.xz?sig=abc&name=c-1.0.txz": "c-1.0.txz",
	}
	for url, want := range cases {
		assert.Equal(t, rpmSourceFilename(url), want)
	}
}

type scriptedRunner struct {
	// outputs maps an argv substring to the stdout returned for any
	// invocation whose joined argv contains it.
	outputs map[string]string
}

func (s *scriptedRunner) Run(ctx context.Context, argv []string, opts procrunner.RunOpts) ([]byte, error) {
	joined := strings.Join(argv, " ")
	for k, v := range s.outputs {
		if strings.Contains(joined, k) {
			return []byte(v), nil
		}
	}
	return nil, nil
}

func TestRPMSourceURLs(t *testing.T) {
	runner := &scriptedRunner{outputs: map[string]string{
		"rpmspec -P": "Name: widget\nSource0: https://example.com/widget-1.0.tar.gz\n source1:\thttps://example.com/widget.service\nPatch0: local.patch\n",
	}}

	urls, err := rpmSourceURLs(context.Background(), runner, "widget.spec")
	assert.NilError(t, err)
	assert.DeepEqual(t, urls, []string{
		"https://example.com/widget-1.0.tar.gz",
		"https://example.com/widget.service",
	})
}

func TestRPMProvidesRequires(t *testing.T) {
	runner := &scriptedRunner{outputs: map[string]string{
		"--buildrequires": "gcc\nmake >= 4.0\n",
		"--provides":      "widget = 1.0-1\nwidget(x86-64) = 1.0-1\n",
	}}

	provides, requires, err := rpmProvidesRequires(context.Background(), runner, "widget.spec")
	assert.NilError(t, err)
	assert.Assert(t, requires.Has("gcc"))
	assert.Assert(t, requires.Has("make"))
	assert.Assert(t, provides.Has("widget"))
}
