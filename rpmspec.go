package pkgforge

import (
	"bufio"
	"bytes"
	"context"
	"path"
	"regexp"
	"strings"

	"github.com/pdidev/pkgforge/internal/procrunner"
	"github.com/pkg/errors"
	"k8s.io/apimachinery/pkg/util/sets"
)

// rpmProvidesRequires invokes rpmspec to enumerate a spec's declared
// build requirements and provided binary package names.
func rpmProvidesRequires(ctx context.Context, runner commandRunner, specPath string) (provides, requires sets.Set[string], err error) {
	provides = sets.New[string]()
	requires = sets.New[string]()

	reqOut, err := runner.Run(ctx, []string{"rpmspec", "--buildrequires", "-q", specPath}, procrunner.RunOpts{Capture: procrunner.CaptureStdout})
	if err != nil {
		return nil, nil, errors.Wrapf(err, "querying buildrequires of %s", specPath)
	}
	requires.Insert(splitRPMNames(reqOut)...)

	provOut, err := runner.Run(ctx, []string{"rpmspec", "--provides", "-q", specPath}, procrunner.RunOpts{Capture: procrunner.CaptureStdout})
	if err != nil {
		return nil, nil, errors.Wrapf(err, "querying provides of %s", specPath)
	}
	provides.Insert(splitRPMNames(provOut)...)

	return provides, requires, nil
}

// splitRPMNames strips everything from the first "(" or space onward from
// each line of rpmspec output, leaving the bare package name.
func splitRPMNames(out []byte) []string {
	var names []string
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if i := strings.IndexAny(line, "( "); i >= 0 {
			line = line[:i]
		}
		if line != "" {
			names = append(names, line)
		}
	}
	return names
}

var sourceLineRE = regexp.MustCompile(`(?i)^\s*source[0-9]*\s*:\s*(\S+)`)

// rpmSourceURLs runs `rpmspec -P` and extracts every SourceN: URL the
// expanded spec file declares.
func rpmSourceURLs(ctx context.Context, runner commandRunner, specPath string) ([]string, error) {
	out, err := runner.Run(ctx, []string{"rpmspec", "-P", specPath}, procrunner.RunOpts{Capture: procrunner.CaptureStdout})
	if err != nil {
		return nil, errors.Wrapf(err, "parsing spec %s", specPath)
	}

	var urls []string
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		m := sourceLineRE.FindStringSubmatch(sc.Text())
		if m != nil {
			urls = append(urls, m[1])
		}
	}
	return urls, nil
}

// rpmSourceFilename derives the local filename for a downloaded RPM
// source: the last "name=value" pair of the URL's query string if
// present, else the basename of the URL path.
func rpmSourceFilename(rawURL string) string {
	if i := strings.IndexByte(rawURL, '?'); i >= 0 {
		query := rawURL[i+1:]
		pairs := strings.Split(query, "&")
		if last := pairs[len(pairs)-1]; last != "" {
			if _, v, ok := strings.Cut(last, "="); ok && v != "" {
				return v
			}
		}
	}
	return path.Base(rawURL)
}
