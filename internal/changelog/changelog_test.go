package changelog

import (
	"strings"
	"testing"
	"time"

	"gotest.tools/v3/assert"
)

const sample = `widget (1.2.3-1) unstable; urgency=medium

  * Initial release.
  * Fix the frobnicator.

 -- Jane Dev <jane@example.com>  Mon, 02 Jan 2023 15:04:05 +0000

widget (1.2.2-1) unstable; urgency=low

  * Older entry.

 -- Jane Dev <jane@example.com>  Fri, 01 Jan 2021 00:00:00 +0000
`

func TestParseTop(t *testing.T) {
	e, err := ParseTop([]byte(sample))
	assert.NilError(t, err)
	assert.Equal(t, e.Package, "widget")
	assert.Equal(t, e.Version, "1.2.3-1")
	assert.Equal(t, e.Distributions, "unstable")
	assert.Equal(t, e.Urgency, "medium")
	assert.Equal(t, e.Author, "Jane Dev <jane@example.com>")
	assert.Equal(t, len(e.Changes), 2)
	assert.Equal(t, e.Date.UTC().Format(time.RFC3339), "2023-01-02T15:04:05Z")
}

func TestParseTopMalformedHeader(t *testing.T) {
	_, err := ParseTop([]byte("not a changelog\n"))
	assert.ErrorContains(t, err, "malformed changelog header")
}

func TestRebuildSuffix(t *testing.T) {
	e, err := ParseTop([]byte(sample))
	assert.NilError(t, err)

	now := e.Date.Add(90 * time.Second)
	suffix := RebuildSuffix(e, 12, now)
	assert.Equal(t, suffix, "~bpo12.pdidev.90")
}

func TestRebuildSuffixClampsNegative(t *testing.T) {
	e, err := ParseTop([]byte(sample))
	assert.NilError(t, err)

	now := e.Date.Add(-5 * time.Second)
	suffix := RebuildSuffix(e, 1, now)
	assert.Equal(t, suffix, "~bpo1.pdidev.0")
}

func TestInsertRebuild(t *testing.T) {
	e, err := ParseTop([]byte(sample))
	assert.NilError(t, err)

	now := e.Date.Add(3 * time.Second)
	out := InsertRebuild([]byte(sample), e, "1.2.3-1~bpo12.pdidev.3", "bookworm-backports", "bookworm", "Build Bot <bot@example.com>", now)

	text := string(out)
	assert.Assert(t, strings.HasPrefix(text, "widget (1.2.3-1~bpo12.pdidev.3) bookworm; urgency=medium"))
	assert.Assert(t, strings.Contains(text, "* Rebuild for bookworm-backports"))
	assert.Assert(t, strings.Contains(text, sample))
}
