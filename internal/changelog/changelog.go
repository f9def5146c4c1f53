// Package changelog parses and rewrites debian/changelog's topmost
// entry, implementing the automated rebuild-version suffixing applied to
// every Debian rebuild.
package changelog

import (
	"bufio"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Entry is the topmost stanza of a debian/changelog file.
type Entry struct {
	Package       string
	Version       string
	Distributions string
	Urgency       string
	Changes       []string
	Author        string
	Date          time.Time
}

var headerRE = regexp.MustCompile(`^(\S+) \(([^)]+)\) ([^;]+); urgency=(\S+)`)
var trailerRE = regexp.MustCompile(`^ -- (.+)  (.+)$`)

// ParseTop reads the topmost changelog entry from dt, the contents of a
// debian/changelog file. The returned entry's Date keeps the timezone
// offset written in the file, so callers can format new dates to match.
func ParseTop(dt []byte) (*Entry, error) {
	sc := bufio.NewScanner(strings.NewReader(string(dt)))

	var e Entry
	var sawHeader bool

	for sc.Scan() {
		line := sc.Text()

		if !sawHeader {
			if strings.TrimSpace(line) == "" {
				continue
			}
			m := headerRE.FindStringSubmatch(line)
			if m == nil {
				return nil, errors.Errorf("malformed changelog header: %q", line)
			}
			e.Package = m[1]
			e.Version = m[2]
			e.Distributions = strings.TrimSpace(m[3])
			e.Urgency = m[4]
			sawHeader = true
			continue
		}

		if m := trailerRE.FindStringSubmatch(line); m != nil {
			e.Author = m[1]
			date, err := time.Parse(time.RFC1123Z, m[2])
			if err != nil {
				date, err = time.Parse("Mon, 02 Jan 2006 15:04:05 -0700 (MST)", m[2])
				if err != nil {
					return nil, errors.Wrapf(err, "parsing changelog date %q", m[2])
				}
			}
			e.Date = date
			return &e, nil
		}

		if strings.HasPrefix(strings.TrimSpace(line), "*") {
			e.Changes = append(e.Changes, line)
		}
	}

	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "scanning changelog")
	}
	return nil, errors.New("changelog has no trailer line; malformed topmost entry")
}

// RebuildSuffix computes the "~bpo<numericID>.pdidev.<Δt>" version
// suffix, where Δt is the integer number of seconds between top.Date and
// now, evaluated in top.Date's timezone.
func RebuildSuffix(top *Entry, numericID int, now time.Time) string {
	delta := now.In(top.Date.Location()).Sub(top.Date)
	seconds := int64(delta / time.Second)
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("~bpo%d.pdidev.%d", numericID, seconds)
}

// InsertRebuild prepends a new topmost entry to dt recording a rebuild for
// release, with the version suffixed per RebuildSuffix, authored by
// authorUID, dated now.
func InsertRebuild(dt []byte, top *Entry, newVersion, releaseLabel, codename, authorUID string, now time.Time) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s) %s; urgency=%s\n\n", top.Package, newVersion, codename, top.Urgency)
	fmt.Fprintf(&b, "  * Rebuild for %s\n\n", releaseLabel)
	fmt.Fprintf(&b, " -- %s  %s\n\n", authorUID, now.In(top.Date.Location()).Format(time.RFC1123Z))

	out := append([]byte(b.String()), dt...)
	return out
}
