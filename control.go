package pkgforge

import (
	"bufio"
	"os"
	"strings"

	"github.com/pkg/errors"
	"k8s.io/apimachinery/pkg/util/sets"
)

// controlStanza is one RFC-2822-like paragraph of a debian/control file:
// a run of "Key: value" lines (with folded continuations) separated from
// the next stanza by a blank line.
type controlStanza map[string][]string

// parseControl reads a debian/control file into its stanzas. Folded
// continuation lines (starting with whitespace) are appended to the
// previous field's value, space-joined.
func parseControl(path string) ([]controlStanza, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()

	var stanzas []controlStanza
	var cur controlStanza
	var lastKey string

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()

		if strings.TrimSpace(line) == "" {
			if cur != nil {
				stanzas = append(stanzas, cur)
				cur = nil
			}
			lastKey = ""
			continue
		}

		if (line[0] == ' ' || line[0] == '\t') && cur != nil && lastKey != "" {
			cur[lastKey] = append(cur[lastKey], strings.TrimSpace(line))
			continue
		}

		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		if cur == nil {
			cur = controlStanza{}
		}
		cur[key] = append(cur[key], value)
		lastKey = key
	}
	if cur != nil {
		stanzas = append(stanzas, cur)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrapf(err, "scanning %s", path)
	}

	return stanzas, nil
}

func (s controlStanza) get(key string) string {
	v, ok := s[key]
	if !ok || len(v) == 0 {
		return ""
	}
	return strings.Join(v, " ")
}

// debianProvidesRequires extracts bin_provides (every stanza's Package:
// field) and bin_requires (the union of Build-Depends, Build-Depends-Indep
// and Build-Depends-Arch, alternatives included, version constraints
// stripped) from a parsed debian/control file.
func debianProvidesRequires(stanzas []controlStanza) (provides, requires sets.Set[string]) {
	provides = sets.New[string]()
	requires = sets.New[string]()

	for _, st := range stanzas {
		if pkg := st.get("Package"); pkg != "" {
			provides.Insert(pkg)
		}
		for _, field := range []string{"Build-Depends", "Build-Depends-Indep", "Build-Depends-Arch"} {
			requires.Insert(parseDepList(st.get(field))...)
		}
	}
	return provides, requires
}

// parseDepList splits a debian dependency field ("foo (>= 1.0), bar | baz")
// into bare package names, expanding comma-separated entries and "|"
// alternatives and stripping any "(...)" version constraint.
func parseDepList(field string) []string {
	if field == "" {
		return nil
	}

	var out []string
	for _, entry := range strings.Split(field, ",") {
		for _, alt := range strings.Split(entry, "|") {
			name := strings.TrimSpace(alt)
			if i := strings.IndexAny(name, "( ["); i >= 0 {
				name = strings.TrimSpace(name[:i])
			}
			if name != "" {
				out = append(out, name)
			}
		}
	}
	return out
}
