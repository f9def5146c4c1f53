package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Release mirrors the root package's Release type without importing it
// (internal packages stay below the root package in the import graph).
type Release struct {
	DistroID  string
	IDLike    []string
	NumericID int
	Codename  string
	Suite     string
	Supported bool
}

func (r Release) matches(token string) bool {
	if strings.EqualFold(r.Codename, token) {
		return true
	}
	if strings.EqualFold(r.Suite, token) {
		return true
	}
	if fmt.Sprint(r.NumericID) == token {
		return true
	}
	return false
}

// ResolveReleases implements the release-selector algebra: each token in
// tokens is resolved left to right against catalog (already
// filtered or not to a single distro_id by the caller). "+"/"-" extend the
// immediately preceding token's own result set by one neighbor in catalog
// order, not the cumulative running selection.
func ResolveReleases(catalog []Release, tokens []string) ([]Release, error) {
	var result []Release
	var previous []Release

	for _, tok := range tokens {
		var matched []Release

		switch tok {
		case "supported":
			for _, r := range catalog {
				if r.Supported {
					matched = append(matched, r)
				}
			}
		case "all":
			matched = append(matched, catalog...)
		case "+", "-":
			if len(previous) == 0 {
				return nil, &ConfigError{Reason: fmt.Sprintf("selector %q has no preceding selector to extend", tok)}
			}
			for _, r := range previous {
				idx := indexOf(catalog, r)
				if idx < 0 {
					continue
				}
				var neighborIdx int
				if tok == "+" {
					neighborIdx = idx + 1
				} else {
					neighborIdx = idx - 1
				}
				if neighborIdx >= 0 && neighborIdx < len(catalog) {
					matched = append(matched, catalog[neighborIdx])
				}
			}
		default:
			found := false
			for _, r := range catalog {
				if r.matches(tok) {
					matched = append(matched, r)
					found = true
					break
				}
			}
			if !found {
				return nil, &ConfigError{Reason: fmt.Sprintf("no release matches selector %q", tok)}
			}
		}

		result = append(result, matched...)
		previous = matched
	}

	return dedupeReleases(result), nil
}

func releaseKey(r Release) string {
	return fmt.Sprintf("%s|%s|%d|%s", r.DistroID, r.Codename, r.NumericID, r.Suite)
}

func indexOf(catalog []Release, r Release) int {
	key := releaseKey(r)
	for i, c := range catalog {
		if releaseKey(c) == key {
			return i
		}
	}
	return -1
}

func dedupeReleases(rs []Release) []Release {
	seen := make(map[string]bool, len(rs))
	var out []Release
	for _, r := range rs {
		key := releaseKey(r)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, r)
	}
	return out
}

// FilterKind identifies which of the five -D/--distributions shapes a
// Filter was parsed from.
type FilterKind int

const (
	FilterAnyRelease FilterKind = iota
	FilterCodename
	FilterSuite
	FilterNumericID
	FilterPackageName
)

// Filter is a parsed -D/--distributions argument.
type Filter struct {
	Distro   string
	Selector string
	Kind     FilterKind
}

// ParseFilter parses one -D/--distributions value into its five possible
// shapes: "distro", "distro:codename", "distro:suite", "distro:id"
// (numeric), "distro:name" (a configured package name, filtering packages
// rather than releases).
func ParseFilter(s string) (Filter, error) {
	distro, rest, hasColon := strings.Cut(s, ":")
	if distro == "" {
		return Filter{}, &ConfigError{Reason: fmt.Sprintf("empty distro in filter %q", s)}
	}
	if !hasColon {
		return Filter{Distro: distro, Kind: FilterAnyRelease}, nil
	}
	if rest == "" {
		return Filter{}, &ConfigError{Reason: fmt.Sprintf("empty selector in filter %q", s)}
	}

	if _, err := strconv.Atoi(rest); err == nil {
		return Filter{Distro: distro, Selector: rest, Kind: FilterNumericID}, nil
	}

	// Disambiguating codename/suite/package-name requires the caller's
	// catalog and package set; ParseFilter records the raw token as a
	// codename-shaped selector and callers may reclassify it once they
	// have that context (see config.Filter.Reclassify).
	return Filter{Distro: distro, Selector: rest, Kind: FilterCodename}, nil
}

// Reclassify adjusts f's Kind once the caller knows whether Selector names
// a suite or a configured package, rather than a codename. It is a no-op
// if Kind is not FilterCodename.
func (f Filter) Reclassify(isSuite, isPackageName bool) Filter {
	if f.Kind != FilterCodename {
		return f
	}
	if isPackageName {
		f.Kind = FilterPackageName
	} else if isSuite {
		f.Kind = FilterSuite
	}
	return f
}
