package pkgforge

// DefaultCatalog is the embedded table of known releases injected at CLI
// startup. The selector algebra in internal/config resolves version
// tokens against whatever catalog the caller supplies; this table covers
// the currently relevant Debian, Ubuntu, and Fedora releases.
var DefaultCatalog = []Release{
	{DistroID: "debian", IDLike: []string{"debian"}, NumericID: 11, Codename: "bullseye", Suite: "oldstable", Supported: false},
	{DistroID: "debian", IDLike: []string{"debian"}, NumericID: 12, Codename: "bookworm", Suite: "stable", Supported: true},
	{DistroID: "debian", IDLike: []string{"debian"}, NumericID: 13, Codename: "trixie", Suite: "testing", Supported: true},
	{DistroID: "ubuntu", IDLike: []string{"debian", "ubuntu"}, NumericID: 2204, Codename: "jammy", Suite: "lts", Supported: true},
	{DistroID: "ubuntu", IDLike: []string{"debian", "ubuntu"}, NumericID: 2404, Codename: "noble", Suite: "lts", Supported: true},
	{DistroID: "fedora", IDLike: []string{"fedora"}, NumericID: 39, Supported: false},
	{DistroID: "fedora", IDLike: []string{"fedora"}, NumericID: 40, Supported: true},
	{DistroID: "fedora", IDLike: []string{"fedora"}, NumericID: 41, Supported: true},
}
