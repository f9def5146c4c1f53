package pkgforge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pdidev/pkgforge/internal/cancel"
	"github.com/pdidev/pkgforge/internal/config"
	"github.com/pdidev/pkgforge/internal/download"
	"github.com/pdidev/pkgforge/internal/gpgctx"
	"github.com/pdidev/pkgforge/internal/localrepo"
	"github.com/pdidev/pkgforge/internal/procrunner"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// RunOptions carries the CLI-surfaced knobs that shape one end-to-end
// invocation.
type RunOptions struct {
	RepoRoot    string
	Passphrase  string
	Verbose     bool
	Jobs        int
	Registry    string
	Catalog     []Release
	WorkRoot    string
	DownloadDir string
	Filters     []config.Filter
	Log         logrus.FieldLogger
}

// Plan is the set of PackageNodes for a whole invocation, partitioned by
// distribution, plus the shared collaborators each distribution's nodes
// build against.
type Plan struct {
	opts RunOptions
	bus  *cancel.Bus
	log  logrus.FieldLogger

	nodesByDistro map[string][]Node
	toolchains    map[string]*Toolchain
	gpgContexts   []*gpgctx.Context
	repoConfigs   map[string]config.RepositoryConfig
}

// BuildPlan discovers, links, and prepares every node for cfg, without
// running any build. Call Run on the result to execute it.
func BuildPlan(ctx context.Context, cfg *config.Config, opts RunOptions) (*Plan, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := opts.Log
	if log == nil {
		log = logrus.New()
	}
	bus := cancel.New()
	runner := procrunner.New(bus, log)

	p := &Plan{
		opts:          opts,
		bus:           bus,
		log:           log,
		nodesByDistro: map[string][]Node{},
		toolchains:    map[string]*Toolchain{},
		repoConfigs:   map[string]config.RepositoryConfig{},
	}

	for distroID, dc := range cfg.Distribs {
		if !distroSelected(opts.Filters, distroID) {
			continue
		}

		gpg, err := gpgctx.New(ctx, gpgctx.Config{
			KeyFile:    dc.GPG.File,
			ID:         dc.GPG.ID,
			UID:        dc.GPG.UID,
			Passphrase: opts.Passphrase,
		}, runner)
		if err != nil {
			return nil, errors.Wrapf(err, "setting up gpg context for %s", distroID)
		}
		p.gpgContexts = append(p.gpgContexts, gpg)

		tc := &Toolchain{
			Bus:         bus,
			Runner:      runner,
			GPG:         gpg,
			Downloads:   download.New(bus, log, opts.DownloadDir),
			Log:         log,
			Registry:    opts.Registry,
			Parallelism: jobsPerBuild(opts),
			Verbose:     opts.Verbose,
		}
		p.toolchains[distroID] = tc
		p.repoConfigs[distroID] = dc.Repository

		releaseCatalog := catalogFor(opts.Catalog, distroID)

		var distroReleases []Release
		for _, tokens := range dc.Versions {
			cfgReleases, err := config.ResolveReleases(toConfigCatalog(releaseCatalog), tokens)
			if err != nil {
				return nil, err
			}
			for _, r := range cfgReleases {
				distroReleases = append(distroReleases, fromConfigRelease(r))
			}
		}
		distroReleases = filterReleases(opts.Filters, distroID, distroReleases)

		for pkgName, pc := range cfg.Packages {
			if !packageSelected(opts.Filters, distroID, pkgName) {
				continue
			}
			disableTokens := pc.Disable[distroID]
			var disabled []Release
			if len(disableTokens) > 0 {
				cfgDisabled, err := config.ResolveReleases(toConfigCatalog(releaseCatalog), disableTokens)
				if err != nil {
					return nil, err
				}
				for _, r := range cfgDisabled {
					disabled = append(disabled, fromConfigRelease(r))
				}
			}

			for _, rel := range distroReleases {
				if releaseDisabled(disabled, rel) {
					continue
				}
				node, err := Discover(ctx, opts.RepoRoot, pkgName, rel, tc, pc.Orig)
				if err != nil {
					return nil, err
				}
				p.nodesByDistro[distroID] = append(p.nodesByDistro[distroID], node)
			}
		}
	}

	var allNodes []Node
	for _, nodes := range p.nodesByDistro {
		allNodes = append(allNodes, nodes...)
	}
	if err := Link(allNodes); err != nil {
		return nil, err
	}

	return p, nil
}

// Run executes the scheduler over every discovered node, then publishes
// the Final Repo for each distribution.
func (p *Plan) Run(ctx context.Context) error {
	var allNodes []Node
	for _, nodes := range p.nodesByDistro {
		allNodes = append(allNodes, nodes...)
	}

	pool := p.opts.Jobs
	if p.opts.Verbose {
		pool = 1
	}
	sched := NewScheduler(p.bus, p.log, p.opts.WorkRoot, pool)
	if err := sched.Run(ctx, allNodes); err != nil {
		return err
	}

	for distroID, dc := range p.distribConfigs() {
		tc := p.toolchains[distroID]
		if tc == nil {
			continue
		}
		if err := p.publish(ctx, distroID, dc, tc); err != nil {
			return err
		}
	}
	return nil
}

// distribConfigs exists only so Run can walk the same distribution set
// Plan was built with; Plan retains the repository config per distro on
// first encounter inside repoConfigs.
func (p *Plan) distribConfigs() map[string]config.RepositoryConfig {
	return p.repoConfigs
}

// Close releases every GPG context's private directory. Callers should
// defer it immediately after BuildPlan succeeds.
func (p *Plan) Close() {
	for _, gpg := range p.gpgContexts {
		_ = gpg.Close()
	}
}

func (p *Plan) publish(ctx context.Context, distroID string, repo config.RepositoryConfig, tc *Toolchain) error {
	var artifacts []localrepo.Artifact
	for _, n := range p.nodesByDistro[distroID] {
		if n.State() != StateFinished {
			continue
		}
		rel := n.Release()
		artifacts = append(artifacts, localrepo.Artifact{
			Name: n.Name(),
			Release: localrepo.Release{
				DistroID:  rel.DistroID,
				IDLike:    rel.IDLike,
				NumericID: rel.NumericID,
				Codename:  rel.Codename,
				Suite:     rel.Suite,
			},
			OutDir: n.OutDir(),
		})
	}

	if err := os.MkdirAll(repo.Path, 0o755); err != nil {
		return errors.Wrapf(err, "creating repository output dir for %s", distroID)
	}

	archive := localrepo.ArchiveInfo{Name: repo.Name, URL: repo.URL, Description: repo.Description}
	scratch := filepath.Join(p.opts.WorkRoot, fmt.Sprintf("%s.publish-scratch", distroID))

	if err := localrepo.BuildDebian(ctx, tc.Runner, tc.GPG, scratch, repo.Path, archive, artifacts); err != nil {
		return errors.Wrapf(err, "publishing debian repo for %s", distroID)
	}
	if err := localrepo.BuildRPM(ctx, tc.Runner, tc.GPG, repo.Path, tc.Registry, archive, artifacts); err != nil {
		return errors.Wrapf(err, "publishing rpm repo for %s", distroID)
	}
	return nil
}

func jobsPerBuild(opts RunOptions) int {
	if opts.Verbose {
		return 1
	}
	if opts.Jobs > 0 {
		return opts.Jobs
	}
	return 0
}

func distroSelected(filters []config.Filter, distroID string) bool {
	if len(filters) == 0 {
		return true
	}
	for _, f := range filters {
		if f.Distro == distroID {
			return true
		}
	}
	return false
}

func filterReleases(filters []config.Filter, distroID string, releases []Release) []Release {
	var relevant []config.Filter
	for _, f := range filters {
		if f.Distro == distroID && f.Kind != config.FilterPackageName {
			relevant = append(relevant, f)
		}
	}
	if len(relevant) == 0 {
		return releases
	}

	var out []Release
	for _, r := range releases {
		for _, f := range relevant {
			if f.Kind == config.FilterAnyRelease || r.Matches(f.Selector) {
				out = append(out, r)
				break
			}
		}
	}
	return out
}

// packageSelected honors -D distro:name filters: once any package-name
// filter names this distro, only the named packages are planned for it.
func packageSelected(filters []config.Filter, distroID, pkg string) bool {
	var saw bool
	for _, f := range filters {
		if f.Distro != distroID || f.Kind != config.FilterPackageName {
			continue
		}
		saw = true
		if f.Selector == pkg {
			return true
		}
	}
	return !saw
}

func releaseDisabled(disabled []Release, r Release) bool {
	for _, d := range disabled {
		if d.UID() == r.UID() {
			return true
		}
	}
	return false
}

func catalogFor(catalog []Release, distroID string) []Release {
	var out []Release
	for _, r := range catalog {
		if r.DistroID == distroID {
			out = append(out, r)
		}
	}
	return out
}

func toConfigCatalog(rs []Release) []config.Release {
	out := make([]config.Release, len(rs))
	for i, r := range rs {
		out[i] = config.Release{
			DistroID: r.DistroID, IDLike: r.IDLike, NumericID: r.NumericID,
			Codename: r.Codename, Suite: r.Suite, Supported: r.Supported,
		}
	}
	return out
}

func fromConfigRelease(r config.Release) Release {
	return Release{
		DistroID: r.DistroID, IDLike: r.IDLike, NumericID: r.NumericID,
		Codename: r.Codename, Suite: r.Suite, Supported: r.Supported,
	}
}
