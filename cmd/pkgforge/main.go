package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/mattn/go-isatty"
	"github.com/pdidev/pkgforge"
	"github.com/pdidev/pkgforge/internal/config"
	"github.com/sirupsen/logrus"
)

type runFlags struct {
	passphrase  string
	verbose     bool
	interactive bool
	distributs  distroFilters
	jobs        int
}

// distroFilters collects repeated -D/--distributions flags.
type distroFilters []string

func (f *distroFilters) String() string { return fmt.Sprint([]string(*f)) }
func (f *distroFilters) Set(v string) error {
	*f = append(*f, v)
	return nil
}

func main() {
	var rf runFlags

	flag.StringVar(&rf.passphrase, "p", "", "GPG passphrase")
	flag.StringVar(&rf.passphrase, "passphrase", "", "GPG passphrase")
	flag.BoolVar(&rf.verbose, "v", false, "inherit child stdout, force -j 1")
	flag.BoolVar(&rf.verbose, "verbose", false, "inherit child stdout, force -j 1")
	flag.BoolVar(&rf.interactive, "i", false, "prompt before cleanup on error")
	flag.BoolVar(&rf.interactive, "interactive", false, "prompt before cleanup on error")
	flag.Var(&rf.distributs, "D", "filter releases (distro[:codename|:suite|:id|:name]), repeatable")
	flag.Var(&rf.distributs, "distributions", "filter releases (distro[:codename|:suite|:id|:name]), repeatable")
	flag.IntVar(&rf.jobs, "j", 0, "scheduler pool size")
	flag.IntVar(&rf.jobs, "jobs", 0, "scheduler pool size")
	flag.Parse()

	configPath := flag.Arg(0)
	if configPath == "" {
		configPath = "build.conf"
	}

	configureLogging(rf.verbose)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := run(ctx, configPath, rf)
	if err != nil {
		os.Exit(handleRunError(err))
	}
}

func configureLogging(verbose bool) {
	if isatty.IsTerminal(os.Stderr.Fd()) {
		logrus.SetFormatter(&logrus.TextFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{DisableColors: true})
	}
	if verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}
}

func run(ctx context.Context, configPath string, rf runFlags) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	filters := make([]config.Filter, 0, len(rf.distributs))
	for _, raw := range rf.distributs {
		f, err := config.ParseFilter(raw)
		if err != nil {
			return err
		}
		if f.Kind == config.FilterCodename {
			_, isPkg := cfg.Packages[f.Selector]
			f = f.Reclassify(false, isPkg)
		}
		filters = append(filters, f)
	}

	repoRoot, err := filepath.Abs(filepath.Dir(configPath))
	if err != nil {
		return err
	}
	workRoot, err := os.MkdirTemp("", "pkgforge-work-")
	if err != nil {
		return err
	}
	var runErr error
	defer func() { cleanupWorkRoot(workRoot, rf.interactive, runErr) }()

	registry := os.Getenv("PKGFORGE_REGISTRY")
	if registry == "" {
		registry = "ghcr.io/pdidev"
	}

	opts := pkgforge.RunOptions{
		RepoRoot:    repoRoot,
		Passphrase:  rf.passphrase,
		Verbose:     rf.verbose,
		Jobs:        rf.jobs,
		Registry:    registry,
		Catalog:     pkgforge.DefaultCatalog,
		WorkRoot:    workRoot,
		DownloadDir: filepath.Join(workRoot, "downloads"),
		Filters:     filters,
		Log:         logrus.StandardLogger(),
	}

	plan, err := pkgforge.BuildPlan(ctx, cfg, opts)
	if err != nil {
		runErr = err
		return err
	}
	defer plan.Close()

	runErr = plan.Run(ctx)
	return runErr
}

// cleanupWorkRoot removes the scratch work directory, optionally prompting
// the operator first when a build failed and -i/--interactive was passed,
// so failed artifacts can be inspected before they're discarded.
func cleanupWorkRoot(workRoot string, interactive bool, runErr error) {
	if interactive && runErr != nil {
		fmt.Fprintf(os.Stderr, "build failed: %v\npress enter to remove %s, or Ctrl-C to keep it for inspection\n", runErr, workRoot)
		var discard string
		fmt.Scanln(&discard)
	}
	os.RemoveAll(workRoot)
}

// handleRunError prints diagnostics appropriate to the error kind and
// returns the process exit code: 1 for interrupt, 2 for a failed child
// tool, 3 for everything else.
func handleRunError(err error) int {
	if errors.Is(err, pkgforge.ErrCancelled) {
		return 1
	}

	var subErr *pkgforge.SubprocessFailedError
	if errors.As(err, &subErr) {
		fmt.Fprintf(os.Stderr, "command failed: %v\n%s\n", subErr.Argv, subErr.Output)
		return 2
	}

	fmt.Fprintln(os.Stderr, err)
	return 3
}
