package pkgforge

import (
	"context"
	"sync"

	"k8s.io/apimachinery/pkg/util/sets"
)

// SourceKind identifies which packaging toolchain a PackageNode builds
// with, as detected by Discover.
type SourceKind string

const (
	SourceDebianQuilt  SourceKind = "debian-quilt"
	SourceDebianNative SourceKind = "debian-native"
	SourceRPM          SourceKind = "rpm"
	SourceAbsent       SourceKind = "absent"
)

// State is a PackageNode's position in its build lifecycle.
type State string

const (
	StatePending   State = "pending"
	StateReady     State = "ready"
	StateBuilding  State = "building"
	StateFinished  State = "finished"
	StateFailed    State = "failed"
	StateSkipped   State = "skipped"
	StateCancelled State = "cancelled"
)

// Node is the build unit: a source package resolved against one Release.
// The Scheduler only ever touches this capability set, so Debian and RPM
// packages can be scheduled identically.
type Node interface {
	// Name is the source-package name, also the directory name under the
	// repo root.
	Name() string
	// Release is the distribution/version this node builds for.
	Release() Release
	// SourceKind reports which packaging toolchain this node uses.
	SourceKind() SourceKind
	// Provides is the set of binary package names this node will emit.
	Provides() sets.Set[string]
	// Requires is the set of binary package names needed at build time.
	Requires() sets.Set[string]

	// DependsOn returns the set of nodes this node's build waits on. Until
	// the Dependency Linker runs it is empty and Resolved reports false;
	// Ready reports false in that state so an unlinked node is never
	// scheduled.
	DependsOn() []Node
	// SetDependsOn is called exactly once by the Dependency Linker.
	SetDependsOn(deps []Node)
	// Resolved reports whether SetDependsOn has been called.
	Resolved() bool

	// State returns the node's current lifecycle state.
	State() State

	// Build runs this node's per-release build pipeline. It transitions
	// State to building, then to finished, failed, skipped, or cancelled.
	// workRoot is the scratch directory root; this node owns the unique
	// subtree it creates beneath it.
	Build(ctx context.Context, workRoot string) error

	// OutDir returns the directory containing this node's signed
	// artifacts. Valid only once State is finished or skipped.
	OutDir() string
}

// base is embedded by the Debian and RPM node implementations to share
// the state machine and dependency bookkeeping required by every Node.
type base struct {
	name    string
	release Release

	mu        sync.Mutex
	state     State
	dependsOn []Node
	resolved  bool
	outDir    string
}

func newBase(name string, release Release) base {
	return base{name: name, release: release, state: StatePending}
}

func (b *base) Name() string     { return b.name }
func (b *base) Release() Release { return b.release }

func (b *base) DependsOn() []Node {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dependsOn
}

func (b *base) SetDependsOn(deps []Node) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dependsOn = deps
	b.resolved = true
}

func (b *base) Resolved() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.resolved
}

func (b *base) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *base) setState(s State) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = s
}

func (b *base) OutDir() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.outDir
}

func (b *base) setOutDir(dir string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.outDir = dir
}

// Ready reports whether every direct dependency of n has reached finished
// or skipped. An unresolved node (one Link has not yet processed) is
// never ready.
func Ready(n Node) bool {
	if !n.Resolved() {
		return false
	}
	for _, d := range n.DependsOn() {
		if d == n {
			continue // self-dependency is satisfied trivially
		}
		switch d.State() {
		case StateFinished, StateSkipped:
		default:
			return false
		}
	}
	return true
}

// Closure returns the transitive set of nodes reachable from n through
// DependsOn, including n itself. The local repo fed into a node's build
// container is assembled from this set.
func Closure(n Node) []Node {
	seen := map[Node]bool{}
	var order []Node

	var visit func(Node)
	visit = func(cur Node) {
		if seen[cur] {
			return
		}
		seen[cur] = true
		order = append(order, cur)
		for _, d := range cur.DependsOn() {
			if d != cur {
				visit(d)
			}
		}
	}
	visit(n)
	return order
}
