package pkgforge

import (
	"fmt"

	"k8s.io/apimachinery/pkg/util/sets"
)

// providerKey is the (binary_name, release) pair the linker indexes
// producers by. The release is identified by its UID rather than the
// Release value itself, which carries a slice field and so cannot be a
// map key.
type providerKey struct {
	binary  string
	release string
}

func keyFor(binary string, r Release) providerKey {
	return providerKey{binary: binary, release: r.UID()}
}

// Link builds the (binary_name, release) -> producer map from every
// node's Provides, then wires each node's DependsOn from its Requires. A
// second producer for the same key is rejected as a *ConfigError rather
// than letting the last writer win.
func Link(nodes []Node) error {
	producers := make(map[providerKey]Node, len(nodes))

	for _, n := range nodes {
		for binary := range n.Provides() {
			key := keyFor(binary, n.Release())
			if existing, ok := producers[key]; ok {
				return &ConfigError{
					Reason: fmt.Sprintf("duplicate provider for %q", binary),
					Err: &DuplicateProvidesError{
						Binary:  binary,
						Release: n.Release(),
						First:   existing.Name(),
						Second:  n.Name(),
					},
				}
			}
			producers[key] = n
		}
	}

	for _, n := range nodes {
		deps := make([]Node, 0, n.Requires().Len())
		seen := sets.New[string]()
		for binary := range n.Requires() {
			key := keyFor(binary, n.Release())
			producer, ok := producers[key]
			if !ok {
				continue
			}
			if seen.Has(producer.Name()) {
				continue
			}
			seen.Insert(producer.Name())
			deps = append(deps, producer)
		}
		n.SetDependsOn(deps)
	}

	return nil
}
