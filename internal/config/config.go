// Package config implements the typed build.conf decode and the
// release-selector/filter parsing algebra that resolves it against a
// catalog of known releases.
package config

import (
	"os"

	"github.com/goccy/go-yaml"
	"github.com/pkg/errors"
)

// GPGConfig names the signing key to import for a distribution.
type GPGConfig struct {
	File string `yaml:"file"`
	ID   string `yaml:"id"`
	UID  string `yaml:"uid"`
}

// RepositoryConfig describes where and how a distribution's repo is
// published.
type RepositoryConfig struct {
	Path        string `yaml:"path"`
	URL         string `yaml:"url"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// DistribConfig is one entry of the top-level "distribs" map.
type DistribConfig struct {
	GPG        GPGConfig           `yaml:"gpg"`
	Versions   map[string][]string `yaml:"versions"`
	Repository RepositoryConfig    `yaml:"repository"`
}

// PackageConfig is one entry of the top-level "packages" map.
type PackageConfig struct {
	Orig    string              `yaml:"orig"`
	Disable map[string][]string `yaml:"disable"`
}

// Config is the fully decoded form of build.conf.
type Config struct {
	Distribs map[string]DistribConfig `yaml:"distribs"`
	Packages map[string]PackageConfig `yaml:"packages"`
}

// ConfigError wraps a malformed build.conf or a reference to an unknown
// distro_id.
type ConfigError struct {
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return "config error: " + e.Reason + ": " + e.Err.Error()
	}
	return "config error: " + e.Reason
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Load reads and decodes the YAML configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Reason: "reading " + path, Err: err}
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &ConfigError{Reason: "parsing " + path, Err: err}
	}
	return &cfg, nil
}

// Validate checks that every distro_id referenced by a package's Disable
// map is also declared under Distribs.
func (c *Config) Validate() error {
	for pkgName, pc := range c.Packages {
		for distroID := range pc.Disable {
			if _, ok := c.Distribs[distroID]; !ok {
				return &ConfigError{Reason: errors.Errorf("package %q disables unknown distribution %q", pkgName, distroID).Error()}
			}
		}
	}
	return nil
}
