// Package config loads the declarative list of tracked repositories.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

const DefaultConfigFile = "tracked-repos.toml"

// RepoSpec describes one tracked repository entry from the config.
type RepoSpec struct {
	Name        string `toml:"name"`
	GitURL      string `toml:"giturl"`
	StorePath   string `toml:"store_path"`
	GitRef      string `toml:"git_ref"`
	Description string `toml:"description"`
}

// Config represents the full tracked repos file, an array of
// [[repositories]] tables.
type Config struct {
	Repositories []RepoSpec `toml:"repositories"`
}

// Load reads and parses a tracked repos config from the given path.
// Structural problems (unreadable file, bad TOML, no repositories array) are
// errors; entries with missing fields are kept and surface later, per entry,
// when they are validated.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %v", err)
	}

	var cfg Config
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config %s: %v", path, err)
	}
	if !md.IsDefined("repositories") {
		return nil, fmt.Errorf("config %s must define an array 'repositories' of tables", path)
	}

	for i := range cfg.Repositories {
		cfg.Repositories[i].trim()
	}
	return &cfg, nil
}

func (s *RepoSpec) trim() {
	s.Name = strings.TrimSpace(s.Name)
	s.GitURL = strings.TrimSpace(s.GitURL)
	s.StorePath = strings.TrimSpace(s.StorePath)
	s.GitRef = strings.TrimSpace(s.GitRef)
	s.Description = strings.TrimSpace(s.Description)
}

// Validate checks the fields every sync needs. Description is metadata and
// may be empty.
func (s RepoSpec) Validate() error {
	var missing []string
	if s.Name == "" {
		missing = append(missing, "name")
	}
	if s.GitURL == "" {
		missing = append(missing, "giturl")
	}
	if s.StorePath == "" {
		missing = append(missing, "store_path")
	}
	if s.GitRef == "" {
		missing = append(missing, "git_ref")
	}
	if len(missing) > 0 {
		return &SpecError{Spec: s, Missing: missing}
	}
	return nil
}

// Label names the entry in logs, falling back to the url for entries without
// a name.
func (s RepoSpec) Label() string {
	if s.Name != "" {
		return s.Name
	}
	return s.GitURL
}

// SpecError reports a repository entry that cannot be synced as written.
type SpecError struct {
	Spec    RepoSpec
	Missing []string
}

func (e *SpecError) Error() string {
	return fmt.Sprintf("missing required fields (%s)", strings.Join(e.Missing, ", "))
}
