// Package fleet loads the fleet definition: the repositories a run
// should review and how.
package fleet

import (
	"fmt"
	"regexp"

	"github.com/spf13/afero"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

// repoRe matches "owner/name" repository identifiers
var repoRe = regexp.MustCompile(`^[\w.-]+/[\w.-]+$`)

// Fleet is the parsed fleet.yaml document
type Fleet struct {
	Mode  string `yaml:"mode"`
	Repos []Repo `yaml:"repos"`
}

// Repo is one fleet member
type Repo struct {
	Name     string `yaml:"name"`
	WorkDir  string `yaml:"workdir"`
	SkipDays int    `yaml:"skip_days"`
}

// Load reads and validates a fleet definition from path
func Load(fsys afero.Fs, path string) (*Fleet, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("read fleet definition %s: %w", path, err)
	}

	var f Fleet
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fleet definition %s: %w", path, err)
	}
	if f.Mode == "" {
		f.Mode = "full"
	}
	if len(f.Repos) == 0 {
		return nil, fmt.Errorf("fleet definition %s lists no repos", path)
	}

	seen := make(map[string]bool, len(f.Repos))
	for i := range f.Repos {
		name := norm.NFC.String(f.Repos[i].Name)
		f.Repos[i].Name = name
		if !repoRe.MatchString(name) {
			return nil, fmt.Errorf("fleet definition %s: malformed repo %q", path, name)
		}
		if seen[name] {
			return nil, fmt.Errorf("fleet definition %s: duplicate repo %q", path, name)
		}
		seen[name] = true
	}
	return &f, nil
}

// Names returns the repo identifiers in definition order
func (f *Fleet) Names() []string {
	names := make([]string, len(f.Repos))
	for i, r := range f.Repos {
		names[i] = r.Name
	}
	return names
}
