// Package model holds the declarative shape of a verify.yaml project: the
// check definitions a config loader parses into memory and the derived
// classification the rest of the engine switches on.
package model

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// MetricPattern extracts a value from a check's captured output. It is
// either a bare regex (group 1, or the whole match when there is no group)
// or a [regex, replacement] pair applied as a regex replacement against the
// first match.
type MetricPattern struct {
	Regex       string
	Replacement string
	HasReplace  bool
}

// UnmarshalYAML accepts either a scalar regex or a two-element sequence.
func (m *MetricPattern) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var s string
		if err := value.Decode(&s); err != nil {
			return err
		}
		m.Regex = s
		return nil
	case yaml.SequenceNode:
		var pair []string
		if err := value.Decode(&pair); err != nil {
			return err
		}
		if len(pair) != 2 {
			return fmt.Errorf("metric pattern sequence must have exactly 2 elements, got %d", len(pair))
		}
		m.Regex = pair[0]
		m.Replacement = pair[1]
		m.HasReplace = true
		return nil
	default:
		return fmt.Errorf("metric pattern must be a string or a [regex, replacement] pair")
	}
}

// UnmarshalJSON mirrors UnmarshalYAML for the JSON report surface.
func (m *MetricPattern) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		m.Regex = s
		return nil
	}
	var pair []string
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("metric pattern array must have exactly 2 elements, got %d", len(pair))
	}
	m.Regex = pair[0]
	m.Replacement = pair[1]
	m.HasReplace = true
	return nil
}

// CheckDef is one entry of verify.yaml's `verifications` list.
type CheckDef struct {
	Name        string                   `mapstructure:"name" yaml:"name" json:"name"`
	Command     *string                  `mapstructure:"command" yaml:"command,omitempty" json:"command,omitempty"`
	CachePaths  []string                 `mapstructure:"cache_paths" yaml:"cache_paths,omitempty" json:"cache_paths,omitempty"`
	DependsOn   []string                 `mapstructure:"depends_on" yaml:"depends_on,omitempty" json:"depends_on,omitempty"`
	TimeoutSecs *int                     `mapstructure:"timeout_secs" yaml:"timeout_secs,omitempty" json:"timeout_secs,omitempty"`
	PerFile     bool                     `mapstructure:"per_file" yaml:"per_file,omitempty" json:"per_file,omitempty"`
	Metadata    map[string]MetricPattern `mapstructure:"metadata" yaml:"metadata,omitempty" json:"metadata,omitempty"`
	Path        *string                  `mapstructure:"path" yaml:"path,omitempty" json:"path,omitempty"`
}

// Classification is the derived kind of a check, computed from its
// definition alone (spec.md §3).
type Classification int

const (
	// Aggregate has no command and no cache_paths; status is a function of
	// its dependencies only.
	Aggregate Classification = iota
	// Untracked has a command but no cache_paths; always runs.
	Untracked
	// Tracked has both a command and cache_paths; fingerprintable.
	Tracked
	// SubProject has a path; recursively a whole nested project.
	SubProject
)

func (c Classification) String() string {
	switch c {
	case Aggregate:
		return "aggregate"
	case Untracked:
		return "untracked"
	case Tracked:
		return "tracked"
	case SubProject:
		return "sub-project"
	default:
		return "unknown"
	}
}

// Classify derives a CheckDef's Classification from its definition alone.
func Classify(def CheckDef) Classification {
	if def.Path != nil {
		return SubProject
	}
	if def.Command == nil {
		return Aggregate
	}
	if len(def.CachePaths) == 0 {
		return Untracked
	}
	return Tracked
}

// Validate enforces the per-check invariants from spec.md §3 that do not
// require looking at sibling checks (name uniqueness and depends_on
// resolution are graph-level concerns, see internal/graph).
func (def CheckDef) Validate() error {
	if def.Name == "" {
		return fmt.Errorf("check has no name")
	}
	if def.Path != nil && def.Command != nil {
		return fmt.Errorf("check %q: path and command are mutually exclusive", def.Name)
	}
	if def.PerFile {
		if def.Command == nil {
			return fmt.Errorf("check %q: per_file requires a command", def.Name)
		}
		if len(def.CachePaths) == 0 {
			return fmt.Errorf("check %q: per_file requires non-empty cache_paths", def.Name)
		}
	}
	if def.TimeoutSecs != nil && *def.TimeoutSecs <= 0 {
		return fmt.Errorf("check %q: timeout_secs must be positive", def.Name)
	}
	return nil
}

// Project is the parsed contents of a verify.yaml file.
type Project struct {
	Verifications []CheckDef `yaml:"verifications" json:"verifications"`

	// Root is the absolute directory verify.yaml was loaded from; not
	// itself part of the file's schema, populated by the config loader.
	Root string `yaml:"-" json:"-"`
}

// ByName indexes the project's checks by name.
func (p *Project) ByName() map[string]CheckDef {
	out := make(map[string]CheckDef, len(p.Verifications))
	for _, c := range p.Verifications {
		out[c.Name] = c
	}
	return out
}
