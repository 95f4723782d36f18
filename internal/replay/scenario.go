/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package replay

import (
	"bytes"
	_ "embed" // builtin scenarios
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrInvalidScenario is returned when a scenario is malformed.
var ErrInvalidScenario = errors.New("invalid scenario")

// Op is a kind of operation performed on the cache.
type Op string

// Supported operations.
const (
	OpSet   Op = "set"
	OpGet   Op = "get"
	OpCount Op = "count"
	OpKeys  Op = "keys"
)

// Scenario is a named sequence of steps executed against a fresh cache of the given capacity.
type Scenario struct {
	Name     string `mapstructure:"name" yaml:"name"`
	Capacity int    `mapstructure:"capacity" yaml:"capacity"`
	Steps    []Step `mapstructure:"steps" yaml:"steps"`
}

// Step is a single operation with its expected outcome.
//
//   - set: stores Value under Key.
//   - get: reads Key and expects either Want or, if Absent is true, a miss.
//   - count: expects Count entries in the cache.
//   - keys: expects Keys to be the exact recency order (most recently used first).
//
// Key is a pointer because the empty string is a valid cache key and must be told apart from a missing one.
type Step struct {
	Op     Op       `mapstructure:"op" yaml:"op"`
	Key    *string  `mapstructure:"key" yaml:"key,omitempty"`
	Value  string   `mapstructure:"value" yaml:"value,omitempty"`
	Want   *string  `mapstructure:"want" yaml:"want,omitempty"`
	Absent bool     `mapstructure:"absent" yaml:"absent,omitempty"`
	Count  *int     `mapstructure:"count" yaml:"count,omitempty"`
	Keys   []string `mapstructure:"keys" yaml:"keys,omitempty"`
}

// KeyString returns the key of the step or an empty string if the step has no key.
func (st *Step) KeyString() string {
	if st.Key == nil {
		return ""
	}
	return *st.Key
}

// Validate checks that the scenario may be executed.
func (s *Scenario) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidScenario)
	}
	if s.Capacity < 0 {
		return fmt.Errorf("%w %q: capacity must be >= 0, got %d", ErrInvalidScenario, s.Name, s.Capacity)
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("%w %q: no steps", ErrInvalidScenario, s.Name)
	}
	for i := range s.Steps {
		if err := s.Steps[i].validate(); err != nil {
			return fmt.Errorf("%w %q: step %d: %s", ErrInvalidScenario, s.Name, i+1, err)
		}
	}
	return nil
}

func (st *Step) validate() error {
	switch st.Op {
	case OpSet:
		if st.Key == nil {
			return errors.New("key is required")
		}
	case OpGet:
		if st.Key == nil {
			return errors.New("key is required")
		}
		if (st.Want == nil) == !st.Absent {
			return errors.New("exactly one of want and absent must be set")
		}
	case OpCount:
		if st.Count == nil {
			return errors.New("count is required")
		}
	case OpKeys:
		if st.Keys == nil {
			return errors.New("keys is required")
		}
	default:
		return fmt.Errorf("unknown op %q", st.Op)
	}
	return nil
}

type scenarioFile struct {
	Scenarios []Scenario `yaml:"scenarios"`
}

// Decode reads scenarios in YAML format and validates them.
// Unknown fields are rejected, so a misspelled expectation doesn't pass silently.
func Decode(r io.Reader) ([]Scenario, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var f scenarioFile
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("decode scenarios: %w", err)
	}
	if err := validateAll(f.Scenarios); err != nil {
		return nil, err
	}
	return f.Scenarios, nil
}

// validateAll validates every scenario and checks that names are unique.
func validateAll(scenarios []Scenario) error {
	names := make(map[string]struct{}, len(scenarios))
	for i := range scenarios {
		if err := scenarios[i].Validate(); err != nil {
			return err
		}
		if _, dup := names[scenarios[i].Name]; dup {
			return fmt.Errorf("%w %q: duplicate name", ErrInvalidScenario, scenarios[i].Name)
		}
		names[scenarios[i].Name] = struct{}{}
	}
	return nil
}

// LoadFile reads scenarios from the YAML file.
func LoadFile(path string) ([]Scenario, error) {
	f, err := os.Open(path) //nolint:gosec // path is provided by the operator
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	scenarios, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return scenarios, nil
}

//go:embed builtin.yaml
var builtinScenarios []byte

// Builtin returns the reference scenarios every LRU cache implementation must pass.
func Builtin() []Scenario {
	scenarios, err := Decode(bytes.NewReader(builtinScenarios))
	if err != nil {
		panic(fmt.Errorf("builtin scenarios: %w", err))
	}
	return scenarios
}
