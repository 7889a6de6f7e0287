package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/roach88/bypassd/internal/events"
	"github.com/roach88/bypassd/internal/model"
)

// Scenario is one scripted replay of engine output.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Seed is written to the database before the learning store loads,
	// so legacy blobs and per-domain keys can both be staged.
	Seed []SeedEntry `yaml:"seed,omitempty"`

	// Lines is the engine output, fed in order.
	Lines []string `yaml:"lines"`

	// AutoLockThreshold runs AutoLockFromHistory after the lines when > 0.
	AutoLockThreshold int `yaml:"autolock_threshold,omitempty"`

	// Assertions validate the trace and final state.
	Assertions []Assertion `yaml:"assertions"`
}

// SeedEntry is one raw key written before the run.
type SeedEntry struct {
	Namespace string `yaml:"namespace"`
	Key       string `yaml:"key"`
	Value     string `yaml:"value"`
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "event_count": Kind appears exactly Count times
	// - "event_order": Kinds appear in order
	// - "unrecognized": exactly Count lines were unrecognized
	// - "lock": Domain/Protocol locked to Strategy (0 = no lock)
	// - "counters": Domain/Strategy has Successes and Failures
	// - "persisted": Namespace/Key holds Value, or is Absent
	Type string `yaml:"type"`

	// Kind is an event kind name such as "locked" (event_count).
	Kind string `yaml:"kind,omitempty"`

	// Kinds is the expected kind order (event_order).
	Kinds []string `yaml:"kinds,omitempty"`

	// Count is the expected number of occurrences.
	Count int `yaml:"count,omitempty"`

	Domain string `yaml:"domain,omitempty"`

	// Protocol is "TLS" or "HTTP"; empty means TLS.
	Protocol string `yaml:"protocol,omitempty"`

	Strategy  int `yaml:"strategy,omitempty"`
	Successes int `yaml:"successes,omitempty"`
	Failures  int `yaml:"failures,omitempty"`

	Namespace string `yaml:"namespace,omitempty"`
	Key       string `yaml:"key,omitempty"`
	Value     string `yaml:"value,omitempty"`
	Absent    bool   `yaml:"absent,omitempty"`
}

// Assertion type constants.
const (
	AssertEventCount   = "event_count"
	AssertEventOrder   = "event_order"
	AssertUnrecognized = "unrecognized"
	AssertLock         = "lock"
	AssertCounters     = "counters"
	AssertPersisted    = "persisted"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadScenarios loads every *.yaml file in dir, sorted by file name.
func LoadScenarios(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("failed to list scenarios: %w", err)
	}
	if len(paths) == 0 {
		return nil, &ScenarioNotFoundError{Dir: dir}
	}
	sort.Strings(paths)

	out := make([]*Scenario, 0, len(paths))
	seen := make(map[string]string, len(paths))
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
		if prev, ok := seen[s.Name]; ok {
			return nil, fmt.Errorf("%s: scenario name %q already used by %s", filepath.Base(p), s.Name, prev)
		}
		seen[s.Name] = filepath.Base(p)
		out = append(out, s)
	}
	return out, nil
}

// ScenarioNotFoundError is returned when a directory holds no scenarios.
type ScenarioNotFoundError struct {
	Dir string
}

func (e *ScenarioNotFoundError) Error() string {
	return fmt.Sprintf("no scenarios found in %s", e.Dir)
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Lines) == 0 {
		return fmt.Errorf("lines list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	if s.AutoLockThreshold < 0 {
		return fmt.Errorf("autolock_threshold must be non-negative")
	}

	for i, e := range s.Seed {
		if e.Namespace == "" || e.Key == "" {
			return fmt.Errorf("seed[%d]: namespace and key are required", i)
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertEventCount:
		if _, ok := kindByName(a.Kind); !ok {
			return fmt.Errorf("assertions[%d]: unknown event kind %q", index, a.Kind)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for event_count", index)
		}
	case AssertEventOrder:
		if len(a.Kinds) == 0 {
			return fmt.Errorf("assertions[%d]: kinds list is required for event_order", index)
		}
		for _, k := range a.Kinds {
			if _, ok := kindByName(k); !ok {
				return fmt.Errorf("assertions[%d]: unknown event kind %q", index, k)
			}
		}
	case AssertUnrecognized:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for unrecognized", index)
		}
	case AssertLock:
		if a.Domain == "" {
			return fmt.Errorf("assertions[%d]: domain is required for lock", index)
		}
		if _, err := assertionProtocol(a); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
	case AssertCounters:
		if a.Domain == "" || a.Strategy <= 0 {
			return fmt.Errorf("assertions[%d]: domain and strategy are required for counters", index)
		}
	case AssertPersisted:
		if a.Namespace == "" || a.Key == "" {
			return fmt.Errorf("assertions[%d]: namespace and key are required for persisted", index)
		}
		if a.Absent && a.Value != "" {
			return fmt.Errorf("assertions[%d]: value and absent are mutually exclusive", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

func kindByName(name string) (events.Kind, bool) {
	for _, k := range events.Kinds() {
		if k.String() == name {
			return k, true
		}
	}
	return 0, false
}

func assertionProtocol(a *Assertion) (model.Protocol, error) {
	if a.Protocol == "" {
		return model.ProtocolTLS, nil
	}
	return model.ParseProtocol(a.Protocol)
}
