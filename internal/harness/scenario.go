package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/medsync/internal/ir"
)

// Scenario defines a conformance test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario; it also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Schema is an optional directory of CUE entity definitions, relative to
	// the scenario file. Empty means the built-in clinical catalog.
	Schema string `yaml:"schema,omitempty"`

	// NodeGUID identifies the receiving node. Defaults to "test-node".
	NodeGUID string `yaml:"node_guid,omitempty"`

	// AcceptTypes restricts the entity types the receiving node takes.
	AcceptTypes []string `yaml:"accept_types,omitempty"`

	// Records are delivered to the receiving node in order.
	Records []RecordStep `yaml:"records"`

	// Assertions validate the final state.
	// Supported types: entity, entity_absent, entity_count, verdict
	Assertions []Assertion `yaml:"assertions"`
}

// RecordStep delivers one sync record.
type RecordStep struct {
	// GUID of the record. Required unless Replay is set.
	GUID string `yaml:"guid,omitempty"`

	// Replay re-delivers an earlier step's record with this guid.
	Replay string `yaml:"replay,omitempty"`

	// RetryCount is the sender's attempt counter.
	RetryCount int `yaml:"retry_count,omitempty"`

	// Items in record order.
	Items []ItemStep `yaml:"items,omitempty"`

	// Expect is the expected verdict. If nil, any verdict is accepted.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ItemStep is one sync item: either a change to encode, or a raw payload
// delivered verbatim.
type ItemStep struct {
	Change *ChangeStep `yaml:"change,omitempty"`
	Raw    *string     `yaml:"raw,omitempty"`
}

// ChangeStep is the YAML form of a change descriptor.
type ChangeStep struct {
	Type   string    `yaml:"type"`
	GUID   string    `yaml:"guid"`
	Fields FieldList `yaml:"fields,omitempty"`
}

// FieldList is an ordered field mapping. YAML scalars become raw values
// and null marks a clear.
type FieldList []ir.Field

// UnmarshalYAML decodes a mapping node, keeping key order.
func (fl *FieldList) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: fields must be a mapping", node.Line)
	}
	fields := make(FieldList, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]
		if val.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: field %q must be a scalar", val.Line, key.Value)
		}
		if val.Tag == "!!null" {
			fields = append(fields, ir.Field{Name: key.Value, Null: true})
			continue
		}
		fields = append(fields, ir.Field{Name: key.Value, Value: val.Value})
	}
	*fl = fields
	return nil
}

// ExpectClause is the expected verdict of one record.
type ExpectClause struct {
	// State is the expected record state (e.g. "COMMITTED", "FAILED").
	State string `yaml:"state"`

	// Items, if present, lists the expected item states in order.
	Items []string `yaml:"items,omitempty"`

	// Codes, if present, lists the expected error codes in order ("" for none).
	Codes []string `yaml:"codes,omitempty"`
}

// Assertion validates final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "entity": the entity exists and its fields include Expect
	// - "entity_absent": no entity with (Entity, GUID)
	// - "entity_count": exactly Count entities of Entity ("" for all types)
	// - "verdict": the stored import record for Record has State
	Type string `yaml:"type"`

	Entity string            `yaml:"entity,omitempty"`
	GUID   string            `yaml:"guid,omitempty"`
	Expect map[string]string `yaml:"expect,omitempty"`
	Count  int               `yaml:"count,omitempty"`
	Record string            `yaml:"record,omitempty"`
	State  string            `yaml:"state,omitempty"`
}

// Assertion type constants.
const (
	AssertEntity       = "entity"
	AssertEntityAbsent = "entity_absent"
	AssertEntityCount  = "entity_count"
	AssertVerdict      = "verdict"
)

// LoadScenario reads and parses a scenario YAML file. A relative Schema path
// is resolved against the scenario's directory.
//
// Returns an error if the file doesn't exist, is malformed, contains unknown
// fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}
	if scenario.Schema != "" && !filepath.IsAbs(scenario.Schema) {
		scenario.Schema = filepath.Join(filepath.Dir(path), scenario.Schema)
	}
	return scenario, nil
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
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

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Records) == 0 {
		return fmt.Errorf("records list is required and must be non-empty")
	}

	delivered := make(map[string]bool)
	for i, step := range s.Records {
		switch {
		case step.Replay != "" && (step.GUID != "" || len(step.Items) > 0):
			return fmt.Errorf("records[%d]: replay excludes guid and items", i)
		case step.Replay != "":
			if !delivered[step.Replay] {
				return fmt.Errorf("records[%d]: replay of undelivered record %q", i, step.Replay)
			}
		case step.GUID == "":
			return fmt.Errorf("records[%d]: guid is required", i)
		default:
			delivered[step.GUID] = true
		}

		for j, item := range step.Items {
			if (item.Change == nil) == (item.Raw == nil) {
				return fmt.Errorf("records[%d].items[%d]: exactly one of change or raw is required", i, j)
			}
		}

		if step.Expect != nil {
			if _, err := ir.ParseRecordState(step.Expect.State); err != nil {
				return fmt.Errorf("records[%d].expect: %w", i, err)
			}
			if step.Expect.Codes != nil && step.Expect.Items == nil {
				return fmt.Errorf("records[%d].expect: codes require items", i)
			}
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertEntity:
		if a.Entity == "" || a.GUID == "" {
			return fmt.Errorf("assertions[%d]: entity and guid are required for entity", index)
		}
	case AssertEntityAbsent:
		if a.Entity == "" || a.GUID == "" {
			return fmt.Errorf("assertions[%d]: entity and guid are required for entity_absent", index)
		}
	case AssertEntityCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for entity_count", index)
		}
	case AssertVerdict:
		if a.Record == "" {
			return fmt.Errorf("assertions[%d]: record is required for verdict", index)
		}
		if _, err := ir.ParseRecordState(a.State); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
