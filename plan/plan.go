// Package plan defines the step and plan types executed by the run package,
// the hierarchical step ID scheme, and deterministic hashing of step lists.
package plan

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
)

// Step is one unit of work in a plan. A step is immutable once dispatched;
// its ID is assigned at execution time by the coordinator, never by the
// planner.
type Step struct {
	ID                   string `json:"id,omitempty" yaml:"id,omitempty"`
	Action               string `json:"action" yaml:"action"`
	ToolRef              string `json:"tool_ref,omitempty" yaml:"tool_ref,omitempty"`
	ExpectedResult       string `json:"expected_result,omitempty" yaml:"expected_result,omitempty"`
	RequiresVerification bool   `json:"requires_verification,omitempty" yaml:"requires_verification,omitempty"`
}

// Plan is an ordered list of steps to execute toward a goal.
type Plan struct {
	Goal  string  `json:"goal" yaml:"goal"`
	Steps []*Step `json:"steps" yaml:"steps"`
}

// Validate confirms the plan is well-formed.
func (p *Plan) Validate() error {
	for i, step := range p.Steps {
		if step == nil {
			return fmt.Errorf("plan step %d is nil", i+1)
		}
		if step.Action == "" {
			return fmt.Errorf("plan step %d has no action", i+1)
		}
	}
	return nil
}

// ParseFile loads a Plan from a file. The file extension is used to
// determine the format (JSON or YAML).
func ParseFile(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		return ParseJSON(data)
	case ".yml", ".yaml":
		return ParseYAML(data)
	default:
		return nil, fmt.Errorf("unsupported file extension: %s", ext)
	}
}

// ParseYAML loads a Plan from YAML
func ParseYAML(data []byte) (*Plan, error) {
	var p Plan
	if err := yaml.UnmarshalWithOptions(data, &p, yaml.Strict()); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// ParseJSON loads a Plan from JSON
func ParseJSON(data []byte) (*Plan, error) {
	var p Plan
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}
