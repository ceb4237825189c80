package plan

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
)

// HashSteps generates a deterministic hash of a step list. Step IDs are
// excluded because they are assigned at execution time; two proposals with
// the same actions hash identically regardless of where they would run.
func HashSteps(steps []*Step) (string, error) {
	normalized := make([]map[string]interface{}, 0, len(steps))
	for _, step := range steps {
		normalized = append(normalized, map[string]interface{}{
			"action":                step.Action,
			"tool_ref":              step.ToolRef,
			"expected_result":       step.ExpectedResult,
			"requires_verification": step.RequiresVerification,
		})
	}

	jsonData, err := json.Marshal(normalized)
	if err != nil {
		return "", fmt.Errorf("failed to marshal steps: %w", err)
	}

	hash := sha256.Sum256(jsonData)
	return fmt.Sprintf("%x", hash), nil
}
