package plan

import (
	"encoding/json"
	"sort"
	"sync"
)

// StepResult records the outcome of one step execution attempt that reached
// a terminal decision. Results are appended to a ResultLog and never
// mutated afterwards.
type StepResult struct {
	StepID    string                 `json:"step_id"`
	Success   bool                   `json:"success"`
	Result    string                 `json:"result,omitempty"`
	ErrorKind string                 `json:"error_kind,omitempty"`
	ToolCall  map[string]interface{} `json:"tool_call,omitempty"`
}

// ResultLog is the append-only, ordered log of step results for one run.
// Results are appended strictly in the order their steps complete. A step
// whose ID already has a successful result is skipped on re-entry, which is
// what makes resumption after a restart idempotent.
type ResultLog struct {
	mutex   sync.RWMutex
	results []*StepResult
}

// NewResultLog creates an empty result log.
func NewResultLog() *ResultLog {
	return &ResultLog{}
}

// Append adds a result to the end of the log.
func (l *ResultLog) Append(result *StepResult) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.results = append(l.results, result)
}

// HasSuccess reports whether the log already contains a successful result
// for the given step ID.
func (l *ResultLog) HasSuccess(stepID string) bool {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	for _, r := range l.results {
		if r.StepID == stepID && r.Success {
			return true
		}
	}
	return false
}

// Results returns a copy of the logged results in append order.
func (l *ResultLog) Results() []*StepResult {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	out := make([]*StepResult, len(l.results))
	copy(out, l.results)
	return out
}

// Len returns the number of logged results.
func (l *ResultLog) Len() int {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	return len(l.results)
}

// Family returns the results belonging to the step family rooted at the
// given ID, ordered by the hierarchical step ID total order.
func (l *ResultLog) Family(rootID string) []*StepResult {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	var out []*StepResult
	for _, r := range l.results {
		if InFamily(rootID, r.StepID) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return CompareIDs(out[i].StepID, out[j].StepID) < 0
	})
	return out
}

// MarshalJSON serializes the log as a plain array of results.
func (l *ResultLog) MarshalJSON() ([]byte, error) {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	return json.Marshal(l.results)
}

// UnmarshalJSON restores the log from a plain array of results.
func (l *ResultLog) UnmarshalJSON(data []byte) error {
	var results []*StepResult
	if err := json.Unmarshal(data, &results); err != nil {
		return err
	}
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.results = results
	return nil
}
