package plan

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResultLogAppendAndQuery(t *testing.T) {
	log := NewResultLog()
	assert.Equal(t, 0, log.Len())
	assert.False(t, log.HasSuccess("1"))

	log.Append(&StepResult{StepID: "1", Success: false, Result: "timeout"})
	log.Append(&StepResult{StepID: "1", Success: true, Result: "ok"})
	log.Append(&StepResult{StepID: "2", Success: true, Result: "ok"})

	assert.Equal(t, 3, log.Len())
	assert.True(t, log.HasSuccess("1"))
	assert.True(t, log.HasSuccess("2"))
	assert.False(t, log.HasSuccess("3"))

	results := log.Results()
	require.Len(t, results, 3)
	assert.Equal(t, "1", results[0].StepID)
	assert.False(t, results[0].Success)
}

func TestResultLogFamily(t *testing.T) {
	log := NewResultLog()
	log.Append(&StepResult{StepID: "3.2", Success: false})
	log.Append(&StepResult{StepID: "3", Success: false})
	log.Append(&StepResult{StepID: "4", Success: true})
	log.Append(&StepResult{StepID: "3.1", Success: true})

	family := log.Family("3")
	require.Len(t, family, 3)
	assert.Equal(t, "3", family[0].StepID)
	assert.Equal(t, "3.1", family[1].StepID)
	assert.Equal(t, "3.2", family[2].StepID)
}

func TestResultLogJSONRoundTrip(t *testing.T) {
	log := NewResultLog()
	log.Append(&StepResult{StepID: "1", Success: true, Result: "done", ErrorKind: ""})
	log.Append(&StepResult{StepID: "2", Success: false, Result: "boom", ErrorKind: "fatal"})

	data, err := json.Marshal(log)
	require.NoError(t, err)

	restored := NewResultLog()
	require.NoError(t, json.Unmarshal(data, restored))
	require.Equal(t, 2, restored.Len())
	assert.Equal(t, "boom", restored.Results()[1].Result)
	assert.Equal(t, "fatal", restored.Results()[1].ErrorKind)
}
