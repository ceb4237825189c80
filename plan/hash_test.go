package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashStepsDeterministic(t *testing.T) {
	steps := []*Step{
		{Action: "download dataset", ToolRef: "fetch"},
		{Action: "parse dataset", ToolRef: "parse", RequiresVerification: true},
	}
	h1, err := HashSteps(steps)
	require.NoError(t, err)
	h2, err := HashSteps(steps)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
}

func TestHashStepsIgnoresIDs(t *testing.T) {
	a := []*Step{{ID: "1", Action: "do the thing"}}
	b := []*Step{{ID: "3.2.1", Action: "do the thing"}}
	ha, err := HashSteps(a)
	require.NoError(t, err)
	hb, err := HashSteps(b)
	require.NoError(t, err)
	assert.Equal(t, ha, hb)
}

func TestHashStepsContentSensitive(t *testing.T) {
	a := []*Step{{Action: "download dataset"}}
	b := []*Step{{Action: "download dataset", RequiresVerification: true}}
	ha, err := HashSteps(a)
	require.NoError(t, err)
	hb, err := HashSteps(b)
	require.NoError(t, err)
	assert.NotEqual(t, ha, hb)
}
