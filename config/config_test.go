package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	conf := Default()
	require.NoError(t, conf.Validate())
	assert.Equal(t, 5, conf.MaxRecursiveDepth)
	assert.Equal(t, 3, conf.StepRetryLimit)
	assert.Equal(t, 3, conf.HealRejectionLimit)
	assert.Equal(t, "memory", conf.Store.Type)
	assert.Equal(t, 2*time.Minute, conf.DispatchTimeout())
	assert.Equal(t, time.Second, conf.RecursionBackoffBase())
}

func TestValidateRejectsOutOfRange(t *testing.T) {
	conf := Default()
	conf.MaxRecursiveDepth = 0
	assert.Error(t, conf.Validate())

	conf = Default()
	conf.MaxRecursiveDepth = 11
	assert.Error(t, conf.Validate())

	conf = Default()
	conf.Store.Type = "file"
	assert.Error(t, conf.Validate())
	conf.Store.Path = "/tmp/phoenix-store"
	assert.NoError(t, conf.Validate())

	conf = Default()
	conf.Store.Type = "redis"
	assert.Error(t, conf.Validate())

	conf = Default()
	conf.LogLevel = "loud"
	assert.Error(t, conf.Validate())
}

func TestParseYAML(t *testing.T) {
	conf, err := ParseYAML([]byte(`
max_recursive_depth: 3
store:
  type: sqlite
  path: /var/lib/phoenix/blobs.db
patterns:
  fatal:
    - segfault
log_level: debug
`))
	require.NoError(t, err)
	assert.Equal(t, 3, conf.MaxRecursiveDepth)
	assert.Equal(t, "sqlite", conf.Store.Type)
	assert.Equal(t, []string{"segfault"}, conf.Patterns.Fatal)
	assert.Equal(t, "debug", conf.LogLevel)

	// Fields absent from the file keep their defaults.
	assert.Equal(t, 3, conf.StepRetryLimit)
}

func TestParseYAMLUnknownField(t *testing.T) {
	_, err := ParseYAML([]byte("max_depth_typo: 3\n"))
	assert.Error(t, err)
}

func TestParseJSON(t *testing.T) {
	conf, err := ParseJSON([]byte(`{"step_retry_limit": 5}`))
	require.NoError(t, err)
	assert.Equal(t, 5, conf.StepRetryLimit)
}
