package logging

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerLevels(t *testing.T) {
	var out bytes.Buffer
	logger, err := NewLogger(Config{Level: LogLevelQuiet, Output: &out})
	require.NoError(t, err)

	logger.Info("hidden")
	assert.Empty(t, out.String(), "quiet level must suppress info")

	logger.Error("visible")
	assert.Contains(t, out.String(), "visible")
}

func TestJSONFormat(t *testing.T) {
	var out bytes.Buffer
	logger, err := NewLogger(Config{Level: LogLevelNormal, Output: &out, Format: "json"})
	require.NoError(t, err)

	logger.WithField("table", "users").Info("comparing")
	assert.Contains(t, out.String(), `"table":"users"`)
}

func TestLogOperationStart(t *testing.T) {
	var out bytes.Buffer
	logger, err := NewLogger(Config{Level: LogLevelVerbose, Output: &out})
	require.NoError(t, err)

	finish := logger.LogOperationStart("schema_comparison", map[string]interface{}{"tables": 3})
	finish(nil)
	assert.Contains(t, out.String(), "schema_comparison")
	assert.Contains(t, out.String(), "duration")
}

func TestDomainHelpersDoNotPanic(t *testing.T) {
	logger := NewSilentLogger()
	logger.LogSchemaExtraction("shop", 12, time.Millisecond, nil)
	logger.LogSchemaComparison("live", "replayed", 4, time.Millisecond)
	logger.LogScriptGeneration("0001_init", 5, time.Millisecond, nil)
	logger.LogMigrationApplied("0001_init", 3, time.Millisecond)
}
