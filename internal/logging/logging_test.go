package logging_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalnine/covbatch/internal/logging"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Config{Level: "debug", Format: "json", Output: &buf})
	require.NoError(t, err)

	logger.Debug("job finished", "job", "Lang-1-gpt")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "job finished", rec["msg"])
	assert.Equal(t, "Lang-1-gpt", rec["job"])
}

func TestLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Config{Level: "warn", Output: &buf})
	require.NoError(t, err)
	logger.Info("hidden")
	assert.Empty(t, buf.String())
	logger.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestNewRejectsUnknown(t *testing.T) {
	_, err := logging.New(logging.Config{Level: "loud"})
	assert.Error(t, err)
	_, err = logging.New(logging.Config{Format: "xml"})
	assert.Error(t, err)
}
