package cmd

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryCmd(t *testing.T) {
	env := newTestEnv(t, "")

	out, err := executeCommand(t, context.Background(), "history", "-c", env.configPath, "--session", "unknown")
	require.NoError(t, err)
	assert.Equal(t, "[]\n", out)

	_, err = executeCommand(t, context.Background(), "history", "-c", env.configPath)
	assert.EqualError(t, err, "--session is required")
}
