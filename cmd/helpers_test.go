// File: cmd/helpers_test.go
package cmd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/HOSH19/BurpSuite-CUA/internal/observability"
)

const proxyReplay = `
name: enable-proxy-interception
steps:
  - status: running
    conversations:
      - from: agent
        value: "click(start_box='(0.10,0.05)')"
        thought: |
          Opening the Proxy tab.
          ## PROGRESS TRACKING
          Completed: none
          Current: Step 1
          Remaining: Step 2, Step 3
  - status: running
    conversations:
      - from: agent
        value: "click(start_box='(0.22,0.11)')"
  - status: done
    conversations:
      - from: agent
        value: "finished()"
`

// testEnv is a scratch directory holding a config file and a replay script.
type testEnv struct {
	dir        string
	configPath string
	replayPath string
}

// newTestEnv writes a config with retrieval and planning disabled, logs in
// the scratch directory, and extra appended verbatim.
func newTestEnv(t *testing.T, extra string) *testEnv {
	t.Helper()
	return newTestEnvWithPlanner(t, "planner:\n  enabled: false\n", extra)
}

// newTestEnvWithPlanner is newTestEnv with a caller supplied planner section.
func newTestEnvWithPlanner(t *testing.T, plannerSection, extra string) *testEnv {
	t.Helper()
	dir := t.TempDir()
	env := &testEnv{
		dir:        dir,
		configPath: filepath.Join(dir, "config.yaml"),
		replayPath: filepath.Join(dir, "replay.yaml"),
	}
	cfg := fmt.Sprintf(`logger:
  level: error
  format: json
  log_file: %s
retrieval:
  enabled: false
%sstore:
  backend: sqlite
  sqlite_path: %s
%s`, filepath.Join(dir, "cua.log"), plannerSection, filepath.Join(dir, "history.db"), extra)
	require.NoError(t, os.WriteFile(env.configPath, []byte(cfg), 0o600))
	require.NoError(t, os.WriteFile(env.replayPath, []byte(proxyReplay), 0o600))
	return env
}

// executeCommand runs a fresh command tree and returns everything written to
// its stdout and stderr.
func executeCommand(t *testing.T, ctx context.Context, args ...string) (string, error) {
	t.Helper()
	observability.ResetForTest()
	t.Cleanup(observability.ResetForTest)

	previous := logWriter
	logWriter = zapcore.AddSync(io.Discard)
	t.Cleanup(func() { logWriter = previous })

	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	return out.String(), err
}
