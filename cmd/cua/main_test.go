// File: cmd/cua/main_test.go
package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HOSH19/BurpSuite-CUA/cmd"
)

// resetMocks restores the original function implementations.
func resetMocks() {
	osWriteFile = os.WriteFile
	osExit = os.Exit
	notifyContext = signal.NotifyContext
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, exitCode(nil))
	assert.Equal(t, 0, exitCode(context.Canceled))
	assert.Equal(t, 0, exitCode(errors.Join(errors.New("run interrupted"), context.Canceled)))
	assert.Equal(t, 1, exitCode(errors.New("boom")))
}

func TestHandlePanic(t *testing.T) {
	t.Cleanup(resetMocks)

	t.Run("writes the panic log", func(t *testing.T) {
		var written []byte
		var exitedWith = -1
		osWriteFile = func(name string, data []byte, _ os.FileMode) error {
			assert.Equal(t, panicLogFile, name)
			written = data
			return nil
		}
		osExit = func(code int) { exitedWith = code }

		func() {
			defer handlePanic()
			panic("screenshot decoder crashed")
		}()

		assert.Equal(t, 1, exitedWith)
		assert.True(t, strings.HasPrefix(string(written), "panic: screenshot decoder crashed"))
		assert.Contains(t, string(written), "goroutine")
	})

	t.Run("log write failure still exits", func(t *testing.T) {
		var exitedWith = -1
		osWriteFile = func(string, []byte, os.FileMode) error { return errors.New("read-only filesystem") }
		osExit = func(code int) { exitedWith = code }

		func() {
			defer handlePanic()
			panic(errors.New("boom"))
		}()
		assert.Equal(t, 1, exitedWith)
	})

	t.Run("no panic is a no-op", func(t *testing.T) {
		called := false
		osExit = func(int) { called = true }
		func() { defer handlePanic() }()
		assert.False(t, called)
	})
}

func TestInteractive(t *testing.T) {
	in := strings.NewReader("\nversion --config /nonexistent/dir/config.yaml\nunknown-command\nquit\nversion\n")
	var out bytes.Buffer

	require.NoError(t, interactive(context.Background(), in, &out))

	text := out.String()
	assert.True(t, strings.HasPrefix(text, "cua "+cmd.Version+"."))
	assert.Equal(t, 4, strings.Count(text, "cua > "))
	assert.Contains(t, text, "Error: failed to initialize configuration")
	assert.Contains(t, text, `unknown command "unknown-command"`)
	assert.NotContains(t, text, "cua "+cmd.Version+"\n", "lines after quit are not executed")
}

func TestInteractive_InterruptCancelsOnlyThatLine(t *testing.T) {
	defer resetMocks()

	var calls, stops int
	notifyContext = func(parent context.Context, _ ...os.Signal) (context.Context, context.CancelFunc) {
		calls++
		ctx, cancel := context.WithCancel(parent)
		if calls == 1 {
			// The first line is interrupted while it runs.
			cancel()
		}
		return ctx, func() {
			stops++
			cancel()
		}
	}

	in := strings.NewReader("version\nversion\n")
	var out bytes.Buffer
	require.NoError(t, interactive(context.Background(), in, &out))

	assert.Equal(t, 2, calls, "each line gets its own signal context")
	assert.Equal(t, 2, stops)
	assert.Equal(t, 3, strings.Count(out.String(), "cua > "))
	assert.Equal(t, 2, strings.Count(out.String(), "cua "+cmd.Version+"\n"), "the shell keeps running after an interrupt")
}

func TestInteractive_StopsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	require.NoError(t, interactive(ctx, strings.NewReader("version\nversion\n"), &out))

	assert.Equal(t, 0, strings.Count(out.String(), "cua > "))
	assert.NotContains(t, out.String(), "cua "+cmd.Version+"\n")
}
