// File: cmd/cua/main.go
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/HOSH19/BurpSuite-CUA/cmd"
	"github.com/HOSH19/BurpSuite-CUA/internal/observability"
)

const panicLogFile = "panic.log"

// Function variables swapped in tests.
var (
	osWriteFile   = os.WriteFile
	osExit        = os.Exit
	notifyContext = signal.NotifyContext
)

func main() {
	defer handlePanic()

	if len(os.Args) > 1 {
		// SIGINT and SIGTERM cancel the running agent loop.
		ctx, stop := notifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		code := exitCode(cmd.Execute(ctx))
		stop()
		osExit(code)
		return
	}

	if err := interactive(context.Background(), os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "Error reading from stdin:", err)
		osExit(1)
	}
}

// exitCode maps a command result to the process status. A cancelled run is
// a clean exit.
func exitCode(err error) int {
	if err == nil || errors.Is(err, context.Canceled) {
		return 0
	}
	return 1
}

// interactive reads one command per line until EOF, "exit", "quit" or the
// cancellation of ctx.
func interactive(ctx context.Context, in io.Reader, out io.Writer) error {
	fmt.Fprintf(out, "cua %s. Type a command such as `prompt Enable proxy interception`, or exit.\n", cmd.Version)
	scanner := bufio.NewScanner(in)
	for {
		if ctx.Err() != nil {
			return nil
		}
		fmt.Fprint(out, "cua > ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}
		executeInteractiveCommand(ctx, line, out)
	}
	return scanner.Err()
}

// executeInteractiveCommand runs one line on a fresh command tree so flags do
// not leak between lines. An interrupt cancels only this line. Errors and
// panics are reported, never fatal.
func executeInteractiveCommand(parent context.Context, line string, out io.Writer) {
	ctx, stop := notifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := cmd.NewRootCommand()
	rootCmd.SetArgs(strings.Fields(line))
	rootCmd.SetOut(out)
	rootCmd.SetErr(out)

	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(out, "Error: command panicked: %v\n", r)
		}
	}()
	if err := rootCmd.ExecuteContext(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(out, "Error:", err)
	}
}

// handlePanic writes the panic and its stack to panicLogFile and exits 1.
func handlePanic() {
	r := recover()
	if r == nil {
		return
	}
	observability.Sync()

	panicMessage := fmt.Sprintf("panic: %v\n\n%s", r, debug.Stack())
	if err := osWriteFile(panicLogFile, []byte(panicMessage), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL: Failed to write panic log: %v\n", err)
		fmt.Fprintf(os.Stderr, "Panic details:\n%s\n", panicMessage)
		osExit(1)
		return
	}
	fmt.Fprintf(os.Stderr, "cua crashed. Details logged to %s\n", panicLogFile)
	osExit(1)
}
