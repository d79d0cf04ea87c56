package retrieval

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/HOSH19/BurpSuite-CUA/api/schemas"
	"github.com/HOSH19/BurpSuite-CUA/internal/config"
)

// Retriever returns the passages most relevant to text. Implementations fail
// open: any problem yields an empty result, never an error.
type Retriever interface {
	Query(ctx context.Context, text string, k int) []schemas.RetrievedItem
}

// execCommandContext is swapped in tests.
var execCommandContext = exec.CommandContext

// stderrTail bounds how much of the child's stderr is attached to a warning.
const stderrTail = 2048

// Client runs one retrieval process per query. The process receives the
// query as "--query <text> --top-k <k>" after the configured arguments and
// must print a ResultsSentinel line on stdout.
type Client struct {
	command string
	args    []string
	timeout time.Duration
	logger  *zap.Logger
}

var _ Retriever = (*Client)(nil)

// NewClient builds a subprocess client from cfg.
func NewClient(cfg config.RetrievalConfig, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		command: cfg.Command,
		args:    append([]string(nil), cfg.Args...),
		timeout: timeout,
		logger:  logger.Named("retrieval"),
	}
}

// New returns the retriever selected by cfg.
func New(cfg config.RetrievalConfig, logger *zap.Logger) Retriever {
	if !cfg.Enabled {
		return Disabled{}
	}
	return NewClient(cfg, logger)
}

// Query implements Retriever.
func (c *Client) Query(ctx context.Context, text string, k int) []schemas.RetrievedItem {
	text = strings.TrimSpace(text)
	if text == "" || k <= 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		c.logger.Debug("Skipping retrieval, context already done", zap.Error(err))
		return nil
	}

	runCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	args := append(append([]string(nil), c.args...), "--query", text, "--top-k", strconv.Itoa(k))
	cmd := execCommandContext(runCtx, c.command, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// Do not wait forever on grandchildren holding the pipes open.
	cmd.WaitDelay = 2 * time.Second

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		c.logger.Warn("Retrieval process timed out; continuing without context",
			zap.Duration("timeout", c.timeout))
		return nil
	case ctx.Err() != nil:
		c.logger.Debug("Retrieval cancelled", zap.Error(ctx.Err()))
		return nil
	case runErr != nil:
		c.logger.Warn("Retrieval process failed; continuing without context",
			zap.Error(runErr),
			zap.String("command", c.command),
			zap.String("stderr", tail(stderr.String(), stderrTail)))
		return nil
	}

	items, diagnostics, err := ParseOutput(stdout.Bytes())
	if err != nil {
		c.logger.Warn("Could not read retrieval results; continuing without context",
			zap.Error(err),
			zap.Int("diagnostic_lines", diagnostics))
		return nil
	}
	if len(items) > k {
		items = items[:k]
	}

	c.logger.Info("Retrieved knowledge context",
		zap.Int("items", len(items)),
		zap.Int("k", k),
		zap.Duration("elapsed", elapsed))
	return items
}

// Disabled is a Retriever that never returns anything.
type Disabled struct{}

// Query implements Retriever.
func (Disabled) Query(context.Context, string, int) []schemas.RetrievedItem { return nil }

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
