package replay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/HOSH19/BurpSuite-CUA/api/schemas"
	"github.com/HOSH19/BurpSuite-CUA/internal/agent"
)

// ErrNotConfigured is returned by Step before Configure.
var ErrNotConfigured = errors.New("replay runtime is not configured")

// StepError is a scripted step failure.
type StepError struct {
	Index   int
	Message string
	Code    int
}

func (e *StepError) Error() string {
	return fmt.Sprintf("replay step %d failed: %s", e.Index, e.Message)
}

// StatusCode reports the scripted status, zero when none was recorded.
func (e *StepError) StatusCode() int { return e.Code }

// Runtime plays a Script one step per iteration. Configure rewinds it.
type Runtime struct {
	script *Script
	logger *zap.Logger
	now    func() time.Time

	mu         sync.Mutex
	cfg        agent.RuntimeConfig
	configured bool
	next       int
}

var _ agent.Runtime = (*Runtime)(nil)

// New returns a runtime for script.
func New(script *Script, logger *zap.Logger) *Runtime {
	return &Runtime{
		script: script,
		logger: logger.Named("replay"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Load reads the script at path and returns a runtime for it.
func Load(path string, logger *zap.Logger) (*Runtime, error) {
	script, err := LoadScript(path)
	if err != nil {
		return nil, err
	}
	return New(script, logger), nil
}

func (r *Runtime) Configure(cfg agent.RuntimeConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg = cfg
	r.configured = true
	r.next = 0
	r.logger.Debug("Replay runtime configured",
		zap.String("script", r.script.Name),
		zap.Int("steps", len(r.script.Steps)),
		zap.Int("prompt_length", len(cfg.SystemPrompt)),
		zap.Duration("loop_interval", cfg.LoopInterval))
	return nil
}

// Step returns the next recorded output. After the last step it reports Done.
func (r *Runtime) Step(ctx context.Context, in agent.StepInput) (agent.StepOutput, error) {
	r.mu.Lock()
	if !r.configured {
		r.mu.Unlock()
		return agent.StepOutput{}, ErrNotConfigured
	}
	interval := r.cfg.LoopInterval
	r.mu.Unlock()

	if in.LoopIndex > 0 && interval > 0 {
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return agent.StepOutput{}, ctx.Err()
		case <-timer.C:
		}
	}
	if err := ctx.Err(); err != nil {
		return agent.StepOutput{}, err
	}

	r.mu.Lock()
	idx := r.next
	if idx >= len(r.script.Steps) {
		r.mu.Unlock()
		r.logger.Info("Replay script exhausted", zap.Int("steps", idx))
		return agent.StepOutput{Status: schemas.StatusDone}, nil
	}
	r.next++
	step := r.script.Steps[idx]
	r.mu.Unlock()

	if step.Fail != "" {
		return agent.StepOutput{}, &StepError{Index: idx, Message: step.Fail, Code: step.FailStatus}
	}

	started := r.now()
	out := agent.StepOutput{
		Status:        step.Status,
		ErrorMessage:  step.ErrorMessage,
		Conversations: make([]schemas.ConversationEntry, 0, len(step.Conversations)),
	}
	for _, e := range step.Conversations {
		e = e.Clone()
		// Recorded entries rarely carry timing, and the history dedupes on it.
		if e.Timing == nil || e.Timing.Start.IsZero() {
			end := r.now()
			e.Timing = &schemas.Timing{Start: started, End: end, Cost: end.Sub(started)}
		}
		out.Conversations = append(out.Conversations, e)
	}
	r.logger.Debug("Replayed step",
		zap.Int("index", idx),
		zap.Int("loop_index", in.LoopIndex),
		zap.String("status", string(out.Status)),
		zap.Int("entries", len(out.Conversations)))
	return out, nil
}
