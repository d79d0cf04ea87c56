package agent

import (
	"context"
	"time"

	"github.com/HOSH19/BurpSuite-CUA/api/schemas"
)

// RuntimeConfig is handed to the agent runtime once per run.
type RuntimeConfig struct {
	SystemPrompt string
	Language     schemas.Language
	Operator     schemas.OperatorType
	ModelVersion schemas.ModelVersion
	Retry        schemas.RetryBudgets
	MaxLoopCount int
	LoopInterval time.Duration
}

// StepInput is what the runtime needs for a single perception, decision and
// action cycle.
type StepInput struct {
	Instruction string
	LoopIndex   int
	History     []schemas.ConversationEntry
}

// StepOutput is the batch produced by one cycle. Status is StatusRunning to
// continue, StatusDone when the model finished, StatusCallUser when it needs
// a human, and StatusError when the runtime gave up after its retries.
type StepOutput struct {
	Status        schemas.RunStatus           `json:"status" yaml:"status"`
	Conversations []schemas.ConversationEntry `json:"conversations" yaml:"conversations"`
	ErrorMessage  string                      `json:"error,omitempty" yaml:"error,omitempty"`
}

// Runtime drives the screen. Step must honor ctx.
type Runtime interface {
	Configure(cfg RuntimeConfig) error
	Step(ctx context.Context, in StepInput) (StepOutput, error)
}
