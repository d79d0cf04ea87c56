package schemas

import (
	"time"
)

// -- Run Configuration Schemas --

// Language selects the language the model must think in.
type Language string

const (
	LanguageEnglish Language = "en"
	LanguageChinese Language = "zh"
)

// OperatorType selects the action surface the runtime drives.
type OperatorType string

const (
	OperatorComputer OperatorType = "computer" // Native desktop control.
	OperatorBrowser  OperatorType = "browser"  // A single browser window; adds navigation actions.
)

// ModelVersion identifies the prompt family a vision-language model was trained on.
type ModelVersion string

const (
	ModelV1_0           ModelVersion = "1.0"
	ModelV1_5           ModelVersion = "1.5"
	ModelDoubao1_5_15B  ModelVersion = "doubao-1.5-15B"
	ModelDoubao1_5_20B  ModelVersion = "doubao-1.5-20B"
	ModelBurpSuite      ModelVersion = "burpsuite"
	DefaultModelVersion              = ModelV1_0
	DefaultLanguage                  = LanguageEnglish
)

// RetryBudgets bounds how often the runtime may retry each failure class
// before giving up on an iteration.
type RetryBudgets struct {
	Model      int `json:"model" mapstructure:"model" yaml:"model"`
	Screenshot int `json:"screenshot" mapstructure:"screenshot" yaml:"screenshot"`
	Execute    int `json:"execute" mapstructure:"execute" yaml:"execute"`
}

// -- Run State Schemas --

// RunStatus is the lifecycle status of a run.
type RunStatus string

const (
	StatusIdle      RunStatus = "idle"      // No run active.
	StatusRunning   RunStatus = "running"   // Iterations are being executed.
	StatusPaused    RunStatus = "paused"    // Held between iterations by the user.
	StatusCallUser  RunStatus = "call_user" // Held between iterations waiting for a human reply.
	StatusError     RunStatus = "error"     // Terminal. The runtime exhausted its retries.
	StatusDone      RunStatus = "done"      // Terminal. Task finished or iteration cap reached.
	StatusCancelled RunStatus = "cancelled" // Terminal. Stopped by the user.
)

// IsTerminal reports whether no further transitions can occur in this run.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case StatusError, StatusDone, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsActive reports whether a run currently owns the session.
func (s RunStatus) IsActive() bool {
	switch s {
	case StatusRunning, StatusPaused, StatusCallUser:
		return true
	default:
		return false
	}
}

// RunState is the single authoritative record of a run's lifecycle.
type RunState struct {
	RunID        string    `json:"run_id,omitempty"`
	Status       RunStatus `json:"status"`
	LoopIndex    int       `json:"loop_index"`
	ErrorMessage string    `json:"error_message,omitempty"` // JSON encoded StructuredError.
	StopReason   string    `json:"stop_reason,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// StructuredError is the user-visible description of a failed run.
type StructuredError struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}
