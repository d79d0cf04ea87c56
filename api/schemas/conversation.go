package schemas

import (
	"time"
)

// -- Conversation Schemas --

// Role identifies who produced a conversation entry.
type Role string

const (
	RoleHuman Role = "human" // Instructions and replies typed by the user, and screenshots sent to the model.
	RoleAgent Role = "agent" // Model output for one step.
)

// Size is a logical viewport size in screen points.
type Size struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// ScreenshotContext describes the viewport a screenshot was taken against.
// The orchestration core uses it to map normalized action coordinates back
// onto screenshot pixels.
type ScreenshotContext struct {
	Size        Size    `json:"size" yaml:"size"`
	ScaleFactor float64 `json:"scaleFactor,omitempty" yaml:"scale_factor,omitempty"`
}

// HasSize reports whether the context carries a usable viewport size.
func (c *ScreenshotContext) HasSize() bool {
	return c != nil && c.Size.Width > 0 && c.Size.Height > 0
}

// ActionInputs holds the arguments of a parsed action. Boxes are encoded as
// "[x1,y1,x2,y2]" or "[x,y]" in coordinates normalized to [0,1].
type ActionInputs struct {
	StartBox  string `json:"start_box,omitempty" yaml:"start_box,omitempty"`
	EndBox    string `json:"end_box,omitempty" yaml:"end_box,omitempty"`
	Content   string `json:"content,omitempty" yaml:"content,omitempty"`
	Key       string `json:"key,omitempty" yaml:"key,omitempty"`
	Direction string `json:"direction,omitempty" yaml:"direction,omitempty"`
}

// Action is one model-chosen GUI action, already parsed by the runtime.
type Action struct {
	Type       string       `json:"action_type" yaml:"action_type"`
	Inputs     ActionInputs `json:"action_inputs" yaml:"action_inputs"`
	Thought    string       `json:"thought,omitempty" yaml:"thought,omitempty"`
	Reflection string       `json:"reflection,omitempty" yaml:"reflection,omitempty"`
}

// Timing records when an entry's step started and ended.
type Timing struct {
	Start time.Time     `json:"start" yaml:"start"`
	End   time.Time     `json:"end,omitempty" yaml:"end,omitempty"`
	Cost  time.Duration `json:"cost,omitempty" yaml:"cost,omitempty"`
}

// ConversationEntry is one human or agent turn in a session.
//
// The first group of fields is owned by the agent runtime and must never be
// rewritten by the orchestration core. The second group is added by the core
// after the runtime hands a batch over.
type ConversationEntry struct {
	Role              Role               `json:"from" yaml:"from"`
	Text              string             `json:"value,omitempty" yaml:"value,omitempty"`
	Screenshot        string             `json:"screenshotBase64,omitempty" yaml:"screenshot,omitempty"`
	ScreenshotContext *ScreenshotContext `json:"screenshotContext,omitempty" yaml:"screenshot_context,omitempty"`
	ParsedActions     []Action           `json:"predictionParsed,omitempty" yaml:"parsed_actions,omitempty"`
	Thought           string             `json:"thought,omitempty" yaml:"thought,omitempty"`
	Timing            *Timing            `json:"timing,omitempty" yaml:"timing,omitempty"`

	ElementMarkerScreenshot string          `json:"screenshotBase64WithElementMarker,omitempty" yaml:"-"`
	RetrievedItems          []RetrievedItem `json:"ragContext,omitempty" yaml:"-"`
	IsVerificationPrompt    bool            `json:"isVerificationPrompt,omitempty" yaml:"-"`
}

// StartTime returns the entry's step start, or the zero time when the runtime
// did not report timing.
func (e ConversationEntry) StartTime() time.Time {
	if e.Timing == nil {
		return time.Time{}
	}
	return e.Timing.Start
}

// Clone returns a deep copy so callers can decorate an entry without touching
// the runtime's slices and pointers.
func (e ConversationEntry) Clone() ConversationEntry {
	out := e
	if e.ScreenshotContext != nil {
		sc := *e.ScreenshotContext
		out.ScreenshotContext = &sc
	}
	if e.Timing != nil {
		tm := *e.Timing
		out.Timing = &tm
	}
	if e.ParsedActions != nil {
		out.ParsedActions = append([]Action(nil), e.ParsedActions...)
	}
	if e.RetrievedItems != nil {
		out.RetrievedItems = append([]RetrievedItem(nil), e.RetrievedItems...)
	}
	return out
}

// -- Knowledge Schemas --

// RetrievedItem is one passage returned by the knowledge retrieval backend.
type RetrievedItem struct {
	Text      string  `json:"context" yaml:"context"`
	Relevance float64 `json:"relevance" yaml:"relevance"`
	Source    string  `json:"source,omitempty" yaml:"source,omitempty"`
}

// MasterPlan is the numbered strategy derived once for an instruction.
type MasterPlan struct {
	RawText   string    `json:"raw_text"`
	StepCount int       `json:"step_count"`
	CreatedAt time.Time `json:"created_at"`
}
