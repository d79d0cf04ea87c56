// Package agent runs the instruction to action loop against an agent runtime
// and keeps the session history consistent while it does.
package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/HOSH19/BurpSuite-CUA/api/schemas"
	"github.com/HOSH19/BurpSuite-CUA/internal/config"
	"github.com/HOSH19/BurpSuite-CUA/internal/conversation"
	"github.com/HOSH19/BurpSuite-CUA/internal/progress"
	"github.com/HOSH19/BurpSuite-CUA/internal/prompt"
	"github.com/HOSH19/BurpSuite-CUA/internal/retrieval"
	"github.com/HOSH19/BurpSuite-CUA/internal/store"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// StopReasonMaxLoops marks a run that was ended by the iteration cap.
const StopReasonMaxLoops = "max_loop_count"

// persistTimeout bounds store writes, which run even after cancellation.
const persistTimeout = 5 * time.Second

// Planner derives a master plan. A nil result means no plan.
type Planner interface {
	Generate(ctx context.Context, instruction string, items []schemas.RetrievedItem, model config.LLMModelConfig, lang schemas.Language) *schemas.MasterPlan
}

// Clock supplies timestamps.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Dependencies are the collaborators of a Controller. Retriever, Planner and
// Store are optional.
type Dependencies struct {
	Retriever    retrieval.Retriever
	Planner      Planner
	PlannerModel config.LLMModelConfig
	TopK         int
	Runtime      Runtime
	Store        store.Store
	Logger       *zap.Logger
	Clock        Clock
}

// Controller owns the run state machine of one session.
type Controller struct {
	deps    Dependencies
	session *Session
	cfg     config.AgentConfig
	logger  *zap.Logger
	merger  *conversation.Merger
	bus     *EventBus
	clock   Clock

	mu       sync.Mutex
	state    schemas.RunState
	starting bool
	// pendingQuestion is set when a step asked for the user while the run
	// was paused. Resume then lands in CallUser instead of Running.
	pendingQuestion bool
	cancel   context.CancelFunc
	done     chan struct{}
	wake     chan struct{}
}

// NewController wires a controller for session.
func NewController(deps Dependencies, session *Session, cfg config.AgentConfig) (*Controller, error) {
	if deps.Runtime == nil {
		return nil, fmt.Errorf("agent runtime is required")
	}
	if session == nil {
		return nil, fmt.Errorf("session is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = systemClock{}
	}
	if cfg.MaxLoopCount <= 0 {
		cfg.MaxLoopCount = 100
	}

	c := &Controller{
		deps:    deps,
		session: session,
		cfg:     cfg,
		logger:  logger.Named("loop").With(zap.String("session_id", session.ID)),
		merger:  conversation.NewMerger(logger, 0),
		bus:     NewEventBus(logger, cfg.EventBuffer),
		clock:   clock,
		wake:    make(chan struct{}, 1),
	}
	c.state = schemas.RunState{Status: schemas.StatusIdle, UpdatedAt: clock.Now()}
	return c, nil
}

// Session returns the controlled session.
func (c *Controller) Session() *Session { return c.session }

// State returns a snapshot of the run state.
func (c *Controller) State() schemas.RunState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe listens for run events. See EventBus.Subscribe.
func (c *Controller) Subscribe(types ...EventType) (<-chan Event, func()) {
	return c.bus.Subscribe(types...)
}

// Start prepares a run for instruction and launches its loop. Retrieval,
// planning, prompt composition and runtime configuration happen before
// Start returns. Cancelling ctx cancels the run.
func (c *Controller) Start(ctx context.Context, instruction string) error {
	instruction = strings.TrimSpace(instruction)

	c.mu.Lock()
	if c.starting || c.state.Status.IsActive() {
		c.mu.Unlock()
		return ErrRunActive
	}
	if instruction == "" {
		c.mu.Unlock()
		return ErrEmptyInstruction
	}
	c.starting = true
	c.pendingQuestion = false
	c.state = schemas.RunState{RunID: uuid.New().String(), Status: schemas.StatusIdle, UpdatedAt: c.clock.Now()}
	runID := c.state.RunID
	// Cancel during setup aborts retrieval and planning through runCtx.
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	done := make(chan struct{})
	c.done = done
	c.mu.Unlock()

	logger := c.logger.With(zap.String("run_id", runID))
	logger.Info("Starting run", zap.String("instruction", instruction))

	human := schemas.ConversationEntry{
		Role:   schemas.RoleHuman,
		Text:   instruction,
		Timing: &schemas.Timing{Start: c.clock.Now()},
	}
	c.session.appendEntries(human)
	c.persistEntries(runCtx, []schemas.ConversationEntry{human})

	var items []schemas.RetrievedItem
	if c.deps.Retriever != nil && c.deps.TopK > 0 {
		items = c.deps.Retriever.Query(runCtx, instruction, c.deps.TopK)
	}

	plan := c.session.Plan()
	if plan == nil && c.deps.Planner != nil {
		plan = c.deps.Planner.Generate(runCtx, instruction, items, c.deps.PlannerModel, c.cfg.Language)
		if plan != nil {
			c.session.setPlan(plan)
			c.persistPlan(runCtx, *plan)
			c.bus.Publish(EventPlanReady, plan)
		}
	}

	systemPrompt := prompt.Compose(c.cfg.ModelVersion, c.cfg.Language, c.cfg.Operator, plan, items)
	err := c.deps.Runtime.Configure(RuntimeConfig{
		SystemPrompt: systemPrompt,
		Language:     c.cfg.Language,
		Operator:     c.cfg.Operator,
		ModelVersion: c.cfg.ModelVersion,
		Retry:        c.cfg.Retry,
		MaxLoopCount: c.cfg.MaxLoopCount,
		LoopInterval: c.cfg.LoopInterval,
	})

	c.mu.Lock()
	c.starting = false
	c.mu.Unlock()

	if err != nil {
		c.finish(schemas.StatusError, structuredErrorFrom(err), "", ErrCodeConfigureFailure)
		close(done)
		return fmt.Errorf("failed to configure agent runtime: %w", err)
	}
	if runCtx.Err() != nil {
		c.finish(schemas.StatusCancelled, schemas.StructuredError{}, "", "")
		close(done)
		return nil
	}

	c.mu.Lock()
	c.drainWake()
	c.mu.Unlock()

	if err := c.transition(schemas.StatusRunning, schemas.StatusIdle); err != nil {
		close(done)
		return err
	}
	logger.Info("Run configured",
		zap.Int("retrieved_items", len(items)),
		zap.Bool("has_plan", plan != nil),
		zap.Int("prompt_length", len(systemPrompt)))

	go c.loop(runCtx, instruction, items, done)
	return nil
}

// Wait blocks until the current run is terminal or ctx is done.
func (c *Controller) Wait(ctx context.Context) (schemas.RunState, error) {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done == nil {
		return c.State(), ErrNotRunning
	}
	select {
	case <-done:
		return c.State(), nil
	case <-ctx.Done():
		return c.State(), ctx.Err()
	}
}

// Pause holds the loop before its next iteration.
func (c *Controller) Pause() error {
	return c.transition(schemas.StatusPaused, schemas.StatusRunning)
}

// Resume continues a paused run or one waiting for the user. A paused run
// whose last step asked for the user moves to CallUser and waits for Reply.
func (c *Controller) Resume() error {
	c.mu.Lock()
	if c.state.Status == schemas.StatusPaused && c.pendingQuestion {
		c.mu.Unlock()
		return c.transition(schemas.StatusCallUser, schemas.StatusPaused)
	}
	c.pendingQuestion = false
	c.mu.Unlock()
	if err := c.transition(schemas.StatusRunning, schemas.StatusPaused, schemas.StatusCallUser); err != nil {
		return err
	}
	c.signalWake()
	return nil
}

// Reply answers a run waiting for the user and resumes it.
func (c *Controller) Reply(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyInstruction
	}
	c.mu.Lock()
	answerable := c.state.Status == schemas.StatusCallUser ||
		(c.state.Status == schemas.StatusPaused && c.pendingQuestion)
	if !answerable {
		st := c.state.Status
		c.mu.Unlock()
		return fmt.Errorf("%w: no question pending in %s", ErrInvalidTransition, st)
	}
	c.pendingQuestion = false
	c.mu.Unlock()

	entry := schemas.ConversationEntry{
		Role:   schemas.RoleHuman,
		Text:   text,
		Timing: &schemas.Timing{Start: c.clock.Now()},
	}
	c.session.appendEntries(entry)
	c.persistEntries(ctx, []schemas.ConversationEntry{entry})
	if err := c.transition(schemas.StatusRunning, schemas.StatusPaused, schemas.StatusCallUser); err != nil {
		return err
	}
	c.signalWake()
	return nil
}

// Cancel stops the run, including one still in setup. It is a no-op once
// the run is terminal.
func (c *Controller) Cancel() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done == nil {
		return ErrNotRunning
	}
	if !c.starting && c.state.Status.IsTerminal() {
		return nil
	}
	if c.cancel != nil {
		c.cancel()
	}
	return nil
}

// Reset clears the session history and cached plan. It fails while a run
// is active.
func (c *Controller) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.starting || c.state.Status.IsActive() {
		return ErrRunActive
	}
	c.session.Reset()
	c.state = schemas.RunState{Status: schemas.StatusIdle, UpdatedAt: c.clock.Now()}
	return nil
}

// Close cancels any run, waits for its loop and closes the event bus.
func (c *Controller) Close() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	c.bus.Shutdown()
}

func (c *Controller) loop(ctx context.Context, instruction string, items []schemas.RetrievedItem, done chan struct{}) {
	defer close(done)
	defer func() {
		if r := recover(); r != nil {
			c.finish(schemas.StatusError, panicError(r), "", ErrCodeLoopPanic)
		}
	}()

	for {
		if ctx.Err() != nil {
			c.finish(schemas.StatusCancelled, schemas.StructuredError{}, "", "")
			return
		}
		if err := c.waitWhileHeld(ctx); err != nil {
			c.finish(schemas.StatusCancelled, schemas.StructuredError{}, "", "")
			return
		}

		loopIndex := c.State().LoopIndex
		out, err := c.deps.Runtime.Step(ctx, StepInput{
			Instruction: instruction,
			LoopIndex:   loopIndex,
			History:     c.session.History().Entries(),
		})
		if err != nil {
			if ctx.Err() != nil {
				c.finish(schemas.StatusCancelled, schemas.StructuredError{}, "", "")
				return
			}
			c.finish(schemas.StatusError, structuredErrorFrom(err), "", ErrCodeRuntimeFailure)
			return
		}

		c.applyBatch(ctx, loopIndex, out.Conversations, items)
		loopIndex = c.advance()

		switch {
		case ctx.Err() != nil:
			c.finish(schemas.StatusCancelled, schemas.StructuredError{}, "", "")
			return
		case out.Status == schemas.StatusDone:
			c.finish(schemas.StatusDone, schemas.StructuredError{}, "", "")
			return
		case out.Status == schemas.StatusError:
			msg := out.ErrorMessage
			if msg == "" {
				msg = "agent runtime reported an error"
			}
			c.finish(schemas.StatusError, schemas.StructuredError{Message: msg}, "", ErrCodeRuntimeReported)
			return
		case loopIndex >= c.cfg.MaxLoopCount:
			c.logger.Warn("Iteration cap reached", zap.Int("max_loop_count", c.cfg.MaxLoopCount))
			c.finish(schemas.StatusDone, schemas.StructuredError{}, StopReasonMaxLoops, "")
			return
		case out.Status == schemas.StatusCallUser:
			c.holdForUser()
		}
	}
}

// holdForUser moves Running to CallUser. When a Pause landed during the
// step the run stays Paused and the question is remembered for Resume.
func (c *Controller) holdForUser() {
	if err := c.transition(schemas.StatusCallUser, schemas.StatusRunning); err == nil {
		return
	}
	c.mu.Lock()
	if c.state.Status == schemas.StatusPaused {
		c.pendingQuestion = true
	}
	c.mu.Unlock()
	c.logger.Info("Question pending until resume")
}

// waitWhileHeld blocks while the run is Paused or CallUser.
func (c *Controller) waitWhileHeld(ctx context.Context) error {
	for {
		st := c.State().Status
		if st != schemas.StatusPaused && st != schemas.StatusCallUser {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.wake:
		}
	}
}

// applyBatch merges, appends, persists and announces one step's batch.
func (c *Controller) applyBatch(ctx context.Context, loopIndex int, entries []schemas.ConversationEntry, items []schemas.RetrievedItem) {
	if len(entries) == 0 {
		return
	}
	var prev *schemas.ConversationEntry
	if last, ok := c.session.History().Last(); ok {
		prev = &last
	}
	merged := c.merger.Merge(ctx, prev, entries, items)

	c.session.appendEntries(merged...)
	c.persistEntries(ctx, merged)
	c.bus.Publish(EventEntriesAppended, EntriesAppended{LoopIndex: loopIndex, Entries: merged})

	plan := c.session.Plan()
	for i, e := range merged {
		if e.Role != schemas.RoleAgent {
			continue
		}
		thought := e.Thought
		if thought == "" {
			thought = e.Text
		}
		p := progress.Extract(thought)
		if p == nil {
			continue
		}
		update := ProgressUpdate{LoopIndex: loopIndex, Progress: *p, EntryIndex: i}
		if plan != nil {
			update.PlanSteps = plan.StepCount
		}
		c.logger.Info("Plan progress",
			zap.Int("loop_index", loopIndex),
			zap.String("current", p.Current),
			zap.Int("completed", p.CompletedCount),
			zap.Int("remaining", p.RemainingCount))
		c.bus.Publish(EventProgress, update)
	}
}

// advance bumps the loop index and returns the new value.
func (c *Controller) advance() int {
	c.mu.Lock()
	c.state.LoopIndex++
	c.state.UpdatedAt = c.clock.Now()
	idx := c.state.LoopIndex
	c.mu.Unlock()
	return idx
}

// transition moves the run to next when its status is one of from.
func (c *Controller) transition(next schemas.RunStatus, from ...schemas.RunStatus) error {
	c.mu.Lock()
	current := c.state.Status
	allowed := false
	for _, st := range from {
		if current == st {
			allowed = true
			break
		}
	}
	if !allowed {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, current, next)
	}
	c.state.Status = next
	c.state.UpdatedAt = c.clock.Now()
	snapshot := c.state
	c.mu.Unlock()

	c.publishState(snapshot)
	return nil
}

// finish moves the run into a terminal status exactly once.
func (c *Controller) finish(st schemas.RunStatus, se schemas.StructuredError, stopReason string, code ErrorCode) {
	c.mu.Lock()
	if c.state.Status.IsTerminal() {
		c.mu.Unlock()
		return
	}
	c.state.Status = st
	c.state.StopReason = stopReason
	c.state.UpdatedAt = c.clock.Now()
	if st == schemas.StatusError {
		if raw, err := json.Marshal(se); err == nil {
			c.state.ErrorMessage = string(raw)
		} else {
			c.state.ErrorMessage = se.Message
		}
	}
	snapshot := c.state
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	fields := []zap.Field{
		zap.String("run_id", snapshot.RunID),
		zap.String("status", string(st)),
		zap.Int("loop_index", snapshot.LoopIndex),
	}
	switch st {
	case schemas.StatusError:
		c.logger.Error("Run failed", append(fields, zap.String("error_code", string(code)), zap.String("error", se.Message))...)
	default:
		c.logger.Info("Run finished", append(fields, zap.String("stop_reason", stopReason))...)
	}
	c.publishState(snapshot)
}

func (c *Controller) publishState(snapshot schemas.RunState) {
	c.bus.Publish(EventStateChanged, snapshot)
	if c.deps.Store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := c.deps.Store.SaveRunState(ctx, c.session.ID, snapshot); err != nil {
		c.logger.Warn("Failed to persist run state", zap.Error(err))
	}
}

// persistEntries writes entries even when ctx is already cancelled, so a
// merged batch is never lost to a concurrent Cancel.
func (c *Controller) persistEntries(ctx context.Context, entries []schemas.ConversationEntry) {
	if c.deps.Store == nil || len(entries) == 0 {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	n, err := c.deps.Store.AppendHistory(pctx, c.session.ID, entries)
	if err != nil {
		c.logger.Warn("Failed to persist conversation entries", zap.Error(err), zap.Int("entries", len(entries)))
		return
	}
	c.logger.Debug("Persisted conversation entries", zap.Int("written", n), zap.Int("offered", len(entries)))
}

// persistPlan stores a freshly generated plan so a later invocation on the
// same session reuses it.
func (c *Controller) persistPlan(ctx context.Context, plan schemas.MasterPlan) {
	if c.deps.Store == nil {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := c.deps.Store.SavePlan(pctx, c.session.ID, plan); err != nil {
		c.logger.Warn("Failed to persist master plan", zap.Error(err))
	}
}

func (c *Controller) signalWake() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// drainWake discards a stale wake signal. Callers hold c.mu.
func (c *Controller) drainWake() {
	select {
	case <-c.wake:
	default:
	}
}
