package agent

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/HOSH19/BurpSuite-CUA/api/schemas"
	"github.com/HOSH19/BurpSuite-CUA/internal/config"
	"github.com/HOSH19/BurpSuite-CUA/internal/store"
)

// -- Mocks --

type mockRetriever struct {
	mock.Mock
}

func (m *mockRetriever) Query(ctx context.Context, text string, k int) []schemas.RetrievedItem {
	args := m.Called(ctx, text, k)
	items, _ := args.Get(0).([]schemas.RetrievedItem)
	return items
}

type mockPlanner struct {
	mock.Mock
}

func (m *mockPlanner) Generate(ctx context.Context, instruction string, items []schemas.RetrievedItem, model config.LLMModelConfig, lang schemas.Language) *schemas.MasterPlan {
	args := m.Called(ctx, instruction, items, model, lang)
	plan, _ := args.Get(0).(*schemas.MasterPlan)
	return plan
}

// stepFunc scripts one iteration of a fakeRuntime.
type stepFunc func(ctx context.Context, in StepInput) (StepOutput, error)

// fakeRuntime replays scripted steps and records what it was given. Once the
// script runs out it reports Done.
type fakeRuntime struct {
	mu           sync.Mutex
	configureErr error
	configs      []RuntimeConfig
	inputs       []StepInput
	script       []stepFunc
}

func newFakeRuntime(steps ...stepFunc) *fakeRuntime {
	return &fakeRuntime{script: steps}
}

func (f *fakeRuntime) Configure(cfg RuntimeConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.configs = append(f.configs, cfg)
	return f.configureErr
}

func (f *fakeRuntime) Step(ctx context.Context, in StepInput) (StepOutput, error) {
	f.mu.Lock()
	idx := len(f.inputs)
	f.inputs = append(f.inputs, in)
	var step stepFunc
	if idx < len(f.script) {
		step = f.script[idx]
	}
	f.mu.Unlock()

	if step == nil {
		return StepOutput{Status: schemas.StatusDone}, nil
	}
	return step(ctx, in)
}

func (f *fakeRuntime) Steps() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inputs)
}

func (f *fakeRuntime) Input(i int) StepInput {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inputs[i]
}

func (f *fakeRuntime) LastConfig() RuntimeConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.configs[len(f.configs)-1]
}

// -- Step builders --

func agentEntry(text string) schemas.ConversationEntry {
	return schemas.ConversationEntry{
		Role:    schemas.RoleAgent,
		Text:    text,
		Thought: text,
		Timing:  &schemas.Timing{Start: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
}

func returns(status schemas.RunStatus, entries ...schemas.ConversationEntry) stepFunc {
	return func(context.Context, StepInput) (StepOutput, error) {
		return StepOutput{Status: status, Conversations: entries}, nil
	}
}

func blockUntilCancelled(started chan<- struct{}) stepFunc {
	return func(ctx context.Context, _ StepInput) (StepOutput, error) {
		close(started)
		<-ctx.Done()
		return StepOutput{}, ctx.Err()
	}
}

// statusError is an error carrying an HTTP status.
type statusError struct{ code int }

func (e statusError) Error() string   { return fmt.Sprintf("upstream returned %d", e.code) }
func (e statusError) StatusCode() int { return e.code }

// -- Fixtures --

func testAgentConfig() config.AgentConfig {
	return config.AgentConfig{
		Language:     schemas.LanguageEnglish,
		Operator:     schemas.OperatorComputer,
		ModelVersion: schemas.ModelV1_0,
		MaxLoopCount: 10,
		Retry:        schemas.RetryBudgets{Model: 5, Screenshot: 5, Execute: 1},
		EventBuffer:  256,
	}
}

type fixture struct {
	ctrl    *Controller
	runtime *fakeRuntime
	store   *store.MemoryStore
	session *Session
}

func newFixture(t *testing.T, deps Dependencies, cfg config.AgentConfig) *fixture {
	t.Helper()
	mem := store.NewMemoryStore()
	if deps.Store == nil {
		deps.Store = mem
	}
	if deps.Logger == nil {
		deps.Logger = zaptest.NewLogger(t)
	}
	session := NewSession("session-test")
	ctrl, err := NewController(deps, session, cfg)
	require.NoError(t, err)
	t.Cleanup(ctrl.Close)

	rt, _ := deps.Runtime.(*fakeRuntime)
	return &fixture{ctrl: ctrl, runtime: rt, store: mem, session: session}
}

func waitTerminal(t *testing.T, c *Controller) schemas.RunState {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st, err := c.Wait(ctx)
	require.NoError(t, err, "run did not finish in time")
	return st
}

func eventuallyStatus(t *testing.T, c *Controller, want schemas.RunStatus) {
	t.Helper()
	require.Eventually(t, func() bool {
		return c.State().Status == want
	}, 5*time.Second, 5*time.Millisecond, "expected status %s", want)
}
