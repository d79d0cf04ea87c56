package planner

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/HOSH19/BurpSuite-CUA/api/schemas"
	"github.com/HOSH19/BurpSuite-CUA/internal/config"
)

type mockLLMClient struct {
	mock.Mock
}

func (m *mockLLMClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *mockLLMClient) Close() error {
	return m.Called().Error(0)
}

func plannerModel() config.LLMModelConfig {
	return config.LLMModelConfig{
		Provider:    config.ProviderOpenAI,
		Model:       "gpt-4o-mini",
		APITimeout:  time.Second,
		Temperature: 0.1,
		MaxTokens:   1000,
	}
}

func newTestGenerator(t *testing.T, client schemas.LLMClient) (*Generator, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	g := NewGenerator(client, config.PlannerConfig{Enabled: true, ItemCharLimit: 10}, zap.New(core))
	return g, logs
}

func TestGenerate_Success(t *testing.T) {
	client := new(mockLLMClient)
	g, _ := newTestGenerator(t, client)

	var captured schemas.GenerationRequest
	client.On("Generate", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			captured = args.Get(1).(schemas.GenerationRequest)
			_, hasDeadline := args.Get(0).(context.Context).Deadline()
			assert.True(t, hasDeadline, "call must be bounded by the api timeout")
		}).
		Return("  1. Click Proxy tab\n2. Click Intercept sub-tab\n3. Click Intercept toggle\n", nil).Once()

	items := []schemas.RetrievedItem{{Text: "Intercept lives under the Proxy tab", Relevance: 0.9}}
	plan := g.Generate(context.Background(), "Enable proxy interception", items, plannerModel(), schemas.LanguageEnglish)

	require.NotNil(t, plan)
	assert.Equal(t, 3, plan.StepCount)
	assert.True(t, strings.HasPrefix(plan.RawText, "1. Click Proxy tab"))
	assert.False(t, plan.CreatedAt.IsZero())

	assert.Contains(t, captured.SystemPrompt, "Use English for all text.")
	assert.Equal(t, "Enable proxy interception\n\n## Additional Context\n1. Intercept ...\n", captured.UserPrompt)
	assert.Equal(t, "gpt-4o-mini", captured.Model)
	assert.InDelta(t, 0.1, captured.Options.Temperature, 1e-6)
	assert.Equal(t, 1000, captured.Options.MaxTokens)
	client.AssertNumberOfCalls(t, "Generate", 1)
}

func TestGenerate_NoItemsOmitsContext(t *testing.T) {
	client := new(mockLLMClient)
	g, _ := newTestGenerator(t, client)
	client.On("Generate", mock.Anything, mock.MatchedBy(func(req schemas.GenerationRequest) bool {
		return req.UserPrompt == "Open Repeater" && strings.Contains(req.SystemPrompt, "Use Chinese")
	})).Return("1. Click Repeater tab", nil).Once()

	plan := g.Generate(context.Background(), "Open Repeater", nil, plannerModel(), schemas.LanguageChinese)
	require.NotNil(t, plan)
	client.AssertExpectations(t)
}

func TestGenerate_FailuresYieldNil(t *testing.T) {
	testCases := []struct {
		name    string
		content string
		err     error
		logMsg  string
	}{
		{"transport error", "", errors.New("connection refused"), "Master plan generation failed; continuing without a plan"},
		{"empty content", "", nil, "Planning model returned empty content; continuing without a plan"},
		{"whitespace content", " \n\t ", nil, "Planning model returned empty content; continuing without a plan"},
	}
	for _, tc := range testCases {
		tt := tc
		t.Run(tt.name, func(t *testing.T) {
			client := new(mockLLMClient)
			g, logs := newTestGenerator(t, client)
			client.On("Generate", mock.Anything, mock.Anything).Return(tt.content, tt.err).Once()

			plan := g.Generate(context.Background(), "Enable proxy interception", nil, plannerModel(), schemas.LanguageEnglish)
			assert.Nil(t, plan)
			assert.Equal(t, 1, logs.FilterMessage(tt.logMsg).Len())
			client.AssertNumberOfCalls(t, "Generate", 1)
		})
	}
}

func TestGenerate_UnnumberedPlanStillReturned(t *testing.T) {
	client := new(mockLLMClient)
	g, _ := newTestGenerator(t, client)
	client.On("Generate", mock.Anything, mock.Anything).Return("Open the Proxy tab and toggle interception.", nil).Once()

	plan := g.Generate(context.Background(), "Enable proxy interception", nil, plannerModel(), schemas.LanguageEnglish)
	require.NotNil(t, plan)
	assert.Equal(t, 0, plan.StepCount)
}

func TestGenerate_StripsCodeFence(t *testing.T) {
	client := new(mockLLMClient)
	g, _ := newTestGenerator(t, client)
	client.On("Generate", mock.Anything, mock.Anything).Return("```markdown\n1. Open Proxy.\n2. Open Intercept.\n```", nil).Once()

	plan := g.Generate(context.Background(), "Enable proxy interception", nil, plannerModel(), schemas.LanguageEnglish)
	require.NotNil(t, plan)
	assert.Equal(t, "1. Open Proxy.\n2. Open Intercept.", plan.RawText)
	assert.Equal(t, 2, plan.StepCount)
}

func TestGenerate_NilClient(t *testing.T) {
	g, _ := newTestGenerator(t, nil)
	assert.Nil(t, g.Generate(context.Background(), "x", nil, plannerModel(), schemas.LanguageEnglish))
}

func TestCountSteps(t *testing.T) {
	assert.Equal(t, 0, CountSteps(""))
	assert.Equal(t, 2, CountSteps("1. a\n  2. b\n3.no space\n"))
	assert.Equal(t, 3, CountSteps("Plan:\n10. x\n11. y\n12. z"))
	assert.Equal(t, 0, CountSteps("Step 1: not numbered with a dot"))
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "abc", truncateRunes("abc", 5))
	assert.Equal(t, "中文测...", truncateRunes("中文测试内容", 3))
}
