// Package planner derives a numbered master plan for an instruction with a
// single LLM call.
package planner

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/HOSH19/BurpSuite-CUA/api/schemas"
	"github.com/HOSH19/BurpSuite-CUA/internal/config"
	"github.com/HOSH19/BurpSuite-CUA/internal/llmutil"
	"github.com/HOSH19/BurpSuite-CUA/internal/prompt"
)

// DefaultItemCharLimit caps each retrieved passage quoted into the request.
const DefaultItemCharLimit = 500

var numberedStepRegex = regexp.MustCompile(`(?m)^\s*\d+\.\s`)

// Generator builds master plans.
type Generator struct {
	client        schemas.LLMClient
	itemCharLimit int
	logger        *zap.Logger
	now           func() time.Time
}

// NewGenerator creates a Generator that plans through client.
func NewGenerator(client schemas.LLMClient, cfg config.PlannerConfig, logger *zap.Logger) *Generator {
	limit := cfg.ItemCharLimit
	if limit <= 0 {
		limit = DefaultItemCharLimit
	}
	return &Generator{
		client:        client,
		itemCharLimit: limit,
		logger:        logger.Named("planner"),
		now:           time.Now,
	}
}

// Generate asks the model for a plan. Any failure, including empty output,
// is logged and yields nil so the run can go on without a plan.
func (g *Generator) Generate(ctx context.Context, instruction string, items []schemas.RetrievedItem, model config.LLMModelConfig, lang schemas.Language) *schemas.MasterPlan {
	if g.client == nil {
		return nil
	}

	callCtx := ctx
	if model.APITimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, model.APITimeout)
		defer cancel()
	}

	req := schemas.GenerationRequest{
		SystemPrompt: prompt.PlanningPrompt(lang),
		UserPrompt:   g.userPrompt(instruction, items),
		Model:        model.Model,
		Tier:         schemas.TierPowerful,
		Options: schemas.GenerationOptions{
			Temperature: float64(model.Temperature),
			MaxTokens:   model.MaxTokens,
		},
	}

	start := g.now()
	raw, err := g.client.Generate(callCtx, req)
	if err != nil {
		g.logger.Warn("Master plan generation failed; continuing without a plan", zap.Error(err))
		return nil
	}
	raw = llmutil.StripCodeFence(raw)
	if raw == "" {
		g.logger.Warn("Planning model returned empty content; continuing without a plan")
		return nil
	}

	plan := &schemas.MasterPlan{
		RawText:   raw,
		StepCount: CountSteps(raw),
		CreatedAt: g.now(),
	}
	g.logger.Info("Master plan generated",
		zap.Int("steps", plan.StepCount),
		zap.Duration("duration", plan.CreatedAt.Sub(start)),
	)
	return plan
}

func (g *Generator) userPrompt(instruction string, items []schemas.RetrievedItem) string {
	if len(items) == 0 {
		return instruction
	}
	var sb strings.Builder
	sb.WriteString(instruction)
	sb.WriteString("\n\n## Additional Context\n")
	for i, item := range items {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, truncateRunes(strings.TrimSpace(item.Text), g.itemCharLimit))
	}
	return sb.String()
}

// CountSteps counts the numbered lines of a plan. The count is advisory.
func CountSteps(text string) int {
	return len(numberedStepRegex.FindAllStringIndex(text, -1))
}

func truncateRunes(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}
