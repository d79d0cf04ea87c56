package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/HOSH19/BurpSuite-CUA/api/schemas"
	"github.com/HOSH19/BurpSuite-CUA/internal/agent"
	"github.com/HOSH19/BurpSuite-CUA/internal/config"
	"github.com/HOSH19/BurpSuite-CUA/internal/llmclient"
	"github.com/HOSH19/BurpSuite-CUA/internal/planner"
)

// agentFlags are the run settings shared by `run` and `prompt`.
type agentFlags struct {
	language     string
	operator     string
	modelVersion string
	maxLoops     int
}

func (f *agentFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.language, "language", "", "prompt language (en, zh)")
	cmd.Flags().StringVar(&f.operator, "operator", "", "operator type (computer, browser)")
	cmd.Flags().StringVar(&f.modelVersion, "model-version", "", "agent prompt version (1.0, 1.5, doubao-1.5-15B, doubao-1.5-20B, burpsuite)")
}

// apply copies changed flags onto cfg and revalidates it.
func (f *agentFlags) apply(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("language") {
		switch lang := schemas.Language(f.language); lang {
		case schemas.LanguageEnglish, schemas.LanguageChinese:
			cfg.SetAgentLanguage(lang)
		default:
			return fmt.Errorf("unsupported language %q (want en or zh)", f.language)
		}
	}
	if flags.Changed("operator") {
		cfg.SetAgentOperator(schemas.OperatorType(f.operator))
	}
	if flags.Changed("model-version") {
		cfg.SetAgentModelVersion(schemas.ModelVersion(f.modelVersion))
	}
	if flags.Lookup("max-loops") != nil && flags.Changed("max-loops") {
		cfg.SetAgentMaxLoopCount(f.maxLoops)
	}
	agentCfg := cfg.Agent()
	if err := agentCfg.Validate(); err != nil {
		return fmt.Errorf("invalid run settings: %w", err)
	}
	return nil
}

// buildPlanner returns the plan generator, or nil when planning is disabled
// or the planning model cannot be reached. The returned func releases the
// client.
func buildPlanner(cfg config.PlannerConfig, logger *zap.Logger) (agent.Planner, func()) {
	if !cfg.Enabled {
		return nil, func() {}
	}
	client, err := llmclient.NewClient(cfg.Model, cfg.RequestsPerMinute, logger)
	if err != nil {
		logger.Warn("Planner unavailable; continuing without a plan", zap.Error(err))
		return nil, func() {}
	}
	closeClient := func() {
		if err := client.Close(); err != nil {
			logger.Debug("Failed to close planning client", zap.Error(err))
		}
	}
	return planner.NewGenerator(client, cfg, logger), closeClient
}
