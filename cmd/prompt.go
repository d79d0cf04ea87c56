package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/HOSH19/BurpSuite-CUA/internal/observability"
	"github.com/HOSH19/BurpSuite-CUA/internal/prompt"
	"github.com/HOSH19/BurpSuite-CUA/internal/retrieval"
)

// newPromptCmd prints the system prompt a run would start with, without
// driving any runtime.
func newPromptCmd() *cobra.Command {
	var flags agentFlags
	promptCmd := &cobra.Command{
		Use:   "prompt [instruction]",
		Short: "Prints the composed system prompt for an instruction",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFromContext(cmd.Context())
			if err != nil {
				return err
			}
			if err := flags.apply(cmd, cfg); err != nil {
				return err
			}
			ctx := cmd.Context()
			logger := observability.GetLogger()
			instruction := strings.Join(args, " ")
			agentCfg := cfg.Agent()

			items := retrieval.New(cfg.Retrieval(), logger).Query(ctx, instruction, cfg.Retrieval().TopK)

			plannerImpl, closePlanner := buildPlanner(cfg.Planner(), logger)
			defer closePlanner()

			var text string
			if plannerImpl != nil {
				if plan := plannerImpl.Generate(ctx, instruction, items, cfg.Planner().Model, agentCfg.Language); plan != nil {
					text = prompt.Compose(agentCfg.ModelVersion, agentCfg.Language, agentCfg.Operator, plan, items)
				}
			}
			if text == "" {
				text = prompt.Compose(agentCfg.ModelVersion, agentCfg.Language, agentCfg.Operator, nil, items)
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), text+instruction)
			return err
		},
	}
	flags.register(promptCmd)
	return promptCmd
}
