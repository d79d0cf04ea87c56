package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/HOSH19/BurpSuite-CUA/api/schemas"
	"github.com/HOSH19/BurpSuite-CUA/internal/agent"
	"github.com/HOSH19/BurpSuite-CUA/internal/config"
	"github.com/HOSH19/BurpSuite-CUA/internal/observability"
	"github.com/HOSH19/BurpSuite-CUA/internal/retrieval"
	"github.com/HOSH19/BurpSuite-CUA/internal/runtime/replay"
	"github.com/HOSH19/BurpSuite-CUA/internal/store"
)

// newRunCmd creates and configures the `run` command.
func newRunCmd() *cobra.Command {
	var (
		flags     agentFlags
		replayArg string
		sessionID string
	)
	runCmd := &cobra.Command{
		Use:   "run [instruction]",
		Short: "Runs the agent loop for one instruction",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFromContext(cmd.Context())
			if err != nil {
				return err
			}
			if err := flags.apply(cmd, cfg); err != nil {
				return err
			}
			if cmd.Flags().Changed("replay") {
				cfg.SetRuntimeReplayFile(replayArg)
			}
			return runAgent(cmd.Context(), cmd.OutOrStdout(), cfg, strings.Join(args, " "), sessionID)
		},
	}
	flags.register(runCmd)
	runCmd.Flags().IntVar(&flags.maxLoops, "max-loops", 0, "maximum iterations before the run stops")
	runCmd.Flags().StringVar(&replayArg, "replay", "", "recorded step script (YAML or JSON) to drive the run")
	runCmd.Flags().StringVar(&sessionID, "session", "", "session to continue; a new one is created when empty")
	return runCmd
}

// runAgent wires every component for one run and blocks until it ends.
// A cancelled run returns context.Canceled.
func runAgent(ctx context.Context, out io.Writer, cfg *config.Config, instruction, sessionID string) error {
	logger := observability.GetLogger()

	if cfg.Runtime().ReplayFile == "" {
		return errors.New("no agent runtime configured: pass --replay or set runtime.replay_file")
	}
	rt, err := replay.Load(cfg.Runtime().ReplayFile, logger)
	if err != nil {
		return err
	}

	st, err := store.NewFromConfig(ctx, cfg.Store(), logger)
	if err != nil {
		return fmt.Errorf("failed to open history store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Warn("Failed to close history store", zap.Error(err))
		}
	}()

	session := agent.NewSession(sessionID)
	if sessionID != "" {
		entries, err := st.LoadHistory(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("failed to load session %s: %w", sessionID, err)
		}
		plan, err := st.LoadPlan(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("failed to load plan for session %s: %w", sessionID, err)
		}
		session = agent.RestoreSession(sessionID, entries, plan)
	}

	plannerImpl, closePlanner := buildPlanner(cfg.Planner(), logger)
	defer closePlanner()

	ctrl, err := agent.NewController(agent.Dependencies{
		Retriever:    retrieval.New(cfg.Retrieval(), logger),
		Planner:      plannerImpl,
		PlannerModel: cfg.Planner().Model,
		TopK:         cfg.Retrieval().TopK,
		Runtime:      rt,
		Store:        st,
		Logger:       logger,
	}, session, cfg.Agent())
	if err != nil {
		return err
	}

	events, unsubscribe := ctrl.Subscribe()
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for evt := range events {
			printEvent(out, evt)
		}
	}()

	fmt.Fprintf(out, "session %s\n", session.ID)
	startErr := ctrl.Start(ctx, instruction)
	var final schemas.RunState
	if startErr == nil {
		final, _ = ctrl.Wait(context.Background())
	} else {
		final = ctrl.State()
	}
	ctrl.Close()
	unsubscribe()
	<-printed

	if startErr != nil {
		return startErr
	}
	fmt.Fprintf(out, "run %s finished: status=%s loops=%d", final.RunID, final.Status, final.LoopIndex)
	if final.StopReason != "" {
		fmt.Fprintf(out, " reason=%s", final.StopReason)
	}
	fmt.Fprintln(out)

	switch final.Status {
	case schemas.StatusCancelled:
		return context.Canceled
	case schemas.StatusError:
		return fmt.Errorf("run failed: %s", final.ErrorMessage)
	}
	return nil
}

// printEvent writes one human readable line per event.
func printEvent(w io.Writer, evt agent.Event) {
	switch p := evt.Payload.(type) {
	case schemas.RunState:
		fmt.Fprintf(w, "[state] %s (loop %d)\n", p.Status, p.LoopIndex)
	case *schemas.MasterPlan:
		fmt.Fprintf(w, "[plan] %d steps\n", p.StepCount)
	case agent.ProgressUpdate:
		fmt.Fprintf(w, "[progress] current=%q completed=%d remaining=%d\n",
			p.Progress.Current, p.Progress.CompletedCount, p.Progress.RemainingCount)
	case agent.EntriesAppended:
		for _, e := range p.Entries {
			fmt.Fprintf(w, "[%s] %s\n", e.Role, firstLine(e.Text))
		}
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}
