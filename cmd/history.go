package cmd

import (
	"errors"
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/HOSH19/BurpSuite-CUA/api/schemas"
	"github.com/HOSH19/BurpSuite-CUA/internal/observability"
	"github.com/HOSH19/BurpSuite-CUA/internal/store"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// newHistoryCmd prints a persisted session history as JSON.
func newHistoryCmd() *cobra.Command {
	var sessionID string
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Prints the stored conversation of a session as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if sessionID == "" {
				return errors.New("--session is required")
			}
			cfg, err := configFromContext(cmd.Context())
			if err != nil {
				return err
			}
			logger := observability.GetLogger()

			st, err := store.NewFromConfig(cmd.Context(), cfg.Store(), logger)
			if err != nil {
				return fmt.Errorf("failed to open history store: %w", err)
			}
			defer func() {
				if err := st.Close(); err != nil {
					logger.Warn("Failed to close history store", zap.Error(err))
				}
			}()

			entries, err := st.LoadHistory(cmd.Context(), sessionID)
			if err != nil {
				return fmt.Errorf("failed to load session %s: %w", sessionID, err)
			}

			if entries == nil {
				entries = []schemas.ConversationEntry{}
			}
			out, err := json.MarshalIndent(entries, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to encode history: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return err
		},
	}
	historyCmd.Flags().StringVar(&sessionID, "session", "", "session id to print")
	return historyCmd
}
