package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/duynhne/game-session-service/config"
	database "github.com/duynhne/game-session-service/internal/core"
	"github.com/duynhne/game-session-service/internal/core/domain"
)

// Maintenance commands work on the stored table directly. Do not run sweep or
// clear against a store a live service is writing to: the service keeps its
// own copy and will overwrite the result on its next mutation.

// loadStored reads the stored table without modifying it.
func loadStored(ctx context.Context, cfg *config.Config) (domain.SessionStore, []domain.Session, func(), error) {
	store, closeStore, err := database.OpenStore(ctx, cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	loadCtx, cancel := context.WithTimeout(ctx, cfg.Storage.Timeout)
	defer cancel()
	sessions, err := store.Load(loadCtx)
	if err != nil {
		closeStore()
		return nil, nil, nil, fmt.Errorf("load sessions: %w", err)
	}
	return store, sessions, closeStore, nil
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print session statistics from the configured store (read-only)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			_, sessions, closeStore, err := loadStored(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			out, err := json.MarshalIndent(domain.Summarize(sessions), "", "  ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return err
		},
	}
}

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "End sessions older than the maximum duration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, sessions, closeStore, err := loadStored(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			// Restoring the table sweeps once; a second pass catches nothing
			// unless the clock crossed a boundary in between.
			manager := newManager(cmd.Context(), cfg, store)
			remaining := manager.Stats().TotalSessions
			expired := len(sessions) - remaining + manager.SweepExpired(cmd.Context())
			remaining = manager.Stats().TotalSessions

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "expired %d sessions, %d remaining\n", expired, remaining)
			return err
		},
	}
}

func newClearCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every stored session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return fmt.Errorf("refusing to clear sessions without --yes")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			manager, closeStore, err := openManager(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			n := manager.ClearAllSessions(cmd.Context())
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "cleared %d sessions\n", n)
			return err
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion")
	return cmd
}
