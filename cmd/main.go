package main

import (
	"context"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/duynhne/pkg/logger/zerolog"

	"github.com/duynhne/game-session-service/config"
	database "github.com/duynhne/game-session-service/internal/core"
	"github.com/duynhne/game-session-service/internal/core/analytics"
	"github.com/duynhne/game-session-service/internal/core/domain"
	"github.com/duynhne/game-session-service/internal/core/rewards"
	logicv1 "github.com/duynhne/game-session-service/internal/logic/v1"
)

func main() {
	root := &cobra.Command{
		Use:           "game-session-service",
		Short:         "Tracks reward-earning game sessions and brokers reward claims",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newStatsCmd(), newSweepCmd(), newClearCmd())

	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}

// loadConfig loads and validates configuration, then sets up logging.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Parse()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Initialize Zerolog with LOG_LEVEL from config
	zerolog.Setup(cfg.Logging.Level)
	return cfg, nil
}

// openManager opens the configured store and restores the session table from it.
func openManager(ctx context.Context, cfg *config.Config) (*logicv1.SessionManager, func(), error) {
	store, closeStore, err := database.OpenStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return newManager(ctx, cfg, store), closeStore, nil
}

// newManager restores the table from store. Construction sweeps expired
// sessions and writes the result back.
func newManager(ctx context.Context, cfg *config.Config, store domain.SessionStore) *logicv1.SessionManager {
	return logicv1.NewSessionManager(ctx, store,
		rewards.NewClient(cfg.Rewards.BaseURL, cfg.Rewards.Timeout),
		analytics.NewTracker(),
		logicv1.WithMaxDuration(cfg.Session.MaxDuration),
		logicv1.WithInactivityTimeout(cfg.Session.InactivityTimeout),
		logicv1.WithSweepInterval(cfg.Session.SweepInterval),
		logicv1.WithStoreTimeout(cfg.Storage.Timeout),
	)
}
