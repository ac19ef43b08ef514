// Package analytics emits session lifecycle events as structured logs and
// Prometheus metrics.
package analytics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/duynhne/game-session-service/internal/core/domain"
)

var (
	sessionsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "game_sessions_started_total",
			Help: "Total number of game sessions started",
		},
		[]string{"platform"},
	)

	sessionActivities = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "game_session_activities_total",
			Help: "Total number of session activity events",
		},
		[]string{"type"},
	)

	sessionsEnded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "game_sessions_ended_total",
			Help: "Total number of game sessions ended",
		},
		[]string{"reason"},
	)

	sessionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "game_session_duration_seconds",
			Help:    "Duration of ended game sessions",
			Buckets: []float64{60, 300, 900, 1800, 3600, 7200, 14400, 43200, 86400},
		},
	)

	rewardsClaimed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "game_session_claims_total",
			Help: "Total number of successful reward claims",
		},
	)

	coinsClaimed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "game_session_claimed_coins_total",
			Help: "Sum of coins transferred by successful claims",
		},
	)

	xpClaimed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "game_session_claimed_xp_total",
			Help: "Sum of XP transferred by successful claims",
		},
	)
)

// Tracker implements domain.SessionTracker.
type Tracker struct {
	logger zerolog.Logger
}

// NewTracker creates a Tracker logging through the global zerolog logger when
// the context carries none.
func NewTracker() *Tracker {
	return &Tracker{logger: log.Logger.With().Str("component", "analytics").Logger()}
}

func (t *Tracker) log(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &t.logger
}

// SessionStarted records session_started.
func (t *Tracker) SessionStarted(ctx context.Context, s domain.Session) {
	sessionsStarted.WithLabelValues(s.Metadata.Platform).Inc()

	t.log(ctx).Info().
		Str("event", "session_started").
		Str("session_id", s.ID).
		Str("game_id", s.GameID).
		Str("user_id", s.UserID).
		Str("platform", s.Metadata.Platform).
		Msg("Session start tracked")
}

// SessionActivity records session_activity.
func (t *Tracker) SessionActivity(ctx context.Context, s domain.Session, a domain.Activity) {
	activityType := a.Type
	if activityType == "" {
		activityType = "general"
	}
	sessionActivities.WithLabelValues(activityType).Inc()

	coins, xp := s.SessionCoins, s.SessionXP
	if a.SessionCoins != nil {
		coins = *a.SessionCoins
	}
	if a.SessionXP != nil {
		xp = *a.SessionXP
	}

	t.log(ctx).Debug().
		Str("event", "session_activity").
		Str("session_id", s.ID).
		Str("activity_type", activityType).
		Float64("coins", coins).
		Float64("xp", xp).
		Msg("Session activity tracked")
}

// SessionEnded records session_ended.
func (t *Tracker) SessionEnded(ctx context.Context, s domain.Session) {
	sessionsEnded.WithLabelValues(s.EndReason).Inc()

	var duration int64
	if s.Duration != nil {
		duration = *s.Duration
		sessionDuration.Observe(float64(duration) / 1000)
	}

	t.log(ctx).Info().
		Str("event", "session_ended").
		Str("session_id", s.ID).
		Int64("duration_ms", duration).
		Str("reason", s.EndReason).
		Float64("coins_earned", s.SessionCoins).
		Float64("xp_earned", s.SessionXP).
		Int("tasks_completed", len(s.TasksCompleted)).
		Msg("Session end tracked")
}

// RewardsClaimed records rewards_claimed.
func (t *Tracker) RewardsClaimed(ctx context.Context, s domain.Session, r domain.ClaimResult) {
	rewardsClaimed.Inc()
	if r.CoinsTransferred > 0 {
		coinsClaimed.Add(r.CoinsTransferred)
	}
	if r.XPTransferred > 0 {
		xpClaimed.Add(r.XPTransferred)
	}

	event := t.log(ctx).Info().
		Str("event", "rewards_claimed").
		Str("session_id", s.ID).
		Float64("coins_claimed", r.CoinsTransferred).
		Float64("xp_claimed", r.XPTransferred)
	if s.Duration != nil {
		event = event.Int64("total_duration_ms", *s.Duration)
	}
	event.Msg("Claim tracked")
}
