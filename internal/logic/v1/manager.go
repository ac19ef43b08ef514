package v1

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/duynhne/game-session-service/internal/core/domain"
	"github.com/duynhne/game-session-service/middleware"
)

// Default liveness rules.
const (
	DefaultMaxDuration       = 24 * time.Hour
	DefaultInactivityTimeout = 2 * time.Hour
	DefaultSweepInterval     = 5 * time.Minute
	DefaultStoreTimeout      = 5 * time.Second
)

// Option configures a SessionManager.
type Option func(*SessionManager)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *SessionManager) { m.now = now }
}

// WithMaxDuration sets the age after which a session expires.
func WithMaxDuration(d time.Duration) Option {
	return func(m *SessionManager) { m.maxDuration = d }
}

// WithInactivityTimeout sets the idle time after which validation ends a session.
func WithInactivityTimeout(d time.Duration) Option {
	return func(m *SessionManager) { m.inactivityTimeout = d }
}

// WithSweepInterval sets the background sweep period used by Start.
func WithSweepInterval(d time.Duration) Option {
	return func(m *SessionManager) { m.sweepInterval = d }
}

// WithStoreTimeout bounds every store call. The table lock is held during
// saves, so a stalled store must not block other callers for longer than this.
func WithStoreTimeout(d time.Duration) Option {
	return func(m *SessionManager) { m.storeTimeout = d }
}

// WithLogger sets the logger used when the context carries none.
func WithLogger(l zerolog.Logger) Option {
	return func(m *SessionManager) { m.logger = l }
}

// SessionManager keeps the table of in-flight reward-earning sessions,
// enforces time-based liveness and brokers reward claims to the backend.
// The full table is written to the store after every mutation.
// It depends on interfaces injected via the constructor and is safe for
// concurrent use.
type SessionManager struct {
	store   domain.SessionStore
	rewards domain.RewardsClient
	tracker domain.SessionTracker
	logger  zerolog.Logger
	now     func() time.Time

	maxDuration       time.Duration
	inactivityTimeout time.Duration
	sweepInterval     time.Duration
	storeTimeout      time.Duration

	mu       sync.Mutex
	sessions map[string]*domain.Session
	order    []string
	claiming map[string]struct{}

	loopMu sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSessionManager restores the table from store and purges sessions that
// expired while the process was down. A failed load is logged and leaves the
// table empty.
func NewSessionManager(ctx context.Context, store domain.SessionStore, rewards domain.RewardsClient, tracker domain.SessionTracker, opts ...Option) *SessionManager {
	m := &SessionManager{
		store:             store,
		rewards:           rewards,
		tracker:           tracker,
		logger:            log.Logger.With().Str("component", "session_manager").Logger(),
		now:               time.Now,
		maxDuration:       DefaultMaxDuration,
		inactivityTimeout: DefaultInactivityTimeout,
		sweepInterval:     DefaultSweepInterval,
		storeTimeout:      DefaultStoreTimeout,
		sessions:          make(map[string]*domain.Session),
		claiming:          make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.load(ctx)
	m.SweepExpired(ctx)
	return m
}

func (m *SessionManager) log(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &m.logger
}

func (m *SessionManager) nowMillis() int64 {
	return m.now().UnixMilli()
}

func newSessionID() string {
	return "session_" + strings.ToLower(ulid.Make().String())
}

// storeContext detaches ctx from the caller's cancellation, so a finished
// request does not abort a write, and bounds it by the store timeout.
func (m *SessionManager) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), m.storeTimeout)
}

func (m *SessionManager) load(ctx context.Context) {
	loadCtx, cancel := context.WithTimeout(ctx, m.storeTimeout)
	defer cancel()

	stored, err := m.store.Load(loadCtx)
	if err != nil {
		m.log(ctx).Error().Err(err).Msg("Failed to load sessions from storage")
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range stored {
		s := stored[i].Clone()
		if s.ID == "" {
			continue
		}
		if _, dup := m.sessions[s.ID]; dup {
			continue
		}
		m.sessions[s.ID] = &s
		m.order = append(m.order, s.ID)
	}
	m.log(ctx).Info().Int("sessions", len(m.sessions)).Msg("Loaded sessions from storage")
}

// persistLocked writes the whole table. Failures are logged only.
// Must be called with m.mu held.
func (m *SessionManager) persistLocked(ctx context.Context) {
	snapshot := make([]domain.Session, 0, len(m.order))
	for _, id := range m.order {
		snapshot = append(snapshot, m.sessions[id].Clone())
	}
	saveCtx, cancel := m.storeContext(ctx)
	defer cancel()
	if err := m.store.Save(saveCtx, snapshot); err != nil {
		m.log(ctx).Error().Err(err).Int("sessions", len(snapshot)).Msg("Failed to persist sessions")
	}
}

// removeLocked deletes id from the table. Must be called with m.mu held.
func (m *SessionManager) removeLocked(id string) {
	delete(m.sessions, id)
	for i, v := range m.order {
		if v == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// CreateSession starts a new session. It does not check for an existing
// active session; use GetActiveSessionForGame first.
func (m *SessionManager) CreateSession(ctx context.Context, gameID, userID string, game domain.GameData) (string, error) {
	ctx, span := middleware.StartSpan(ctx, "session.create", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.String("game.id", gameID),
		attribute.String("user.id", userID),
	))
	defer span.End()

	if strings.TrimSpace(gameID) == "" || strings.TrimSpace(userID) == "" {
		return "", fmt.Errorf("create session: game id and user id are required: %w", ErrInvalidArgument)
	}

	title := game.Title
	if title == "" {
		title = domain.DefaultGameTitle
	}

	now := m.nowMillis()
	s := &domain.Session{
		ID:                newSessionID(),
		GameID:            gameID,
		UserID:            userID,
		GameTitle:         title,
		StartTime:         now,
		LastActivity:      now,
		IsActive:          true,
		MilestonesReached: []domain.Milestone{},
		TasksCompleted:    []domain.Task{},
		Metadata: domain.Metadata{
			UserAgent: game.UserAgent,
			Platform:  DetectPlatform(game.UserAgent, game.NativeShell),
			Version:   domain.MetadataVersion,
		},
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.order = append(m.order, s.ID)
	m.persistLocked(ctx)
	snapshot := s.Clone()
	m.mu.Unlock()

	m.tracker.SessionStarted(ctx, snapshot)

	span.SetAttributes(attribute.String("session.id", s.ID))
	m.log(ctx).Info().Str("session_id", s.ID).Str("game_id", gameID).Str("user_id", userID).Msg("Session created")
	return s.ID, nil
}

// GetSession returns a copy of the session.
func (m *SessionManager) GetSession(sessionID string) (domain.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return domain.Session{}, false
	}
	return s.Clone(), true
}

// GetActiveSessionForGame returns the first active, unclaimed session for the
// game and user, in creation order.
func (m *SessionManager) GetActiveSessionForGame(gameID, userID string) (domain.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range m.order {
		s := m.sessions[id]
		if s.GameID == gameID && s.UserID == userID && s.IsActive && !s.IsClaimed {
			return s.Clone(), true
		}
	}
	return domain.Session{}, false
}

// UpdateSessionActivity applies an activity event. Coins and XP are
// overwritten, milestone and task logs are appended. It reports whether the
// session existed; an unknown id is logged and otherwise ignored.
func (m *SessionManager) UpdateSessionActivity(ctx context.Context, sessionID string, activity domain.Activity) bool {
	ctx, span := middleware.StartSpan(ctx, "session.update_activity", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.String("session.id", sessionID),
	))
	defer span.End()

	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		span.SetAttributes(attribute.Bool("session.found", false))
		m.log(ctx).Warn().Str("session_id", sessionID).Msg("Activity for unknown session ignored")
		return false
	}

	now := m.nowMillis()
	if now > s.LastActivity {
		s.LastActivity = now
	}
	if v := activity.SessionCoins; v != nil {
		if *v >= 0 {
			s.SessionCoins = *v
		} else {
			m.log(ctx).Warn().Str("session_id", sessionID).Float64("coins", *v).Msg("Negative coins ignored")
		}
	}
	if v := activity.SessionXP; v != nil {
		if *v >= 0 {
			s.SessionXP = *v
		} else {
			m.log(ctx).Warn().Str("session_id", sessionID).Float64("xp", *v).Msg("Negative xp ignored")
		}
	}
	if activity.MilestoneReached != "" {
		s.MilestonesReached = append(s.MilestonesReached, domain.Milestone{Milestone: activity.MilestoneReached, Timestamp: now})
	}
	if activity.TaskCompleted != "" {
		s.TasksCompleted = append(s.TasksCompleted, domain.Task{TaskID: activity.TaskCompleted, Timestamp: now})
	}

	m.persistLocked(ctx)
	snapshot := s.Clone()
	m.mu.Unlock()

	m.tracker.SessionActivity(ctx, snapshot, activity)
	return true
}

// ValidateSession applies the local expiry and inactivity rules, then asks the
// backend. Sessions failing a local rule are ended and reported invalid.
//
// Validation fails open: if the backend cannot be reached or its answer cannot
// be read, the session is reported valid. A definite non-2xx answer is invalid.
func (m *SessionManager) ValidateSession(ctx context.Context, sessionID string) bool {
	ctx, span := middleware.StartSpan(ctx, "session.validate", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.String("session.id", sessionID),
	))
	defer span.End()

	logger := m.log(ctx)

	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		logger.Warn().Str("session_id", sessionID).Msg("Session not found")
		span.SetAttributes(attribute.String("session.verdict", "not_found"))
		return false
	}

	now := m.now()
	reason := ""
	switch {
	case s.Age(now) > m.maxDuration:
		reason = domain.EndReasonExpired
	case s.Idle(now) > m.inactivityTimeout:
		reason = domain.EndReasonInactive
	}
	if reason != "" {
		ended := m.endLocked(sessionID, reason, domain.ClaimData{})
		m.persistLocked(ctx)
		m.mu.Unlock()

		m.tracker.SessionEnded(ctx, ended)
		logger.Warn().Str("session_id", sessionID).Str("reason", reason).Msg("Session no longer live")
		span.SetAttributes(attribute.String("session.verdict", reason))
		return false
	}

	req := domain.ValidateRequest{SessionID: sessionID, UserID: s.UserID, GameID: s.GameID}
	m.mu.Unlock()

	valid, err := m.rewards.ValidateSession(ctx, req)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, domain.ErrUnexpectedStatus) {
			logger.Error().Err(err).Str("session_id", sessionID).Msg("Backend validation failed")
			span.SetAttributes(attribute.String("session.verdict", "rejected"))
			return false
		}
		logger.Error().Err(err).Str("session_id", sessionID).Msg("Validation error, allowing session to continue")
		span.SetAttributes(attribute.String("session.verdict", "fail_open"))
		return true
	}

	span.SetAttributes(attribute.Bool("session.valid", valid))
	return valid
}

// endLocked marks the session ended, applies overrides and removes it from
// the table. Must be called with m.mu held and sessionID present.
func (m *SessionManager) endLocked(sessionID, reason string, claim domain.ClaimData) domain.Session {
	s := m.sessions[sessionID]

	end := m.nowMillis()
	duration := end - s.StartTime
	s.IsActive = false
	s.EndTime = &end
	s.EndReason = reason
	s.Duration = &duration

	s.SessionCoins = override(claim.Coins, s.SessionCoins)
	s.SessionXP = override(claim.XP, s.SessionXP)
	if claim.IsClaimed {
		s.IsClaimed = true
	}

	ended := s.Clone()
	m.removeLocked(sessionID)
	return ended
}

// override returns *v when it is set and non-zero, else fallback.
func override(v *float64, fallback float64) float64 {
	if v != nil && *v != 0 {
		return *v
	}
	return fallback
}

// EndSession ends and removes the session. After it returns GetSession no
// longer finds the id. It reports whether the session existed.
func (m *SessionManager) EndSession(ctx context.Context, sessionID, reason string, claim domain.ClaimData) bool {
	if reason == "" {
		reason = domain.EndReasonCompleted
	}

	ctx, span := middleware.StartSpan(ctx, "session.end", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.String("session.id", sessionID),
		attribute.String("session.end_reason", reason),
	))
	defer span.End()

	m.mu.Lock()
	if _, ok := m.sessions[sessionID]; !ok {
		m.mu.Unlock()
		span.SetAttributes(attribute.Bool("session.found", false))
		return false
	}
	ended := m.endLocked(sessionID, reason, claim)
	m.persistLocked(ctx)
	m.mu.Unlock()

	m.tracker.SessionEnded(ctx, ended)

	m.log(ctx).Info().
		Str("session_id", sessionID).
		Str("reason", reason).
		Int64("duration_ms", *ended.Duration).
		Msg("Session ended")
	return true
}

// ClaimSessionRewards converts the session's coins and XP into a backend
// grant, at most once per session. Unlike validation it fails closed: any
// backend or transport error is returned and the session stays unclaimed.
func (m *SessionManager) ClaimSessionRewards(ctx context.Context, sessionID string, claim domain.ClaimData) (*domain.ClaimResult, error) {
	ctx, span := middleware.StartSpan(ctx, "session.claim", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.String("session.id", sessionID),
	))
	defer span.End()

	logger := m.log(ctx)

	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("claim session %q: %w", sessionID, ErrSessionNotFound)
	}
	if s.IsClaimed {
		m.mu.Unlock()
		span.SetAttributes(attribute.Bool("claim.duplicate", true))
		return nil, fmt.Errorf("claim session %q: %w", sessionID, ErrAlreadyClaimed)
	}
	if _, busy := m.claiming[sessionID]; busy {
		m.mu.Unlock()
		return nil, fmt.Errorf("claim session %q: %w", sessionID, ErrClaimInProgress)
	}
	m.claiming[sessionID] = struct{}{}

	req := domain.ClaimRequest{
		SessionID:   sessionID,
		GameID:      s.GameID,
		UserID:      s.UserID,
		Coins:       override(claim.Coins, s.SessionCoins),
		XP:          override(claim.XP, s.SessionXP),
		SessionData: s.Clone(),
	}
	m.mu.Unlock()

	result, err := m.rewards.ClaimRewards(ctx, req)

	m.mu.Lock()
	delete(m.claiming, sessionID)
	if err != nil {
		m.mu.Unlock()
		span.RecordError(err)
		logger.Error().Err(err).Str("session_id", sessionID).Msg("Claim error")
		return nil, fmt.Errorf("claim session %q: %w: %w", sessionID, ErrClaimFailed, err)
	}

	raw := result.Raw
	if raw == nil {
		raw, _ = json.Marshal(result)
	}

	snapshot := req.SessionData
	if s, ok := m.sessions[sessionID]; ok {
		now := m.nowMillis()
		s.IsClaimed = true
		s.ClaimTime = &now
		s.ClaimData = append(json.RawMessage(nil), raw...)
		m.persistLocked(ctx)
		snapshot = s.Clone()
	} else {
		logger.Warn().Str("session_id", sessionID).Msg("Session ended while claim was in flight")
	}
	m.mu.Unlock()

	m.tracker.RewardsClaimed(ctx, snapshot, *result)

	span.SetAttributes(
		attribute.Float64("claim.coins_transferred", result.CoinsTransferred),
		attribute.Float64("claim.xp_transferred", result.XPTransferred),
	)
	logger.Info().
		Str("session_id", sessionID).
		Float64("coins", result.CoinsTransferred).
		Float64("xp", result.XPTransferred).
		Msg("Rewards claimed")
	return result, nil
}

// SweepExpired ends every session older than the maximum duration and
// returns how many were ended.
func (m *SessionManager) SweepExpired(ctx context.Context) int {
	ctx, span := middleware.StartSpan(ctx, "session.sweep", trace.WithAttributes(
		attribute.String("layer", "logic"),
	))
	defer span.End()

	now := m.now()

	m.mu.Lock()
	var expired []string
	for _, id := range m.order {
		if m.sessions[id].Age(now) > m.maxDuration {
			expired = append(expired, id)
		}
	}
	if len(expired) == 0 {
		m.mu.Unlock()
		return 0
	}
	ended := make([]domain.Session, 0, len(expired))
	for _, id := range expired {
		ended = append(ended, m.endLocked(id, domain.EndReasonExpired, domain.ClaimData{}))
	}
	m.persistLocked(ctx)
	m.mu.Unlock()

	for _, s := range ended {
		m.tracker.SessionEnded(ctx, s)
	}

	span.SetAttributes(attribute.Int("sweep.expired", len(ended)))
	m.log(ctx).Info().Int("expired", len(ended)).Msg("Cleaned up expired sessions")
	return len(ended)
}

// Start runs SweepExpired on every sweep interval until Stop is called or ctx
// is cancelled. Calling Start on a running manager does nothing.
func (m *SessionManager) Start(ctx context.Context) {
	m.loopMu.Lock()
	defer m.loopMu.Unlock()
	if m.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	m.cancel = cancel
	m.done = done

	go func() {
		defer close(done)
		ticker := time.NewTicker(m.sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.SweepExpired(ctx)
			}
		}
	}()
}

// Stop halts the background sweep and waits for it to exit.
func (m *SessionManager) Stop() {
	m.loopMu.Lock()
	defer m.loopMu.Unlock()
	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
	m.cancel = nil
	m.done = nil
}

// Stats summarises the live table. AverageDuration (ms) only covers sessions
// carrying a duration; since ending a session removes it, this is normally zero.
func (m *SessionManager) Stats() domain.SessionStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	sessions := make([]domain.Session, 0, len(m.order))
	for _, id := range m.order {
		sessions = append(sessions, *m.sessions[id])
	}
	return domain.Summarize(sessions)
}

// ClearAllSessions drops every session without ending them and removes the
// stored table. It returns how many sessions were dropped.
func (m *SessionManager) ClearAllSessions(ctx context.Context) int {
	m.mu.Lock()
	n := len(m.sessions)
	m.sessions = make(map[string]*domain.Session)
	m.order = nil
	clearCtx, cancel := m.storeContext(ctx)
	err := m.store.Clear(clearCtx)
	cancel()
	m.mu.Unlock()

	if err != nil {
		m.log(ctx).Error().Err(err).Msg("Failed to clear stored sessions")
	}
	m.log(ctx).Info().Int("sessions", n).Msg("All sessions cleared")
	return n
}
