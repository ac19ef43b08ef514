package analytics

import (
	"bytes"
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/duynhne/game-session-service/internal/core/domain"
)

func newBufferedContext() (context.Context, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)
	return logger.WithContext(context.Background()), &buf
}

func TestTracker_SessionStarted(t *testing.T) {
	ctx, buf := newBufferedContext()
	before := testutil.ToFloat64(sessionsStarted.WithLabelValues(domain.PlatformMobile))

	NewTracker().SessionStarted(ctx, domain.Session{
		ID: "session_1", GameID: "g", UserID: "u",
		Metadata: domain.Metadata{Platform: domain.PlatformMobile},
	})

	assert.Equal(t, before+1, testutil.ToFloat64(sessionsStarted.WithLabelValues(domain.PlatformMobile)))
	assert.Contains(t, buf.String(), `"event":"session_started"`)
	assert.Contains(t, buf.String(), `"session_id":"session_1"`)
}

func TestTracker_SessionActivity_DefaultsType(t *testing.T) {
	ctx, buf := newBufferedContext()
	before := testutil.ToFloat64(sessionActivities.WithLabelValues("general"))

	coins := 42.0
	NewTracker().SessionActivity(ctx, domain.Session{ID: "s", SessionCoins: 1, SessionXP: 7}, domain.Activity{SessionCoins: &coins})

	assert.Equal(t, before+1, testutil.ToFloat64(sessionActivities.WithLabelValues("general")))
	assert.Contains(t, buf.String(), `"coins":42`)
	assert.Contains(t, buf.String(), `"xp":7`)
}

func TestTracker_SessionEnded(t *testing.T) {
	ctx, buf := newBufferedContext()
	before := testutil.ToFloat64(sessionsEnded.WithLabelValues(domain.EndReasonExpired))

	d := int64(90_000)
	NewTracker().SessionEnded(ctx, domain.Session{
		ID: "s", EndReason: domain.EndReasonExpired, Duration: &d,
		TasksCompleted: []domain.Task{{TaskID: "a"}, {TaskID: "b"}},
	})

	assert.Equal(t, before+1, testutil.ToFloat64(sessionsEnded.WithLabelValues(domain.EndReasonExpired)))
	assert.Contains(t, buf.String(), `"tasks_completed":2`)
	assert.Contains(t, buf.String(), `"duration_ms":90000`)
}

func TestTracker_RewardsClaimed(t *testing.T) {
	ctx, buf := newBufferedContext()
	beforeClaims := testutil.ToFloat64(rewardsClaimed)
	beforeCoins := testutil.ToFloat64(coinsClaimed)

	NewTracker().RewardsClaimed(ctx, domain.Session{ID: "s"}, domain.ClaimResult{CoinsTransferred: 25, XPTransferred: 3})

	assert.Equal(t, beforeClaims+1, testutil.ToFloat64(rewardsClaimed))
	assert.Equal(t, beforeCoins+25, testutil.ToFloat64(coinsClaimed))
	assert.Contains(t, buf.String(), `"coins_claimed":25`)
}

func TestTracker_FallsBackWithoutContextLogger(t *testing.T) {
	tr := NewTracker()
	assert.Same(t, &tr.logger, tr.log(context.Background()))
}
