package domain

import "context"

// SessionTracker receives fire-and-forget lifecycle events.
// Implementations must not block or fail the caller.
type SessionTracker interface {
	SessionStarted(ctx context.Context, s Session)
	SessionActivity(ctx context.Context, s Session, a Activity)
	SessionEnded(ctx context.Context, s Session)
	RewardsClaimed(ctx context.Context, s Session, r ClaimResult)
}
