package domain

import "context"

// SessionStore defines the persistence contract for the session table.
// Implementations live in internal/core/repository (Core layer).
// The table is always read and written whole.
type SessionStore interface {
	// Load returns the persisted sessions in their stored order.
	// Returns (nil, nil) when nothing has been stored yet.
	Load(ctx context.Context) ([]Session, error)

	// Save replaces the persisted table with sessions.
	Save(ctx context.Context, sessions []Session) error

	// Clear removes the persisted table.
	Clear(ctx context.Context) error
}
