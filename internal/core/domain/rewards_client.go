package domain

import (
	"context"
	"errors"
)

// ErrUnexpectedStatus marks a definite non-2xx answer from the rewards backend,
// as opposed to a transport failure.
var ErrUnexpectedStatus = errors.New("unexpected status")

// ValidateRequest is the body posted to the session validation endpoint.
type ValidateRequest struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
	GameID    string `json:"gameId"`
}

// ClaimRequest is the body posted to the claim endpoint.
type ClaimRequest struct {
	SessionID   string  `json:"sessionId"`
	GameID      string  `json:"gameId"`
	UserID      string  `json:"userId"`
	Coins       float64 `json:"coins"`
	XP          float64 `json:"xp"`
	SessionData Session `json:"sessionData"`
}

// RewardsClient is the remote rewards backend used for validation and claims.
type RewardsClient interface {
	// ValidateSession asks the backend whether the session may continue.
	ValidateSession(ctx context.Context, req ValidateRequest) (bool, error)

	// ClaimRewards converts a session's coins and XP into a backend grant.
	ClaimRewards(ctx context.Context, req ClaimRequest) (*ClaimResult, error)
}
