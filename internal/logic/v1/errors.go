// Package v1 provides the game session business logic for API version 1.
//
// Error Handling:
// This package defines sentinel errors for session failures. They are wrapped
// with context using fmt.Errorf("%w") when returned from SessionManager methods.
//
// Example Usage:
//
//	if !ok {
//	    return nil, fmt.Errorf("claim session %q: %w", sessionID, ErrSessionNotFound)
//	}
//
// Error Checking (in handlers):
//
//	switch {
//	case errors.Is(err, logicv1.ErrSessionNotFound):
//	    c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
//	case errors.Is(err, logicv1.ErrAlreadyClaimed):
//	    c.JSON(http.StatusConflict, gin.H{"error": "Session already claimed"})
//	default:
//	    c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
//	}
package v1

import "errors"

// Sentinel errors for session operations.
var (
	// ErrInvalidArgument indicates a required identifier was empty.
	// HTTP Status: 400 Bad Request
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrSessionNotFound indicates the session id is not in the live table.
	// HTTP Status: 404 Not Found
	ErrSessionNotFound = errors.New("session not found")

	// ErrAlreadyClaimed indicates the session's rewards were already claimed.
	// Claims are one-shot; callers must not retry.
	// HTTP Status: 409 Conflict
	ErrAlreadyClaimed = errors.New("session already claimed")

	// ErrClaimInProgress indicates another claim for the same session is in flight.
	// HTTP Status: 409 Conflict
	ErrClaimInProgress = errors.New("claim already in progress")

	// ErrClaimFailed wraps a backend or transport failure during a claim.
	// HTTP Status: 502 Bad Gateway
	ErrClaimFailed = errors.New("claim failed")
)
