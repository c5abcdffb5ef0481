// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"

	"github.com/admitchat/backend/internal/domain"
)

// Repository defines the interface for persisting dialogue sessions.
// One record exists per userId; lookups by sessionId and userId both
// resolve to the same record. Implementations return (nil, nil) when
// no session matches.
type Repository interface {
	// GetSession retrieves a session by its session ID.
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)

	// GetSessionByUser retrieves a session by its owning user ID.
	GetSessionByUser(ctx context.Context, userID string) (*domain.Session, error)

	// CreateSession inserts a new session record. The user_id uniqueness
	// constraint makes concurrent creation for the same user fail rather
	// than duplicate.
	CreateSession(ctx context.Context, session *domain.Session) error

	// SaveSession persists the full session state (whole-record write).
	SaveSession(ctx context.Context, session *domain.Session) error

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
