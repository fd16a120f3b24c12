package session

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors for session operations, checked with errors.Is().
var (
	// ErrSessionNotFound indicates the session ID is unknown or expired.
	ErrSessionNotFound = errors.New("session not found")

	// ErrNotAuthorized indicates the session exists but belongs to a
	// different owner. The store never substitutes another owner's session.
	ErrNotAuthorized = errors.New("not authorized for session")

	// ErrInvalidRole indicates a role outside {human, assistant}.
	ErrInvalidRole = errors.New("invalid message role")

	// ErrEmptyOwner indicates a missing owner identity.
	ErrEmptyOwner = errors.New("owner identity is required")
)

// Role identifies the author of a message.
type Role string

// Valid message roles.
const (
	RoleHuman     Role = "human"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleHuman || r == RoleAssistant
}

// Message is a single conversation turn. Immutable once appended.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is a read-only snapshot of a session's metadata.
type Session struct {
	ID           uuid.UUID `json:"session_id"`
	Owner        string    `json:"owner"`
	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`

	// MessageCount increases monotonically with every append and is never
	// decremented by window trimming. Reporting only, not memory sizing.
	MessageCount int `json:"message_count"`
}

// Stats summarizes store occupancy for the stats endpoint.
type Stats struct {
	ActiveSessions int `json:"active_sessions"`
	MaxSessions    int `json:"max_sessions"`
	WindowSize     int `json:"window_size"`
	TotalMessages  int `json:"total_messages"`
}
