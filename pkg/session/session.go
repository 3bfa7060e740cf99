package session

// ID represents a unique identifier for a conversation session.
// A session is a correlation key: it has no lifecycle of its own beyond
// the records that reference it.
type ID string

// Role identifies the author of a conversation message.
type Role string

const (
	// RoleUser marks a message authored by the end user.
	RoleUser Role = "user"

	// RoleAssistant marks a message authored by the system.
	RoleAssistant Role = "assistant"
)

// Context holds information about the current session and user.
type Context struct {
	// SessionID is mandatory and scopes all memory operations for a turn.
	SessionID ID

	// UserID identifies the owning user of the session.
	UserID string
}

// NewContext creates a new Context with the specified session ID and user ID.
func NewContext(sessionID ID, userID string) Context {
	return Context{
		SessionID: sessionID,
		UserID:    userID,
	}
}
