// ABOUTME: Store interface and data types for chatline persistence
// ABOUTME: Defines Session, Message, User structs and the Store interface for database operations

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateSession is returned when trying to create a session that already exists
var ErrDuplicateSession = errors.New("session already exists")

// ErrDuplicateMessage is returned when trying to save a message whose ID is already taken
var ErrDuplicateMessage = errors.New("message already exists")

// ErrDuplicateUser is returned when trying to create a user whose nickname is already taken
var ErrDuplicateUser = errors.New("user already exists")

// Role constants for message authorship
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Category constants tag assistant messages with the agent type that produced them
const (
	CategoryGeneral    = "general"
	CategorySupervisor = "supervisor"
	CategoryRAG        = "rag"
	CategoryCode       = "code"
	CategorySearch     = "search"
)

// KnownCategory reports whether c is a recognized category tag.
func KnownCategory(c string) bool {
	switch c {
	case CategoryGeneral, CategorySupervisor, CategoryRAG, CategoryCode, CategorySearch:
		return true
	}
	return false
}

// Session represents a conversation context identified by a caller-supplied
// or generated key. Sessions are never deleted by this service; retention is
// an external policy.
type Session struct {
	ID        string
	UserID    string
	StartedAt time.Time
}

// Message represents a single turn within a session. Messages are immutable
// once saved; Category is set only for assistant messages.
type Message struct {
	ID        string
	SessionID string
	Role      string
	Content   string
	Category  string
	CreatedAt time.Time
}

// User represents a nickname-identified user
type User struct {
	ID        string
	Nickname  string
	CreatedAt time.Time
}

// Store defines the interface for session, message and user persistence.
// The message log is unbounded: every saved message stays in the store even
// after it falls out of a session's in-memory window.
type Store interface {
	// Sessions
	CreateSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)

	// Messages (append-only transcript)
	SaveMessage(ctx context.Context, msg *Message) error
	ListMessages(ctx context.Context, sessionID string) ([]*Message, error)
	ListRecentMessages(ctx context.Context, sessionID string, n int) ([]*Message, error)
	CountMessages(ctx context.Context, sessionID string) (int, error)

	// Users
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByNickname(ctx context.Context, nickname string) (*User, error)

	Close() error
}
