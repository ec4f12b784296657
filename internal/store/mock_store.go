// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"sort"
	"sync"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session  // keyed by session ID
	messages map[string][]*Message // keyed by session ID, insertion order
	msgIDs   map[string]bool       // message ID uniqueness
	users    map[string]*User      // keyed by user ID
	byNick   map[string]string     // nickname -> user ID

	// SaveMessageErr, when set, is returned by SaveMessage to simulate
	// persistence failures.
	SaveMessageErr error
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		sessions: make(map[string]*Session),
		messages: make(map[string][]*Message),
		msgIDs:   make(map[string]bool),
		users:    make(map[string]*User),
		byNick:   make(map[string]string),
	}
}

// CreateSession inserts a session, returning ErrDuplicateSession on ID collision.
func (m *MockStore) CreateSession(ctx context.Context, session *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[session.ID]; ok {
		return ErrDuplicateSession
	}

	copied := *session
	m.sessions[session.ID] = &copied
	return nil
}

// GetSession returns a session by ID or ErrNotFound.
func (m *MockStore) GetSession(ctx context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *session
	return &copied, nil
}

// SaveMessage appends a message, returning ErrDuplicateMessage on ID collision.
func (m *MockStore) SaveMessage(ctx context.Context, msg *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SaveMessageErr != nil {
		return m.SaveMessageErr
	}
	if m.msgIDs[msg.ID] {
		return ErrDuplicateMessage
	}

	copied := *msg
	m.msgIDs[msg.ID] = true
	m.messages[msg.SessionID] = append(m.messages[msg.SessionID], &copied)
	return nil
}

// ListMessages returns all messages for a session ordered by creation time.
func (m *MockStore) ListMessages(ctx context.Context, sessionID string) ([]*Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.sortedMessages(sessionID), nil
}

// ListRecentMessages returns the last n messages in ascending time order.
func (m *MockStore) ListRecentMessages(ctx context.Context, sessionID string, n int) ([]*Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	msgs := m.sortedMessages(sessionID)
	if n <= 0 {
		return []*Message{}, nil
	}
	if len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	return msgs, nil
}

// CountMessages returns the number of stored messages for a session.
func (m *MockStore) CountMessages(ctx context.Context, sessionID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.messages[sessionID]), nil
}

// CreateUser inserts a user, returning ErrDuplicateUser on nickname collision.
func (m *MockStore) CreateUser(ctx context.Context, user *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byNick[user.Nickname]; ok {
		return ErrDuplicateUser
	}

	copied := *user
	m.users[user.ID] = &copied
	m.byNick[user.Nickname] = user.ID
	return nil
}

// GetUser returns a user by ID or ErrNotFound.
func (m *MockStore) GetUser(ctx context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *user
	return &copied, nil
}

// GetUserByNickname returns a user by nickname or ErrNotFound.
func (m *MockStore) GetUserByNickname(ctx context.Context, nickname string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byNick[nickname]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *m.users[id]
	return &copied, nil
}

// Close is a no-op for the mock.
func (m *MockStore) Close() error {
	return nil
}

func (m *MockStore) sortedMessages(sessionID string) []*Message {
	src := m.messages[sessionID]
	msgs := make([]*Message, len(src))
	for i, msg := range src {
		copied := *msg
		msgs[i] = &copied
	}
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
	return msgs
}
