// ABOUTME: Manager owns the session registry and per-session bounded message windows
// ABOUTME: All transcript mutation flows through here - persist first, then merge into the window

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/riverfrot/chatline/internal/store"
)

const (
	// MaxHistory caps the in-memory recent window per session. The durable
	// transcript is unbounded; only the live window evicts.
	MaxHistory = 100

	// MaxContentLength is the maximum message content length in characters.
	MaxContentLength = 10000

	// DefaultUserID is the owner recorded for sessions created without an
	// authenticated user.
	DefaultUserID = "anonymous"
)

// ErrEmptyMessage is returned when message content is empty or whitespace-only
var ErrEmptyMessage = errors.New("message content is empty")

// ErrMessageTooLong is returned when message content exceeds MaxContentLength
var ErrMessageTooLong = errors.New("message content too long")

// ErrUnknownCategory is returned when an assistant message carries an unrecognized category tag
var ErrUnknownCategory = errors.New("unknown category")

// ErrSessionMismatch is returned when a message's session ID disagrees with the target session
var ErrSessionMismatch = errors.New("message session does not match target session")

// Manager enforces session and message invariants and mediates all mutation
// of a session's transcript. Each session has its own lock, so appends to
// the same session are serialized while different sessions proceed in
// parallel.
type Manager struct {
	store  store.Store
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*sessionState
}

// sessionState is the in-memory view of one session: its metadata plus the
// bounded recent window. Guarded by its own mutex.
type sessionState struct {
	mu      sync.Mutex
	session *store.Session
	window  []*store.Message
	lastAt  time.Time
}

// NewManager creates a conversation manager backed by the given store.
// Pass nil logger for the default.
func NewManager(st store.Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:    st,
		logger:   logger.With("component", "conversation"),
		sessions: make(map[string]*sessionState),
	}
}

// GetOrCreate resolves a session by ID, creating it if unseen. Concurrent
// calls racing on the same unseen ID all observe the same session: the store's
// uniqueness constraint decides the winner and losers re-fetch the winning
// row. An empty sessionID gets a generated UUID.
func (m *Manager) GetOrCreate(ctx context.Context, sessionID string) (*store.Session, error) {
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	st, err := m.state(ctx, sessionID, true)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	copied := *st.session
	return &copied, nil
}

// AppendUserMessage validates text, resolves the session, persists a user
// message, and merges it into the recent window.
func (m *Manager) AppendUserMessage(ctx context.Context, sessionID, text string) (*store.Message, error) {
	if err := validateContent(text); err != nil {
		return nil, err
	}
	return m.append(ctx, sessionID, store.RoleUser, text, "")
}

// AppendAssistantMessage is AppendUserMessage for the assistant role, with a
// category tag that must be a known category.
func (m *Manager) AppendAssistantMessage(ctx context.Context, sessionID, text, category string) (*store.Message, error) {
	if err := validateContent(text); err != nil {
		return nil, err
	}
	if !store.KnownCategory(category) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}
	return m.append(ctx, sessionID, store.RoleAssistant, text, category)
}

// RecentMessages returns the last min(limit, window size) messages in
// ascending time order. limit <= 0 yields an empty slice. The returned slice
// is a copy; callers never see the live window.
func (m *Manager) RecentMessages(ctx context.Context, sessionID string, limit int) ([]*store.Message, error) {
	if limit <= 0 {
		return []*store.Message{}, nil
	}

	st, err := m.state(ctx, sessionID, false)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	window := st.window
	if len(window) > limit {
		window = window[len(window)-limit:]
	}
	out := make([]*store.Message, len(window))
	for i, msg := range window {
		copied := *msg
		out[i] = &copied
	}
	return out, nil
}

// MessageCount returns the size of the session's recent window.
func (m *Manager) MessageCount(ctx context.Context, sessionID string) (int, error) {
	st, err := m.state(ctx, sessionID, false)
	if err != nil {
		return 0, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.window), nil
}

// Transcript returns the full durable transcript for a session in ascending
// time order, including messages evicted from the window.
func (m *Manager) Transcript(ctx context.Context, sessionID string) ([]*store.Message, error) {
	return m.store.ListMessages(ctx, sessionID)
}

// append builds a message, persists it, and merges it into the window.
// Persistence happens first: the store is the source of truth and a window
// merge never precedes a durable write.
func (m *Manager) append(ctx context.Context, sessionID, role, text, category string) (*store.Message, error) {
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	st, err := m.state(ctx, sessionID, true)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	msg := &store.Message{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Role:      role,
		Content:   text,
		Category:  category,
		CreatedAt: st.nextTimestamp(),
	}

	if err := st.admit(msg); err != nil {
		return nil, err
	}

	if err := m.store.SaveMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("saving message: %w", err)
	}

	st.merge(msg)

	m.logger.Debug("message appended",
		"session_id", sessionID,
		"message_id", msg.ID,
		"role", role,
		"window_size", len(st.window))

	copied := *msg
	return &copied, nil
}

// state returns the in-memory state for a session, resolving it from the
// store on first access. With create set, an unknown session is created via
// insert-if-absent; otherwise ErrNotFound surfaces. Exactly one state object
// exists per session ID.
func (m *Manager) state(ctx context.Context, sessionID string, create bool) (*sessionState, error) {
	m.mu.Lock()
	st, ok := m.sessions[sessionID]
	if !ok {
		st = &sessionState{}
		m.sessions[sessionID] = st
	}
	m.mu.Unlock()

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.session != nil {
		return st, nil
	}

	session, hydrate, err := m.resolveSession(ctx, sessionID, create)
	if err != nil {
		return nil, err
	}
	st.session = session

	if hydrate {
		window, err := m.store.ListRecentMessages(ctx, sessionID, MaxHistory)
		if err != nil {
			st.session = nil
			return nil, fmt.Errorf("loading recent window: %w", err)
		}
		st.window = window
		if len(window) > 0 {
			st.lastAt = window[len(window)-1].CreatedAt
		}
	}

	return st, nil
}

// resolveSession fetches or creates the durable session row. The second
// return value reports whether the session pre-existed and its window needs
// hydrating. Creation races are settled by the store's uniqueness constraint:
// the loser discards its candidate and re-fetches the winner.
func (m *Manager) resolveSession(ctx context.Context, sessionID string, create bool) (*store.Session, bool, error) {
	session, err := m.store.GetSession(ctx, sessionID)
	if err == nil {
		return session, true, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, false, fmt.Errorf("looking up session: %w", err)
	}
	if !create {
		return nil, false, fmt.Errorf("session %s: %w", sessionID, store.ErrNotFound)
	}

	candidate := &store.Session{
		ID:        sessionID,
		UserID:    DefaultUserID,
		StartedAt: time.Now().UTC(),
	}
	err = m.store.CreateSession(ctx, candidate)
	if err == nil {
		m.logger.Debug("session created", "session_id", sessionID)
		return candidate, false, nil
	}
	if errors.Is(err, store.ErrDuplicateSession) {
		winner, lookupErr := m.store.GetSession(ctx, sessionID)
		if lookupErr != nil {
			return nil, false, fmt.Errorf("retry lookup after duplicate: %w", lookupErr)
		}
		m.logger.Debug("found existing session after race", "session_id", sessionID)
		return winner, true, nil
	}
	return nil, false, fmt.Errorf("creating session: %w", err)
}

// admit rejects a message whose session key disagrees with the target
// session. A rejected message is discarded: not persisted, not merged, and
// nothing is evicted in its place. Caller holds st.mu.
func (st *sessionState) admit(msg *store.Message) error {
	if msg.SessionID != st.session.ID {
		return fmt.Errorf("%w: session=%s message=%s", ErrSessionMismatch, st.session.ID, msg.SessionID)
	}
	return nil
}

// merge appends msg to the window, evicting the oldest entry when the cap
// would be exceeded. Caller holds st.mu.
func (st *sessionState) merge(msg *store.Message) {
	st.window = append(st.window, msg)
	if len(st.window) > MaxHistory {
		st.window = st.window[1:]
	}
}

// nextTimestamp returns a timestamp strictly after every earlier message in
// this session, so window and store ordering stay total even under bursts.
// Caller holds st.mu.
func (st *sessionState) nextTimestamp() time.Time {
	now := time.Now().UTC()
	if !now.After(st.lastAt) {
		now = st.lastAt.Add(time.Nanosecond)
	}
	st.lastAt = now
	return now
}

func validateContent(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}
	if utf8.RuneCountInString(text) > MaxContentLength {
		return fmt.Errorf("%w: %d characters (max %d)", ErrMessageTooLong, utf8.RuneCountInString(text), MaxContentLength)
	}
	return nil
}
