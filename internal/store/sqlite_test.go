// ABOUTME: Tests for the SQLite Store implementation
// ABOUTME: Verifies session uniqueness, message ordering, and user lookup

package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore_CreateSession_Duplicate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	session := &Session{ID: "sess-1", UserID: "anonymous", StartedAt: time.Now()}
	require.NoError(t, s.CreateSession(ctx, session))

	err := s.CreateSession(ctx, &Session{ID: "sess-1", UserID: "other", StartedAt: time.Now()})
	assert.ErrorIs(t, err, ErrDuplicateSession)

	// The first writer's row survives
	got, err := s.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "anonymous", got.UserID)
}

func TestSQLiteStore_GetSession_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetSession(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_SaveMessage_Ordering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateSession(ctx, &Session{ID: "sess-1", UserID: "anonymous", StartedAt: time.Now()}))

	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		msg := &Message{
			ID:        uuid.New().String(),
			SessionID: "sess-1",
			Role:      RoleUser,
			Content:   fmt.Sprintf("message %d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Millisecond),
		}
		require.NoError(t, s.SaveMessage(ctx, msg))
	}

	messages, err := s.ListMessages(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, messages, 5)
	for i := 1; i < len(messages); i++ {
		assert.True(t, messages[i].CreatedAt.After(messages[i-1].CreatedAt),
			"messages must be ordered ascending by created_at")
	}
	assert.Equal(t, "message 0", messages[0].Content)
	assert.Equal(t, "message 4", messages[4].Content)
}

func TestSQLiteStore_SaveMessage_DuplicateID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateSession(ctx, &Session{ID: "sess-1", UserID: "anonymous", StartedAt: time.Now()}))

	msg := &Message{ID: "msg-1", SessionID: "sess-1", Role: RoleUser, Content: "hi", CreatedAt: time.Now()}
	require.NoError(t, s.SaveMessage(ctx, msg))

	err := s.SaveMessage(ctx, msg)
	assert.ErrorIs(t, err, ErrDuplicateMessage)
}

func TestSQLiteStore_SaveMessage_CategoryRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateSession(ctx, &Session{ID: "sess-1", UserID: "anonymous", StartedAt: time.Now()}))
	require.NoError(t, s.SaveMessage(ctx, &Message{
		ID:        "msg-a",
		SessionID: "sess-1",
		Role:      RoleAssistant,
		Content:   "reply",
		Category:  CategoryGeneral,
		CreatedAt: time.Now(),
	}))
	require.NoError(t, s.SaveMessage(ctx, &Message{
		ID:        "msg-u",
		SessionID: "sess-1",
		Role:      RoleUser,
		Content:   "question",
		CreatedAt: time.Now().Add(time.Millisecond),
	}))

	messages, err := s.ListMessages(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, CategoryGeneral, messages[0].Category)
	assert.Empty(t, messages[1].Category, "user messages carry no category")
}

func TestSQLiteStore_ListRecentMessages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateSession(ctx, &Session{ID: "sess-1", UserID: "anonymous", StartedAt: time.Now()}))

	base := time.Now().UTC()
	for i := 0; i < 10; i++ {
		require.NoError(t, s.SaveMessage(ctx, &Message{
			ID:        uuid.New().String(),
			SessionID: "sess-1",
			Role:      RoleUser,
			Content:   fmt.Sprintf("m%d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Millisecond),
		}))
	}

	recent, err := s.ListRecentMessages(ctx, "sess-1", 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, "m7", recent[0].Content)
	assert.Equal(t, "m9", recent[2].Content)

	empty, err := s.ListRecentMessages(ctx, "sess-1", 0)
	require.NoError(t, err)
	assert.Empty(t, empty)

	count, err := s.CountMessages(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, 10, count)
}

func TestSQLiteStore_Users(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	user := &User{ID: uuid.New().String(), Nickname: "river", CreatedAt: time.Now()}
	require.NoError(t, s.CreateUser(ctx, user))

	err := s.CreateUser(ctx, &User{ID: uuid.New().String(), Nickname: "river", CreatedAt: time.Now()})
	assert.ErrorIs(t, err, ErrDuplicateUser)

	byID, err := s.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "river", byID.Nickname)

	byNick, err := s.GetUserByNickname(ctx, "river")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byNick.ID)

	_, err = s.GetUserByNickname(ctx, "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}
