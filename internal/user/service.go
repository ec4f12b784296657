// ABOUTME: Nickname-based user management
// ABOUTME: Get-or-create semantics backed by the store's nickname uniqueness constraint

package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/riverfrot/chatline/internal/store"
)

// MaxNicknameLength is the maximum nickname length in characters
const MaxNicknameLength = 50

// ErrEmptyNickname is returned when the nickname is empty or whitespace-only
var ErrEmptyNickname = errors.New("nickname is empty")

// ErrNicknameTooLong is returned when the nickname exceeds MaxNicknameLength
var ErrNicknameTooLong = errors.New("nickname too long")

// Service provides minimal nickname-based user management.
type Service struct {
	store  store.Store
	logger *slog.Logger
}

// NewService creates a user service. Pass nil logger for the default.
func NewService(st store.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  st,
		logger: logger.With("component", "user"),
	}
}

// GetOrCreate returns the user with the given nickname, creating one if it
// doesn't exist. Concurrent calls with the same new nickname are settled by
// the store's uniqueness constraint; the loser re-fetches the winner.
func (s *Service) GetOrCreate(ctx context.Context, nickname string) (*store.User, error) {
	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		return nil, ErrEmptyNickname
	}
	if len([]rune(nickname)) > MaxNicknameLength {
		return nil, fmt.Errorf("%w: max %d characters", ErrNicknameTooLong, MaxNicknameLength)
	}

	user, err := s.store.GetUserByNickname(ctx, nickname)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("looking up user: %w", err)
	}

	candidate := &store.User{
		ID:        uuid.New().String(),
		Nickname:  nickname,
		CreatedAt: time.Now().UTC(),
	}
	err = s.store.CreateUser(ctx, candidate)
	if err == nil {
		s.logger.Debug("user created", "user_id", candidate.ID, "nickname", nickname)
		return candidate, nil
	}
	if errors.Is(err, store.ErrDuplicateUser) {
		winner, lookupErr := s.store.GetUserByNickname(ctx, nickname)
		if lookupErr != nil {
			return nil, fmt.Errorf("retry lookup after duplicate: %w", lookupErr)
		}
		return winner, nil
	}
	return nil, fmt.Errorf("creating user: %w", err)
}

// Get returns a user by ID. Returns store.ErrNotFound if absent.
func (s *Service) Get(ctx context.Context, id string) (*store.User, error) {
	return s.store.GetUser(ctx, id)
}
