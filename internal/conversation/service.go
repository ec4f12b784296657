// ABOUTME: Service orchestrates one synchronous chat exchange
// ABOUTME: User turn is persisted before the responder runs - partial failure is a valid, inspectable state

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/riverfrot/chatline/internal/responder"
	"github.com/riverfrot/chatline/internal/store"
)

// ErrResponderFailed wraps responder errors so callers can distinguish a
// failed generation (user turn retained) from a rejected request.
var ErrResponderFailed = errors.New("responder failed")

// Service coordinates one exchange: persist the user turn, generate a reply,
// persist the assistant turn, return the result.
type Service struct {
	manager   *Manager
	responder responder.Responder
	logger    *slog.Logger
}

// NewService creates an exchange service. Pass nil logger for the default.
func NewService(manager *Manager, r responder.Responder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		manager:   manager,
		responder: r,
		logger:    logger.With("component", "exchange"),
	}
}

// ExchangeResult is the outcome of a completed exchange.
type ExchangeResult struct {
	SessionID string
	Content   string
	Category  string
}

// Exchange runs one synchronous request/reply round trip.
//
// The user message is durably appended BEFORE the responder is invoked. If
// generation fails, the user turn stays in the transcript: a user message
// with no assistant reply is a valid state, not a rollback candidate.
func (s *Service) Exchange(ctx context.Context, sessionID, text string) (*ExchangeResult, error) {
	userMsg, err := s.manager.AppendUserMessage(ctx, sessionID, text)
	if err != nil {
		return nil, err
	}
	sessionID = userMsg.SessionID

	reply, err := s.responder.Respond(ctx, text)
	if err != nil {
		s.logger.Warn("responder failed, user turn retained",
			"session_id", sessionID,
			"error", err)
		return nil, fmt.Errorf("%w: %w", ErrResponderFailed, err)
	}

	if _, err := s.manager.AppendAssistantMessage(ctx, sessionID, reply.Content, reply.Category); err != nil {
		return nil, err
	}

	s.logger.Debug("exchange completed",
		"session_id", sessionID,
		"category", reply.Category)

	return &ExchangeResult{
		SessionID: sessionID,
		Content:   reply.Content,
		Category:  reply.Category,
	}, nil
}

// History returns the full durable transcript for a session.
func (s *Service) History(ctx context.Context, sessionID string) ([]*store.Message, error) {
	return s.manager.Transcript(ctx, sessionID)
}
