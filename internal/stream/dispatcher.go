// ABOUTME: Stream dispatcher that turns one exchange into an ordered sequence of chunk events
// ABOUTME: Explicit state machine with exactly one terminal event per stream

package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/riverfrot/chatline/internal/responder"
	"github.com/riverfrot/chatline/internal/store"
)

// ErrTimeout is the cause carried by a timed-out stream's terminal event
var ErrTimeout = errors.New("stream deadline exceeded")

// errClosed signals that the subscriber closed its subscription
var errClosed = errors.New("subscription closed")

// terminalSendTimeout bounds how long a terminal event waits for a subscriber
// that stopped reading without closing.
const terminalSendTimeout = 5 * time.Second

// State is the dispatcher state machine position.
// Open -> Streaming -> {Completed, Failed, TimedOut}; the three terminal
// states are mutually exclusive and each stream reaches exactly one.
type State int32

const (
	StateOpen State = iota
	StateStreaming
	StateCompleted
	StateFailed
	StateTimedOut
)

// String returns the state name for logging.
func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateTimedOut:
		return "timed_out"
	}
	return "unknown"
}

// Kind tags a stream event.
type Kind int

const (
	// EventChunk carries one ordered unit of the reply.
	EventChunk Kind = iota
	// EventComplete is the terminal event of a successful stream.
	EventComplete
	// EventError is the terminal event of a failed stream; Err holds the cause.
	EventError
	// EventTimeout is the terminal event of a stream that exceeded its deadline.
	EventTimeout
)

// Event is one item delivered to the stream's single subscriber. Chunk
// events arrive in strict Seq order; exactly one terminal event follows
// (or none, if the subscriber closed first).
type Event struct {
	Kind     Kind
	Payload  string
	Seq      int
	Final    bool
	Category string
	Err      error
}

// Transcript is what the dispatcher needs from the conversation layer.
type Transcript interface {
	AppendUserMessage(ctx context.Context, sessionID, text string) (*store.Message, error)
	AppendAssistantMessage(ctx context.Context, sessionID, text, category string) (*store.Message, error)
}

// Dispatcher opens streams. The inter-chunk delay produces a typing effect;
// zero disables it.
type Dispatcher struct {
	transcript Transcript
	responder  responder.Responder
	delay      time.Duration
	logger     *slog.Logger
}

// New creates a dispatcher. Pass nil logger for the default.
func New(transcript Transcript, r responder.Responder, delay time.Duration, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		transcript: transcript,
		responder:  r,
		delay:      delay,
		logger:     logger.With("component", "stream"),
	}
}

// Stream is the handle held by the single subscriber of one dispatched
// exchange. Events arrive on Events() in strict order; Close cancels the
// background work at its next yield point.
type Stream struct {
	sessionID string
	state     atomic.Int32
	events    chan Event
	closed    chan struct{}
	cancel    context.CancelFunc
	closeOnce sync.Once
	termOnce  sync.Once
}

// Events returns the subscriber's event channel. It is closed after the
// terminal event (or after Close).
func (s *Stream) Events() <-chan Event {
	return s.events
}

// State returns the current state machine position.
func (s *Stream) State() State {
	return State(s.state.Load())
}

// SessionID returns the session this stream belongs to.
func (s *Stream) SessionID() string {
	return s.sessionID
}

// Close cancels the subscription. The background task observes the close at
// its next chunk push or delay and stops; persistence already performed is
// not rolled back.
func (s *Stream) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.cancel()
	})
}

// Open starts a streamed exchange and returns its handle immediately.
// Background work: append the user turn, generate a reply, split it into
// whitespace-delimited chunks, push them in order, persist the assistant
// turn after the final chunk, then emit exactly one terminal event. The
// timeout is a hard wall-clock deadline on the whole stream.
func (d *Dispatcher) Open(ctx context.Context, sessionID, text string, timeout time.Duration) *Stream {
	runCtx, cancel := context.WithTimeout(ctx, timeout)

	s := &Stream{
		sessionID: sessionID,
		events:    make(chan Event),
		closed:    make(chan struct{}),
		cancel:    cancel,
	}
	s.state.Store(int32(StateOpen))

	go d.run(runCtx, s, sessionID, text)
	return s
}

// run is the background task for one stream.
func (d *Dispatcher) run(ctx context.Context, s *Stream, sessionID, text string) {
	defer s.cancel()

	userMsg, err := d.transcript.AppendUserMessage(ctx, sessionID, text)
	if err != nil {
		d.finish(s, err)
		return
	}
	sessionID = userMsg.SessionID

	reply, err := d.respond(ctx, text)
	if err != nil {
		d.finish(s, err)
		return
	}

	chunks := strings.Fields(reply.Content)
	for i, chunk := range chunks {
		if i == 0 {
			s.state.CompareAndSwap(int32(StateOpen), int32(StateStreaming))
		}

		ev := Event{
			Kind:     EventChunk,
			Payload:  chunk,
			Seq:      i,
			Final:    i == len(chunks)-1,
			Category: reply.Category,
		}
		if err := s.deliver(ctx, ev); err != nil {
			d.finish(s, err)
			return
		}

		if d.delay > 0 && !ev.Final {
			select {
			case <-time.After(d.delay):
			case <-ctx.Done():
				d.finish(s, ctx.Err())
				return
			case <-s.closed:
				d.finish(s, errClosed)
				return
			}
		}
	}

	// Durability of the assistant turn happens only after every chunk has
	// been accepted: the client sees the full text before persistence
	// necessarily completes.
	if _, err := d.transcript.AppendAssistantMessage(ctx, sessionID, reply.Content, reply.Category); err != nil {
		d.finish(s, err)
		return
	}

	d.finish(s, nil)
}

// respond invokes the responder in its own goroutine so a stuck generation
// cannot outlive the stream's deadline.
func (d *Dispatcher) respond(ctx context.Context, text string) (responder.Reply, error) {
	type result struct {
		reply responder.Reply
		err   error
	}
	ch := make(chan result, 1)

	go func() {
		reply, err := d.responder.Respond(ctx, text)
		ch <- result{reply, err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			return responder.Reply{}, fmt.Errorf("responder: %w", res.err)
		}
		return res.reply, nil
	case <-ctx.Done():
		return responder.Reply{}, ctx.Err()
	}
}

// deliver pushes one event to the subscriber. The channel is unbuffered:
// chunk k+1 is never offered before chunk k has been accepted.
func (s *Stream) deliver(ctx context.Context, ev Event) error {
	select {
	case s.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.closed:
		return errClosed
	}
}

// finish performs the single terminal transition and emits at most one
// terminal event. cause nil means completion; a deadline error means
// timeout; a closed subscription terminates silently (the subscriber left).
func (d *Dispatcher) finish(s *Stream, cause error) {
	s.termOnce.Do(func() {
		var ev Event
		var terminal State

		switch {
		case cause == nil:
			terminal = StateCompleted
			ev = Event{Kind: EventComplete}
		case errors.Is(cause, context.DeadlineExceeded):
			terminal = StateTimedOut
			ev = Event{Kind: EventTimeout, Err: ErrTimeout}
		default:
			terminal = StateFailed
			ev = Event{Kind: EventError, Err: cause}
		}

		s.state.Store(int32(terminal))

		// A subscriber that called Close gets no terminal event; one that
		// silently stopped reading is abandoned after a bounded wait.
		if !errors.Is(cause, errClosed) && !errors.Is(cause, context.Canceled) {
			select {
			case s.events <- ev:
			case <-s.closed:
			case <-time.After(terminalSendTimeout):
				d.logger.Warn("subscriber not reading, dropping terminal event",
					"session_id", s.sessionID,
					"state", terminal.String())
			}
		}
		close(s.events)

		d.logger.Debug("stream finished",
			"session_id", s.sessionID,
			"state", terminal.String(),
			"error", cause)
	})
}
