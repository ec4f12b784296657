// Package conversation provides session and transcript management.
//
// # Overview
//
// The conversation package sits between the HTTP handlers and the store,
// enforcing the invariants that make a transcript trustworthy: ordered
// appends, bounded live history, and race-free session creation.
//
// # Manager
//
// The Manager owns the session registry and a bounded recent window per
// session:
//
//	mgr := conversation.NewManager(store, logger)
//
// Key operations:
//
//   - GetOrCreate(ctx, id): resolve a session, creating it if unseen
//   - AppendUserMessage / AppendAssistantMessage: validate, persist, merge
//   - RecentMessages(ctx, id, limit): copy-on-read view of the window
//   - MessageCount(ctx, id): current window size
//
// Invariants:
//
//   - a window never exceeds MaxHistory messages; the oldest is evicted FIFO
//   - window order is always ascending by creation time
//   - a message whose session key disagrees with the target session is
//     rejected with ErrSessionMismatch and nothing changes
//   - every append is durable before it becomes visible in the window
//
// Each session has its own lock: appends within a session are serialized,
// appends across sessions run in parallel. Creation races on the same unseen
// session ID are settled by the store's uniqueness constraint; losers
// re-fetch the winning row, so exactly one session object ever represents a
// given ID.
//
// # Service
//
// The Service runs one synchronous exchange: append the user turn, invoke
// the Responder, append the assistant turn. The user turn is persisted
// first, so a generation failure leaves an inspectable partial transcript
// rather than losing input.
package conversation
