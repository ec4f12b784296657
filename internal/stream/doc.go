// Package stream delivers a chat reply as an ordered sequence of chunk
// events over a cancellable, deadline-bound channel.
//
// # State machine
//
// Each stream moves through:
//
//	Open -> Streaming -> {Completed, Failed, TimedOut}
//
// The terminal states are mutually exclusive and reached exactly once. Every
// terminal transition emits at most one observable terminal event; a stream
// whose subscriber already closed terminates silently.
//
// # Delivery contract
//
// One subscriber per stream. Chunks carry sequence numbers 0..N-1 with the
// last flagged final, delivered over an unbuffered channel so the dispatcher
// never runs ahead of the transport (one outstanding chunk at a time). An
// optional inter-chunk delay produces a typing effect.
//
// # Failure and cancellation
//
// The user turn is persisted before generation starts and is never rolled
// back. Timeout is a hard wall-clock deadline checked at every yield point
// and enforced around the responder call, so a stuck generation cannot hold
// a stream open. Subscriber cancellation is cooperative: observed at the
// next push or delay. Partial transcripts are valid; each persisted message
// stands on its own.
package stream
