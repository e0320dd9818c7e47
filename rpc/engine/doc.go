// Package engine implements the query protocol state machine on top of a line
// transport. It turns the single ordered line stream of a connection into
// command results and a separate stream of events.
//
// The package focuses on:
//   - Consuming the two line greeting before any command is sent
//   - A FIFO queue with at most one command on the wire at a time
//   - Classifying every received line as terminator, data or notification
//   - Transparent resending of commands rejected by flood control
//   - Idle keepalives and exactly-once rejection of pending commands on close
//
// Key Components:
//
//   - Engine: The state machine (new, connecting, banner, ready, closed). Lines
//     are handled on the transport's reader goroutine under the engine lock, so
//     classification and queue mutation are never interleaved.
//
//   - Future: The pending result of a submitted command. Waiting with a context
//     abandons only the wait, the command keeps its queue slot until the server
//     answers, otherwise every later terminator would be matched to the wrong
//     command.
//
//   - Event: NotifyEvent, ErrorEvent and CloseEvent, delivered in arrival order
//     through an unbounded mailbox. Known notifications are checked for their
//     required fields first. A CloseEvent is always the last value before the
//     channel is closed.
//
// Line Classification:
//
//	error ...     terminator for the head of the queue (id 0 resolves,
//	              id 524 schedules a resend, anything else rejects)
//	notify...     notification, never accumulated as data
//	anything else data for the head if it was sent, otherwise reported as
//	              an unexpected line
//
// Metrics:
//
//	Counters and a duration histogram are registered with the VictoriaMetrics
//	default set under the sqc_ prefix and can be exposed with
//	metrics.WritePrometheus.
package engine
