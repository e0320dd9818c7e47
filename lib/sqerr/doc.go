// Package sqerr defines the error taxonomy of the ServerQuery client.
//
// The package focuses on:
//   - Typed protocol errors decoded from terminator lines (id, message, extra message, failed permission)
//   - Event-side errors that never reject a pending command (malformed events, cache inconsistencies)
//   - Connection-level faults and the sentinels used to reject every outstanding command
//
// Key Components:
//
//   - ProtocolError: A non-zero terminator. Rejects exactly the one command it terminates.
//     The flood-control id (524) never reaches callers, the engine retries it locally.
//
//   - MalformedEventError: A known notification missing required fields. Delivered on the
//     event channel.
//
//   - CacheInconsistencyError: An event referenced a node that a corrective list lookup
//     could not produce. Delivered on the event channel, the event itself is dropped.
//
//   - ConnectionError / ErrConnectionClosed: Transport faults. They reject all pending
//     commands and move the engine to its closed state.
//
// All types support errors.Is / errors.As, and helpers such as IsFloodControl and
// IsConnectionClosed classify arbitrary error chains.
package sqerr
