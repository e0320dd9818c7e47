package sqerr

import (
	"errors"
	"fmt"
	"strings"
)

// --------------------------------------------------------------------------
// Well-known Error IDs
// --------------------------------------------------------------------------

// ID is the numeric status carried by the `id` field of a terminator line.
type ID int64

const (
	IDOk                      ID = 0    // 0: Command executed successfully.
	IDInvalidLogin            ID = 520  // 520: Invalid login name or password.
	IDFloodControl            ID = 524  // 524: Command rejected by flood control, retry after the given delay.
	IDEmptyResultSet          ID = 1281 // 1281: Database empty result set (a list without entries).
	IDInsufficientPermissions ID = 2568 // 2568: The invoker lacks a required permission.
)

// --------------------------------------------------------------------------
// Sentinel Errors
// --------------------------------------------------------------------------

var (
	// ErrConnectionClosed rejects every pending command when the transport ends.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrAlreadyConnected indicates connect was called twice on the same engine.
	ErrAlreadyConnected = errors.New("already connected")

	// ErrConnectTimeout indicates the connect phase (including the greeting) did not finish in time.
	ErrConnectTimeout = errors.New("connect timeout")

	// ErrInvalidBanner indicates the server did not greet with the expected banner.
	ErrInvalidBanner = errors.New("invalid banner")

	// ErrUnexpectedLine indicates a line that is neither a response, a terminator nor a notification.
	ErrUnexpectedLine = errors.New("unexpected line")

	// ErrUnknownHandle indicates a connection handle that no longer resolves to a live connection.
	ErrUnknownHandle = errors.New("unknown connection handle")
)

// --------------------------------------------------------------------------
// Protocol Errors
// --------------------------------------------------------------------------

// ProtocolError is the decoded form of a non-zero terminator line.
type ProtocolError struct {
	ID           ID
	Message      string
	ExtraMessage string
	// FailedPermID is nil when the terminator carried no failed_permid.
	FailedPermID *int64
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("ServerQueryError (id %d): %s", e.ID, e.Message))
	if e.ExtraMessage != "" {
		sb.WriteString(fmt.Sprintf(" - %s", e.ExtraMessage))
	}
	if e.FailedPermID != nil {
		sb.WriteString(fmt.Sprintf(" (failed_permid %d)", *e.FailedPermID))
	}
	return sb.String()
}

// IsOK reports whether the terminator signals success.
func (e *ProtocolError) IsOK() bool {
	return e.ID == IDOk
}

// NewProtocolError creates a ProtocolError without extra message or permission id.
func NewProtocolError(id ID, msg string) *ProtocolError {
	return &ProtocolError{ID: id, Message: msg}
}

// --------------------------------------------------------------------------
// Event and Cache Errors
// --------------------------------------------------------------------------

// MalformedEventError is raised on the event channel when a known notification
// lacks one of its required fields. No pending command is affected.
type MalformedEventError struct {
	Event   string
	Missing []string
}

// Error implements the error interface.
func (e *MalformedEventError) Error() string {
	return fmt.Sprintf("malformed event %s: missing %s", e.Event, strings.Join(e.Missing, ", "))
}

// CacheInconsistencyError is raised when an event references a node that is
// still unknown after a corrective list lookup.
type CacheInconsistencyError struct {
	Namespace string
	ID        int64
	Event     string
}

// Error implements the error interface.
func (e *CacheInconsistencyError) Error() string {
	if e.Event != "" {
		return fmt.Sprintf("cache inconsistency: %s %d referenced by %s not found after relisting", e.Namespace, e.ID, e.Event)
	}
	return fmt.Sprintf("cache inconsistency: %s %d not found after relisting", e.Namespace, e.ID)
}

// --------------------------------------------------------------------------
// Connection Errors
// --------------------------------------------------------------------------

// ConnectionError represents a transport-level fault.
type ConnectionError struct {
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("connection failed: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("connection failed: %s", e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *ConnectionError) Unwrap() error {
	return e.Cause
}

// NewConnectionError creates a new connection error.
func NewConnectionError(message string, cause error) error {
	return &ConnectionError{Message: message, Cause: cause}
}

// --------------------------------------------------------------------------
// Classification Helpers
// --------------------------------------------------------------------------

// AsProtocolError extracts a ProtocolError from an error chain.
func AsProtocolError(err error) (*ProtocolError, bool) {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// IsProtocolError reports whether err is a ProtocolError with the given id.
func IsProtocolError(err error, id ID) bool {
	pe, ok := AsProtocolError(err)
	return ok && pe.ID == id
}

// IsFloodControl reports whether err is a flood-control rejection.
func IsFloodControl(err error) bool {
	return IsProtocolError(err, IDFloodControl)
}

// IsEmptyResult reports whether err is the server's "empty result set" error,
// which list commands translate into an empty list.
func IsEmptyResult(err error) bool {
	return IsProtocolError(err, IDEmptyResultSet)
}

// IsConnectionClosed reports whether err was caused by the connection going away.
func IsConnectionClosed(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrConnectionClosed) {
		return true
	}
	var ce *ConnectionError
	return errors.As(err, &ce)
}
