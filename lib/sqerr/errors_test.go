package sqerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestProtocolErrorMessage(t *testing.T) {
	perm := int64(4353)
	tests := []struct {
		name     string
		err      *ProtocolError
		expected string
	}{
		{"plain", NewProtocolError(1281, "database empty result set"), "ServerQueryError (id 1281): database empty result set"},
		{"extra", &ProtocolError{ID: 524, Message: "client is flooding", ExtraMessage: "please wait 1 seconds"},
			"ServerQueryError (id 524): client is flooding - please wait 1 seconds"},
		{"permission", &ProtocolError{ID: 2568, Message: "insufficient client permissions", FailedPermID: &perm},
			"ServerQueryError (id 2568): insufficient client permissions (failed_permid 4353)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("got %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestClassification(t *testing.T) {
	flood := fmt.Errorf("execute: %w", &ProtocolError{ID: IDFloodControl, Message: "client is flooding"})
	empty := NewProtocolError(IDEmptyResultSet, "database empty result set")
	closed := fmt.Errorf("pending: %w", ErrConnectionClosed)
	conn := NewConnectionError("read failed", errors.New("EOF"))

	tests := []struct {
		name     string
		fn       func(error) bool
		err      error
		expected bool
	}{
		{"flood wrapped", IsFloodControl, flood, true},
		{"flood on empty", IsFloodControl, empty, false},
		{"empty result", IsEmptyResult, empty, true},
		{"empty on nil", IsEmptyResult, nil, false},
		{"closed sentinel", IsConnectionClosed, closed, true},
		{"connection error", IsConnectionClosed, conn, true},
		{"closed on protocol error", IsConnectionClosed, empty, false},
		{"closed on nil", IsConnectionClosed, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.fn(tt.err); got != tt.expected {
				t.Errorf("got %v, want %v for %v", got, tt.expected, tt.err)
			}
		})
	}
}

func TestConnectionErrorUnwrap(t *testing.T) {
	cause := errors.New("broken pipe")
	err := NewConnectionError("write failed", cause)
	if !errors.Is(err, cause) {
		t.Errorf("expected errors.Is to find the cause")
	}
	if got := err.Error(); got != "connection failed: write failed: broken pipe" {
		t.Errorf("unexpected message %q", got)
	}
}

func TestEventErrors(t *testing.T) {
	me := &MalformedEventError{Event: "notifyclientmoved", Missing: []string{"clid", "ctid"}}
	if got := me.Error(); got != "malformed event notifyclientmoved: missing clid, ctid" {
		t.Errorf("unexpected message %q", got)
	}

	ce := &CacheInconsistencyError{Namespace: "client", ID: 7, Event: "notifyclientmoved"}
	if got := ce.Error(); got != "cache inconsistency: client 7 referenced by notifyclientmoved not found after relisting" {
		t.Errorf("unexpected message %q", got)
	}
}
