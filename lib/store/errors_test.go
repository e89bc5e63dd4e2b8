package store

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorIs(t *testing.T) {
	cause := errors.New("driver failure")

	tests := []struct {
		name    string
		err     error
		matches []error
		misses  []error
	}{
		{
			name:    "connection",
			err:     wrapError(RetCConnectionError, cause, "connect"),
			matches: []error{ErrConnection, cause},
			misses:  []error{ErrStore, ErrNotConnected, ErrDisconnection},
		},
		{
			name:    "disconnection",
			err:     wrapError(RetCDisconnectionError, cause, "disconnect"),
			matches: []error{ErrDisconnection, cause},
			misses:  []error{ErrConnection, ErrStore},
		},
		{
			name:    "not connected",
			err:     NewError(RetCNotConnected, "no connection"),
			matches: []error{ErrNotConnected},
			misses:  []error{ErrStore, cause},
		},
		{
			name:    "invalid argument is a store error",
			err:     NewError(RetCInvalidArgument, "empty name"),
			matches: []error{ErrStore},
			misses:  []error{ErrConnection},
		},
		{
			name:    "wrapped by fmt",
			err:     fmt.Errorf("outer: %w", wrapError(RetCStoreError, cause, "get")),
			matches: []error{ErrStore, cause},
			misses:  []error{ErrNotConnected},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, target := range tt.matches {
				if !errors.Is(tt.err, target) {
					t.Errorf("Expected %v to match %v", tt.err, target)
				}
			}
			for _, target := range tt.misses {
				if errors.Is(tt.err, target) {
					t.Errorf("Expected %v not to match %v", tt.err, target)
				}
			}
		})
	}
}

func TestErrorMessage(t *testing.T) {
	err := wrapError(RetCStoreError, errors.New("timeout"), "get %v from %q", 1, "users")
	msg := err.Error()
	for _, want := range []string{"StoreError", `get 1 from "users"`, "timeout"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Expected %q in %q", want, msg)
		}
	}
}

func TestCodeOf(t *testing.T) {
	if c := CodeOf(nil); c != RetCSuccess {
		t.Errorf("Expected Success for nil, got %s", c)
	}
	if c := CodeOf(errors.New("foreign")); c != RetCStoreError {
		t.Errorf("Expected StoreError for foreign errors, got %s", c)
	}
	if c := CodeOf(fmt.Errorf("x: %w", NewError(RetCNotConnected, ""))); c != RetCNotConnected {
		t.Errorf("Expected NotConnected, got %s", c)
	}
}
