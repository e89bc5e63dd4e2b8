package store

import (
	"errors"
	"fmt"
)

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess            RetCode = iota // 0: Operation executed successfully.
	RetCConnectionError                   // 1: The document store could not be reached or rejected the connection.
	RetCDisconnectionError                // 2: Closing the owned connection failed.
	RetCNotConnected                      // 3: A namespace was requested before Connect.
	RetCStoreError                        // 4: A document store operation failed.
	RetCInvalidArgument                   // 5: The caller passed an unusable argument (a store error as well).
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCConnectionError:
		return "ConnectionError"
	case RetCDisconnectionError:
		return "DisconnectionError"
	case RetCNotConnected:
		return "NotConnected"
	case RetCStoreError:
		return "StoreError"
	case RetCInvalidArgument:
		return "InvalidArgument"
	default:
		return "Unknown"
	}
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type RetCode),
// an error message and the underlying driver error (if any).
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message
	Err  error   // The cause, nil for errors raised by this package
}

// Sentinels to match errors by their code with errors.Is
var (
	ErrConnection    = &Error{Code: RetCConnectionError}
	ErrDisconnection = &Error{Code: RetCDisconnectionError}
	ErrNotConnected  = &Error{Code: RetCNotConnected}
	ErrStore         = &Error{Code: RetCStoreError}
)

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("docKV error (code %s): %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("docKV error (code %s): %s", e.Code, e.Msg)
}

// Unwrap returns the cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches errors by code. An invalid argument also matches ErrStore.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t == nil {
		return false
	}
	if t.Code == e.Code {
		return true
	}
	return t.Code == RetCStoreError && e.Code == RetCInvalidArgument
}

// NewError creates a new Error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// wrapError creates a new Error with the given code around cause.
func wrapError(code RetCode, cause error, format string, args ...any) *Error {
	return &Error{
		Code: code,
		Msg:  fmt.Sprintf(format, args...),
		Err:  cause,
	}
}

// CodeOf returns the code of the first *Error in err's chain, RetCSuccess for nil
// and RetCStoreError for foreign errors.
func CodeOf(err error) RetCode {
	if err == nil {
		return RetCSuccess
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return RetCStoreError
}
