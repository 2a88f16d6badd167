package openiap

import (
	"errors"
	"fmt"

	"github.com/openiap/openiap-go/internal/bridge"
	"github.com/openiap/openiap-go/internal/handle"
	"github.com/openiap/openiap-go/internal/native"
	"github.com/openiap/openiap-go/internal/pump"
)

// Common errors
var (
	// ErrClosed is returned when operating on a closed client.
	ErrClosed = handle.ErrClosed

	// ErrNotFound is returned when the referenced entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrNativeCallFailed is returned when the core returned no response or
	// a response that could not be decoded.
	ErrNativeCallFailed = errors.New("native call failed")

	// ErrCallbackTimeout is returned by Future.Await when the context or the
	// configured callback timeout expires first.
	ErrCallbackTimeout = bridge.ErrCallbackTimeout

	// ErrSubscriptionLost is reported by a subscription whose client went
	// away underneath it.
	ErrSubscriptionLost = pump.ErrSubscriptionLost

	// ErrDuplicateID is returned when a request id is still pending.
	ErrDuplicateID = bridge.ErrDuplicateID
)

// ConnectionError represents a failure to create or connect a client.
type ConnectionError struct {
	URL     string
	Message string
	Err     error
}

func (e *ConnectionError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("failed to connect to %s: %s", e.URL, e.Message)
	}
	return fmt.Sprintf("failed to connect to %s: %v", e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// RequestFailedError carries the message the server or core reported for a
// failed operation.
type RequestFailedError struct {
	Op      string
	Message string
	Err     error
}

func (e *RequestFailedError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("openiap %s: %s", e.Op, e.Message)
	}
	return e.Message
}

func (e *RequestFailedError) Unwrap() error {
	return e.Err
}

// ValidationError is returned before any native call when a request is
// missing a required field or carries an invalid value.
type ValidationError struct {
	Op      string
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("openiap %s: invalid %s: %s", e.Op, e.Field, e.Message)
}

func invalid(op, field, msg string) error {
	return &ValidationError{Op: op, Field: field, Message: msg}
}

// nativeFailure wraps a decoding or transport problem in ErrNativeCallFailed.
func nativeFailure(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrNativeCallFailed, op, err)
}

func noResponse(op string) error {
	return fmt.Errorf("%w: %s returned no response", ErrNativeCallFailed, op)
}

// connectionError converts a lifecycle failure reported by the handle.
func connectionError(url string, err error) error {
	var nerr *handle.NativeError
	if errors.As(err, &nerr) {
		return &ConnectionError{URL: url, Message: nerr.Message, Err: err}
	}
	if errors.Is(err, native.ErrSymbolNotFound) || errors.Is(err, native.ErrUnknownFunction) {
		err = nativeFailure("connect", err)
	}
	return &ConnectionError{URL: url, Err: err}
}
