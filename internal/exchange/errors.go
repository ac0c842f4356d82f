package exchange

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failed operation
type ErrorKind string

const (
	KindInvalidCredential ErrorKind = "INVALID_CREDENTIAL"
	KindInvalidQuantity   ErrorKind = "INVALID_QUANTITY"
	KindInvalidPrice      ErrorKind = "INVALID_PRICE"
	KindOrderNotFound     ErrorKind = "ORDER_NOT_FOUND"
	KindInvalidState      ErrorKind = "INVALID_STATE"
	KindOperationFailed   ErrorKind = "OPERATION_FAILED"
)

// Sentinels for errors.Is; an *Error matches the sentinel of its kind.
var (
	ErrInvalidCredential = &Error{Kind: KindInvalidCredential}
	ErrInvalidQuantity   = &Error{Kind: KindInvalidQuantity}
	ErrInvalidPrice      = &Error{Kind: KindInvalidPrice}
	ErrOrderNotFound     = &Error{Kind: KindOrderNotFound}
	ErrInvalidState      = &Error{Kind: KindInvalidState}
	ErrOperationFailed   = &Error{Kind: KindOperationFailed}
)

// Error is the failure type returned by every session and gateway operation
type Error struct {
	Kind    ErrorKind
	Op      string // operation that failed, e.g. "place_order"
	Message string
	Err     error // underlying cause, set for OperationFailed
}

// NewError creates a domain error without an underlying cause
func NewError(kind ErrorKind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// OperationFailed wraps an unexpected failure, typically from a live venue
func OperationFailed(op string, err error) *Error {
	return &Error{Kind: KindOperationFailed, Op: op, Message: "operation failed", Err: err}
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf reports the kind of err. Errors that are not domain errors are
// treated as OperationFailed.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindOperationFailed
}

// AsDomainError returns err unchanged if it already carries a kind, otherwise
// wraps it as OperationFailed for op.
func AsDomainError(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return OperationFailed(op, err)
}
