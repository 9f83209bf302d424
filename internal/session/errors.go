package session

import (
	"context"
	"errors"
	"fmt"
)

// ErrCredential matches every *CredentialError via errors.Is.
var ErrCredential = errors.New("session: credential rejected")

// CredentialError is an expired or invalid credential. It is never retried
// against the same credential.
type CredentialError struct {
	Op  string
	Err error
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("session: %s: credential rejected: %v", e.Op, e.Err)
}

func (e *CredentialError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrCredential) hold.
func (e *CredentialError) Is(target error) bool { return target == ErrCredential }

// NetworkError is a transient transport failure, retried with backoff.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("session: %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Credential wraps err as a CredentialError.
func Credential(op string, err error) error { return &CredentialError{Op: op, Err: err} }

// Network wraps err as a NetworkError.
func Network(op string, err error) error { return &NetworkError{Op: op, Err: err} }

// classify maps an attempt error to the event it raises. Anything that is
// not a credential failure is treated as transient.
func classify(err error) Event {
	if errors.Is(err, ErrCredential) {
		return EventAuthFailure
	}
	return EventNetworkFailure
}

// cancelled reports whether err is only the attempt being abandoned.
func cancelled(err error) bool {
	return errors.Is(err, context.Canceled)
}
