package errors

import (
	"errors"
	"fmt"

	"davmigrate/pkg/models"
)

// ErrorType represents the different kinds of failure in a migration run
type ErrorType string

const (
	ErrorTypeTransfer    ErrorType = "transfer"
	ErrorTypeRepository  ErrorType = "repository"
	ErrorTypePersistence ErrorType = "persistence"
	ErrorTypeConnection  ErrorType = "connection"
	ErrorTypeConfig      ErrorType = "config"
	ErrorTypeUnknown     ErrorType = "unknown"
)

var (
	ErrUnknownEntity        = errors.New("unknown entity kind")
	ErrIncompleteCheckpoint = errors.New("not all uploaded files were saved")
	ErrLedgerNotEmpty       = errors.New("ledger contains entries from a previous run")
)

// Error is a typed error carrying the failing stage and its cause
type Error struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s error: %s", e.Type, e.Message)
	}
	return fmt.Sprintf("%s error: %s: %v", e.Type, e.Message, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Transfer wraps a failure of the remote store
func Transfer(msg string, err error) *Error {
	return &Error{Type: ErrorTypeTransfer, Message: msg, Err: err}
}

// Repository wraps a failure of the candidate query
func Repository(msg string, err error) *Error {
	return &Error{Type: ErrorTypeRepository, Message: msg, Err: err}
}

// Persistence wraps a failure of a ledger write or clear
func Persistence(msg string, err error) *Error {
	return &Error{Type: ErrorTypePersistence, Message: msg, Err: err}
}

// Connection wraps a failure to reach the database
func Connection(msg string, err error) *Error {
	return &Error{Type: ErrorTypeConnection, Message: msg, Err: err}
}

// Config wraps an invalid configuration
func Config(msg string, err error) *Error {
	return &Error{Type: ErrorTypeConfig, Message: msg, Err: err}
}

// UploadError is returned when a single file could not be put to the remote
// store. Index is the zero-based position in the batch.
type UploadError struct {
	Index int
	File  models.FileRecord
	Err   error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload of %s failed at index %d: %v", e.File.Identity(), e.Index, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// TypeOf returns the type of the first *Error in err's chain
func TypeOf(err error) ErrorType {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Type
	}
	return ErrorTypeUnknown
}

// IsType reports whether any *Error in err's tree has the given type.
// Joined errors are searched too.
func IsType(err error, t ErrorType) bool {
	if err == nil {
		return false
	}
	if typed, ok := err.(*Error); ok && typed.Type == t {
		return true
	}
	switch x := err.(type) {
	case interface{ Unwrap() []error }:
		for _, e := range x.Unwrap() {
			if IsType(e, t) {
				return true
			}
		}
		return false
	case interface{ Unwrap() error }:
		return IsType(x.Unwrap(), t)
	}
	return false
}

// IsRetryable checks if an error type should be retried.
// Only reaching the database is retried; transfers are recovered by re-running.
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeConnection:
		return true
	default:
		return false
	}
}
