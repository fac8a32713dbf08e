package storage

import (
	"errors"
	"fmt"
)

// Common storage errors. Wrap them with WithMessage or WithCause.
var (
	// ErrNotConnected indicates the client was closed or never connected.
	ErrNotConnected = &StorageError{Code: "NOT_CONNECTED", Message: "storage client is not connected"}

	// ErrConnectionFailed indicates a dial or authentication failure.
	ErrConnectionFailed = &StorageError{Code: "CONNECTION_FAILED", Message: "failed to connect to storage backend"}

	// ErrInvalidConfig indicates options that failed validation.
	ErrInvalidConfig = &StorageError{Code: "INVALID_CONFIG", Message: "invalid storage configuration"}

	// ErrClientNotFound indicates a name that is not registered in the Manager.
	ErrClientNotFound = &StorageError{Code: "CLIENT_NOT_FOUND", Message: "storage client not found"}

	// ErrClientAlreadyExists indicates a duplicate registration.
	ErrClientAlreadyExists = &StorageError{Code: "CLIENT_ALREADY_EXISTS", Message: "storage client already exists"}
)

// StorageError is a storage-level error with a stable code.
type StorageError struct {
	Code    string
	Message string
	Cause   error
}

func (e *StorageError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *StorageError) Unwrap() error {
	return e.Cause
}

// Is matches any StorageError with the same code.
func (e *StorageError) Is(target error) bool {
	t, ok := target.(*StorageError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithMessage returns a copy with msg.
func (e *StorageError) WithMessage(msg string) *StorageError {
	return &StorageError{Code: e.Code, Message: msg, Cause: e.Cause}
}

// WithCause returns a copy wrapping cause.
func (e *StorageError) WithCause(cause error) *StorageError {
	return &StorageError{Code: e.Code, Message: e.Message, Cause: cause}
}

// GetStorageError extracts a StorageError from an error chain.
func GetStorageError(err error) (*StorageError, bool) {
	var storageErr *StorageError
	if errors.As(err, &storageErr) {
		return storageErr, true
	}
	return nil, false
}
