// Allsource - Lookalike Audience Pipeline
// Copyright 2026 Allsource Data
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/byron-allsourcedata/Allsource-sub001

package eventprocessor

import "errors"

var (
	// ErrNilPublisher is returned when a component needs a publisher and got nil.
	ErrNilPublisher = errors.New("publisher cannot be nil")

	// ErrPublisherClosed is returned by Publish after Close.
	ErrPublisherClosed = errors.New("publisher is closed")

	// ErrInvalidConfig is returned when configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidEvent is returned when an event fails validation.
	ErrInvalidEvent = errors.New("invalid event")
)

// RetryableError marks a handler failure that may succeed on redelivery.
type RetryableError struct {
	Message string
	Cause   error
}

// NewRetryableError creates a new retryable error.
func NewRetryableError(message string, cause error) *RetryableError {
	return &RetryableError{Message: message, Cause: cause}
}

// Error implements the error interface.
func (e *RetryableError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause for error unwrapping.
func (e *RetryableError) Unwrap() error {
	return e.Cause
}

// PermanentError marks a message that can never be processed, such as a
// malformed payload. Such messages go to the poison queue without retries.
type PermanentError struct {
	Message string
	Cause   error
}

// NewPermanentError creates a new permanent error.
func NewPermanentError(message string, cause error) *PermanentError {
	return &PermanentError{Message: message, Cause: cause}
}

// Error implements the error interface.
func (e *PermanentError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause for error unwrapping.
func (e *PermanentError) Unwrap() error {
	return e.Cause
}

// IsRetryableError checks if the error is retryable.
func IsRetryableError(err error) bool {
	var retryErr *RetryableError
	return errors.As(err, &retryErr)
}

// IsPermanentError checks if the error is permanent (non-retryable).
func IsPermanentError(err error) bool {
	var permErr *PermanentError
	return errors.As(err, &permErr)
}
