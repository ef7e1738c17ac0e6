package services

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedPurpose is returned when an adapter cannot serve a purpose,
	// e.g. an audio backend asked to do anything but transcribe or synthesize.
	ErrUnsupportedPurpose = errors.New("unsupported purpose")
	// ErrUnsupportedModality is returned for endpoints with an unknown modality.
	ErrUnsupportedModality = errors.New("unsupported modality")
	// ErrInvalidInput is returned when the composed payload lacks a field the
	// adapter needs.
	ErrInvalidInput = errors.New("invalid input")
)

// StatusError is returned when a backend answers with a non-2xx status.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("model returned status %d", e.Code)
}

// InvocationError is the stage-level failure returned once retries are
// exhausted or a permanent error is hit.
type InvocationError struct {
	Endpoint string
	Attempts int
	Err      error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("endpoint %s failed after %d attempt(s): %v", e.Endpoint, e.Attempts, e.Err)
}

func (e *InvocationError) Unwrap() error {
	return e.Err
}

// permanent reports whether retrying err cannot help.
func permanent(err error) bool {
	return errors.Is(err, ErrUnsupportedPurpose) ||
		errors.Is(err, ErrUnsupportedModality) ||
		errors.Is(err, ErrInvalidInput)
}
