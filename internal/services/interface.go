package services

import (
	"context"

	"multimodal-pipeline/pkg/models"
)

// ModelClient performs a single call to a model backend and returns its
// normalized result.
type ModelClient interface {
	// Call sends input to endpoint using the wire shape of the endpoint's
	// modality. It makes exactly one attempt.
	Call(ctx context.Context, endpoint models.Endpoint, input models.Payload, purpose models.Purpose) (models.Payload, error)
}

// Logger defines the logging interface compatible with the application logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
