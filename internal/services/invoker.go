package services

import (
	"context"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"

	"multimodal-pipeline/pkg/models"
)

// MetricsRecorder receives per-attempt and per-stage observations.
type MetricsRecorder interface {
	StageAttempt(endpoint string, err error)
	StageFinished(endpoint string, err error, elapsed time.Duration)
}

// Invoker calls a model endpoint with the endpoint's timeout and retry policy.
type Invoker struct {
	client  ModelClient
	unit    time.Duration
	logger  Logger
	metrics MetricsRecorder
}

// Option configures an Invoker.
type Option func(*Invoker)

// WithBackoffUnit sets the wait before the first retry. Subsequent waits
// double: unit, 2*unit, 4*unit and so on.
func WithBackoffUnit(unit time.Duration) Option {
	return func(i *Invoker) {
		if unit > 0 {
			i.unit = unit
		}
	}
}

// WithLogger sets the logger used to report retries.
func WithLogger(logger Logger) Option {
	return func(i *Invoker) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// WithMetrics sets the recorder that observes attempts and outcomes.
func WithMetrics(m MetricsRecorder) Option {
	return func(i *Invoker) {
		i.metrics = m
	}
}

// NewInvoker creates an Invoker around client. The default backoff unit is
// one second.
func NewInvoker(client ModelClient, opts ...Option) *Invoker {
	i := &Invoker{
		client: client,
		unit:   time.Second,
		logger: nopLogger{},
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Invoke calls endpoint with input for purpose. Each attempt is bounded by
// endpoint.Timeout; failed attempts are retried up to endpoint.MaxRetries
// times with exponential backoff. Cancellation of ctx stops retrying. On
// failure the returned error is an *InvocationError.
func (i *Invoker) Invoke(ctx context.Context, endpoint models.Endpoint, input models.Payload, purpose models.Purpose) (models.Payload, error) {
	start := time.Now()
	attempts := 0
	var output models.Payload

	operation := func() error {
		attempts++
		attemptCtx, cancel := context.WithTimeout(ctx, endpoint.Timeout)
		defer cancel()

		result, err := i.client.Call(attemptCtx, endpoint, input, purpose)
		if err == nil && attemptCtx.Err() != nil {
			// The client ignored the deadline; a late answer is a timeout.
			err = attemptCtx.Err()
		}
		i.recordAttempt(endpoint.Name, err)
		if err != nil {
			if permanent(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		output = result
		return nil
	}

	notify := func(err error, wait time.Duration) {
		i.logger.Warn("model call failed, retrying",
			"endpoint", endpoint.Name,
			"purpose", string(purpose),
			"attempt", attempts,
			"max_retries", endpoint.MaxRetries,
			"wait", wait.String(),
			"error", err,
		)
	}

	err := backoff.RetryNotify(operation, i.policy(ctx, endpoint), notify)
	if err != nil {
		err = &InvocationError{Endpoint: endpoint.Name, Attempts: attempts, Err: err}
	}
	if i.metrics != nil {
		i.metrics.StageFinished(endpoint.Name, err, time.Since(start))
	}
	if err != nil {
		return nil, err
	}
	return output, nil
}

func (i *Invoker) policy(ctx context.Context, endpoint models.Endpoint) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = i.unit
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = time.Duration(math.MaxInt64)
	b.MaxElapsedTime = 0
	b.Reset()

	retries := endpoint.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
}

func (i *Invoker) recordAttempt(endpoint string, err error) {
	if i.metrics != nil {
		i.metrics.StageAttempt(endpoint, err)
	}
}
