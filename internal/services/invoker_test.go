package services

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"multimodal-pipeline/pkg/models"
)

type recordedCall struct {
	endpoint string
	err      error
}

type fakeMetrics struct {
	mu       sync.Mutex
	attempts []recordedCall
	finished []recordedCall
}

func (m *fakeMetrics) StageAttempt(endpoint string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts = append(m.attempts, recordedCall{endpoint, err})
}

func (m *fakeMetrics) StageFinished(endpoint string, err error, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished = append(m.finished, recordedCall{endpoint, err})
}

// flakyServer fails the first n requests with 503 and then succeeds.
func flakyServer(t *testing.T, failures int32) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= failures {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"text": "done"}`))
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func newTestInvoker(server *httptest.Server, opts ...Option) *Invoker {
	opts = append([]Option{WithBackoffUnit(time.Millisecond)}, opts...)
	return NewInvoker(NewHTTPModelClient(server.Client()), opts...)
}

func TestInvoker_RecoversWithinRetryBudget(t *testing.T) {
	server, calls := flakyServer(t, 2)
	metrics := &fakeMetrics{}
	inv := newTestInvoker(server, WithMetrics(metrics))

	ep := testEndpoint(server.URL, models.ModalityText)
	ep.MaxRetries = 2

	out, err := inv.Invoke(context.Background(), ep, models.Payload{"prompt": "x"}, models.PurposeProcessInput)
	require.NoError(t, err)
	assert.Equal(t, "done", out["text"])
	assert.Equal(t, int32(3), calls.Load())

	require.Len(t, metrics.attempts, 3)
	assert.Error(t, metrics.attempts[0].err)
	assert.NoError(t, metrics.attempts[2].err)
	require.Len(t, metrics.finished, 1)
	assert.NoError(t, metrics.finished[0].err)
}

func TestInvoker_ExhaustsRetries(t *testing.T) {
	server, calls := flakyServer(t, 100)
	inv := newTestInvoker(server)

	ep := testEndpoint(server.URL, models.ModalityText)
	ep.MaxRetries = 2

	_, err := inv.Invoke(context.Background(), ep, models.Payload{"prompt": "x"}, models.PurposeProcessInput)
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())

	var invErr *InvocationError
	require.ErrorAs(t, err, &invErr)
	assert.Equal(t, ep.Name, invErr.Endpoint)
	assert.Equal(t, 3, invErr.Attempts)

	var statusErr *StatusError
	assert.ErrorAs(t, err, &statusErr)
}

func TestInvoker_ZeroRetriesMakesOneAttempt(t *testing.T) {
	server, calls := flakyServer(t, 100)
	inv := newTestInvoker(server)

	ep := testEndpoint(server.URL, models.ModalityText)
	ep.MaxRetries = 0

	_, err := inv.Invoke(context.Background(), ep, models.Payload{"prompt": "x"}, models.PurposeProcessInput)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestInvoker_TimeoutCountsAsFailedAttempt(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
			return
		}
		_, _ = w.Write([]byte(`{"text": "fast"}`))
	}))
	defer server.Close()

	inv := newTestInvoker(server)
	ep := testEndpoint(server.URL, models.ModalityText)
	ep.Timeout = 50 * time.Millisecond
	ep.MaxRetries = 1

	out, err := inv.Invoke(context.Background(), ep, models.Payload{"prompt": "x"}, models.PurposeProcessInput)
	require.NoError(t, err)
	assert.Equal(t, "fast", out["text"])
	assert.Equal(t, int32(2), calls.Load())
}

// MockModelClient satisfies ModelClient
type MockModelClient struct {
	mock.Mock
}

func (m *MockModelClient) Call(ctx context.Context, ep models.Endpoint, input models.Payload, purpose models.Purpose) (models.Payload, error) {
	args := m.Called(ctx, ep, input, purpose)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(models.Payload), args.Error(1)
}

func TestInvoker_PermanentErrorsAreNotRetried(t *testing.T) {
	client := &MockModelClient{}
	client.On("Call", mock.Anything, mock.Anything, mock.Anything, models.PurposeTranscribe).Return(nil, ErrInvalidInput)
	inv := NewInvoker(client, WithBackoffUnit(time.Millisecond))

	ep := testEndpoint("http://unused", models.ModalityAudio)
	ep.MaxRetries = 3

	_, err := inv.Invoke(context.Background(), ep, models.Payload{}, models.PurposeTranscribe)
	require.Error(t, err)
	client.AssertNumberOfCalls(t, "Call", 1)
	assert.ErrorIs(t, err, ErrInvalidInput)

	var invErr *InvocationError
	require.ErrorAs(t, err, &invErr)
	assert.Equal(t, 1, invErr.Attempts)
}

func TestInvoker_BackoffDoubles(t *testing.T) {
	client := &MockModelClient{}
	client.On("Call", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("unavailable")).Times(3)
	client.On("Call", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(models.Payload{"text": "ok"}, nil)
	unit := 20 * time.Millisecond
	inv := NewInvoker(client, WithBackoffUnit(unit))

	ep := testEndpoint("http://unused", models.ModalityText)
	ep.MaxRetries = 3

	start := time.Now()
	out, err := inv.Invoke(context.Background(), ep, models.Payload{}, models.PurposeProcessInput)
	require.NoError(t, err)
	assert.Equal(t, "ok", out["text"])
	// waits of 1, 2 and 4 units
	assert.GreaterOrEqual(t, time.Since(start), 7*unit)
	client.AssertNumberOfCalls(t, "Call", 4)
}

func TestInvoker_CancelledContextStopsRetrying(t *testing.T) {
	client := &MockModelClient{}
	client.On("Call", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("unavailable"))
	inv := NewInvoker(client, WithBackoffUnit(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	ep := testEndpoint("http://unused", models.ModalityText)
	ep.MaxRetries = 3

	_, err := inv.Invoke(ctx, ep, models.Payload{}, models.PurposeProcessInput)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	client.AssertNumberOfCalls(t, "Call", 1)
}
