// Package health probes model backends and summarizes request history.
package health

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"multimodal-pipeline/internal/registry"
	"multimodal-pipeline/internal/store"
	"multimodal-pipeline/pkg/models"
)

// DefaultProbeTimeout bounds a single endpoint probe.
const DefaultProbeTimeout = 10 * time.Second

// ProbeRecorder receives probe outcomes.
type ProbeRecorder interface {
	EndpointHealth(endpoint string, healthy bool)
}

// Reporter builds health reports and statistics.
type Reporter struct {
	registry   *registry.Registry
	store      *store.Store
	httpClient *http.Client
	timeout    time.Duration
	metrics    ProbeRecorder
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithHTTPClient sets the client used for probes.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Reporter) {
		if c != nil {
			r.httpClient = c
		}
	}
}

// WithTimeout sets the per-probe timeout.
func WithTimeout(d time.Duration) Option {
	return func(r *Reporter) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithMetrics sets the recorder for probe outcomes.
func WithMetrics(m ProbeRecorder) Option {
	return func(r *Reporter) {
		r.metrics = m
	}
}

// NewReporter creates a Reporter over the registry's endpoints and the store.
func NewReporter(reg *registry.Registry, st *store.Store, opts ...Option) *Reporter {
	r := &Reporter{
		registry:   reg,
		store:      st,
		httpClient: http.DefaultClient,
		timeout:    DefaultProbeTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Health probes every endpoint concurrently. The pipeline is healthy only
// when every endpoint is.
func (r *Reporter) Health(ctx context.Context) models.HealthReport {
	endpoints := r.registry.Endpoints()

	var mu sync.Mutex
	results := make(map[string]models.EndpointHealth, len(endpoints))

	// Probes report failures in their result rather than as errors, so the
	// group never cancels siblings.
	g, gctx := errgroup.WithContext(ctx)
	for _, ep := range endpoints {
		g.Go(func() error {
			h := r.probe(gctx, ep)
			mu.Lock()
			results[ep.Name] = h
			mu.Unlock()
			if r.metrics != nil {
				r.metrics.EndpointHealth(ep.Name, h.Status == models.HealthHealthy)
			}
			return nil
		})
	}
	_ = g.Wait()

	status := models.HealthHealthy
	for _, h := range results {
		if h.Status != models.HealthHealthy {
			status = models.HealthDegraded
			break
		}
	}

	return models.HealthReport{
		PipelineStatus: status,
		Models:         results,
		ActiveRequests: r.store.InFlight(),
		TotalProcessed: r.store.HistoryLen(),
	}
}

func (r *Reporter) probe(ctx context.Context, ep models.Endpoint) models.EndpointHealth {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ep.HealthURL(), nil)
	if err != nil {
		return models.EndpointHealth{Status: models.HealthUnhealthy, Error: err.Error()}
	}

	resp, err := r.httpClient.Do(req)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		return models.EndpointHealth{Status: models.HealthUnhealthy, ResponseTimeMS: elapsed, Error: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return models.EndpointHealth{
			Status:         models.HealthUnhealthy,
			ResponseTimeMS: elapsed,
			Error:          fmt.Sprintf("health check returned status %d", resp.StatusCode),
		}
	}
	return models.EndpointHealth{Status: models.HealthHealthy, ResponseTimeMS: elapsed}
}

// Stats summarizes the finalized request history.
func (r *Reporter) Stats() models.Stats {
	return r.store.Stats()
}
