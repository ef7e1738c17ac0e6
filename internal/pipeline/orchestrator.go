// Package pipeline drives a request through the stages of its workflow.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"multimodal-pipeline/internal/composer"
	"multimodal-pipeline/internal/registry"
	"multimodal-pipeline/internal/services"
	"multimodal-pipeline/internal/store"
	"multimodal-pipeline/pkg/models"
)

const (
	// DefaultMaxStages caps the stages run for a request that sets none.
	DefaultMaxStages = 10
	// DefaultTimeout is the overall budget for a request that sets none.
	DefaultTimeout = 300 * time.Second

	tracerName = "multimodal-pipeline/internal/pipeline"
)

var (
	// ErrRequestTimeout aborts a run whose overall budget is spent.
	ErrRequestTimeout = errors.New("request timed out")
	// ErrRequestCancelled aborts a run whose context was cancelled.
	ErrRequestCancelled = errors.New("request cancelled")
)

// StageInvoker calls one endpoint with retries. *services.Invoker implements it.
type StageInvoker interface {
	Invoke(ctx context.Context, endpoint models.Endpoint, input models.Payload, purpose models.Purpose) (models.Payload, error)
}

// MetricsRecorder observes request lifecycles.
type MetricsRecorder interface {
	RequestStarted()
	RequestFinished(workflow, status string, costCents int64, elapsed time.Duration)
}

// Orchestrator runs pipeline requests. It is safe for concurrent use; the
// only shared mutable state lives in the store.
type Orchestrator struct {
	registry *registry.Registry
	catalog  *registry.Catalog
	invoker  StageInvoker
	store    *store.Store

	logger           services.Logger
	metrics          MetricsRecorder
	tracer           trace.Tracer
	strict           bool
	defaultMaxStages int
	defaultTimeout   time.Duration
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the orchestrator logger.
func WithLogger(logger services.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics sets the request metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithTracerProvider sets the provider spans are created from. The global
// provider is used otherwise.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *Orchestrator) {
		if tp != nil {
			o.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithStrictWorkflows makes unknown workflow names fail the request instead
// of running the fallback workflow.
func WithStrictWorkflows(strict bool) Option {
	return func(o *Orchestrator) {
		o.strict = strict
	}
}

// WithDefaults sets the stage cap and overall timeout applied to requests
// that leave them unset. Non-positive values are ignored.
func WithDefaults(maxStages int, timeout time.Duration) Option {
	return func(o *Orchestrator) {
		if maxStages > 0 {
			o.defaultMaxStages = maxStages
		}
		if timeout > 0 {
			o.defaultTimeout = timeout
		}
	}
}

// NewOrchestrator wires an orchestrator from its collaborators.
func NewOrchestrator(reg *registry.Registry, catalog *registry.Catalog, invoker StageInvoker, st *store.Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry:         reg,
		catalog:          catalog,
		invoker:          invoker,
		store:            st,
		logger:           nopLogger{},
		tracer:           otel.Tracer(tracerName),
		defaultMaxStages: DefaultMaxStages,
		defaultTimeout:   DefaultTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Process runs req to completion and returns its response. It never returns
// nil: admission failures, timeouts and internal faults are all reported
// through a failed response. Responses of admitted requests are kept in the
// store history.
func (o *Orchestrator) Process(ctx context.Context, req models.PipelineRequest) *models.PipelineResponse {
	req = o.withDefaults(req)
	if err := o.store.Admit(&req); err != nil {
		return o.rejected(req, err)
	}
	return o.run(ctx, &req)
}

// Submit admits req and runs it in the background. The request is visible as
// processing before Submit returns. The run is detached from ctx
// cancellation; its own timeout still applies. The channel receives exactly
// one response.
func (o *Orchestrator) Submit(ctx context.Context, req models.PipelineRequest) (string, <-chan *models.PipelineResponse, error) {
	req = o.withDefaults(req)
	if err := o.store.Admit(&req); err != nil {
		return "", nil, err
	}

	done := make(chan *models.PipelineResponse, 1)
	runCtx := context.WithoutCancel(ctx)
	go func() {
		done <- o.run(runCtx, &req)
	}()
	return req.RequestID, done, nil
}

// Status looks up a request by id.
func (o *Orchestrator) Status(id string) (models.RequestStatus, error) {
	return o.store.Lookup(id)
}

func (o *Orchestrator) withDefaults(req models.PipelineRequest) models.PipelineRequest {
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	if req.MaxStages <= 0 {
		req.MaxStages = o.defaultMaxStages
	}
	if req.Timeout <= 0 {
		req.Timeout = o.defaultTimeout
	}
	if req.Input == nil {
		req.Input = models.Payload{}
	}
	return req
}

// rejected builds the response for a request that was never admitted. It is
// not recorded, so it cannot shadow the request that owns the id.
func (o *Orchestrator) rejected(req models.PipelineRequest, err error) *models.PipelineResponse {
	o.logger.Warn("request rejected", "request_id", req.RequestID, "error", err)
	resp := models.NewPipelineResponse(req.RequestID)
	resp.Status = models.StatusFailed
	resp.Errors = append(resp.Errors, err.Error())
	return resp
}

func (o *Orchestrator) run(ctx context.Context, req *models.PipelineRequest) (resp *models.PipelineResponse) {
	start := time.Now()
	resp = models.NewPipelineResponse(req.RequestID)
	resp.Metadata["started_at"] = start.UTC().Format(time.RFC3339Nano)

	ctx, span := o.tracer.Start(ctx, "pipeline.process", trace.WithAttributes(
		attribute.String("pipeline.request_id", req.RequestID),
		attribute.String("pipeline.workflow", req.Workflow),
	))
	defer span.End()

	o.recordStarted()
	o.logger.Info("processing request",
		"request_id", req.RequestID,
		"workflow", req.Workflow,
		"user_id", req.UserID,
		"priority", req.Priority,
	)

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("pipeline run panicked",
				"request_id", req.RequestID,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
			resp.Errors = append(resp.Errors, fmt.Sprintf("internal error: %v", r))
			resp.Status = models.StatusFailed
		}
		o.finish(span, req, resp, start)
	}()

	runCtx, cancel := context.WithTimeout(ctx, req.Timeout)
	defer cancel()

	stages, ok := o.resolveStages(req, resp)
	if !ok {
		resp.Status = models.StatusFailed
		return resp
	}

	limit := min(len(stages), req.MaxStages)
	if limit < len(stages) {
		skipped := make([]string, 0, len(stages)-limit)
		for _, st := range stages[limit:] {
			skipped = append(skipped, st.Name)
		}
		resp.Metadata["truncated"] = true
		resp.Metadata["stages_skipped"] = skipped
		o.logger.Warn("workflow truncated by max_stages",
			"request_id", req.RequestID,
			"max_stages", req.MaxStages,
			"stages_skipped", skipped,
		)
	}

	aborted := false
	for _, stage := range stages[:limit] {
		if err := runCtx.Err(); err != nil {
			resp.Errors = append(resp.Errors, o.abortError(req, err).Error())
			aborted = true
			break
		}

		result, err := o.runStage(runCtx, req, stage, resp.Results)
		if err == nil {
			resp.Results = append(resp.Results, result)
			resp.StagesCompleted = append(resp.StagesCompleted, stage.Name)
			resp.TotalCostCents += result.CostCents
			o.logger.Info("stage completed",
				"request_id", req.RequestID,
				"stage", stage.Name,
				"endpoint", stage.Endpoint,
				"cost_cents", result.CostCents,
			)
			continue
		}

		if ctxErr := runCtx.Err(); ctxErr != nil {
			resp.Errors = append(resp.Errors, fmt.Sprintf("Stage %s failed: %v", stage.Name, o.abortError(req, ctxErr)))
			aborted = true
			break
		}

		resp.Errors = append(resp.Errors, fmt.Sprintf("Stage %s failed: %v", stage.Name, err))
		var violation *contractViolation
		switch {
		case errors.As(err, &violation):
			o.logger.Error("stage panicked", "request_id", req.RequestID, "stage", stage.Name, "error", err)
			aborted = true
		case stage.Critical:
			o.logger.Error("critical stage failed", "request_id", req.RequestID, "stage", stage.Name, "endpoint", stage.Endpoint, "error", err)
			aborted = true
		default:
			o.logger.Warn("stage failed", "request_id", req.RequestID, "stage", stage.Name, "endpoint", stage.Endpoint, "error", err)
		}
		if aborted {
			break
		}
	}

	switch {
	case aborted:
		resp.Status = models.StatusFailed
	case len(resp.Errors) == 0:
		resp.Status = models.StatusCompleted
	default:
		resp.Status = models.StatusPartial
	}
	return resp
}

// resolveStages picks the stages for req and records the workflow in the
// response metadata. It reports false when the request must fail.
func (o *Orchestrator) resolveStages(req *models.PipelineRequest, resp *models.PipelineResponse) ([]models.StageDescriptor, bool) {
	stages, found := o.catalog.StagesFor(req.Workflow)
	if found {
		resp.Metadata["workflow"] = req.Workflow
		return stages, true
	}

	if req.Workflow != "" {
		resp.Metadata["requested_workflow"] = req.Workflow
		if o.strict {
			err := fmt.Errorf("%w: %s", registry.ErrWorkflowNotFound, req.Workflow)
			resp.Errors = append(resp.Errors, err.Error())
			return nil, false
		}
		o.logger.Warn("unknown workflow, using fallback",
			"request_id", req.RequestID,
			"workflow", req.Workflow,
		)
	}
	resp.Metadata["workflow"] = o.catalog.Fallback().Name
	return stages, true
}

// contractViolation wraps a panic raised while executing a stage.
type contractViolation struct {
	value interface{}
}

func (e *contractViolation) Error() string {
	return fmt.Sprintf("internal error: %v", e.value)
}

type stageOutcome struct {
	result models.StageResult
	err    error
}

// runStage composes and invokes one stage. The call runs in its own goroutine
// so that ctx expiry returns immediately; a result arriving afterwards is
// dropped into the buffered channel and never touches the response.
func (o *Orchestrator) runStage(ctx context.Context, req *models.PipelineRequest, stage models.StageDescriptor, prior []models.StageResult) (models.StageResult, error) {
	ctx, span := o.tracer.Start(ctx, "pipeline.stage", trace.WithAttributes(
		attribute.String("pipeline.stage", stage.Name),
		attribute.String("pipeline.endpoint", stage.Endpoint),
		attribute.String("pipeline.purpose", string(stage.Purpose)),
		attribute.Bool("pipeline.critical", stage.Critical),
	))
	defer span.End()

	endpoint, err := o.registry.Resolve(stage.Endpoint)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return models.StageResult{}, err
	}

	history := make([]models.StageResult, len(prior))
	copy(history, prior)

	done := make(chan stageOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- stageOutcome{err: &contractViolation{value: r}}
			}
		}()

		input := composer.Compose(stage, req.Input, history)
		output, err := o.invoker.Invoke(ctx, endpoint, input, stage.Purpose)
		if err != nil {
			done <- stageOutcome{err: err}
			return
		}
		done <- stageOutcome{result: models.StageResult{
			Stage:     stage.Name,
			Endpoint:  endpoint.Name,
			Purpose:   stage.Purpose,
			Input:     input,
			Output:    composer.Annotate(stage, output),
			CostCents: endpoint.CostCents(),
			Timestamp: time.Now().UTC(),
		}}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			span.RecordError(out.err)
			span.SetStatus(codes.Error, out.err.Error())
		}
		return out.result, out.err
	case <-ctx.Done():
		span.SetStatus(codes.Error, ctx.Err().Error())
		return models.StageResult{}, ctx.Err()
	}
}

func (o *Orchestrator) abortError(req *models.PipelineRequest, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s", ErrRequestTimeout, req.Timeout)
	}
	return fmt.Errorf("%w: %v", ErrRequestCancelled, err)
}

// finish stamps timing, moves the response into history and releases the
// in-flight entry.
func (o *Orchestrator) finish(span trace.Span, req *models.PipelineRequest, resp *models.PipelineResponse, start time.Time) {
	elapsed := time.Since(start)
	resp.ProcessingTimeMS = elapsed.Milliseconds()
	resp.Metadata["completed_at"] = time.Now().UTC().Format(time.RFC3339Nano)

	o.store.Complete(resp)

	workflow, _ := resp.Metadata["workflow"].(string)
	if o.metrics != nil {
		o.metrics.RequestFinished(workflow, string(resp.Status), resp.TotalCostCents, elapsed)
	}

	span.SetAttributes(
		attribute.String("pipeline.status", string(resp.Status)),
		attribute.Int64("pipeline.cost_cents", resp.TotalCostCents),
		attribute.Int("pipeline.stages_completed", len(resp.StagesCompleted)),
	)
	if resp.Status == models.StatusFailed {
		span.SetStatus(codes.Error, "pipeline failed")
	}

	o.logger.Info("request finished",
		"request_id", req.RequestID,
		"workflow", workflow,
		"status", string(resp.Status),
		"stages_completed", len(resp.StagesCompleted),
		"errors", len(resp.Errors),
		"cost_cents", resp.TotalCostCents,
		"processing_time_ms", resp.ProcessingTimeMS,
	)
}

func (o *Orchestrator) recordStarted() {
	if o.metrics != nil {
		o.metrics.RequestStarted()
	}
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
