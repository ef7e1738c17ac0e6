// Package api contains the HTTP handlers for the pipeline service.
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"multimodal-pipeline/internal/health"
	"multimodal-pipeline/internal/pipeline"
	"multimodal-pipeline/internal/registry"
	"multimodal-pipeline/internal/store"
	"multimodal-pipeline/pkg/models"
)

const (
	serviceName = "multimodal-pipeline"
	version     = "1.0.0"
)

// Server holds the dependencies for the API server.
type Server struct {
	Orchestrator *pipeline.Orchestrator
	Catalog      *registry.Catalog
	Registry     *registry.Registry
	Reporter     *health.Reporter
	Metrics      http.Handler
}

// NewServer creates a new Server.
func NewServer(orch *pipeline.Orchestrator, reg *registry.Registry, cat *registry.Catalog, reporter *health.Reporter, metrics http.Handler) *Server {
	return &Server{
		Orchestrator: orch,
		Catalog:      cat,
		Registry:     reg,
		Reporter:     reporter,
		Metrics:      metrics,
	}
}

// Register mounts the routes on e.
func (s *Server) Register(e *echo.Echo) {
	e.HTTPErrorHandler = HTTPErrorHandler
	e.GET("/", s.Index)
	if s.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(s.Metrics))
	}

	g := e.Group("/api/v1")
	g.POST("/process", s.Process)
	g.GET("/requests/:id", s.RequestStatus)
	g.GET("/workflows", s.ListWorkflows)
	g.GET("/workflows/:name", s.GetWorkflow)
	g.GET("/stats", s.Stats)
	g.GET("/health", s.Health)
}

// ProcessRequest is the body of POST /api/v1/process. Timeout is in seconds.
type ProcessRequest struct {
	RequestID string         `json:"request_id"`
	Input     models.Payload `json:"input_data"`
	UserID    string         `json:"user_id"`
	Priority  string         `json:"priority"`
	Workflow  string         `json:"workflow"`
	MaxStages int            `json:"max_stages"`
	Timeout   float64        `json:"timeout"`
}

func (r ProcessRequest) toModel() models.PipelineRequest {
	priority := r.Priority
	if priority == "" {
		priority = "normal"
	}
	return models.PipelineRequest{
		RequestID: r.RequestID,
		Input:     r.Input,
		UserID:    r.UserID,
		Priority:  priority,
		Workflow:  r.Workflow,
		MaxStages: r.MaxStages,
		Timeout:   time.Duration(r.Timeout * float64(time.Second)),
	}
}

// AcceptedResponse is returned for asynchronous submissions.
type AcceptedResponse struct {
	RequestID string        `json:"request_id"`
	Status    models.Status `json:"status"`
	StatusURL string        `json:"status_url"`
}

// Process runs a request through its workflow
// (POST /api/v1/process, ?async=true to return immediately).
func (s *Server) Process(c echo.Context) error {
	var body ProcessRequest
	if err := c.Bind(&body); err != nil {
		return writeError(c, http.StatusBadRequest, "Invalid request body", err.Error())
	}
	if body.Input == nil {
		return writeError(c, http.StatusBadRequest, "Invalid request body", "input_data is required")
	}
	if body.MaxStages < 0 || body.Timeout < 0 {
		return writeError(c, http.StatusBadRequest, "Invalid request body", "max_stages and timeout must not be negative")
	}

	ctx := c.Request().Context()
	if c.QueryParam("async") == "true" {
		id, _, err := s.Orchestrator.Submit(ctx, body.toModel())
		if err != nil {
			if errors.Is(err, store.ErrDuplicateRequest) {
				return writeError(c, http.StatusConflict, "Duplicate request", err.Error())
			}
			return writeError(c, http.StatusInternalServerError, "Submission failed", err.Error())
		}
		return c.JSON(http.StatusAccepted, AcceptedResponse{
			RequestID: id,
			Status:    models.StatusProcessing,
			StatusURL: "/api/v1/requests/" + id,
		})
	}

	return c.JSON(http.StatusOK, s.Orchestrator.Process(ctx, body.toModel()))
}

// RequestStatus returns an in-flight request or its finalized response
// (GET /api/v1/requests/:id).
func (s *Server) RequestStatus(c echo.Context) error {
	status, err := s.Orchestrator.Status(c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return writeError(c, http.StatusNotFound, "Request not found", err.Error())
		}
		return writeError(c, http.StatusInternalServerError, "Lookup failed", err.Error())
	}
	return c.JSON(http.StatusOK, status)
}

// Stats returns aggregate statistics over the request history
// (GET /api/v1/stats).
func (s *Server) Stats(c echo.Context) error {
	return c.JSON(http.StatusOK, s.Reporter.Stats())
}

// Health probes every backend (GET /api/v1/health). The status code is 200
// even when degraded; callers read pipeline_status.
func (s *Server) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, s.Reporter.Health(c.Request().Context()))
}

// ServiceInfo is returned by the index route.
type ServiceInfo struct {
	Service   string    `json:"service"`
	Version   string    `json:"version"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Models    []string  `json:"models"`
	Workflows []string  `json:"workflows"`
}

// Index returns basic service information (GET /).
func (s *Server) Index(c echo.Context) error {
	info := ServiceInfo{
		Service:   serviceName,
		Version:   version,
		Status:    "running",
		Timestamp: time.Now().UTC(),
		Models:    []string{},
		Workflows: []string{},
	}
	for _, ep := range s.Registry.Endpoints() {
		info.Models = append(info.Models, ep.Name)
	}
	for _, wf := range s.Catalog.Workflows() {
		info.Workflows = append(info.Workflows, wf.Name)
	}
	return c.JSON(http.StatusOK, info)
}

// ProblemDetails represents an RFC 7807 Problem Details response
type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail"`
	Instance string `json:"instance,omitempty"`
}

// writeError writes an RFC 7807 Problem Details JSON error response
func writeError(c echo.Context, status int, title, detail string) error {
	problem := ProblemDetails{
		Type:     "about:blank",
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: c.Request().URL.Path,
	}
	c.Response().Header().Set(echo.HeaderContentType, "application/problem+json")
	return c.JSON(status, problem)
}

// HTTPErrorHandler renders errors raised by echo itself (unknown routes,
// wrong methods, middleware failures) as problem details.
func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	detail := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		if msg, ok := he.Message.(string); ok {
			detail = msg
		}
	}
	_ = writeError(c, status, http.StatusText(status), detail)
}
