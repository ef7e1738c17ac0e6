package models

import (
	"time"
)

// Payload is a loosely typed set of named fields passed to and returned from
// model backends.
type Payload map[string]interface{}

// Clone returns a shallow copy of p. Nested values are shared.
func (p Payload) Clone() Payload {
	out := make(Payload, len(p)+1)
	for k, v := range p {
		out[k] = v
	}
	return out
}

// String returns the value at key when it is a string.
func (p Payload) String(key string) (string, bool) {
	s, ok := p[key].(string)
	return s, ok
}

// Status is the lifecycle state of a pipeline run.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusPartial    Status = "partial"
	StatusFailed     Status = "failed"
)

// Terminal reports whether s is a final state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusPartial || s == StatusFailed
}

// PipelineRequest is one logical request routed through a workflow.
type PipelineRequest struct {
	RequestID string        `json:"request_id"`
	Input     Payload       `json:"input_data"`
	UserID    string        `json:"user_id"`
	Priority  string        `json:"priority"`
	Workflow  string        `json:"workflow,omitempty"`
	MaxStages int           `json:"max_stages"`
	Timeout   time.Duration `json:"timeout"`
}

// StageResult records one completed stage. It is never modified after it is
// appended to a response.
type StageResult struct {
	Stage     string    `json:"stage"`
	Endpoint  string    `json:"model"`
	Purpose   Purpose   `json:"purpose"`
	Input     Payload   `json:"input"`
	Output    Payload   `json:"result"`
	CostCents int64     `json:"cost_cents"`
	Timestamp time.Time `json:"timestamp"`
}

// PipelineResponse is the outcome of a pipeline run. Once Status is terminal
// the response is not modified again.
type PipelineResponse struct {
	RequestID        string                 `json:"request_id"`
	Status           Status                 `json:"status"`
	Results          []StageResult          `json:"results"`
	Metadata         map[string]interface{} `json:"metadata"`
	Errors           []string               `json:"errors"`
	StagesCompleted  []string               `json:"stages_completed"`
	TotalCostCents   int64                  `json:"total_cost_cents"`
	ProcessingTimeMS int64                  `json:"processing_time_ms"`
}

// NewPipelineResponse returns an empty response in the processing state.
func NewPipelineResponse(requestID string) *PipelineResponse {
	return &PipelineResponse{
		RequestID:       requestID,
		Status:          StatusProcessing,
		Results:         []StageResult{},
		Metadata:        map[string]interface{}{},
		Errors:          []string{},
		StagesCompleted: []string{},
	}
}

// RequestStatus is the answer to a status lookup: either the in-flight request
// or the finalized response is set.
type RequestStatus struct {
	RequestID string            `json:"request_id"`
	Status    Status            `json:"status"`
	Request   *PipelineRequest  `json:"request,omitempty"`
	Response  *PipelineResponse `json:"response,omitempty"`
}
