package models

// Health values reported per endpoint and for the pipeline as a whole.
const (
	HealthHealthy   = "healthy"
	HealthUnhealthy = "unhealthy"
	HealthDegraded  = "degraded"
)

// EndpointHealth is the probe result for a single backend.
type EndpointHealth struct {
	Status         string `json:"status"`
	ResponseTimeMS int64  `json:"response_time_ms"`
	Error          string `json:"error,omitempty"`
}

// HealthReport summarizes backend reachability.
type HealthReport struct {
	PipelineStatus string                    `json:"pipeline_status"`
	Models         map[string]EndpointHealth `json:"models"`
	ActiveRequests int                       `json:"active_requests"`
	TotalProcessed int                       `json:"total_processed"`
}

// Stats aggregates the finalized request history.
type Stats struct {
	TotalRequests       int     `json:"total_requests"`
	SuccessfulRequests  int     `json:"successful_requests"`
	PartialRequests     int     `json:"partial_requests"`
	FailedRequests      int     `json:"failed_requests"`
	SuccessRate         float64 `json:"success_rate"`
	AvgProcessingTimeMS float64 `json:"avg_processing_time_ms"`
	TotalCostCents      int64   `json:"total_cost_cents"`
	ActiveRequests      int     `json:"active_requests"`
}
