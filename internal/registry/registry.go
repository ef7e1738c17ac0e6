// Package registry holds the read-only endpoint registry and workflow catalog
// shared by every pipeline run.
//
// Both types are built once at startup and never mutated afterwards, so they
// are safe for concurrent use without locking.
package registry

import (
	"errors"
	"fmt"
	"sort"

	"multimodal-pipeline/pkg/models"
)

var (
	// ErrEndpointNotFound is returned when a stage names an unregistered backend.
	ErrEndpointNotFound = errors.New("endpoint not found")
	// ErrWorkflowNotFound is returned by strict lookups of unknown workflow names.
	ErrWorkflowNotFound = errors.New("workflow not found")
)

// Registry maps backend names to their endpoint metadata.
type Registry struct {
	endpoints map[string]models.Endpoint
}

// NewRegistry validates and indexes the given endpoints.
func NewRegistry(endpoints []models.Endpoint) (*Registry, error) {
	r := &Registry{endpoints: make(map[string]models.Endpoint, len(endpoints))}
	for _, ep := range endpoints {
		if err := validateEndpoint(ep); err != nil {
			return nil, err
		}
		if _, dup := r.endpoints[ep.Name]; dup {
			return nil, fmt.Errorf("endpoint %q registered twice", ep.Name)
		}
		r.endpoints[ep.Name] = ep
	}
	return r, nil
}

// Resolve returns the endpoint registered under name.
func (r *Registry) Resolve(name string) (models.Endpoint, error) {
	ep, ok := r.endpoints[name]
	if !ok {
		return models.Endpoint{}, fmt.Errorf("%w: %s", ErrEndpointNotFound, name)
	}
	return ep, nil
}

// Endpoints returns every registered endpoint sorted by name.
func (r *Registry) Endpoints() []models.Endpoint {
	out := make([]models.Endpoint, 0, len(r.endpoints))
	for _, ep := range r.endpoints {
		out = append(out, ep)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of registered endpoints.
func (r *Registry) Len() int {
	return len(r.endpoints)
}

func validateEndpoint(ep models.Endpoint) error {
	if ep.Name == "" {
		return errors.New("endpoint name is required")
	}
	if ep.URL == "" {
		return fmt.Errorf("endpoint %q: url is required", ep.Name)
	}
	if !ep.Modality.Valid() {
		return fmt.Errorf("endpoint %q: unknown modality %q", ep.Name, ep.Modality)
	}
	if ep.MaxRetries < 0 {
		return fmt.Errorf("endpoint %q: max_retries must not be negative", ep.Name)
	}
	if ep.Timeout <= 0 {
		return fmt.Errorf("endpoint %q: timeout must be positive", ep.Name)
	}
	if ep.CostPerRequest < 0 {
		return fmt.Errorf("endpoint %q: cost_per_request must not be negative", ep.Name)
	}
	return nil
}
