// Package store tracks in-flight pipeline requests and a bounded history of
// finalized responses.
package store

import (
	"errors"
	"fmt"
	"sync"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"multimodal-pipeline/pkg/models"
)

// DefaultCapacity is the history size used when none is configured.
const DefaultCapacity = 1000

var (
	// ErrDuplicateRequest is returned when a request id is already in flight or
	// in the history.
	ErrDuplicateRequest = errors.New("duplicate request id")
	// ErrNotFound is returned by Lookup for ids that are neither in flight nor
	// in the history.
	ErrNotFound = errors.New("request not found")
)

// Store holds in-flight requests and finalized responses. Both collections
// are guarded by one lock, so a request is always visible in exactly one of
// them between Admit and eviction from the history.
//
// The history never promotes entries on read (only Peek is used), so the
// least recently used entry is always the oldest finalized one.
type Store struct {
	mu       sync.RWMutex
	inFlight map[string]*models.PipelineRequest
	history  *simplelru.LRU[string, *models.PipelineResponse]
	capacity int
}

// New creates a Store that keeps at most capacity finalized responses. A
// non-positive capacity selects DefaultCapacity.
func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	history, err := simplelru.NewLRU[string, *models.PipelineResponse](capacity, nil)
	if err != nil {
		// NewLRU only fails for a non-positive size.
		panic(fmt.Sprintf("store: %v", err))
	}
	return &Store{
		inFlight: make(map[string]*models.PipelineRequest),
		history:  history,
		capacity: capacity,
	}
}

// Capacity returns the maximum history size.
func (s *Store) Capacity() int {
	return s.capacity
}

// Admit registers req as in flight.
func (s *Store) Admit(req *models.PipelineRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.inFlight[req.RequestID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateRequest, req.RequestID)
	}
	if s.history.Contains(req.RequestID) {
		return fmt.Errorf("%w: %s", ErrDuplicateRequest, req.RequestID)
	}
	s.inFlight[req.RequestID] = req
	return nil
}

// Lookup returns the in-flight request or the finalized response for id.
func (s *Store) Lookup(id string) (models.RequestStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if req, ok := s.inFlight[id]; ok {
		return models.RequestStatus{RequestID: id, Status: models.StatusProcessing, Request: req}, nil
	}
	if resp, ok := s.history.Peek(id); ok {
		return models.RequestStatus{RequestID: id, Status: resp.Status, Response: resp}, nil
	}
	return models.RequestStatus{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Finalize appends resp to the history, evicting the oldest entry when full.
func (s *Store) Finalize(resp *models.PipelineResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history.Add(resp.RequestID, resp)
}

// Remove drops id from the in-flight set. Removing an unknown id is a no-op.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, id)
}

// Complete finalizes resp and removes its request from the in-flight set in
// a single step.
func (s *Store) Complete(resp *models.PipelineResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history.Add(resp.RequestID, resp)
	delete(s.inFlight, resp.RequestID)
}

// InFlight returns the number of requests currently being processed.
func (s *Store) InFlight() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.inFlight)
}

// HistoryLen returns the number of finalized responses retained.
func (s *Store) HistoryLen() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.history.Len()
}

// History returns the retained responses, oldest first.
func (s *Store) History() []*models.PipelineResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.historyLocked()
}

func (s *Store) historyLocked() []*models.PipelineResponse {
	keys := s.history.Keys()
	out := make([]*models.PipelineResponse, 0, len(keys))
	for _, k := range keys {
		if resp, ok := s.history.Peek(k); ok {
			out = append(out, resp)
		}
	}
	return out
}

// Stats aggregates the retained history. An empty history yields zero values.
func (s *Store) Stats() models.Stats {
	s.mu.RLock()
	history := s.historyLocked()
	active := len(s.inFlight)
	s.mu.RUnlock()

	stats := models.Stats{
		TotalRequests:  len(history),
		ActiveRequests: active,
	}
	if len(history) == 0 {
		return stats
	}

	var totalMS int64
	for _, resp := range history {
		switch resp.Status {
		case models.StatusCompleted:
			stats.SuccessfulRequests++
		case models.StatusPartial:
			stats.PartialRequests++
		case models.StatusFailed:
			stats.FailedRequests++
		}
		totalMS += resp.ProcessingTimeMS
		stats.TotalCostCents += resp.TotalCostCents
	}
	total := float64(stats.TotalRequests)
	stats.SuccessRate = float64(stats.SuccessfulRequests) / total * 100
	stats.AvgProcessingTimeMS = float64(totalMS) / total
	return stats
}
