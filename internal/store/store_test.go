package store

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"multimodal-pipeline/pkg/models"
)

func finished(id string, status models.Status, ms, cents int64) *models.PipelineResponse {
	resp := models.NewPipelineResponse(id)
	resp.Status = status
	resp.ProcessingTimeMS = ms
	resp.TotalCostCents = cents
	return resp
}

func TestStore_Lifecycle(t *testing.T) {
	s := New(10)
	req := &models.PipelineRequest{RequestID: "r1"}

	require.NoError(t, s.Admit(req))
	got, err := s.Lookup("r1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, got.Status)
	assert.Same(t, req, got.Request)
	assert.Nil(t, got.Response)
	assert.Equal(t, 1, s.InFlight())

	s.Complete(finished("r1", models.StatusPartial, 10, 1))

	got, err = s.Lookup("r1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPartial, got.Status)
	assert.Nil(t, got.Request)
	require.NotNil(t, got.Response)
	assert.Equal(t, 0, s.InFlight())
	assert.Equal(t, 1, s.HistoryLen())
}

func TestStore_FinalizeAndRemove(t *testing.T) {
	s := New(10)
	require.NoError(t, s.Admit(&models.PipelineRequest{RequestID: "r1"}))

	s.Finalize(finished("r1", models.StatusCompleted, 1, 1))
	s.Remove("r1")
	s.Remove("never-admitted")

	got, err := s.Lookup("r1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)
	assert.Equal(t, 0, s.InFlight())
}

func TestStore_LookupUnknown(t *testing.T) {
	_, err := New(1).Lookup("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_DuplicateIDs(t *testing.T) {
	s := New(10)
	require.NoError(t, s.Admit(&models.PipelineRequest{RequestID: "r1"}))
	assert.ErrorIs(t, s.Admit(&models.PipelineRequest{RequestID: "r1"}), ErrDuplicateRequest)

	s.Complete(finished("r1", models.StatusCompleted, 1, 1))
	assert.ErrorIs(t, s.Admit(&models.PipelineRequest{RequestID: "r1"}), ErrDuplicateRequest)
}

func TestStore_CapacityEvictsOldest(t *testing.T) {
	s := New(3)
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("r%d", i)
		require.NoError(t, s.Admit(&models.PipelineRequest{RequestID: id}))
		s.Complete(finished(id, models.StatusCompleted, 1, 1))
		// reads must not change eviction order
		_, _ = s.Lookup("r0")
	}

	assert.Equal(t, 3, s.HistoryLen())
	assert.Equal(t, 3, s.Stats().TotalRequests)

	for _, id := range []string{"r0", "r1"} {
		_, err := s.Lookup(id)
		assert.ErrorIs(t, err, ErrNotFound, id)
	}

	history := s.History()
	require.Len(t, history, 3)
	assert.Equal(t, "r2", history[0].RequestID)
	assert.Equal(t, "r4", history[2].RequestID)
}

func TestStore_DefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultCapacity, New(0).Capacity())
	assert.Equal(t, DefaultCapacity, New(-5).Capacity())
}

func TestStore_StatsEmpty(t *testing.T) {
	s := New(5)
	require.NoError(t, s.Admit(&models.PipelineRequest{RequestID: "busy"}))

	assert.Equal(t, models.Stats{ActiveRequests: 1}, s.Stats())
}

func TestStore_Stats(t *testing.T) {
	s := New(10)
	s.Finalize(finished("a", models.StatusCompleted, 100, 5))
	s.Finalize(finished("b", models.StatusCompleted, 200, 10))
	s.Finalize(finished("c", models.StatusPartial, 300, 1))
	s.Finalize(finished("d", models.StatusFailed, 400, 0))

	stats := s.Stats()
	assert.Equal(t, 4, stats.TotalRequests)
	assert.Equal(t, 2, stats.SuccessfulRequests)
	assert.Equal(t, 1, stats.PartialRequests)
	assert.Equal(t, 1, stats.FailedRequests)
	assert.InDelta(t, 50.0, stats.SuccessRate, 0.001)
	assert.InDelta(t, 250.0, stats.AvgProcessingTimeMS, 0.001)
	assert.Equal(t, int64(16), stats.TotalCostCents)
	assert.Equal(t, 0, stats.ActiveRequests)
}

func TestStore_ConcurrentAccessNeverLosesARequest(t *testing.T) {
	s := New(1000)
	const workers = 50

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		id := fmt.Sprintf("req-%d", i)
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Admit(&models.PipelineRequest{RequestID: id}))
			s.Complete(finished(id, models.StatusCompleted, 1, 1))
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				got, err := s.Lookup(id)
				if err != nil {
					// not admitted yet
					continue
				}
				// exactly one of the two is set
				assert.NotEqual(t, got.Request == nil, got.Response == nil)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, s.InFlight())
	assert.Equal(t, workers, s.HistoryLen())
}
