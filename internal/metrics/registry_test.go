package metrics

import (
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersAccumulate(t *testing.T) {
	r := NewRegistry()

	for i := 0; i < 5; i++ {
		r.EventProcessed()
	}
	r.EventDropped()
	r.SignalRaised()
	r.SignalRaised()
	r.IncidentRecorded()

	assert.Equal(t, uint64(5), r.EventsProcessed())
	assert.Equal(t, uint64(2), r.SignalsRaised())
	assert.Equal(t, uint64(1), r.IncidentsRecorded())
}

func TestCountersConcurrent(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				r.EventProcessed()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, uint64(8000), r.EventsProcessed())
}

func TestLatencyTracker(t *testing.T) {
	var lt LatencyTracker

	zero := lt.Stats()
	assert.Equal(t, uint64(0), zero.Count)
	assert.Equal(t, uint64(0), zero.Avg)

	lt.Record(300)
	lt.Record(100)
	lt.Record(200)

	st := lt.Stats()
	assert.Equal(t, uint64(100), st.Min)
	assert.Equal(t, uint64(300), st.Max)
	assert.Equal(t, uint64(200), st.Avg)
	assert.Equal(t, uint64(3), st.Count)
}

func TestExportFormat(t *testing.T) {
	r := NewRegistry()
	r.EventProcessed()
	r.RecordRestoreLatency(1500)

	out := r.Export()
	assert.Contains(t, out, "events_processed 1\n")
	assert.Contains(t, out, "events_dropped 0\n")
	assert.Contains(t, out, "restore_latency_avg_ns 1500\n")
	assert.Contains(t, out, "restore_count 1\n")
}

func TestHandlerServesPlainText(t *testing.T) {
	r := NewRegistry()
	r.SignalRaised()

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "signals_raised 1\n")
}
