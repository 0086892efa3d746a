package metrics

import (
	"fmt"
	"net/http"
	"sync/atomic"
)

// Registry holds the engine's operational counters. All updates are
// lock-free; detectors call these from their hot path.
type Registry struct {
	eventsProcessed   atomic.Uint64
	eventsDropped     atomic.Uint64
	signalsRaised     atomic.Uint64
	incidentsRecorded atomic.Uint64
	restoreLatency    LatencyTracker
}

func NewRegistry() *Registry {
	return &Registry{}
}

func (r *Registry) EventProcessed()   { r.eventsProcessed.Add(1) }
func (r *Registry) EventDropped()     { r.eventsDropped.Add(1) }
func (r *Registry) SignalRaised()     { r.signalsRaised.Add(1) }
func (r *Registry) IncidentRecorded() { r.incidentsRecorded.Add(1) }

func (r *Registry) RecordRestoreLatency(ns uint64) { r.restoreLatency.Record(ns) }

func (r *Registry) EventsProcessed() uint64   { return r.eventsProcessed.Load() }
func (r *Registry) SignalsRaised() uint64     { return r.signalsRaised.Load() }
func (r *Registry) IncidentsRecorded() uint64 { return r.incidentsRecorded.Load() }

// Export renders the counters in a line-per-metric text format.
func (r *Registry) Export() string {
	lat := r.restoreLatency.Stats()
	return fmt.Sprintf(
		"events_processed %d\nevents_dropped %d\nsignals_raised %d\nincidents_recorded %d\nrestore_latency_min_ns %d\nrestore_latency_max_ns %d\nrestore_latency_avg_ns %d\nrestore_count %d\n",
		r.eventsProcessed.Load(), r.eventsDropped.Load(),
		r.signalsRaised.Load(), r.incidentsRecorded.Load(),
		lat.Min, lat.Max, lat.Avg, lat.Count,
	)
}

// Handler serves the counters plus a host snapshot over HTTP.
func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprint(w, r.Export())
		fmt.Fprint(w, SystemSnapshot().Export())
	})
}

// LatencyTracker keeps min/max/avg over recorded durations using only
// atomics.
type LatencyTracker struct {
	min   atomic.Uint64
	max   atomic.Uint64
	count atomic.Uint64
	sum   atomic.Uint64
}

type LatencyStats struct {
	Min   uint64
	Max   uint64
	Avg   uint64
	Count uint64
}

func (t *LatencyTracker) Record(ns uint64) {
	t.count.Add(1)
	t.sum.Add(ns)

	for {
		old := t.min.Load()
		if old != 0 && ns >= old {
			break
		}
		if t.min.CompareAndSwap(old, ns) {
			break
		}
	}
	for {
		old := t.max.Load()
		if ns <= old {
			break
		}
		if t.max.CompareAndSwap(old, ns) {
			break
		}
	}
}

func (t *LatencyTracker) Stats() LatencyStats {
	count := t.count.Load()
	var avg uint64
	if count > 0 {
		avg = t.sum.Load() / count
	}
	return LatencyStats{Min: t.min.Load(), Max: t.max.Load(), Avg: avg, Count: count}
}
