package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	m.IncRequest("product")
	m.ObserveDuration(time.Second)
	m.IncRetries()
	m.IncError("timeout")
	m.IncCacheHit(TierDisk)
	m.IncUpsert(OutcomeInserted)
	m.IncAdapterFailure()
	m.SetQueueDepth(3)
}

func TestCountersRecord(t *testing.T) {
	m := New()
	m.IncRequest("sitemap")
	m.IncRequest("sitemap")
	m.IncCacheHit(TierMemory)
	m.IncUpsert(OutcomeUpdated)
	m.IncAdapterFailure()
	m.SetQueueDepth(7)

	if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("sitemap")); got != 2 {
		t.Fatalf("requests = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.CacheHitsTotal.WithLabelValues(TierMemory)); got != 1 {
		t.Fatalf("memory cache hits = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.UpsertsTotal.WithLabelValues(OutcomeUpdated)); got != 1 {
		t.Fatalf("updated upserts = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.AdapterFailures); got != 1 {
		t.Fatalf("adapter failures = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.QueueDepth); got != 7 {
		t.Fatalf("queue depth = %v, want 7", got)
	}
}
