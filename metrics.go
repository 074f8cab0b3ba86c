package gatekeeper

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one in-process counter.
type MetricID uint16

const (
	MetricSessionCreated MetricID = iota
	MetricSessionLimitExceeded
	MetricSessionInvalidated
	MetricSessionInvalidatedAll
	MetricRateLimitAllowed
	MetricRateLimitDenied
	// MetricRateLimitStoreError counts Consume calls that failed on the
	// counter store, whether or not the request was let through.
	MetricRateLimitStoreError
	MetricTokenIssued
	MetricTokenRejected
	MetricLoginSuccess
	MetricLoginFailure
	MetricPasswordResetRequest
	MetricPasswordResetConfirmSuccess
	MetricPasswordResetConfirmFailure
	MetricAdminRequestSubmitted
	MetricAdminRequestApproved
	MetricAdminRequestRejected
	MetricAdminRequestConflict
	MetricNotificationEnqueued
	MetricNotificationDelivered
	MetricNotificationFailed
	MetricNotificationDropped
	// MetricAuthenticateLatency is the only histogram.
	MetricAuthenticateLatency
	metricIDCount
)

// MetricCount is the number of defined metric IDs.
const MetricCount = int(metricIDCount)

// latencyBounds are the inclusive upper bounds of the first seven histogram
// buckets; the eighth catches everything slower.
var latencyBounds = [...]time.Duration{
	5 * time.Millisecond,
	10 * time.Millisecond,
	25 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
}

const histBucketCount = len(latencyBounds) + 1

// hasHistogram marks the IDs that accept Observe.
var hasHistogram = [metricIDCount]bool{
	MetricAuthenticateLatency: true,
}

type latencyHistogram struct {
	buckets  [histBucketCount]atomic.Uint64
	sumNanos atomic.Int64
}

// paddedCounter keeps hot counters on separate cache lines.
type paddedCounter struct {
	atomic.Uint64
	_ [56]byte
}

// Metrics is a fixed set of lock-free counters plus latency histograms.
// A nil or disabled *Metrics ignores every call.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]latencyHistogram
}

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
	// HistogramSums holds the total observed duration per histogram.
	HistogramSums map[MetricID]time.Duration
}

func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to id.
func (m *Metrics) Inc(id MetricID) {
	if !m.Enabled() || id >= metricIDCount {
		return
	}
	m.counters[id].Add(1)
}

// Observe records d in the histogram of id. IDs without a histogram are
// ignored.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if !m.LatencyEnabled() || id >= metricIDCount || !hasHistogram[id] {
		return
	}
	h := &m.histograms[id]
	h.buckets[bucketIndex(d)].Add(1)
	h.sumNanos.Add(int64(d))
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return m.counters[id].Load()
}

// Snapshot copies every counter. Disabled metrics yield empty maps.
func (m *Metrics) Snapshot() MetricsSnapshot {
	s := MetricsSnapshot{
		Counters:      map[MetricID]uint64{},
		Histograms:    map[MetricID][]uint64{},
		HistogramSums: map[MetricID]time.Duration{},
	}
	if !m.Enabled() {
		return s
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = m.counters[id].Load()
		if !m.enableLatency || !hasHistogram[id] {
			continue
		}
		h := &m.histograms[id]
		buckets := make([]uint64, histBucketCount)
		for i := range buckets {
			buckets[i] = h.buckets[i].Load()
		}
		s.Histograms[id] = buckets
		s.HistogramSums[id] = time.Duration(h.sumNanos.Load())
	}
	return s
}

func bucketIndex(d time.Duration) int {
	for i, bound := range latencyBounds {
		if d <= bound {
			return i
		}
	}
	return len(latencyBounds)
}
