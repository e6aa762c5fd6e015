package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	TrackingRecorded        uint64
	TrackingRejected        map[string]uint64 // by stage
	TrackingDurationCount   uint64
	TrackingDurationTotalNs int64
	PromotionCacheHits      uint64
	PromotionCacheMisses    uint64
	Conversions             uint64
	RateLimitRejected       map[string]uint64 // by class
	FraudSignals            map[string]uint64 // by signal
	AccessDenied            map[string]uint64 // by reason
	EventsPublished         uint64
	EventsDropped           uint64
}

// InMemoryRecorder stores metrics in memory for tests.
type InMemoryRecorder struct {
	trackingRecorded        uint64
	trackingDurationCount   uint64
	trackingDurationTotalNs int64
	promotionCacheHits      uint64
	promotionCacheMisses    uint64
	conversions             uint64
	eventsPublished         uint64
	eventsDropped           uint64

	mu                sync.Mutex
	trackingRejected  map[string]uint64
	rateLimitRejected map[string]uint64
	fraudSignals      map[string]uint64
	accessDenied      map[string]uint64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{
		trackingRejected:  make(map[string]uint64),
		rateLimitRejected: make(map[string]uint64),
		fraudSignals:      make(map[string]uint64),
		accessDenied:      make(map[string]uint64),
	}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Snapshot{
		TrackingRecorded:        atomic.LoadUint64(&m.trackingRecorded),
		TrackingRejected:        copyCounts(m.trackingRejected),
		TrackingDurationCount:   atomic.LoadUint64(&m.trackingDurationCount),
		TrackingDurationTotalNs: atomic.LoadInt64(&m.trackingDurationTotalNs),
		PromotionCacheHits:      atomic.LoadUint64(&m.promotionCacheHits),
		PromotionCacheMisses:    atomic.LoadUint64(&m.promotionCacheMisses),
		Conversions:             atomic.LoadUint64(&m.conversions),
		RateLimitRejected:       copyCounts(m.rateLimitRejected),
		FraudSignals:            copyCounts(m.fraudSignals),
		AccessDenied:            copyCounts(m.accessDenied),
		EventsPublished:         atomic.LoadUint64(&m.eventsPublished),
		EventsDropped:           atomic.LoadUint64(&m.eventsDropped),
	}
}

func copyCounts(src map[string]uint64) map[string]uint64 {
	dst := make(map[string]uint64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func (m *InMemoryRecorder) inc(counts map[string]uint64, label string) {
	m.mu.Lock()
	counts[label]++
	m.mu.Unlock()
}

// IncTrackingOutcome counts a finished tracking request.
func (m *InMemoryRecorder) IncTrackingOutcome(stage, status string) {
	if status == "recorded" {
		atomic.AddUint64(&m.trackingRecorded, 1)
		return
	}
	m.inc(m.trackingRejected, stage)
}

// ObserveTrackingDuration records pipeline duration.
func (m *InMemoryRecorder) ObserveTrackingDuration(duration time.Duration) {
	atomic.AddUint64(&m.trackingDurationCount, 1)
	atomic.AddInt64(&m.trackingDurationTotalNs, duration.Nanoseconds())
}

// IncPromotionCacheHit increments cache hit counter.
func (m *InMemoryRecorder) IncPromotionCacheHit() {
	atomic.AddUint64(&m.promotionCacheHits, 1)
}

// IncPromotionCacheMiss increments cache miss counter.
func (m *InMemoryRecorder) IncPromotionCacheMiss() {
	atomic.AddUint64(&m.promotionCacheMisses, 1)
}

// IncConversion increments the conversion counter.
func (m *InMemoryRecorder) IncConversion() {
	atomic.AddUint64(&m.conversions, 1)
}

func (m *InMemoryRecorder) IncRateLimitRejected(class string) {
	m.inc(m.rateLimitRejected, class)
}

func (m *InMemoryRecorder) IncFraudSignal(signal string) {
	m.inc(m.fraudSignals, signal)
}

func (m *InMemoryRecorder) IncAccessDenied(reason string) {
	m.inc(m.accessDenied, reason)
}

// IncEventPublished counts stream publishes by status.
func (m *InMemoryRecorder) IncEventPublished(status string) {
	if status == "success" {
		atomic.AddUint64(&m.eventsPublished, 1)
		return
	}
	atomic.AddUint64(&m.eventsDropped, 1)
}
