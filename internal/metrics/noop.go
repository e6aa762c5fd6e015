package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

func (n *NoopRecorder) IncTrackingOutcome(stage, status string) {}
func (n *NoopRecorder) ObserveTrackingDuration(duration time.Duration) {}
func (n *NoopRecorder) IncPromotionCacheHit() {}
func (n *NoopRecorder) IncPromotionCacheMiss() {}
func (n *NoopRecorder) IncConversion() {}
func (n *NoopRecorder) IncRateLimitRejected(class string) {}
func (n *NoopRecorder) IncFraudSignal(signal string) {}
func (n *NoopRecorder) IncAccessDenied(reason string) {}
func (n *NoopRecorder) IncEventPublished(status string) {}
