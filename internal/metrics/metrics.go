// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Recorder captures metric events for the application.
type Recorder interface {
	// Tracking pipeline metrics
	IncTrackingOutcome(stage, status string) // status: "recorded" or "rejected"
	ObserveTrackingDuration(duration time.Duration)
	IncPromotionCacheHit()
	IncPromotionCacheMiss()
	IncConversion()

	// Guard metrics
	IncRateLimitRejected(class string)
	IncFraudSignal(signal string)
	IncAccessDenied(reason string)

	// Event stream metrics
	IncEventPublished(status string) // status: "success" or "dropped"
}
