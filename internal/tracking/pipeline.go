// Package tracking records promotion link clicks through an ordered pipeline
// of guard stages and marks clicks converted on signup.
package tracking

import (
	"context"
	"net/http"

	"github.com/promotrack/promotrack/internal/model"
	"github.com/promotrack/promotrack/internal/ratelimit"
)

// State is a position in the tracking state machine.
type State string

const (
	StateStart         State = "START"
	StateCodeExtracted State = "CODE_EXTRACTED"
	StateRateChecked   State = "RATE_CHECKED"
	StateFraudScreened State = "FRAUD_SCREENED"
	StateClickRecorded State = "CLICK_RECORDED"
	StateResponseSent  State = "RESPONSE_SENT"
	StateRejected      State = "REJECTED"
)

// Format selects how a tracked click is answered.
type Format int

const (
	FormatRedirect Format = iota
	FormatPixel
)

// Request carries one tracking request through the pipeline. Each stage
// fills in the fields later stages and the response depend on.
type Request struct {
	HTTP    *http.Request
	RawCode string // URL parameter, may be empty
	Format  Format

	Client    model.ClientIdentity
	Code      string
	RateLimit ratelimit.Result
	Tracking  *model.TrackingContext
	Promotion *model.Promotion
	Click     *model.Click

	State State
	// FailedStage is the stage that rejected the request.
	FailedStage State
}

// Stage is one step of the pipeline. Returning an *apperror.Error rejects
// the request; any other error is treated as internal.
type Stage interface {
	Name() State
	Execute(ctx context.Context, req *Request) error
}

// Pipeline runs stages in order and stops at the first rejection.
type Pipeline struct {
	stages []Stage
}

// NewPipeline builds a pipeline from an ordered stage list.
func NewPipeline(stages ...Stage) *Pipeline {
	return &Pipeline{stages: stages}
}

// Stages returns the stage names in execution order.
func (p *Pipeline) Stages() []State {
	names := make([]State, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name()
	}
	return names
}

// Run executes every stage. On failure req.State is StateRejected and
// req.FailedStage names the stage that stopped it.
func (p *Pipeline) Run(ctx context.Context, req *Request) error {
	req.State = StateStart
	for _, stage := range p.stages {
		if err := stage.Execute(ctx, req); err != nil {
			req.State = StateRejected
			req.FailedStage = stage.Name()
			return err
		}
		req.State = stage.Name()
	}
	return nil
}
