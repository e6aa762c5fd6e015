// Package events publishes promotion click and conversion events to a Redis
// stream for downstream reward processing.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/promotrack/promotrack/internal/metrics"
	"github.com/promotrack/promotrack/internal/model"
)

const (
	// StreamKey is the Redis stream for promotion events.
	StreamKey = "stream:promotion_events"

	// MaxStreamLen is the approximate max length of the stream.
	MaxStreamLen = 100000

	// PublishTimeout is the max time to wait for Redis publish.
	PublishTimeout = 100 * time.Millisecond
)

// Event types.
const (
	TypeClick      = "click"
	TypeConversion = "conversion"
)

// Event is the compact wire format written to the stream.
type Event struct {
	Type        string `json:"type"`
	ClickID     string `json:"cid"`
	PromotionID string `json:"pid"`
	ServerID    string `json:"sid"`
	Code        string `json:"code,omitempty"`
	Unique      bool   `json:"u,omitempty"`
	Suspected   bool   `json:"sf,omitempty"`
	UserID      string `json:"uid,omitempty"` // converted user
	At          int64  `json:"t"`             // Unix milliseconds
}

// ClickEvent builds the event for a recorded click.
func ClickEvent(click *model.Click, code string) Event {
	return Event{
		Type:        TypeClick,
		ClickID:     click.ID,
		PromotionID: click.PromotionID,
		ServerID:    click.ServerID,
		Code:        code,
		Unique:      click.IsUnique,
		Suspected:   click.IsSuspectedFraud,
		At:          click.CreatedAt.UnixMilli(),
	}
}

// ConversionEvent builds the event for a converted click.
func ConversionEvent(click *model.Click) Event {
	at := time.Now()
	if click.ConvertedAt != nil {
		at = *click.ConvertedAt
	}
	return Event{
		Type:        TypeConversion,
		ClickID:     click.ID,
		PromotionID: click.PromotionID,
		ServerID:    click.ServerID,
		UserID:      click.ConvertedUserID,
		At:          at.UnixMilli(),
	}
}

// Publisher enqueues promotion events to the Redis stream.
type Publisher struct {
	redis   *redis.Client
	logger  *slog.Logger
	metrics metrics.Recorder
}

// NewPublisher creates a new event publisher.
func NewPublisher(client *redis.Client, logger *slog.Logger, recorder metrics.Recorder) *Publisher {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Publisher{
		redis:   client,
		logger:  logger.With("component", "events.publisher"),
		metrics: recorder,
	}
}

// Publish adds an event to the stream synchronously.
func (p *Publisher) Publish(ctx context.Context, event Event) (string, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}

	result, err := p.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey,
		MaxLen: MaxStreamLen,
		Approx: true,
		ID:     "*",
		Values: map[string]interface{}{
			"type":    event.Type,
			"payload": string(data),
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd: %w", err)
	}

	return result, nil
}

// PublishAsync publishes without blocking the caller.
// Errors are logged but not returned (fire-and-forget).
func (p *Publisher) PublishAsync(event Event) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), PublishTimeout)
		defer cancel()

		streamID, err := p.Publish(ctx, event)
		if err != nil {
			p.logger.Warn("failed to publish promotion event",
				slog.String("type", event.Type),
				slog.String("click_id", event.ClickID),
				slog.String("error", err.Error()),
			)
			p.metrics.IncEventPublished("dropped")
			return
		}

		p.logger.Debug("promotion event published",
			slog.String("type", event.Type),
			slog.String("stream_id", streamID),
		)
		p.metrics.IncEventPublished("success")
	}()
}
