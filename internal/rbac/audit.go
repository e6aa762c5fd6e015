package rbac

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/promotrack/promotrack/internal/cache"
	"github.com/promotrack/promotrack/internal/model"
)

const (
	auditKeyPrefix = "audit:access:"

	// AuditMaxEntries caps each hourly audit list.
	AuditMaxEntries = 10000
	// AuditTTL is how long an hourly audit list is kept.
	AuditTTL = 7 * 24 * time.Hour
	// auditWriteTimeout bounds a single audit write.
	auditWriteTimeout = 100 * time.Millisecond
	// auditQueueSize is how many entries may wait for the writer.
	auditQueueSize = 1024
)

// AuditLog keeps hourly, capped lists of access decisions. Entries are
// queued and written by a single background writer in arrival order, so the
// request path never waits on the store.
type AuditLog struct {
	store  cache.Store
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan auditJob
	done   chan struct{}
}

// auditJob is either an entry to write or a flush marker.
type auditJob struct {
	entry   model.AuditEntry
	flushed chan struct{}
}

// NewAuditLog creates an audit log over store and starts its writer.
func NewAuditLog(store cache.Store, logger *slog.Logger) *AuditLog {
	a := &AuditLog{
		store:  store,
		logger: logger.With("component", "rbac.audit"),
		queue:  make(chan auditJob, auditQueueSize),
		done:   make(chan struct{}),
	}
	go a.run()
	return a
}

// Append queues entry without blocking. When the queue is full or the log is
// closed the entry is dropped and logged.
func (a *AuditLog) Append(entry model.AuditEntry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return
	}
	select {
	case a.queue <- auditJob{entry: entry}:
	default:
		a.logger.Warn("audit queue full, entry dropped",
			slog.String("request_id", entry.RequestID),
		)
	}
}

// Flush waits until every entry queued before the call has been written.
func (a *AuditLog) Flush(ctx context.Context) error {
	flushed := make(chan struct{})

	a.mu.RLock()
	if a.closed {
		a.mu.RUnlock()
		return nil
	}
	select {
	case a.queue <- auditJob{flushed: flushed}:
	case <-ctx.Done():
		a.mu.RUnlock()
		return ctx.Err()
	}
	a.mu.RUnlock()

	select {
	case <-flushed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting entries and waits for the queue to drain. It is
// registered as a shutdown hook ahead of the Redis client.
func (a *AuditLog) Close(ctx context.Context) error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()

	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *AuditLog) run() {
	defer close(a.done)
	for job := range a.queue {
		if job.flushed != nil {
			close(job.flushed)
			continue
		}
		a.write(job.entry)
	}
}

// write stores one entry. Failures are logged and swallowed.
func (a *AuditLog) write(entry model.AuditEntry) {
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), auditWriteTimeout)
	defer cancel()

	key := auditKeyPrefix + model.HourBucket(entry.Timestamp)
	if err := a.store.PushCapped(ctx, key, data, AuditMaxEntries, AuditTTL); err != nil {
		a.logger.Warn("audit write failed",
			slog.String("error", err.Error()),
			slog.String("request_id", entry.RequestID),
		)
	}
}

// Recent returns up to n entries of the hour containing at, newest first.
func (a *AuditLog) Recent(ctx context.Context, at time.Time, n int64) ([]model.AuditEntry, error) {
	raw, err := a.store.ListRecent(ctx, auditKeyPrefix+model.HourBucket(at), n)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}

	out := make([]model.AuditEntry, 0, len(raw))
	for _, item := range raw {
		var entry model.AuditEntry
		if err := json.Unmarshal(item, &entry); err != nil {
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}
