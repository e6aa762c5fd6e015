// Package rbac decides whether a resolved identity may use a protected route.
package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/promotrack/promotrack/internal/metrics"
	"github.com/promotrack/promotrack/internal/model"
)

// Denial reasons, reported for the first failing facet.
const (
	ReasonInsufficientRole  = "insufficient_role"
	ReasonMissingPermission = "missing_permission"
	ReasonInsufficientLevel = "insufficient_level"
	ReasonNotOwner          = "not_owner"
	ReasonResourceNotFound  = "resource_not_found"
)

// Requirement annotates a route. Zero-valued facets are not checked; the
// rest are ANDed.
type Requirement struct {
	Role       string
	Permission string
	Level      int
	// Ownership enables the owner check for paths matching an owned resource.
	Ownership bool
}

func (r Requirement) String() string {
	var parts []string
	if r.Role != "" {
		parts = append(parts, "role="+r.Role)
	}
	if r.Permission != "" {
		parts = append(parts, "permission="+r.Permission)
	}
	if r.Level > 0 {
		parts = append(parts, fmt.Sprintf("level<=%d", r.Level))
	}
	if r.Ownership {
		parts = append(parts, "owner")
	}
	return strings.Join(parts, ",")
}

// Decision is the outcome of an evaluation. Reason is empty when allowed.
type Decision struct {
	Allowed bool
	Reason  string
}

var allow = Decision{Allowed: true}

func deny(reason string) Decision {
	return Decision{Reason: reason}
}

// Evaluator applies role, permission, level and ownership checks in that
// order and records every decision in the access audit.
type Evaluator struct {
	owners  OwnerLookup
	audit   *AuditLog
	logger  *slog.Logger
	metrics metrics.Recorder
}

// NewEvaluator creates an evaluator. audit and recorder may be nil.
func NewEvaluator(owners OwnerLookup, audit *AuditLog, logger *slog.Logger, recorder metrics.Recorder) *Evaluator {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Evaluator{
		owners:  owners,
		audit:   audit,
		logger:  logger.With("component", "rbac"),
		metrics: recorder,
	}
}

// Evaluate decides whether identity satisfies req for path. A non-nil error
// means the decision could not be made (owner lookup failed).
func (e *Evaluator) Evaluate(ctx context.Context, identity *model.Identity, req Requirement, path string) (Decision, error) {
	if identity.HasRole(model.RoleSuperAdmin) {
		return allow, nil
	}

	if req.Role != "" && !identity.HasRole(req.Role) && identity.BestLevel() > model.LevelForRole(req.Role) {
		return deny(ReasonInsufficientRole), nil
	}

	if req.Permission != "" && !identity.HasPermission(req.Permission) {
		return deny(ReasonMissingPermission), nil
	}

	if req.Level > 0 && identity.BestLevel() > req.Level {
		return deny(ReasonInsufficientLevel), nil
	}

	if req.Ownership {
		return e.checkOwnership(ctx, identity, path)
	}
	return allow, nil
}

func (e *Evaluator) checkOwnership(ctx context.Context, identity *model.Identity, path string) (Decision, error) {
	if IsProfilePath(path) || identity.IsAdmin() {
		return allow, nil
	}

	resource, ok := MatchOwnedResource(path)
	if !ok {
		return allow, nil
	}

	owner, err := resource.lookup(ctx, e.owners)
	if err != nil {
		if errors.Is(err, ErrResourceNotFound) {
			return deny(ReasonResourceNotFound), nil
		}
		return Decision{}, fmt.Errorf("lookup %s owner: %w", resource.Kind, err)
	}

	if owner != identity.UserID {
		return deny(ReasonNotOwner), nil
	}
	return allow, nil
}

// Record reports denials and queues the decision for the audit log. It never
// blocks on the store and never fails.
func (e *Evaluator) Record(entry model.AuditEntry) {
	if !entry.Allowed {
		e.metrics.IncAccessDenied(entry.Reason)
		e.logger.Warn("access denied",
			slog.String("reason", entry.Reason),
			slog.String("user_id", entry.UserID),
			slog.String("method", entry.Method),
			slog.String("path", entry.Path),
			slog.String("request_id", entry.RequestID),
		)
	}
	if e.audit != nil {
		e.audit.Append(entry)
	}
}
