package rbac

import (
	"context"
	"errors"
	"regexp"
	"strings"
)

// ErrResourceNotFound is returned by an OwnerLookup for unknown resources.
var ErrResourceNotFound = errors.New("resource not found")

// OwnerLookup resolves the owner of an owned resource.
type OwnerLookup interface {
	ServerOwner(ctx context.Context, serverID string) (string, error)
	PromotionOwner(ctx context.Context, promotionID string) (string, error)
}

// Resource kinds subject to ownership checks.
const (
	ResourceServer    = "server"
	ResourcePromotion = "promotion"
)

// OwnedResource is a resource referenced by a request path.
type OwnedResource struct {
	Kind string
	ID   string
}

var ownedPatterns = []struct {
	kind    string
	pattern *regexp.Regexp
}{
	{ResourceServer, regexp.MustCompile(`^/api/servers/([^/]+)(?:/.*)?$`)},
	{ResourcePromotion, regexp.MustCompile(`^/api/promotions/([^/]+)(?:/.*)?$`)},
}

// MatchOwnedResource reports the resource a path refers to, if any.
func MatchOwnedResource(path string) (OwnedResource, bool) {
	for _, p := range ownedPatterns {
		if m := p.pattern.FindStringSubmatch(path); m != nil {
			return OwnedResource{Kind: p.kind, ID: m[1]}, true
		}
	}
	return OwnedResource{}, false
}

// IsProfilePath reports whether path is the caller's own profile.
func IsProfilePath(path string) bool {
	path = strings.TrimSuffix(path, "/")
	return path == "/api/profile" || strings.HasPrefix(path, "/api/profile/")
}

func (r OwnedResource) lookup(ctx context.Context, owners OwnerLookup) (string, error) {
	switch r.Kind {
	case ResourceServer:
		return owners.ServerOwner(ctx, r.ID)
	case ResourcePromotion:
		return owners.PromotionOwner(ctx, r.ID)
	default:
		return "", ErrResourceNotFound
	}
}
