package ratelimit

import (
	"net/http"
	"strings"
	"time"
)

// Class is an endpoint class with its own quota.
type Class string

const (
	ClassLogin    Class = "login"
	ClassRegister Class = "register"
	ClassAPI      Class = "api"
	ClassOther    Class = "other"
)

// Quota is a limit per fixed window.
type Quota struct {
	Limit  int64
	Window time.Duration
}

// Policy maps endpoint classes to quotas.
type Policy struct {
	Login    int64
	Register int64
	API      int64
	Window   time.Duration
}

// DefaultPolicy returns the stock quotas.
func DefaultPolicy() Policy {
	return Policy{
		Login:    5,
		Register: 3,
		API:      100,
		Window:   time.Hour,
	}
}

// Classify returns the endpoint class of a request.
func Classify(r *http.Request) Class {
	path := strings.TrimSuffix(r.URL.Path, "/")
	switch {
	case r.Method == http.MethodPost && path == "/api/auth/login":
		return ClassLogin
	case r.Method == http.MethodPost && path == "/api/auth/register":
		return ClassRegister
	case path == "/api" || strings.HasPrefix(path, "/api/"):
		return ClassAPI
	default:
		return ClassOther
	}
}

// QuotaFor returns the quota applied to class. Paths outside /api get
// twice the generic limit.
func (p Policy) QuotaFor(class Class) Quota {
	switch class {
	case ClassLogin:
		return Quota{Limit: p.Login, Window: p.Window}
	case ClassRegister:
		return Quota{Limit: p.Register, Window: p.Window}
	case ClassAPI:
		return Quota{Limit: p.API, Window: p.Window}
	default:
		return Quota{Limit: 2 * p.API, Window: p.Window}
	}
}

// Identifier builds the counter identifier for a request. Authenticated
// callers are counted per user, anonymous ones per client IP.
func Identifier(class Class, userID, clientIP string) string {
	if userID != "" {
		return string(class) + ":user:" + userID
	}
	return string(class) + ":ip:" + clientIP
}
