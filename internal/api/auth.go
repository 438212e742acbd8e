package api

import (
	"crypto/subtle"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"github.com/goncalojustino/tempusfugit-public-sub000/internal/config"
)

// PermReview marks keys allowed to approve, deny, resolve cancellations,
// remove reservations and see invisible resources.
const PermReview = "review"

var errPermissionDenied = fmt.Errorf("permission denied")

// Identity is the authenticated caller a handler sees.
type Identity struct {
	Name        string
	Permissions []string
}

// Privileged reports whether the caller holds the review permission.
func (id Identity) Privileged() bool {
	for _, p := range id.Permissions {
		if strings.TrimSpace(p) == PermReview {
			return true
		}
	}
	return false
}

// Auth provides API-key authentication and per-key rate limiting.
type Auth struct {
	cfg      config.APIConfig
	limiters sync.Map // map[string]*rate.Limiter
}

func NewAuth(cfg config.APIConfig) *Auth {
	return &Auth{cfg: cfg}
}

// Authenticate resolves the caller identity from the request headers. With
// auth disabled every caller is an anonymous reviewer, which keeps local
// development one config line away.
func (a *Auth) Authenticate(r *http.Request) (Identity, error) {
	if !a.cfg.Auth.Enabled {
		return Identity{Name: "anonymous", Permissions: []string{PermReview}}, nil
	}

	supplied := strings.TrimSpace(r.Header.Get(a.headerName()))
	if supplied == "" {
		return Identity{}, fmt.Errorf("missing api key header")
	}

	// Constant-time scan over all keys so a miss costs the same as a hit.
	var matched *config.APIClientKey
	for i := range a.cfg.Auth.APIKeys {
		k := &a.cfg.Auth.APIKeys[i]
		if subtle.ConstantTimeCompare([]byte(k.Key), []byte(supplied)) == 1 {
			matched = k
		}
	}
	if matched == nil {
		return Identity{}, fmt.Errorf("invalid api key")
	}
	return Identity{Name: matched.Name, Permissions: matched.Permissions}, nil
}

// CheckRateLimit enforces the per-key token bucket.
func (a *Auth) CheckRateLimit(r *http.Request) error {
	if a.cfg.RateLimit.RPS <= 0 {
		return nil
	}
	if !a.getLimiter(a.clientKey(r)).Allow() {
		return fmt.Errorf("rate limit exceeded")
	}
	return nil
}

func (a *Auth) headerName() string {
	h := strings.TrimSpace(strings.ToLower(a.cfg.Auth.HeaderAPIKey))
	if h == "" {
		h = "x-api-key"
	}
	return h
}

func (a *Auth) clientKey(r *http.Request) string {
	if apiKey := strings.TrimSpace(r.Header.Get(a.headerName())); apiKey != "" {
		return apiKey
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return "unknown"
}

func (a *Auth) getLimiter(key string) *rate.Limiter {
	if v, ok := a.limiters.Load(key); ok {
		return v.(*rate.Limiter)
	}

	burst := a.cfg.RateLimit.Burst
	if burst <= 0 {
		burst = 5
	}
	lim := rate.NewLimiter(rate.Limit(a.cfg.RateLimit.RPS), burst)
	actual, loaded := a.limiters.LoadOrStore(key, lim)
	if loaded {
		return actual.(*rate.Limiter)
	}
	return lim
}
