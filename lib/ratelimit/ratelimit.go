// Package ratelimit throttles requests per client address and route with
// fixed windows counted in a store.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/netip"
	"strconv"
	"time"

	"github.com/gaissmai/bart"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/shui-community/walletauth"
	"github.com/shui-community/walletauth/internal"
	"github.com/shui-community/walletauth/lib/autherr"
	"github.com/shui-community/walletauth/lib/store"
)

var (
	ErrUnknownRoute = errors.New("ratelimit: no rule for route")
	ErrBadRule      = errors.New("ratelimit: rule is invalid")

	rateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "walletauth_rate_limited_total",
		Help: "The total number of requests denied by the rate limiter",
	}, []string{"route"})
)

// Rule allows Limit requests per Window on Route.
type Rule struct {
	Route  string       
	Limit  int64        
	Window time.Duration
}

func (r Rule) Valid() error {
	var errs []error

	if r.Route == "" {
		errs = append(errs, errors.New("route is empty"))
	}

	if r.Limit <= 0 {
		errs = append(errs, fmt.Errorf("limit must be positive, got %d", r.Limit))
	}

	if r.Window < time.Second {
		errs = append(errs, fmt.Errorf("window must be at least one second, got %s", r.Window))
	}

	if len(errs) != 0 {
		return fmt.Errorf("%w %q: %w", ErrBadRule, r.Route, errors.Join(errs...))
	}

	return nil
}

// Decision is the outcome of one Admit call.
type Decision struct {
	Allowed    bool
	Exempt     bool
	Limit      int64
	Remaining  int64
	Reset      time.Duration
	RetryAfter time.Duration
}

// Limiter counts requests in a store. A store shared by every instance gives
// global limits; a per-process store limits each instance on its own.
type Limiter struct {
	store   store.Interface
	rules   map[string]Rule
	exempt  *bart.Table[netip.Prefix]
	timeout time.Duration
}

// New creates a Limiter. Requests from addresses inside any exempt prefix
// are never counted.
func New(backend store.Interface, rules []Rule, exempt []netip.Prefix) (*Limiter, error) {
	result := &Limiter{
		store:   backend,
		rules:   make(map[string]Rule, len(rules)),
		exempt:  &bart.Table[netip.Prefix]{},
		timeout: walletauth.DefaultStoreTimeout,
	}

	var errs []error
	for _, rule := range rules {
		if err := rule.Valid(); err != nil {
			errs = append(errs, err)
			continue
		}
		result.rules[rule.Route] = rule
	}

	if len(errs) != 0 {
		return nil, errors.Join(errs...)
	}

	for _, pfx := range exempt {
		pfx = pfx.Masked()
		result.exempt.Insert(pfx, pfx)
	}

	return result, nil
}

// Rule returns the configured rule for route.
func (l *Limiter) Rule(route string) (Rule, bool) {
	rule, ok := l.rules[route]
	return rule, ok
}

// Key returns the store key counting clientIP on route. The address is hashed
// so raw client addresses never reach the store.
func Key(route, clientIP string) string {
	return walletauth.RateLimitPrefix + route + ":" + internal.FastHash(clientIP)
}

// Admit counts one request from clientIP on route and decides whether it
// may proceed. Store failures admit the request.
func (l *Limiter) Admit(ctx context.Context, route, clientIP string, limit int64, window time.Duration) (Decision, error) {
	result := Decision{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit,
		Reset:     window,
	}

	if addr, err := netip.ParseAddr(clientIP); err == nil {
		if _, ok := l.exempt.Lookup(addr.Unmap()); ok {
			result.Exempt = true
			return result, nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	count, ttl, err := l.store.Increment(ctx, Key(route, clientIP), window)
	if err != nil {
		return result, fmt.Errorf("ratelimit: can't count request: %w", err)
	}

	if ttl <= 0 || ttl > window {
		ttl = window
	}

	result.Reset = ttl
	result.Remaining = max(0, limit-count)

	if count > limit {
		result.Allowed = false
		result.RetryAfter = ttl
	}

	return result, nil
}

// Middleware enforces the rule for route in front of next. It panics when
// route has no rule, as that is a wiring mistake.
func (l *Limiter) Middleware(route string, next http.Handler) http.Handler {
	rule, ok := l.rules[route]
	if !ok {
		panic(fmt.Errorf("%w: %s", ErrUnknownRoute, route))
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lg := internal.GetRequestLogger(r)

		d, err := l.Admit(r.Context(), rule.Route, internal.ClientIP(r), rule.Limit, rule.Window)
		if err != nil {
			lg.Warn("rate limit store failed, admitting request", "route", rule.Route, "err", err)
		}

		if !d.Exempt {
			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.FormatInt(d.Limit, 10))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(d.Remaining, 10))
			h.Set("X-RateLimit-Reset", seconds(d.Reset))
		}

		if !d.Allowed {
			rateLimited.WithLabelValues(rule.Route).Inc()
			w.Header().Set("Retry-After", seconds(d.RetryAfter))
			lg.Debug("rate limited", slog.String("route", rule.Route))
			autherr.Write(w, lg, autherr.New(autherr.RateLimited, nil))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func seconds(d time.Duration) string {
	return strconv.FormatInt(int64(math.Ceil(d.Seconds())), 10)
}
