// Package config loads the walletauth YAML configuration file.
package config

import (
	"errors"
	"fmt"
	"io"
	"net/netip"
	"time"

	"k8s.io/apimachinery/pkg/util/yaml"

	"github.com/shui-community/walletauth/lib/origin"
	"github.com/shui-community/walletauth/lib/ratelimit"
)

var (
	ErrNoOrigins                = errors.New("config.Origins: at least one allowed origin is required")
	ErrInvalidOrigin            = errors.New("config.Origins: invalid origin")
	ErrRateLimitWindowNotParse  = errors.New("config.RateLimit: window does not parse as a Duration, see https://pkg.go.dev/time#ParseDuration (formatted like 1m -> 1 minute)")
	ErrInvalidRateLimit         = errors.New("config.RateLimit: invalid rate limit")
	ErrDuplicateRateLimitRoute  = errors.New("config.RateLimit: route defined more than once")
	ErrMissingRateLimitRoute    = errors.New("config.RateLimit: required route has no rule")
	ErrInvalidRateLimitExemptIP = errors.New("config.RateLimitExempt: invalid CIDR")
)

// Routes that must have a rate limit rule.
const (
	RouteNonce  = "auth:nonce"
	RouteVerify = "auth:verify"
)

type Origins struct {
	Allowed       []string `json:"allowed"`
	RequireHeader bool     `json:"requireHeader"`
}

func (o Origins) Valid() error {
	var errs []error

	if len(o.Allowed) == 0 {
		errs = append(errs, ErrNoOrigins)
	}

	for _, a := range o.Allowed {
		if _, err := origin.Normalize(a); err != nil {
			errs = append(errs, fmt.Errorf("%w %q: %w", ErrInvalidOrigin, a, err))
		}
	}

	return errors.Join(errs...)
}

type rateLimitFileConfig struct {
	Route  string `json:"route"`
	Limit  int64  `json:"limit"`
	Window string `json:"window"`
}

func (r rateLimitFileConfig) parse() (ratelimit.Rule, error) {
	window, err := time.ParseDuration(r.Window)
	if err != nil {
		return ratelimit.Rule{}, fmt.Errorf("%w: ParseDuration(%q) returned: %w", ErrRateLimitWindowNotParse, r.Window, err)
	}

	rule := ratelimit.Rule{Route: r.Route, Limit: r.Limit, Window: window}
	if err := rule.Valid(); err != nil {
		return ratelimit.Rule{}, errors.Join(ErrInvalidRateLimit, err)
	}

	return rule, nil
}

type fileConfig struct {
	Origins         Origins               `json:"origins"`
	RateLimits      []rateLimitFileConfig `json:"rateLimits"`
	RateLimitExempt []string              `json:"rateLimitExempt"`
	Store           *Store                `json:"store"`
}

// Config is the validated configuration.
type Config struct {
	Origins         Origins
	RateLimits      []ratelimit.Rule
	RateLimitExempt []netip.Prefix
	Store           Store
}

func (c *fileConfig) Valid() error {
	var errs []error

	if err := c.Origins.Valid(); err != nil {
		errs = append(errs, err)
	}

	seen := map[string]bool{}
	for i, rl := range c.RateLimits {
		if _, err := rl.parse(); err != nil {
			errs = append(errs, fmt.Errorf("rate limit %d: %w", i, err))
		}

		if seen[rl.Route] {
			errs = append(errs, fmt.Errorf("%w: %s", ErrDuplicateRateLimitRoute, rl.Route))
		}
		seen[rl.Route] = true
	}

	for _, route := range []string{RouteNonce, RouteVerify} {
		if !seen[route] {
			errs = append(errs, fmt.Errorf("%w: %s", ErrMissingRateLimitRoute, route))
		}
	}

	for _, cidr := range c.RateLimitExempt {
		if _, err := netip.ParsePrefix(cidr); err != nil {
			errs = append(errs, fmt.Errorf("%w %q: %w", ErrInvalidRateLimitExemptIP, cidr, err))
		}
	}

	if err := c.Store.Valid(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) != 0 {
		return fmt.Errorf("config is not valid:\n%w", errors.Join(errs...))
	}

	return nil
}

// Load reads and validates a YAML or JSON configuration from fin. fname is
// only used in error messages.
func Load(fin io.Reader, fname string) (*Config, error) {
	c := &fileConfig{
		Store: &Store{
			Backend: "memory",
		},
	}

	if err := yaml.NewYAMLToJSONDecoder(fin).Decode(&c); err != nil {
		return nil, fmt.Errorf("can't parse walletauth config YAML %s: %w", fname, err)
	}

	if c.Store == nil {
		c.Store = &Store{Backend: "memory"}
	}

	if err := c.Valid(); err != nil {
		return nil, fmt.Errorf("errors validating walletauth config %s: %w", fname, err)
	}

	result := &Config{
		Origins: c.Origins,
		Store:   *c.Store,
	}

	for _, rl := range c.RateLimits {
		rule, _ := rl.parse()
		result.RateLimits = append(result.RateLimits, rule)
	}

	for _, cidr := range c.RateLimitExempt {
		result.RateLimitExempt = append(result.RateLimitExempt, netip.MustParsePrefix(cidr))
	}

	return result, nil
}
