// Package origin decides whether a request comes from a page the service
// trusts, and yields the normalised origin that challenges get bound to.
package origin

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ErrMissing    = errors.New("origin: request carries no origin")
	ErrMalformed  = errors.New("origin: value is not a scheme://host origin")
	ErrNotAllowed = errors.New("origin: not in the allow-list")

	rejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "walletauth_origin_rejections_total",
		Help: "The total number of requests refused because of their origin",
	})
)

// DefaultAllowed is used when no allow-list is configured.
var DefaultAllowed = []string{
	"http://localhost:3000",
	"http://127.0.0.1:3000",
	"http://localhost:3005",
	"http://127.0.0.1:3005",
}

// Validator checks request origins against an allow-list.
type Validator struct {
	allowed       map[string]struct{}
	requireHeader bool
}

// New builds a Validator. Every entry is normalised; an entry that does not
// parse as an origin is an error. With requireHeader set, requests without
// Origin or Referer are refused instead of falling back to Host.
func New(allowed []string, requireHeader bool) (*Validator, error) {
	if len(allowed) == 0 {
		allowed = DefaultAllowed
	}

	result := &Validator{
		allowed:       make(map[string]struct{}, len(allowed)),
		requireHeader: requireHeader,
	}

	var errs []error
	for _, o := range allowed {
		n, err := Normalize(o)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		result.allowed[n] = struct{}{}
	}

	if len(errs) != 0 {
		return nil, errors.Join(errs...)
	}

	return result, nil
}

// Allowed reports whether the normalised form of o is in the allow-list.
func (v *Validator) Allowed(o string) bool {
	n, err := Normalize(o)
	if err != nil {
		return false
	}
	_, ok := v.allowed[n]
	return ok
}

// Check returns the normalised origin of r when it is allowed. Sources are
// tried in order: Origin, the origin of Referer, then one derived from Host.
func (v *Validator) Check(r *http.Request) (string, error) {
	o, err := v.check(r)
	if err != nil {
		rejections.Inc()
	}
	return o, err
}

func (v *Validator) check(r *http.Request) (string, error) {
	var raw string

	switch {
	case strings.TrimSpace(r.Header.Get("Origin")) != "":
		raw = r.Header.Get("Origin")
	case strings.TrimSpace(r.Header.Get("Referer")) != "":
		u, err := url.Parse(strings.TrimSpace(r.Header.Get("Referer")))
		if err != nil || u.Scheme == "" || u.Host == "" {
			return "", fmt.Errorf("%w: referer %q", ErrMalformed, r.Header.Get("Referer"))
		}
		raw = u.Scheme + "://" + u.Host
	case !v.requireHeader && r.Host != "":
		raw = requestScheme(r) + "://" + r.Host
	default:
		return "", ErrMissing
	}

	n, err := Normalize(raw)
	if err != nil {
		return "", err
	}

	if _, ok := v.allowed[n]; !ok {
		return "", fmt.Errorf("%w: %s", ErrNotAllowed, n)
	}

	return n, nil
}

// Normalize lowercases scheme and host, drops a trailing slash and the
// default port for the scheme. Only http and https origins without a path
// are accepted; "null" is rejected.
func Normalize(o string) (string, error) {
	o = strings.TrimSuffix(strings.TrimSpace(o), "/")
	if o == "" || strings.EqualFold(o, "null") {
		return "", fmt.Errorf("%w: %q", ErrMalformed, o)
	}

	u, err := url.Parse(o)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %w", ErrMalformed, o, err)
	}

	scheme := strings.ToLower(u.Scheme)
	if (scheme != "http" && scheme != "https") || u.Host == "" || u.User != nil ||
		u.Path != "" || u.RawQuery != "" || u.Fragment != "" {
		return "", fmt.Errorf("%w: %q", ErrMalformed, o)
	}

	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		port = ""
	}

	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}

	if port != "" {
		host += ":" + port
	}

	return scheme + "://" + host, nil
}

func requestScheme(r *http.Request) string {
	if r.TLS != nil || strings.EqualFold(strings.TrimSpace(r.Header.Get("X-Forwarded-Proto")), "https") {
		return "https"
	}
	return "http"
}

// IsSecure reports whether r reached the edge over TLS.
func IsSecure(r *http.Request) bool {
	return requestScheme(r) == "https"
}
