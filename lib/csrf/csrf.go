// Package csrf implements double-submit CSRF protection: a random value is
// set in a cookie and state-changing requests must echo it in a header.
package csrf

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/shui-community/walletauth"
	"github.com/shui-community/walletauth/internal"
	"github.com/shui-community/walletauth/lib/autherr"
	"github.com/shui-community/walletauth/lib/origin"
)

// MinTokenLength is the shortest existing cookie value Ensure will reuse.
const MinTokenLength = 20

const tokenBytes = 32

var (
	ErrMissing  = errors.New("csrf: cookie or header missing")
	ErrMismatch = errors.New("csrf: header does not match cookie")

	rejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "walletauth_csrf_rejections_total",
		Help: "The total number of requests refused by the CSRF guard",
	}, []string{"reason"})
)

// Guard issues and checks CSRF tokens.
type Guard struct {
	TTL time.Duration

	// Domain is set on the cookie when not empty.
	Domain string

	// SecureAlways marks the cookie Secure even on plain HTTP requests.
	SecureAlways bool

	now func() time.Time
}

// New creates a Guard. A zero ttl means walletauth.DefaultCSRFTTL.
func New(ttl time.Duration, domain string, secureAlways bool, now func() time.Time) *Guard {
	if ttl <= 0 {
		ttl = walletauth.DefaultCSRFTTL
	}

	if now == nil {
		now = time.Now
	}

	return &Guard{TTL: ttl, Domain: domain, SecureAlways: secureAlways, now: now}
}

// Ensure returns the CSRF token for r. A usable cookie already on the
// request is returned as-is; otherwise a new token is minted and set.
func (g *Guard) Ensure(w http.ResponseWriter, r *http.Request) (string, error) {
	if c, err := r.Cookie(walletauth.CSRFCookieName); err == nil && len(c.Value) >= MinTokenLength {
		return c.Value, nil
	}

	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("csrf: can't read random bytes: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(buf)

	http.SetCookie(w, &http.Cookie{
		Name:     walletauth.CSRFCookieName,
		Value:    token,
		Path:     "/",
		Domain:   g.Domain,
		Expires:  g.now().Add(g.TTL),
		MaxAge:   int(g.TTL.Seconds()),
		SameSite: http.SameSiteLaxMode,
		Secure:   g.SecureAlways || origin.IsSecure(r),
	})

	return token, nil
}

// Require checks that the X-CSRF-Token header matches the CSRF cookie. The
// comparison takes the same time wherever the values differ.
func (g *Guard) Require(r *http.Request) error {
	header := r.Header.Get(walletauth.CSRFHeaderName)

	c, err := r.Cookie(walletauth.CSRFCookieName)
	if err != nil || c.Value == "" || header == "" {
		rejections.WithLabelValues("required").Inc()
		return autherr.New(autherr.CsrfRequired, ErrMissing)
	}

	if subtle.ConstantTimeCompare([]byte(c.Value), []byte(header)) != 1 {
		rejections.WithLabelValues("invalid").Inc()
		return autherr.New(autherr.CsrfInvalid, ErrMismatch)
	}

	return nil
}

// Middleware rejects requests that fail Require.
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := g.Require(r); err != nil {
			autherr.Write(w, internal.GetRequestLogger(r), err)
			return
		}

		next.ServeHTTP(w, r)
	})
}
