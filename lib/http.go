package lib

import (
	"net/http"
	"regexp"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/shui-community/walletauth/lib/origin"
)

var domainMatchRegexp = regexp.MustCompile(`^((xn--)?[a-z0-9]+(-[a-z0-9]+)*\.)+[a-z]{2,}$`)

type CookieOpts struct {
	Value    string
	Name     string
	Path     string
	Expiry   time.Duration
	HTTPOnly bool
}

func (s *Server) cookieDomain(r *http.Request) string {
	domain := s.opts.CookieDomain
	if s.opts.CookieDynamicDomain && domainMatchRegexp.MatchString(r.Host) {
		if etld, err := publicsuffix.EffectiveTLDPlusOne(r.Host); err == nil {
			domain = etld
		}
	}
	return domain
}

// SetCookie sets a SameSite=Lax cookie that is Secure whenever the request
// arrived over TLS or the server is told to always use Secure cookies.
func (s *Server) SetCookie(w http.ResponseWriter, r *http.Request, cookieOpts CookieOpts) {
	var path = "/"
	if cookieOpts.Path != "" {
		path = cookieOpts.Path
	}

	http.SetCookie(w, &http.Cookie{
		Name:     cookieOpts.Name,
		Value:    cookieOpts.Value,
		Expires:  s.opts.Now().Add(cookieOpts.Expiry),
		MaxAge:   int(cookieOpts.Expiry.Seconds()),
		SameSite: http.SameSiteLaxMode,
		HttpOnly: cookieOpts.HTTPOnly,
		Domain:   s.cookieDomain(r),
		Secure:   s.opts.CookieSecure || origin.IsSecure(r),
		Path:     path,
	})
}

func (s *Server) ClearCookie(w http.ResponseWriter, r *http.Request, cookieOpts CookieOpts) {
	var path = "/"
	if cookieOpts.Path != "" {
		path = cookieOpts.Path
	}

	http.SetCookie(w, &http.Cookie{
		Name:     cookieOpts.Name,
		Value:    "",
		MaxAge:   -1,
		Expires:  s.opts.Now().Add(-1 * time.Minute),
		SameSite: http.SameSiteLaxMode,
		HttpOnly: cookieOpts.HTTPOnly,
		Domain:   s.cookieDomain(r),
		Secure:   s.opts.CookieSecure || origin.IsSecure(r),
		Path:     path,
	})
}
