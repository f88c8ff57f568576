package lib

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSetCookie(t *testing.T) {
	for _, tt := range []struct {
		name      string
		options   Options
		host      string
		forwarded string
		domain    string
		secure    bool
	}{
		{
			name:    "basic",
			options: Options{},
			host:    "localhost",
		},
		{
			name:    "domain shui.example",
			options: Options{CookieDomain: "shui.example"},
			host:    "localhost",
			domain:  "shui.example",
		},
		{
			name:    "dynamic cookie domain",
			options: Options{CookieDynamicDomain: true},
			host:    "app.shui.co.uk",
			domain:  "shui.co.uk",
		},
		{
			name:    "dynamic cookie domain ignores bare hosts",
			options: Options{CookieDynamicDomain: true},
			host:    "localhost",
		},
		{
			name:      "secure behind tls proxy",
			options:   Options{},
			host:      "localhost",
			forwarded: "https",
			secure:    true,
		},
		{
			name:    "secure forced",
			options: Options{CookieSecure: true},
			host:    "localhost",
			secure:  true,
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			srv := spawnWalletAuth(t, tt.options)
			rw := httptest.NewRecorder()

			req := httptest.NewRequest(http.MethodPost, "/auth/verify", nil)
			req.Host = tt.host
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-Proto", tt.forwarded)
			}

			srv.SetCookie(rw, req, CookieOpts{Name: "test", Value: "test", Expiry: time.Hour, HTTPOnly: true})

			cookies := rw.Result().Cookies()
			if len(cookies) != 1 {
				t.Fatalf("wanted 1 cookie, got %d", len(cookies))
			}
			ckie := cookies[0]

			if ckie.Domain != tt.domain {
				t.Errorf("wanted domain %q, got %q", tt.domain, ckie.Domain)
			}

			if ckie.Secure != tt.secure {
				t.Errorf("wanted secure=%v, got %v", tt.secure, ckie.Secure)
			}

			if !ckie.HttpOnly || ckie.SameSite != http.SameSiteLaxMode {
				t.Errorf("wanted an HttpOnly SameSite=Lax cookie, got %+v", ckie)
			}

			if ckie.MaxAge != 3600 {
				t.Errorf("wanted max-age 3600, got %d", ckie.MaxAge)
			}
		})
	}
}

func TestClearCookie(t *testing.T) {
	srv := spawnWalletAuth(t, Options{CookieDomain: "shui.example"})
	rw := httptest.NewRecorder()

	srv.ClearCookie(rw, httptest.NewRequest(http.MethodPost, "/auth/logout", nil), CookieOpts{Name: "test"})

	cookies := rw.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("wanted 1 cookie, got %d", len(cookies))
	}
	ckie := cookies[0]

	if ckie.Name != "test" {
		t.Errorf("wanted cookie named %q, got %q", "test", ckie.Name)
	}

	if ckie.MaxAge != -1 {
		t.Errorf("wanted cookie max age of -1, got: %d", ckie.MaxAge)
	}

	if ckie.Domain != "shui.example" {
		t.Errorf("wanted cookie domain %q, got: %q", "shui.example", ckie.Domain)
	}
}
