package csrf

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shui-community/walletauth"
	"github.com/shui-community/walletauth/lib/autherr"
)

func cookieFrom(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()

	for _, c := range rec.Result().Cookies() {
		if c.Name == walletauth.CSRFCookieName {
			return c
		}
	}
	return nil
}

func TestEnsureMints(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	g := New(0, "", false, func() time.Time { return now })

	rec := httptest.NewRecorder()
	tok, err := g.Ensure(rec, httptest.NewRequest(http.MethodGet, "/csrf", nil))
	if err != nil {
		t.Fatal(err)
	}

	if len(tok) != 43 {
		t.Errorf("wanted a 43 character token, got %d", len(tok))
	}

	c := cookieFrom(t, rec)
	if c == nil {
		t.Fatal("no cookie set")
	}

	if c.Value != tok {
		t.Error("cookie value differs from returned token")
	}
	if c.Path != "/" || c.SameSite != http.SameSiteLaxMode || c.HttpOnly {
		t.Errorf("unexpected cookie attributes: %+v", c)
	}
	if c.MaxAge != int((2 * time.Hour).Seconds()) {
		t.Errorf("wanted 2h max-age, got %d", c.MaxAge)
	}
	if c.Secure {
		t.Error("plain http request got a Secure cookie")
	}
}

func TestEnsureSecure(t *testing.T) {
	for _, tt := range []struct {
		name   string
		force  bool
		header string
		want   bool
	}{
		{name: "plain"},
		{name: "forwarded https", header: "https", want: true},
		{name: "forced", force: true, want: true},
	} {
		t.Run(tt.name, func(t *testing.T) {
			g := New(0, "", tt.force, nil)
			req := httptest.NewRequest(http.MethodGet, "/csrf", nil)
			if tt.header != "" {
				req.Header.Set("X-Forwarded-Proto", tt.header)
			}

			rec := httptest.NewRecorder()
			if _, err := g.Ensure(rec, req); err != nil {
				t.Fatal(err)
			}

			if got := cookieFrom(t, rec).Secure; got != tt.want {
				t.Errorf("Secure: want %v, got %v", tt.want, got)
			}
		})
	}
}

func TestEnsureReuses(t *testing.T) {
	g := New(0, "", false, nil)

	existing := strings.Repeat("a", MinTokenLength)
	req := httptest.NewRequest(http.MethodGet, "/csrf", nil)
	req.AddCookie(&http.Cookie{Name: walletauth.CSRFCookieName, Value: existing})

	rec := httptest.NewRecorder()
	tok, err := g.Ensure(rec, req)
	if err != nil {
		t.Fatal(err)
	}

	if tok != existing {
		t.Errorf("wanted existing token back, got %q", tok)
	}
	if cookieFrom(t, rec) != nil {
		t.Error("a cookie was set although one was reused")
	}

	req = httptest.NewRequest(http.MethodGet, "/csrf", nil)
	req.AddCookie(&http.Cookie{Name: walletauth.CSRFCookieName, Value: "short"})
	rec = httptest.NewRecorder()

	tok, err = g.Ensure(rec, req)
	if err != nil {
		t.Fatal(err)
	}
	if tok == "short" || cookieFrom(t, rec) == nil {
		t.Error("a too short cookie should be replaced")
	}
}

func TestEnsureUnique(t *testing.T) {
	g := New(0, "", false, nil)
	seen := map[string]bool{}

	for range 100 {
		tok, err := g.Ensure(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/csrf", nil))
		if err != nil {
			t.Fatal(err)
		}
		if seen[tok] {
			t.Fatal("token repeated")
		}
		seen[tok] = true
	}
}

func TestRequire(t *testing.T) {
	const tok = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFG"

	for _, tt := range []struct {
		name   string
		cookie string
		header string
		code   autherr.Code
		err    error
	}{
		{name: "match", cookie: tok, header: tok},
		{name: "no cookie", header: tok, code: autherr.CsrfRequired, err: ErrMissing},
		{name: "no header", cookie: tok, code: autherr.CsrfRequired, err: ErrMissing},
		{name: "mismatch", cookie: tok, header: tok[:len(tok)-1] + "H", code: autherr.CsrfInvalid, err: ErrMismatch},
		{name: "prefix", cookie: tok, header: tok[:20], code: autherr.CsrfInvalid, err: ErrMismatch},
	} {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/auth/nonce", nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: walletauth.CSRFCookieName, Value: tt.cookie})
			}
			if tt.header != "" {
				req.Header.Set(walletauth.CSRFHeaderName, tt.header)
			}

			err := New(0, "", false, nil).Require(req)
			if !errors.Is(err, tt.err) {
				t.Logf("want: %v", tt.err)
				t.Logf("got:  %v", err)
				t.Fatal("wrong error")
			}
			if got := autherr.CodeOf(err); tt.err != nil && got != tt.code {
				t.Errorf("wanted code %s, got %s", tt.code, got)
			}
		})
	}
}

func TestMiddleware(t *testing.T) {
	h := New(0, "", false, nil).Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/logout", nil))

	if rec.Code != http.StatusForbidden {
		t.Errorf("wanted 403, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"CsrfRequired"`) {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
}
