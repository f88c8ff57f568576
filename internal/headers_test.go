package internal

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func echoHeader(name string, dst *string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*dst = r.Header.Get(name)
	})
}

func TestXForwardedForToXRealIP(t *testing.T) {
	for _, tt := range []struct {
		name    string
		xff     string
		xRealIP string
		want    string
	}{
		{
			name: "first public hop wins",
			xff:  "10.0.0.1, 203.0.113.9, 198.51.100.1",
			want: "203.0.113.9",
		},
		{
			name: "only private hops falls back to the first",
			xff:  "10.0.0.1, 192.168.1.1",
			want: "10.0.0.1",
		},
		{
			name:    "existing x-real-ip is kept",
			xff:     "203.0.113.9",
			xRealIP: "198.51.100.7",
			want:    "198.51.100.7",
		},
		{
			name: "nothing to do",
			want: "",
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			h := XForwardedForToXRealIP(echoHeader("X-Real-Ip", &got))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xRealIP != "" {
				req.Header.Set("X-Real-Ip", tt.xRealIP)
			}

			h.ServeHTTP(httptest.NewRecorder(), req)

			if got != tt.want {
				t.Logf("want: %q", tt.want)
				t.Logf("got:  %q", got)
				t.Error("wrong X-Real-Ip")
			}
		})
	}
}

func TestXForwardedForUpdate(t *testing.T) {
	for _, tt := range []struct {
		name         string
		stripPrivate bool
		remoteAddr   string
		xff          string
		want         string
	}{
		{
			name:       "append peer",
			remoteAddr: "198.51.100.1:1234",
			xff:        "203.0.113.9",
			want:       "203.0.113.9, 198.51.100.1",
		},
		{
			name:         "strip private hops",
			stripPrivate: true,
			remoteAddr:   "10.0.0.2:1234",
			xff:          "203.0.113.9, 192.168.0.1",
			want:         "203.0.113.9",
		},
		{
			name:         "everything private",
			stripPrivate: true,
			remoteAddr:   "127.0.0.1:1234",
			want:         "",
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			h := XForwardedForUpdate(tt.stripPrivate, echoHeader("X-Forwarded-For", &got))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}

			h.ServeHTTP(httptest.NewRecorder(), req)

			if got != tt.want {
				t.Logf("want: %q", tt.want)
				t.Logf("got:  %q", got)
				t.Error("wrong X-Forwarded-For")
			}
		})
	}
}

func TestRemoteXRealIP(t *testing.T) {
	var got string

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.3:5555"
	req.Header.Set("X-Real-Ip", "203.0.113.9")

	RemoteXRealIP(true, "tcp", echoHeader("X-Real-Ip", &got)).ServeHTTP(httptest.NewRecorder(), req)
	if got != "198.51.100.3" {
		t.Errorf("wanted socket address to win, got: %q", got)
	}

	RemoteXRealIP(true, "unix", echoHeader("X-Real-Ip", &got)).ServeHTTP(httptest.NewRecorder(), req)
	if got != "127.0.0.1" {
		t.Errorf("wanted loopback for unix sockets, got: %q", got)
	}
}

func TestRequestID(t *testing.T) {
	var got string
	h := RequestID(echoHeader("X-Request-Id", &got))

	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/", nil))

	if got == "" {
		t.Fatal("no request id was minted")
	}

	if echoed := rw.Header().Get("X-Request-Id"); echoed != got {
		t.Errorf("response id %q does not match request id %q", echoed, got)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", "from-proxy")
	h.ServeHTTP(httptest.NewRecorder(), req)

	if got != "from-proxy" {
		t.Errorf("upstream request id was replaced with %q", got)
	}
}

func TestNoStoreCache(t *testing.T) {
	rw := httptest.NewRecorder()
	NoStoreCache(http.NotFoundHandler()).ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/", nil))

	if cc := rw.Header().Get("Cache-Control"); cc != "no-store, no-cache, must-revalidate, proxy-revalidate" {
		t.Errorf("wrong Cache-Control: %q", cc)
	}

	if p := rw.Header().Get("Pragma"); p != "no-cache" {
		t.Errorf("wrong Pragma: %q", p)
	}
}

func TestClientIP(t *testing.T) {
	for _, tt := range []struct {
		name       string
		xRealIP    string
		xff        string
		remoteAddr string
		want       string
	}{
		{name: "x-real-ip", xRealIP: "203.0.113.9", xff: "198.51.100.1", remoteAddr: "192.0.2.1:1", want: "203.0.113.9"},
		{name: "x-forwarded-for", xff: "198.51.100.1, 203.0.113.4", remoteAddr: "192.0.2.1:1", want: "198.51.100.1"},
		{name: "socket", remoteAddr: "192.0.2.1:1", want: "192.0.2.1"},
		{name: "nothing", remoteAddr: "", want: "unknown"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xRealIP != "" {
				req.Header.Set("X-Real-Ip", tt.xRealIP)
			}
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}

			if got := ClientIP(req); got != tt.want {
				t.Logf("want: %q", tt.want)
				t.Logf("got:  %q", got)
				t.Error("wrong client IP")
			}
		})
	}
}
