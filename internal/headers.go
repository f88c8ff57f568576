package internal

import (
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/sebest/xff"

	"github.com/shui-community/walletauth"
)

// RemoteXRealIP sets the X-Real-Ip header to the request's real IP if
// the setting is enabled by the user.
func RemoteXRealIP(useRemoteAddress bool, bindNetwork string, next http.Handler) http.Handler {
	if !useRemoteAddress {
		slog.Debug("skipping middleware, useRemoteAddress is empty")
		return next
	}

	if bindNetwork == "unix" {
		// For local sockets there is no real remote address but the localhost
		// address should be sensible.
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Header.Set("X-Real-Ip", "127.0.0.1")
			next.ServeHTTP(w, r)
		})
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		r.Header.Set("X-Real-Ip", host)
		next.ServeHTTP(w, r)
	})
}

// XForwardedForToXRealIP sets the X-Real-Ip header based on the contents
// of the X-Forwarded-For header when no upstream proxy set it already.
func XForwardedForToXRealIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if xffHeader := r.Header.Get("X-Forwarded-For"); r.Header.Get("X-Real-Ip") == "" && xffHeader != "" {
			ip := firstForwardedFor(xffHeader)
			slog.Debug("setting x-real-ip", "val", ip)
			r.Header.Set("X-Real-Ip", ip)
		}
		next.ServeHTTP(w, r)
	})
}

// firstForwardedFor returns the first public address in an X-Forwarded-For
// chain, or the first entry when the chain only holds private addresses.
func firstForwardedFor(header string) string {
	if ip := xff.Parse(header); ip != "" {
		return ip
	}

	first, _, _ := strings.Cut(header, ",")
	return strings.TrimSpace(first)
}

// XForwardedForUpdate appends the connecting peer to the X-Forwarded-For
// chain. With stripPrivate set, private and loopback hops are dropped from
// the chain so they cannot be mistaken for the client.
func XForwardedForUpdate(stripPrivate bool, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer next.ServeHTTP(w, r)

		remoteIP, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			// unix sockets and test recorders have no host:port peer
			return
		}

		var chain []string
		if existing := r.Header.Get("X-Forwarded-For"); existing != "" {
			for _, hop := range strings.Split(existing, ",") {
				if hop = strings.TrimSpace(hop); hop != "" {
					chain = append(chain, hop)
				}
			}
		}
		chain = append(chain, remoteIP)

		if stripPrivate {
			kept := chain[:0]
			for _, hop := range chain {
				if ip := net.ParseIP(hop); ip != nil && xff.IsPublicIP(ip) {
					kept = append(kept, hop)
				}
			}
			chain = kept
		}

		if len(chain) == 0 {
			r.Header.Del("X-Forwarded-For")
			return
		}

		r.Header.Set("X-Forwarded-For", strings.Join(chain, ", "))
	})
}

// RequestID makes sure every request carries an X-Request-Id header and
// echoes it on the response so log lines can be matched to client reports.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(walletauth.RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.Must(uuid.NewV7()).String()
			r.Header.Set(walletauth.RequestIDHeader, id)
		}
		w.Header().Set(walletauth.RequestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

// NoStoreCache forbids every cache between the client and this handler from
// keeping the response.
func NoStoreCache(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, proxy-revalidate")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")
		next.ServeHTTP(w, r)
	})
}

// ClientIP returns the address the rate limiter keys on: X-Real-Ip as set by
// the middleware above, then the first X-Forwarded-For hop, then the socket
// peer.
func ClientIP(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("X-Real-Ip")); ip != "" {
		return ip
	}

	if xffHeader := r.Header.Get("X-Forwarded-For"); xffHeader != "" {
		if ip := firstForwardedFor(xffHeader); ip != "" {
			return ip
		}
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}

	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}

	return "unknown"
}
