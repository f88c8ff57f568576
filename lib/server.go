package lib

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/shui-community/walletauth"
	"github.com/shui-community/walletauth/internal"
	"github.com/shui-community/walletauth/lib/autherr"
	"github.com/shui-community/walletauth/lib/csrf"
	"github.com/shui-community/walletauth/lib/login"
	"github.com/shui-community/walletauth/lib/origin"
	"github.com/shui-community/walletauth/lib/ratelimit"
	"github.com/shui-community/walletauth/lib/session"
)

// MaxBodyBytes bounds every JSON request body.
const MaxBodyBytes = 16 << 10

var sessionChecks = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "walletauth_session_checks_total",
	Help: "The total number of session cookie checks by result",
}, []string{"result"})

type Server struct {
	mux     *http.ServeMux
	opts    Options
	origins *origin.Validator
	csrf    *csrf.Guard
	limiter *ratelimit.Limiter
	login   *login.Service
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	internal.NoStoreCache(s.mux).ServeHTTP(w, r)
}

type originKey struct{}

// requireOrigin admits requests from allowed origins and records the
// normalised origin for the handlers.
func (s *Server) requireOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		o, err := s.origins.Check(r)
		if err != nil {
			autherr.Write(w, internal.GetRequestLogger(r), autherr.New(autherr.BadOrigin, err))
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), originKey{}, o)))
	})
}

func requestOrigin(r *http.Request) string {
	o, _ := r.Context().Value(originKey{}).(string)
	return o
}

func methodNotAllowed(allowed string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Allow", allowed)
		autherr.Write(w, internal.GetRequestLogger(r), autherr.New(autherr.MethodNotAllowed, nil))
	}
}

type csrfResponse struct {
	OK        bool   `json:"ok"`
	CSRFToken string `json:"csrfToken"`
}

// CSRF hands out the double-submit token, setting the cookie when needed.
func (s *Server) CSRF(w http.ResponseWriter, r *http.Request) {
	lg := internal.GetRequestLogger(r)

	tok, err := s.csrf.Ensure(w, r)
	if err != nil {
		autherr.Write(w, lg, autherr.New(autherr.Internal, err))
		return
	}

	writeJSON(w, http.StatusOK, csrfResponse{OK: true, CSRFToken: tok})
}

type nonceRequest struct {
	Wallet string `json:"wallet"`
}

type nonceResponse struct {
	OK             bool   `json:"ok"`
	Wallet         string `json:"wallet"`
	Nonce          string `json:"nonce"`
	IssuedAt       int64  `json:"issuedAt"`
	ExpiresAt      int64  `json:"expiresAt"`
	Message        string `json:"message"`
	ChallengeToken string `json:"challengeToken"`
}

// Nonce issues a login challenge for the wallet in the request body.
func (s *Server) Nonce(w http.ResponseWriter, r *http.Request) {
	lg := internal.GetRequestLogger(r)

	var req nonceRequest
	if err := decodeBody(w, r, &req); err != nil {
		autherr.Write(w, lg, err)
		return
	}

	issued, err := s.login.Begin(req.Wallet, requestOrigin(r))
	if err != nil {
		autherr.Write(w, lg, err)
		return
	}

	lg.Debug("challenge issued", "wallet", issued.Challenge.Wallet, "challenge", issued.Challenge.ID)

	writeJSON(w, http.StatusOK, nonceResponse{
		OK:             true,
		Wallet:         issued.Challenge.Wallet.String(),
		Nonce:          issued.Challenge.Nonce,
		IssuedAt:       issued.Challenge.IssuedAt.UnixMilli(),
		ExpiresAt:      issued.Challenge.ExpiresAt.UnixMilli(),
		Message:        issued.Message,
		ChallengeToken: issued.Token,
	})
}

type verifyResponse struct {
	OK     bool   `json:"ok"`
	Wallet string `json:"wallet"`
}

// Verify redeems a signed challenge for a session cookie.
func (s *Server) Verify(w http.ResponseWriter, r *http.Request) {
	lg := internal.GetRequestLogger(r)

	var attempt login.Attempt
	if err := decodeBody(w, r, &attempt); err != nil {
		autherr.Write(w, lg, err)
		return
	}
	attempt.Origin = requestOrigin(r)

	res, err := s.login.Complete(r.Context(), attempt)
	if err != nil {
		autherr.Write(w, lg, err)
		return
	}

	s.SetCookie(w, r, CookieOpts{
		Name:     walletauth.SessionCookieName,
		Value:    res.SessionToken,
		Expiry:   s.login.SessionTTL(),
		HTTPOnly: true,
	})

	lg.Info("wallet logged in", "wallet", res.Session.Wallet, "challenge", res.Challenge.ID)

	writeJSON(w, http.StatusOK, verifyResponse{OK: true, Wallet: res.Session.Wallet.String()})
}

type meResponse struct {
	OK     bool   `json:"ok"`
	Wallet string `json:"wallet,omitempty"`
	Exp    int64  `json:"exp,omitempty"`
}

// Me reports the wallet behind the session cookie.
func (s *Server) Me(w http.ResponseWriter, r *http.Request) {
	if err := s.login.Ready(); err != nil {
		autherr.Write(w, internal.GetRequestLogger(r), err)
		return
	}

	sess, ok := s.sessionFor(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, meResponse{OK: false})
		return
	}

	writeJSON(w, http.StatusOK, meResponse{
		OK:     true,
		Wallet: sess.Wallet.String(),
		Exp:    sess.ExpiresAt.UnixMilli(),
	})
}

type okResponse struct {
	OK bool `json:"ok"`
}

// Logout clears the session cookie.
func (s *Server) Logout(w http.ResponseWriter, r *http.Request) {
	s.ClearCookie(w, r, CookieOpts{Name: walletauth.SessionCookieName, HTTPOnly: true})

	if sess, ok := s.sessionFor(r); ok {
		internal.GetRequestLogger(r).Info("wallet logged out", "wallet", sess.Wallet)
	}

	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

func (s *Server) sessionFor(r *http.Request) (*session.Session, bool) {
	ckie, err := r.Cookie(walletauth.SessionCookieName)
	if err != nil {
		sessionChecks.WithLabelValues("absent").Inc()
		return nil, false
	}

	sess, ok := s.login.Session(ckie.Value)
	if !ok {
		sessionChecks.WithLabelValues("invalid").Inc()
		return nil, false
	}

	sessionChecks.WithLabelValues("valid").Inc()
	return sess, true
}

// RequireSession only lets requests with a valid session cookie through to
// next. The session is available to next via SessionFromContext.
func (s *Server) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := s.login.Ready(); err != nil {
			autherr.Write(w, internal.GetRequestLogger(r), err)
			return
		}

		sess, ok := s.sessionFor(r)
		if !ok {
			autherr.Write(w, internal.GetRequestLogger(r), autherr.New(autherr.Unauthenticated, nil))
			return
		}

		next.ServeHTTP(w, r.WithContext(session.WithSession(r.Context(), sess)))
	})
}

// SessionFromContext returns the session RequireSession admitted.
func SessionFromContext(ctx context.Context) (*session.Session, bool) {
	return session.FromContext(ctx)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return autherr.New(autherr.BadRequest, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
