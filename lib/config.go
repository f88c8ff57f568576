package lib

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/shui-community/walletauth"
	"github.com/shui-community/walletauth/data"
	"github.com/shui-community/walletauth/lib/antireplay"
	"github.com/shui-community/walletauth/lib/config"
	"github.com/shui-community/walletauth/lib/csrf"
	"github.com/shui-community/walletauth/lib/login"
	"github.com/shui-community/walletauth/lib/origin"
	"github.com/shui-community/walletauth/lib/ratelimit"
	"github.com/shui-community/walletauth/lib/store"
)

type Options struct {
	Config *config.Config

	// Store holds anti-replay markers and rate limit counters. When nil it
	// is built from Config.Store.
	Store store.Interface

	Secret       []byte
	ChallengeTTL time.Duration
	SessionTTL   time.Duration
	CSRFTTL      time.Duration
	StoreTimeout time.Duration

	BasePrefix          string
	CookieDomain        string
	CookieDynamicDomain bool
	CookieSecure        bool

	// AllowedOrigins replaces Config.Origins.Allowed when set.
	AllowedOrigins []string

	Now func() time.Time
}

func LoadConfigOrDefault(fname string) (*config.Config, error) {
	var fin io.ReadCloser
	var err error

	if fname != "" {
		fin, err = os.Open(fname)
		if err != nil {
			return nil, fmt.Errorf("can't parse config file %s: %w", fname, err)
		}
	} else {
		fname = "(data)/walletauth.yaml"
		fin, err = data.Config.Open("walletauth.yaml")
		if err != nil {
			return nil, fmt.Errorf("[unexpected] can't parse builtin config file %s: %w", fname, err)
		}
	}

	defer func(fin io.ReadCloser) {
		err := fin.Close()
		if err != nil {
			slog.Error("failed to close config file", "file", fname, "err", err)
		}
	}(fin)

	return config.Load(fin, fname)
}

func New(ctx context.Context, opts Options) (*Server, error) {
	if opts.Config == nil {
		c, err := LoadConfigOrDefault("")
		if err != nil {
			return nil, err
		}
		opts.Config = c
	}

	if opts.Now == nil {
		opts.Now = time.Now
	}

	if opts.Store == nil {
		st, err := store.Build(ctx, opts.Config.Store.Backend, opts.Config.Store.Parameters)
		if err != nil {
			return nil, fmt.Errorf("lib: can't build %s store: %w", opts.Config.Store.Backend, err)
		}
		opts.Store = st
	}

	if !opts.Config.Store.Shared() {
		slog.Warn("store is local to this process; challenges are only single-use per instance", "backend", opts.Config.Store.Backend)
	}

	allowed := opts.Config.Origins.Allowed
	if len(opts.AllowedOrigins) != 0 {
		allowed = opts.AllowedOrigins
	}

	origins, err := origin.New(allowed, opts.Config.Origins.RequireHeader)
	if err != nil {
		return nil, fmt.Errorf("lib: bad allowed origins: %w", err)
	}

	limiter, err := ratelimit.New(opts.Store, opts.Config.RateLimits, opts.Config.RateLimitExempt)
	if err != nil {
		return nil, fmt.Errorf("lib: bad rate limits: %w", err)
	}

	svc, err := login.New(login.Options{
		Secret:       opts.Secret,
		ChallengeTTL: opts.ChallengeTTL,
		SessionTTL:   opts.SessionTTL,
		Replay:       antireplay.New(opts.Store, opts.StoreTimeout),
		Now:          opts.Now,
	})
	if err != nil {
		return nil, fmt.Errorf("lib: can't set up login: %w", err)
	}

	if err := svc.Ready(); err != nil {
		slog.Error("session secret is missing or shorter than 32 bytes, every login will fail", "err", err)
	}

	walletauth.BasePrefix = opts.BasePrefix

	result := &Server{
		opts:    opts,
		origins: origins,
		csrf:    csrf.New(opts.CSRFTTL, opts.CookieDomain, opts.CookieSecure, opts.Now),
		limiter: limiter,
		login:   svc,
	}

	mux := http.NewServeMux()

	// Helper to add global prefix
	registerWithPrefix := func(pattern string, handler http.Handler, method string) {
		if method != "" {
			method = method + " " // methods must end with a space to register with them
		}

		// Ensure there's no double slash when concatenating BasePrefix and pattern
		basePrefix := strings.TrimSuffix(walletauth.BasePrefix, "/")
		prefix := method + basePrefix

		// If pattern doesn't start with a slash, add one
		if !strings.HasPrefix(pattern, "/") {
			pattern = "/" + pattern
		}

		mux.Handle(prefix+pattern, handler)
	}

	for _, route := range []struct {
		pattern string
		method  string
		handler http.Handler
	}{
		{"/csrf", http.MethodGet, result.requireOrigin(http.HandlerFunc(result.CSRF))},
		{"/auth/nonce", http.MethodPost, result.requireOrigin(result.csrf.Middleware(limiter.Middleware(config.RouteNonce, http.HandlerFunc(result.Nonce))))},
		{"/auth/verify", http.MethodPost, result.requireOrigin(result.csrf.Middleware(limiter.Middleware(config.RouteVerify, http.HandlerFunc(result.Verify))))},
		{"/auth/me", http.MethodGet, http.HandlerFunc(result.Me)},
		{"/auth/logout", http.MethodPost, result.requireOrigin(result.csrf.Middleware(http.HandlerFunc(result.Logout)))},
	} {
		registerWithPrefix(route.pattern, route.handler, route.method)
		registerWithPrefix(route.pattern, http.HandlerFunc(methodNotAllowed(route.method)), "")
	}

	result.mux = mux

	return result, nil
}
