// Package login runs the two halves of a wallet sign-in: handing out a
// challenge, and turning a signed challenge into a session.
package login

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/shui-community/walletauth"
	"github.com/shui-community/walletauth/lib/antireplay"
	"github.com/shui-community/walletauth/lib/autherr"
	"github.com/shui-community/walletauth/lib/challenge"
	"github.com/shui-community/walletauth/lib/seal"
	"github.com/shui-community/walletauth/lib/session"
	"github.com/shui-community/walletauth/lib/wallet"
)

const (
	// MinChallengeTokenLength is the shortest challenge token worth opening.
	MinChallengeTokenLength = 20

	// MinSignatureLength is the shortest base58 signature worth decoding.
	MinSignatureLength = 40
)

var (
	logins = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "walletauth_logins_total",
		Help: "The total number of login attempts by result",
	}, []string{"result"})

	verifyDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "walletauth_verify_duration_seconds",
		Help:    "Time taken to check a signed challenge",
		Buckets: prometheus.DefBuckets,
	})
)

// Options configures a Service.
type Options struct {
	Secret       []byte
	ChallengeTTL time.Duration
	SessionTTL   time.Duration
	Replay       *antireplay.Guard
	Now          func() time.Time
}

// Service issues challenges and redeems them for sessions.
type Service struct {
	issuer   *challenge.Issuer
	sessions *session.Codec
	replay   *antireplay.Guard
	now      func() time.Time

	// misconfigured is set when the secret is unusable. The service still
	// answers, rejecting every call that needs the secret.
	misconfigured error
}

// New creates a Service. An unusable secret is not an error here; it is
// reported by Ready and by every call that needs it.
func New(opts Options) (*Service, error) {
	if opts.Replay == nil {
		return nil, errors.New("login: anti-replay guard is required")
	}

	if opts.ChallengeTTL == 0 {
		opts.ChallengeTTL = walletauth.DefaultChallengeTTL
	}

	if opts.SessionTTL == 0 {
		opts.SessionTTL = walletauth.DefaultSessionTTL
	}

	if opts.Now == nil {
		opts.Now = time.Now
	}

	result := &Service{replay: opts.Replay, now: opts.Now}

	issuer, err := challenge.NewIssuer(opts.Secret, opts.ChallengeTTL, opts.Now)
	switch {
	case errors.Is(err, seal.ErrMisconfigured):
		result.misconfigured = err
		return result, nil
	case err != nil:
		return nil, err
	}

	sessions, err := session.NewCodec(opts.Secret, opts.SessionTTL, opts.Now)
	if err != nil {
		return nil, err
	}

	result.issuer = issuer
	result.sessions = sessions

	return result, nil
}

// Ready returns an autherr ServerMisconfigured error when the secret is
// unusable.
func (s *Service) Ready() error {
	if s.misconfigured != nil {
		return autherr.New(autherr.ServerMisconfigured, s.misconfigured)
	}
	return nil
}

// ParseWallet maps wallet parsing failures onto the error taxonomy.
func ParseWallet(raw string) (wallet.Address, error) {
	addr, err := wallet.ParseAddress(raw)
	switch {
	case errors.Is(err, wallet.ErrEmpty):
		return "", autherr.New(autherr.WalletRequired, err)
	case err != nil:
		return "", autherr.New(autherr.WalletInvalid, err)
	}
	return addr, nil
}

// Begin issues a challenge for rawWallet bound to origin.
func (s *Service) Begin(rawWallet, origin string) (*challenge.Issued, error) {
	addr, err := ParseWallet(rawWallet)
	if err != nil {
		return nil, err
	}

	if err := s.Ready(); err != nil {
		return nil, err
	}

	issued, err := s.issuer.Issue(addr, origin)
	switch {
	case errors.Is(err, challenge.ErrInvalidOrigin):
		return nil, autherr.New(autherr.BadOrigin, err)
	case err != nil:
		return nil, autherr.New(autherr.Internal, err)
	}

	return issued, nil
}

// Attempt is a signed challenge submitted for redemption.
type Attempt struct {
	Wallet         string `json:"wallet"`
	ChallengeToken string `json:"challengeToken"`
	Signature      string `json:"signature"`

	// Origin is the admitted origin of the request, not client input.
	Origin string `json:"-"`
}

// Valid checks that every field is present and plausibly sized.
func (a Attempt) Valid() error {
	if a.Wallet == "" {
		return autherr.New(autherr.WalletRequired, wallet.ErrEmpty)
	}

	if len(a.ChallengeToken) < MinChallengeTokenLength {
		return autherr.New(autherr.ChallengeRequired, nil)
	}

	if len(a.Signature) < MinSignatureLength {
		return autherr.New(autherr.SignatureRequired, nil)
	}

	return nil
}

// Result is a redeemed login.
type Result struct {
	Challenge    *challenge.Challenge
	Session      *session.Session
	SessionToken string
}

// Complete redeems a signed challenge. The gates run in a fixed order and
// the first failure is returned: integrity, expiry, binding, single use,
// signature. Only then is a session minted.
func (s *Service) Complete(ctx context.Context, a Attempt) (*Result, error) {
	start := time.Now()
	res, err := s.complete(ctx, a)
	verifyDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		logins.WithLabelValues(string(autherr.CodeOf(err))).Inc()
		return nil, err
	}

	logins.WithLabelValues("ok").Inc()
	challenge.TimeToSign.Observe(s.now().Sub(res.Challenge.IssuedAt).Seconds())

	return res, nil
}

func (s *Service) complete(ctx context.Context, a Attempt) (*Result, error) {
	if err := a.Valid(); err != nil {
		return nil, err
	}

	if err := s.Ready(); err != nil {
		return nil, err
	}

	chall, err := s.issuer.Open(a.ChallengeToken)
	switch {
	case errors.Is(err, seal.ErrExpired):
		return nil, autherr.New(autherr.ChallengeExpired, err)
	case err != nil:
		return nil, autherr.New(autherr.ChallengeInvalid, err)
	}

	if chall.Expired(s.now()) {
		return nil, autherr.New(autherr.ChallengeExpired, nil)
	}

	if a.Wallet != chall.Wallet.String() || a.Origin != chall.Origin {
		return nil, autherr.New(autherr.WalletOrOriginMismatch, nil)
	}

	err = s.replay.Consume(ctx, chall.ID, chall.Wallet.String(), s.issuer.TTL())
	switch {
	case errors.Is(err, antireplay.ErrAlreadyUsed):
		return nil, autherr.New(autherr.ChallengeAlreadyUsed, err)
	case err != nil:
		return nil, autherr.New(autherr.ReplayStoreUnavailable, err)
	}

	msg, err := chall.Message()
	if err != nil {
		return nil, autherr.New(autherr.ChallengeInvalid, err)
	}

	if !wallet.Verify([]byte(msg), a.Signature, chall.Wallet) {
		return nil, autherr.New(autherr.SignatureInvalid, nil)
	}

	tok, sess, err := s.sessions.Issue(chall.Wallet)
	if err != nil {
		return nil, autherr.New(autherr.Internal, fmt.Errorf("login: can't issue session: %w", err))
	}

	return &Result{Challenge: chall, Session: sess, SessionToken: tok}, nil
}

// Session validates a session token. It reports false for any failure and
// when the service is misconfigured.
func (s *Service) Session(token string) (*session.Session, bool) {
	if s.sessions == nil {
		return nil, false
	}
	return s.sessions.Validate(token)
}

// SessionTTL returns the lifetime of issued sessions.
func (s *Service) SessionTTL() time.Duration {
	if s.sessions == nil {
		return 0
	}
	return s.sessions.TTL()
}
