package main

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/shui-community/walletauth"
	"github.com/shui-community/walletauth/lib/wallet"
)

// ErrRejected is returned when the server answers with an error code.
var ErrRejected = errors.New("walletlogin: server rejected the request")

// Result is what a successful login prints.
type Result struct {
	Wallet         string    `json:"wallet"`
	Server         string    `json:"server"`
	Origin         string    `json:"origin"`
	ChallengeNonce string    `json:"challengeNonce"`
	SessionExpires time.Time `json:"sessionExpires"`
}

// Client talks to one walletauth server on behalf of one origin.
type Client struct {
	base   string
	origin string
	hc     *http.Client
	csrf   string
}

func NewClient(base, origin string) (*Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("walletlogin: can't make cookie jar: %w", err)
	}

	return &Client{
		base:   strings.TrimSuffix(base, "/"),
		origin: origin,
		hc:     &http.Client{Jar: jar},
	}, nil
}

type apiError struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}

	req.Header.Set("Origin", c.origin)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.csrf != "" {
		req.Header.Set(walletauth.CSRFHeaderName, c.csrf)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("walletlogin: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("walletlogin: %s %s: can't read body: %w", method, path, err)
	}

	if resp.StatusCode != http.StatusOK {
		var ae apiError
		_ = json.Unmarshal(data, &ae)
		return fmt.Errorf("%w: %s %s: status %d: %s", ErrRejected, method, path, resp.StatusCode, ae.Error)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("walletlogin: %s %s: can't decode body: %w", method, path, err)
	}

	return nil
}

// Login runs the whole sign-in: CSRF token, challenge, signature, session
// check.
func (c *Client) Login(ctx context.Context, priv ed25519.PrivateKey) (*Result, error) {
	addr := wallet.FromPublicKey(priv.Public().(ed25519.PublicKey))

	var csrfResp struct {
		CSRFToken string `json:"csrfToken"`
	}
	if err := c.call(ctx, http.MethodGet, "/csrf", nil, &csrfResp); err != nil {
		return nil, err
	}
	c.csrf = csrfResp.CSRFToken

	var nonce struct {
		Nonce          string `json:"nonce"`
		Message        string `json:"message"`
		ChallengeToken string `json:"challengeToken"`
	}
	if err := c.call(ctx, http.MethodPost, "/auth/nonce", map[string]string{"wallet": addr.String()}, &nonce); err != nil {
		return nil, err
	}

	if !strings.Contains(nonce.Message, "Wallet: "+addr.String()) {
		return nil, fmt.Errorf("walletlogin: refusing to sign a message for another wallet:\n%s", nonce.Message)
	}

	var verified struct {
		Wallet string `json:"wallet"`
	}
	if err := c.call(ctx, http.MethodPost, "/auth/verify", map[string]string{
		"wallet":         addr.String(),
		"challengeToken": nonce.ChallengeToken,
		"signature":      wallet.Sign(priv, []byte(nonce.Message)),
	}, &verified); err != nil {
		return nil, err
	}

	var me struct {
		Wallet string `json:"wallet"`
		Exp    int64  `json:"exp"`
	}
	if err := c.call(ctx, http.MethodGet, "/auth/me", nil, &me); err != nil {
		return nil, err
	}

	return &Result{
		Wallet:         me.Wallet,
		Server:         c.base,
		Origin:         c.origin,
		ChallengeNonce: nonce.Nonce,
		SessionExpires: time.UnixMilli(me.Exp).UTC(),
	}, nil
}
