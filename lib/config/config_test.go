package config_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shui-community/walletauth/data"
	"github.com/shui-community/walletauth/lib/config"
)

func TestLoadDefault(t *testing.T) {
	fin, err := data.Config.Open("walletauth.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer fin.Close()

	c, err := config.Load(fin, "(data)/walletauth.yaml")
	if err != nil {
		t.Fatal(err)
	}

	if len(c.Origins.Allowed) != 4 {
		t.Errorf("wanted 4 default origins, got %v", c.Origins.Allowed)
	}

	if c.Origins.RequireHeader {
		t.Error("default config should not require an origin header")
	}

	if len(c.RateLimits) != 2 {
		t.Fatalf("wanted 2 rate limits, got %d", len(c.RateLimits))
	}

	for _, rl := range c.RateLimits {
		if rl.Limit != 20 || rl.Window != time.Minute {
			t.Errorf("%s: wanted 20/1m, got %d/%s", rl.Route, rl.Limit, rl.Window)
		}
	}

	if c.Store.Backend != "memory" {
		t.Errorf("wanted memory store, got %q", c.Store.Backend)
	}
}

const validRules = `
rateLimits:
  - route: auth:nonce
    limit: 5
    window: 30s
  - route: auth:verify
    limit: 5
    window: 30s
`

func TestLoad(t *testing.T) {
	for _, tt := range []struct {
		name  string
		input string
		err   error
	}{
		{
			name: "minimal",
			input: `
origins:
  allowed: [https://app.example.com]
` + validRules,
		},
		{
			name: "exemptions and bbolt",
			input: `
origins:
  allowed: [https://app.example.com]
  requireHeader: true
rateLimitExempt: [10.0.0.0/8, "2001:db8::/32"]
store:
  backend: bbolt
  parameters:
    path: /tmp/walletauth.db
` + validRules,
		},
		{
			name:  "no origins",
			input: validRules,
			err:   config.ErrNoOrigins,
		},
		{
			name: "bad origin",
			input: `
origins:
  allowed: ["null"]
` + validRules,
			err: config.ErrInvalidOrigin,
		},
		{
			name: "bad window",
			input: `
origins:
  allowed: [https://app.example.com]
rateLimits:
  - route: auth:nonce
    limit: 5
    window: forever
  - route: auth:verify
    limit: 5
    window: 30s
`,
			err: config.ErrRateLimitWindowNotParse,
		},
		{
			name: "zero limit",
			input: `
origins:
  allowed: [https://app.example.com]
rateLimits:
  - route: auth:nonce
    limit: 0
    window: 30s
  - route: auth:verify
    limit: 5
    window: 30s
`,
			err: config.ErrInvalidRateLimit,
		},
		{
			name: "missing verify rule",
			input: `
origins:
  allowed: [https://app.example.com]
rateLimits:
  - route: auth:nonce
    limit: 5
    window: 30s
`,
			err: config.ErrMissingRateLimitRoute,
		},
		{
			name: "duplicate rule",
			input: `
origins:
  allowed: [https://app.example.com]
rateLimits:
  - route: auth:nonce
    limit: 5
    window: 30s
  - route: auth:nonce
    limit: 5
    window: 30s
  - route: auth:verify
    limit: 5
    window: 30s
`,
			err: config.ErrDuplicateRateLimitRoute,
		},
		{
			name: "bad exemption",
			input: `
origins:
  allowed: [https://app.example.com]
rateLimitExempt: [not-a-cidr]
` + validRules,
			err: config.ErrInvalidRateLimitExemptIP,
		},
		{
			name: "unknown store",
			input: `
origins:
  allowed: [https://app.example.com]
store:
  backend: taco salad
` + validRules,
			err: config.ErrUnknownStoreBackend,
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Load(strings.NewReader(tt.input), tt.name+".yaml")
			if !errors.Is(err, tt.err) {
				t.Logf("want: %v", tt.err)
				t.Logf("got:  %v", err)
				t.Error("wrong error")
			}
		})
	}
}

func TestLoadNotYAML(t *testing.T) {
	if _, err := config.Load(strings.NewReader("origins: [: oops"), "broken.yaml"); err == nil {
		t.Error("wanted a parse error")
	}
}
