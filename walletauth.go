// Package walletauth contains the version number and protocol constants shared
// by every part of the wallet sign-in service.
package walletauth

import "time"

// Version is the current version of walletauth.
//
// This variable is set at build time using the -X linker flag. If not set,
// it defaults to "devel".
var Version = "devel"

// ProductBanner is the first line of every login message a wallet is asked to sign.
const ProductBanner = "SHUI (水) — Sign-in"

// SessionCookieName is the name of the cookie that carries the sealed session.
var SessionCookieName = "shui_session"

// CSRFCookieName is the name of the double-submit CSRF cookie.
var CSRFCookieName = "shui_csrf"

// CSRFHeaderName is the request header that must echo the CSRF cookie.
const CSRFHeaderName = "X-CSRF-Token"

// RequestIDHeader carries the per-request id used in logs.
const RequestIDHeader = "X-Request-Id"

// DefaultChallengeTTL is how long a login challenge stays valid.
const DefaultChallengeTTL = 5 * time.Minute

// DefaultSessionTTL is how long a session cookie stays valid.
const DefaultSessionTTL = 7 * 24 * time.Hour

// DefaultCSRFTTL is the lifetime of the CSRF cookie.
const DefaultCSRFTTL = 2 * time.Hour

// DefaultStoreTimeout bounds every call to the shared key/value store on the
// login path.
const DefaultStoreTimeout = 2 * time.Second

// MinSecretLength is the shortest server secret that is accepted for sealing
// challenges and sessions.
const MinSecretLength = 32

// NonceUsedPrefix prefixes anti-replay markers in the store.
const NonceUsedPrefix = "shui:nonce_used:"

// RateLimitPrefix prefixes rate limit counters in the store.
const RateLimitPrefix = "walletauth:rl:"

// BasePrefix is a global prefix for all walletauth endpoints. Can be emptied
// to remove the prefix entirely.
var BasePrefix = ""
