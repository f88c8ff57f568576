package challenge

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/shui-community/walletauth"
)

// isoMillis matches JavaScript's Date.prototype.toISOString so clients can
// render the same timestamps.
const isoMillis = "2006-01-02T15:04:05.000Z"

// Message renders the canonical text the wallet signs for c. The output
// depends on the challenge fields alone: timestamps are always UTC and the
// domain comes from the bound origin, never from the current request.
func (c *Challenge) Message() (string, error) {
	u, err := url.Parse(c.Origin)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidOrigin, c.Origin)
	}

	return strings.Join([]string{
		walletauth.ProductBanner,
		"",
		"Domain: " + u.Host,
		"URI: " + c.Origin,
		"Action: login",
		"Wallet: " + c.Wallet.String(),
		"Nonce: " + c.Nonce,
		"Issued At: " + formatTime(c.IssuedAt),
		"Expires At: " + formatTime(c.ExpiresAt),
		"",
		"No blockchain transaction will be sent.",
	}, "\n"), nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(isoMillis)
}
