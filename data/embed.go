// Package data holds the built-in configuration.
package data

import "embed"

var (
	//go:embed walletauth.yaml
	Config embed.FS
)
