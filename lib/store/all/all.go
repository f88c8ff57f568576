// Package all is a meta-package that imports all store implementations.
//
// This is a HACK to make tests work consistently.
package all

import (
	_ "github.com/shui-community/walletauth/lib/store/bbolt"
	_ "github.com/shui-community/walletauth/lib/store/memory"
	_ "github.com/shui-community/walletauth/lib/store/valkey"
)
