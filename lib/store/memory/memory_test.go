package memory

import (
	"testing"

	"github.com/shui-community/walletauth/lib/store/storetest"
)

func TestImpl(t *testing.T) {
	storetest.Common(t, factory{}, nil)
}
