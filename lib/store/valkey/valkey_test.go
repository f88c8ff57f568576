package valkey

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/shui-community/walletauth/internal"
	"github.com/shui-community/walletauth/lib/store/storetest"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func init() {
	internal.UnbreakDocker()
}

func TestImpl(t *testing.T) {
	if os.Getenv("DONT_USE_NETWORK") != "" {
		t.Skip("test requires network egress")
		return
	}

	testcontainers.SkipIfProviderIsNotHealthy(t)

	req := testcontainers.ContainerRequest{
		Image:      "valkey/valkey:8",
		WaitingFor: wait.ForLog("Ready to accept connections"),
	}
	valkeyC, err := testcontainers.GenericContainer(t.Context(), testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	testcontainers.CleanupContainer(t, valkeyC)
	if err != nil {
		t.Fatal(err)
	}

	containerIP, err := valkeyC.ContainerIP(t.Context())
	if err != nil {
		t.Fatal(err)
	}

	data, err := json.Marshal(Config{
		URL:    fmt.Sprintf("redis://%s:6379/0", containerIP),
		Prefix: "test:",
	})
	if err != nil {
		t.Fatal(err)
	}

	storetest.Common(t, Factory{}, json.RawMessage(data))
}

func TestConfigValid(t *testing.T) {
	for _, tt := range []struct {
		name string
		cfg  Config
		err  error
	}{
		{name: "ok", cfg: Config{URL: "redis://valkey:6379/0"}},
		{name: "tls with prefix", cfg: Config{URL: "rediss://valkey:6379/1", Prefix: "shui:"}},
		{name: "no url", cfg: Config{}, err: ErrNoURL},
		{name: "bad url", cfg: Config{URL: "http://valkey"}, err: ErrBadURL},
		{name: "bad prefix", cfg: Config{URL: "redis://valkey:6379/0", Prefix: "a b"}, err: ErrBadPrefix},
	} {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Valid()
			if !errors.Is(err, tt.err) {
				t.Logf("want: %v", tt.err)
				t.Logf("got:  %v", err)
				t.Error("wrong error")
			}

			data, _ := json.Marshal(tt.cfg)
			if ferr := (Factory{}).Valid(data); (ferr == nil) != (tt.err == nil) {
				t.Errorf("Factory.Valid disagrees with Config.Valid: %v", ferr)
			}
		})
	}
}
