package valkey

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	valkey "github.com/redis/go-redis/v9"

	"github.com/shui-community/walletauth/lib/store"
)

var (
	ErrNoURL     = errors.New("valkey.Config: no URL defined")
	ErrBadURL    = errors.New("valkey.Config: URL is invalid")
	ErrBadPrefix = errors.New("valkey.Config: prefix must not contain whitespace")
)

func init() {
	store.Register("valkey", Factory{})
}

// Factory builds valkey backed stores from a Config.
type Factory struct{}

func parse(data json.RawMessage) (*Config, *valkey.Options, error) {
	var config Config
	if err := json.Unmarshal([]byte(data), &config); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", store.ErrBadConfig, err)
	}

	if err := config.Valid(); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", store.ErrBadConfig, err)
	}

	opts, err := valkey.ParseURL(config.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", store.ErrBadConfig, err)
	}

	return &config, opts, nil
}

// Build connects to the configured server and pings it once. A server that
// can't be reached at startup is a configuration error, not a runtime one.
func (Factory) Build(ctx context.Context, data json.RawMessage) (store.Interface, error) {
	config, opts, err := parse(data)
	if err != nil {
		return nil, err
	}

	rdb := valkey.NewClient(opts)

	if _, err := rdb.Ping(ctx).Result(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("can't ping valkey instance: %w", err)
	}

	return &Store{
		rdb:    rdb,
		prefix: config.Prefix,
	}, nil
}

func (Factory) Valid(data json.RawMessage) error {
	_, _, err := parse(data)
	return err
}

// Config is the valkey storage backend configuration.
type Config struct {
	// URL is a redis:// or rediss:// connection string, see valkey.ParseURL.
	URL string `json:"url"`

	// Prefix is prepended to every key, so several deployments can share
	// one database without seeing each other's markers.
	Prefix string `json:"prefix,omitempty"`
}

func (c Config) Valid() error {
	var errs []error

	if c.URL == "" {
		errs = append(errs, ErrNoURL)
	} else if _, err := valkey.ParseURL(c.URL); err != nil {
		errs = append(errs, ErrBadURL)
	}

	if strings.ContainsAny(c.Prefix, " \t\r\n") {
		errs = append(errs, ErrBadPrefix)
	}

	if len(errs) != 0 {
		return fmt.Errorf("valkey.Config: invalid config: %w", errors.Join(errs...))
	}

	return nil
}
