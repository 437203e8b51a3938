package transfer

import (
	"time"

	httpPkg "github.com/NamanBalaji/updater/pkg/http"
)

const (
	defaultMaxRetries   = 3
	defaultRetryDelay   = 2 * time.Second
	defaultTickInterval = 500 * time.Millisecond
	smoothingWindow     = 5 * time.Second
	copyBufferSize      = 32 * 1024
)

// Config holds the settings shared by every client a factory builds.
type Config struct {
	MaxRetries   uint64
	RetryDelay   time.Duration
	TickInterval time.Duration
	HTTPClient   *httpPkg.Client
}

type ConfigOption func(*Config)

func defaultConfig() *Config {
	return &Config{
		MaxRetries:   defaultMaxRetries,
		RetryDelay:   defaultRetryDelay,
		TickInterval: defaultTickInterval,
	}
}

func WithMaxRetries(n uint64) ConfigOption {
	return func(c *Config) {
		c.MaxRetries = n
	}
}

func WithRetryDelay(d time.Duration) ConfigOption {
	return func(c *Config) {
		if d > 0 {
			c.RetryDelay = d
		}
	}
}

func WithTickInterval(d time.Duration) ConfigOption {
	return func(c *Config) {
		if d > 0 {
			c.TickInterval = d
		}
	}
}

func WithHTTPClient(client *httpPkg.Client) ConfigOption {
	return func(c *Config) {
		c.HTTPClient = client
	}
}
