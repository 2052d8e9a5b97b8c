package session

import "time"

const (
	DefaultPort    = 8728
	DefaultTLSPort = 8729
)

// Config defines transport/session timeouts.
type Config struct {
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	TLS            TLSConfig
}

// DefaultConfig returns the timeouts used for upload-style operations.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout: 10 * time.Second,
		ReadTimeout:    60 * time.Second,
		WriteTimeout:   60 * time.Second,
	}
}

// ListConfig returns the short timeouts used for read-only listing.
func ListConfig() Config {
	return Config{
		ConnectTimeout: 3 * time.Second,
		ReadTimeout:    3 * time.Second,
		WriteTimeout:   3 * time.Second,
	}
}

// WithDefaults fills zero timeouts from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = def.ReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	return c
}

// WithTimeout sets every timeout to d.
func (c Config) WithTimeout(d time.Duration) Config {
	c.ConnectTimeout = d
	c.ReadTimeout = d
	c.WriteTimeout = d
	return c
}
