package session

import (
	"time"

	"github.com/mitchellh/mapstructure"
)

// Config enumerates every tunable of the networking core (§6). A host
// application builds one with DefaultConfig and overrides fields directly,
// or decodes one from an untyped map (e.g. parsed JSON/YAML) with
// NewConfigFromMap, so this module never needs to own a file format.
type Config struct {
	EnableHeartbeat   bool          `mapstructure:"enableHeartbeat"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeatInterval"`
	HeartbeatTimeout  time.Duration `mapstructure:"heartbeatTimeout"`

	MaxRetries  int `mapstructure:"maxRetries"`
	MaxQueueSize int `mapstructure:"maxQueueSize"`

	EnableCompression bool `mapstructure:"enableCompression"` // reserved
	EnableEncryption  bool `mapstructure:"enableEncryption"`  // reserved

	MaxReconnectAttempts int           `mapstructure:"maxReconnectAttempts"`
	InitialReconnectDelay time.Duration `mapstructure:"initialReconnectDelay"`
	MaxReconnectDelay     time.Duration `mapstructure:"maxReconnectDelay"`
	ReconnectBackoffFactor float64      `mapstructure:"reconnectBackoffFactor"`

	ConnectTimeout  time.Duration `mapstructure:"connectTimeout"`
	ResponseTimeout time.Duration `mapstructure:"responseTimeout"`

	MaxRecordSize int `mapstructure:"maxRecordSize"`
	Strict        bool `mapstructure:"strict"`

	TimerTick time.Duration `mapstructure:"timerTick"`
}

// DefaultConfig returns the §6/§4.4/§4.5 default values.
func DefaultConfig() Config {
	return Config{
		EnableHeartbeat:   true,
		HeartbeatInterval: 5 * time.Second,
		HeartbeatTimeout:  10 * time.Second,

		MaxRetries:   DefaultMaxRetries,
		MaxQueueSize: DefaultMaxQueueSize,

		EnableCompression: false,
		EnableEncryption:  false,

		MaxReconnectAttempts:  5,
		InitialReconnectDelay: time.Second,
		MaxReconnectDelay:     30 * time.Second,
		ReconnectBackoffFactor: 1.5,

		ConnectTimeout:  5 * time.Second,
		ResponseTimeout: 10 * time.Second,

		MaxRecordSize: 1 << 20,
		Strict:        false,

		TimerTick: 500 * time.Millisecond,
	}
}

// NewConfigFromMap decodes an untyped map (as parsed from JSON/YAML by the
// host application) into a Config seeded with DefaultConfig, via
// mitchellh/mapstructure so absent keys keep their default value.
func NewConfigFromMap(raw map[string]interface{}) (Config, error) {
	cfg := DefaultConfig()
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return cfg, err
	}
	if err := decoder.Decode(raw); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Option mutates a Config; ApplyOptions folds a list of Options onto a base
// Config, in the teacher's functional-options style.
type Option func(*Config)

// WithHeartbeat toggles the heartbeat engine and its interval/timeout.
func WithHeartbeat(enabled bool, interval, timeout time.Duration) Option {
	return func(c *Config) {
		c.EnableHeartbeat = enabled
		if interval > 0 {
			c.HeartbeatInterval = interval
		}
		if timeout > 0 {
			c.HeartbeatTimeout = timeout
		}
	}
}

// WithReconnectPolicy overrides the §4.4 reconnect parameters.
func WithReconnectPolicy(maxAttempts int, initialDelay, maxDelay time.Duration, factor float64) Option {
	return func(c *Config) {
		c.MaxReconnectAttempts = maxAttempts
		c.InitialReconnectDelay = initialDelay
		c.MaxReconnectDelay = maxDelay
		c.ReconnectBackoffFactor = factor
	}
}

// WithMaxQueueSize overrides the Priority Send Queue capacity.
func WithMaxQueueSize(size int) Option {
	return func(c *Config) { c.MaxQueueSize = size }
}

// WithMaxRecordSize overrides the framer's maximum record size.
func WithMaxRecordSize(size int) Option {
	return func(c *Config) { c.MaxRecordSize = size }
}

// WithStrict makes an inbound record that fails to parse as JSON fatal to
// the connection (StateError with ErrProtocolError) instead of being
// dropped and counted.
func WithStrict(strict bool) Option {
	return func(c *Config) { c.Strict = strict }
}

// ApplyOptions applies opts to cfg in order, returning the mutated cfg.
func ApplyOptions(cfg Config, opts ...Option) Config {
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
