package broker

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/JaimeStill/docflow/pkg/retry"
	"github.com/docker/go-units"
)

// Config contains message channel settings.
type Config struct {
	Driver         string       `toml:"driver"`
	URL            string       `toml:"url"`
	Name           string       `toml:"name"`
	Stream         string       `toml:"stream"`
	Subjects       []string     `toml:"subjects"`
	MaxPayload     string       `toml:"max_payload"`
	MaxAge         string       `toml:"max_age"`
	AckWait        string       `toml:"ack_wait"`
	Prefetch       int          `toml:"prefetch"`
	ConnectTimeout string       `toml:"connect_timeout"`
	Startup        retry.Config `toml:"startup"`
	Reconnect      retry.Config `toml:"reconnect"`
	Redelivery     retry.Config `toml:"redelivery"`
}

// Env maps environment variable names for broker configuration.
type Env struct {
	Driver     string
	URL        string
	Stream     string
	MaxPayload string
	Prefetch   string
}

const (
	DriverNATS   = "nats"
	DriverMemory = "memory"
)

var startupDefaults = retry.Config{
	MaxAttempts:  10,
	InitialDelay: "500ms",
	MaxDelay:     "10s",
	Multiplier:   2,
	Jitter:       true,
}

var reconnectDefaults = retry.Config{
	MaxAttempts:  -1,
	InitialDelay: "1s",
	MaxDelay:     "30s",
	Multiplier:   2,
	Jitter:       true,
}

// redeliveryDefaults leave attempts unbounded: a requeued message stays on
// its queue until it is acked or rejected.
var redeliveryDefaults = retry.Config{
	MaxAttempts:  -1,
	InitialDelay: "500ms",
	MaxDelay:     "30s",
	Multiplier:   2,
	Jitter:       true,
}

// MaxPayloadBytes returns max_payload in bytes.
func (c *Config) MaxPayloadBytes() int64 {
	n, _ := units.FromHumanSize(c.MaxPayload)
	return n
}

// MaxAgeDuration returns max_age as a time.Duration.
func (c *Config) MaxAgeDuration() time.Duration {
	d, _ := time.ParseDuration(c.MaxAge)
	return d
}

// AckWaitDuration returns ack_wait as a time.Duration.
func (c *Config) AckWaitDuration() time.Duration {
	d, _ := time.ParseDuration(c.AckWait)
	return d
}

// ConnectTimeoutDuration returns connect_timeout as a time.Duration.
func (c *Config) ConnectTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.ConnectTimeout)
	return d
}

// Finalize applies defaults, loads environment overrides, and validates the configuration.
func (c *Config) Finalize(env *Env) error {
	c.loadDefaults()
	if env != nil {
		c.loadEnv(env)
	}
	if err := c.Startup.Finalize(startupDefaults); err != nil {
		return fmt.Errorf("startup: %w", err)
	}
	if err := c.Reconnect.Finalize(reconnectDefaults); err != nil {
		return fmt.Errorf("reconnect: %w", err)
	}
	if err := c.Redelivery.Finalize(redeliveryDefaults); err != nil {
		return fmt.Errorf("redelivery: %w", err)
	}
	return c.validate()
}

// Merge applies values from overlay configuration that differ from zero values.
func (c *Config) Merge(overlay *Config) {
	if overlay.Driver != "" {
		c.Driver = overlay.Driver
	}
	if overlay.URL != "" {
		c.URL = overlay.URL
	}
	if overlay.Name != "" {
		c.Name = overlay.Name
	}
	if overlay.Stream != "" {
		c.Stream = overlay.Stream
	}
	if len(overlay.Subjects) > 0 {
		c.Subjects = overlay.Subjects
	}
	if overlay.MaxPayload != "" {
		c.MaxPayload = overlay.MaxPayload
	}
	if overlay.MaxAge != "" {
		c.MaxAge = overlay.MaxAge
	}
	if overlay.AckWait != "" {
		c.AckWait = overlay.AckWait
	}
	if overlay.Prefetch != 0 {
		c.Prefetch = overlay.Prefetch
	}
	if overlay.ConnectTimeout != "" {
		c.ConnectTimeout = overlay.ConnectTimeout
	}
	c.Startup.Merge(&overlay.Startup)
	c.Reconnect.Merge(&overlay.Reconnect)
	c.Redelivery.Merge(&overlay.Redelivery)
}

func (c *Config) loadDefaults() {
	if c.Driver == "" {
		c.Driver = DriverNATS
	}
	if c.URL == "" {
		c.URL = "nats://localhost:4222"
	}
	if c.Name == "" {
		c.Name = "docflow"
	}
	if c.Stream == "" {
		c.Stream = "DOCFLOW"
	}
	if len(c.Subjects) == 0 {
		c.Subjects = []string{"uploads.>", "saga.>", "deadletter.>"}
	}
	if c.MaxPayload == "" {
		c.MaxPayload = "1MB"
	}
	if c.MaxAge == "" {
		c.MaxAge = "168h"
	}
	if c.AckWait == "" {
		c.AckWait = "30s"
	}
	if c.Prefetch == 0 {
		c.Prefetch = 1
	}
	if c.ConnectTimeout == "" {
		c.ConnectTimeout = "5s"
	}
}

func (c *Config) loadEnv(env *Env) {
	if v := os.Getenv(env.Driver); env.Driver != "" && v != "" {
		c.Driver = v
	}
	if v := os.Getenv(env.URL); env.URL != "" && v != "" {
		c.URL = v
	}
	if v := os.Getenv(env.Stream); env.Stream != "" && v != "" {
		c.Stream = v
	}
	if v := os.Getenv(env.MaxPayload); env.MaxPayload != "" && v != "" {
		c.MaxPayload = v
	}
	if v := os.Getenv(env.Prefetch); env.Prefetch != "" && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Prefetch = n
		}
	}
}

func (c *Config) validate() error {
	switch c.Driver {
	case DriverNATS, DriverMemory:
	default:
		return fmt.Errorf("invalid driver %q (must be nats or memory)", c.Driver)
	}
	if strings.ContainsAny(c.Stream, ". *>") {
		return fmt.Errorf("invalid stream name %q", c.Stream)
	}
	if n, err := units.FromHumanSize(c.MaxPayload); err != nil || n <= 0 {
		return fmt.Errorf("invalid max_payload %q", c.MaxPayload)
	}
	if c.Prefetch < 1 {
		return fmt.Errorf("prefetch must be positive")
	}
	for name, v := range map[string]string{
		"max_age":         c.MaxAge,
		"ack_wait":        c.AckWait,
		"connect_timeout": c.ConnectTimeout,
	} {
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}
	return nil
}
