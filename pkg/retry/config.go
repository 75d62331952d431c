package retry

import (
	"fmt"
	"time"
)

// Config is the TOML form of a Policy. Durations are Go duration strings.
// A negative max_attempts retries without limit; zero takes the default.
type Config struct {
	MaxAttempts  int     `toml:"max_attempts"`
	InitialDelay string  `toml:"initial_delay"`
	MaxDelay     string  `toml:"max_delay"`
	Multiplier   float64 `toml:"multiplier"`
	Jitter       bool    `toml:"jitter"`
}

// Finalize fills unset fields from defaults and validates the result.
func (c *Config) Finalize(defaults Config) error {
	if c.MaxAttempts == 0 {
		c.MaxAttempts = defaults.MaxAttempts
	}
	if c.InitialDelay == "" {
		c.InitialDelay = defaults.InitialDelay
	}
	if c.MaxDelay == "" {
		c.MaxDelay = defaults.MaxDelay
	}
	if c.Multiplier == 0 {
		c.Multiplier = defaults.Multiplier
	}
	if !c.Jitter {
		c.Jitter = defaults.Jitter
	}
	return c.validate()
}

// Merge applies non-zero values from overlay.
func (c *Config) Merge(overlay *Config) {
	if overlay.MaxAttempts != 0 {
		c.MaxAttempts = overlay.MaxAttempts
	}
	if overlay.InitialDelay != "" {
		c.InitialDelay = overlay.InitialDelay
	}
	if overlay.MaxDelay != "" {
		c.MaxDelay = overlay.MaxDelay
	}
	if overlay.Multiplier != 0 {
		c.Multiplier = overlay.Multiplier
	}
	if overlay.Jitter {
		c.Jitter = true
	}
}

// Policy converts the configuration. Call Finalize first.
func (c *Config) Policy() Policy {
	initial, _ := time.ParseDuration(c.InitialDelay)
	max, _ := time.ParseDuration(c.MaxDelay)
	attempts := c.MaxAttempts
	if attempts < 0 {
		attempts = Unbounded
	}
	return Policy{
		MaxAttempts:  attempts,
		InitialDelay: initial,
		MaxDelay:     max,
		Multiplier:   c.Multiplier,
		Jitter:       c.Jitter,
	}
}

func (c *Config) validate() error {
	initial, err := time.ParseDuration(c.InitialDelay)
	if err != nil {
		return fmt.Errorf("invalid initial_delay: %w", err)
	}
	max, err := time.ParseDuration(c.MaxDelay)
	if err != nil {
		return fmt.Errorf("invalid max_delay: %w", err)
	}
	if max < initial {
		return fmt.Errorf("max_delay (%s) must be >= initial_delay (%s)", c.MaxDelay, c.InitialDelay)
	}
	if c.Multiplier < 1 {
		return fmt.Errorf("multiplier must be >= 1")
	}
	return nil
}
