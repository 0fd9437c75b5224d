package config

import (
	"fmt"
	"strings"
	"time"
)

// Duration is a time.Duration that reads and writes as a Go duration string
// ("720h", "90m").
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Seconds returns the duration truncated to whole seconds.
func (d Duration) Seconds() uint64 {
	if d <= 0 {
		return 0
	}
	return uint64(time.Duration(d) / time.Second)
}

// Tier is one window of a tiered schedule.
type Tier struct {
	Length Duration `toml:"Length"`
	Rate   string   `toml:"Rate"`
}

// Schedule selects the rate schedule. Rates are annual decimals ("0.08").
type Schedule struct {
	Kind     string `toml:"Kind"`
	Rate     string `toml:"Rate,omitempty"`
	Tiers    []Tier `toml:"Tiers,omitempty"`
	TailRate string `toml:"TailRate,omitempty"`
}

// Limits bound the administrative setters.
type Limits struct {
	// MaxRewardBudget is a base-unit decimal; "0" disables the ceiling.
	MaxRewardBudget string   `toml:"MaxRewardBudget"`
	MaxLockDuration Duration `toml:"MaxLockDuration"`
}

// Policy selects deployment-specific withdrawal behaviour.
type Policy struct {
	BurnBudgetOnEarlyExit *bool `toml:"BurnBudgetOnEarlyExit,omitempty"`
}

// Pauses are emergency module halts applied at startup.
type Pauses struct {
	Vault bool `toml:"Vault"`
}

// Logging configures the process logger.
type Logging struct {
	Env        string `toml:"Env"`
	File       string `toml:"File,omitempty"`
	MaxSizeMB  int    `toml:"MaxSizeMB,omitempty"`
	MaxBackups int    `toml:"MaxBackups,omitempty"`
	MaxAgeDays int    `toml:"MaxAgeDays,omitempty"`
}
