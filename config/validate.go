package config

import (
	"fmt"
	"strings"
)

// Validate rejects malformed addresses, amounts, rates and schedules.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Owner) != "" {
		if _, err := c.OwnerAddress(); err != nil {
			return err
		}
	}
	if _, err := c.VaultAccount(); err != nil {
		return err
	}
	genesis, err := c.Genesis()
	if err != nil {
		return err
	}
	limits, err := c.VaultLimits()
	if err != nil {
		return err
	}
	if limits.MaxLockDuration == 0 {
		return fmt.Errorf("limits: MaxLockDuration must be at least one second")
	}
	if genesis.LockDuration > limits.MaxLockDuration {
		return fmt.Errorf("LockDuration exceeds Limits.MaxLockDuration")
	}
	if !limits.MaxRewardBudget.IsZero() && genesis.TotalRewardBudget.Gt(limits.MaxRewardBudget) {
		return fmt.Errorf("RewardBudget exceeds Limits.MaxRewardBudget")
	}
	if c.Logging.MaxSizeMB < 0 || c.Logging.MaxBackups < 0 || c.Logging.MaxAgeDays < 0 {
		return fmt.Errorf("logging: rotation limits must not be negative")
	}
	return nil
}
