package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	nativecommon "rewardvault/native/common"
	"rewardvault/native/vault"
)

const (
	defaultDataDir      = "./vault-data"
	defaultVaultAddress = "0x000000000000000000000000000000007661756c"
	defaultEnv          = "dev"
)

type Config struct {
	DataDir         string   `toml:"DataDir"`
	Owner           string   `toml:"Owner"`
	VaultAddress    string   `toml:"VaultAddress"`
	RewardStartTime uint64   `toml:"RewardStartTime"`
	RewardBudget    string   `toml:"RewardBudget"`
	LockDuration    Duration `toml:"LockDuration"`
	Schedule        Schedule `toml:"Schedule"`
	Limits          Limits   `toml:"Limits"`
	Policy          Policy   `toml:"Policy"`
	Pauses          Pauses   `toml:"Pauses"`
	Logging         Logging  `toml:"Logging"`
}

// Default returns the configuration written on first use.
func Default() *Config {
	burn := vault.DefaultPolicy().BurnBudgetOnEarlyExit
	return &Config{
		DataDir:      defaultDataDir,
		VaultAddress: defaultVaultAddress,
		RewardBudget: "0",
		Schedule:     Schedule{Kind: vault.ScheduleFlat.String(), Rate: "0.08"},
		Limits: Limits{
			MaxRewardBudget: "0",
			MaxLockDuration: Duration(vault.DefaultMaxLockDuration * time.Second),
		},
		Policy:  Policy{BurnBudgetOnEarlyExit: &burn},
		Logging: Logging{Env: defaultEnv},
	}
}

// Load loads the configuration from the given path. A missing file is
// created with defaults.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := &Config{}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s has unknown key %s", path, undecoded[0])
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = defaultDataDir
	}
	if strings.TrimSpace(c.VaultAddress) == "" {
		c.VaultAddress = defaultVaultAddress
	}
	if strings.TrimSpace(c.RewardBudget) == "" {
		c.RewardBudget = "0"
	}
	if strings.TrimSpace(c.Schedule.Kind) == "" {
		c.Schedule.Kind = vault.ScheduleFlat.String()
	}
	if strings.TrimSpace(c.Limits.MaxRewardBudget) == "" {
		c.Limits.MaxRewardBudget = "0"
	}
	if c.Limits.MaxLockDuration == 0 {
		c.Limits.MaxLockDuration = Duration(vault.DefaultMaxLockDuration * time.Second)
	}
	if c.Policy.BurnBudgetOnEarlyExit == nil {
		burn := vault.DefaultPolicy().BurnBudgetOnEarlyExit
		c.Policy.BurnBudgetOnEarlyExit = &burn
	}
	if strings.TrimSpace(c.Logging.Env) == "" {
		c.Logging.Env = defaultEnv
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to path.
func Save(path string, cfg *Config) error {
	return persist(path, cfg)
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

// OwnerAddress returns the configured administrator.
func (c *Config) OwnerAddress() (common.Address, error) {
	if strings.TrimSpace(c.Owner) == "" {
		return common.Address{}, fmt.Errorf("config: Owner not set")
	}
	return parseAddress("Owner", c.Owner)
}

// VaultAccount returns the account that holds the vault's tokens.
func (c *Config) VaultAccount() (common.Address, error) {
	return parseAddress("VaultAddress", c.VaultAddress)
}

// BuildSchedule converts the schedule section into its native form.
func (c *Config) BuildSchedule() (vault.Schedule, error) {
	kind, err := vault.ParseScheduleKind(c.Schedule.Kind)
	if err != nil {
		return vault.Schedule{}, fmt.Errorf("schedule: %w", err)
	}
	var schedule vault.Schedule
	switch kind {
	case vault.ScheduleFlat:
		rate, err := vault.ParseRate(c.Schedule.Rate)
		if err != nil {
			return vault.Schedule{}, fmt.Errorf("schedule: Rate: %w", err)
		}
		schedule = vault.FlatSchedule(rate)
	case vault.ScheduleTiered:
		tiers := make([]vault.Tier, 0, len(c.Schedule.Tiers))
		for i, tier := range c.Schedule.Tiers {
			rate, err := vault.ParseRate(tier.Rate)
			if err != nil {
				return vault.Schedule{}, fmt.Errorf("schedule: tier %d: %w", i, err)
			}
			tiers = append(tiers, vault.Tier{Length: tier.Length.Seconds(), Rate: rate})
		}
		tail, err := vault.ParseRate(c.Schedule.TailRate)
		if err != nil {
			return vault.Schedule{}, fmt.Errorf("schedule: TailRate: %w", err)
		}
		schedule = vault.TieredSchedule(tiers, tail)
	}
	if err := schedule.Validate(); err != nil {
		return vault.Schedule{}, fmt.Errorf("schedule: %w", err)
	}
	return schedule, nil
}

// Genesis returns the initial vault state described by the configuration.
func (c *Config) Genesis() (vault.Vault, error) {
	schedule, err := c.BuildSchedule()
	if err != nil {
		return vault.Vault{}, err
	}
	budget, err := parseAmount("RewardBudget", c.RewardBudget)
	if err != nil {
		return vault.Vault{}, err
	}
	return vault.Vault{
		TotalRewardBudget: budget,
		RewardStartTime:   c.RewardStartTime,
		LockDuration:      c.LockDuration.Seconds(),
		Schedule:          schedule,
	}, nil
}

// VaultLimits returns the administrative ceilings.
func (c *Config) VaultLimits() (vault.Limits, error) {
	ceiling, err := parseAmount("Limits.MaxRewardBudget", c.Limits.MaxRewardBudget)
	if err != nil {
		return vault.Limits{}, err
	}
	return vault.Limits{
		MaxRewardBudget: ceiling,
		MaxLockDuration: c.Limits.MaxLockDuration.Seconds(),
	}, nil
}

// VaultPolicy returns the withdrawal policy.
func (c *Config) VaultPolicy() vault.Policy {
	policy := vault.DefaultPolicy()
	if c.Policy.BurnBudgetOnEarlyExit != nil {
		policy.BurnBudgetOnEarlyExit = *c.Policy.BurnBudgetOnEarlyExit
	}
	return policy
}

// PauseSet returns the module halts configured at startup.
func (c *Config) PauseSet() *nativecommon.PauseSet {
	set := nativecommon.NewPauseSet()
	set.Set("vault", c.Pauses.Vault)
	return set
}

func parseAddress(field, value string) (common.Address, error) {
	value = strings.TrimSpace(value)
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("config: %s %q is not a hex address", field, value)
	}
	return common.HexToAddress(value), nil
}

func parseAmount(field, value string) (*uint256.Int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return new(uint256.Int), nil
	}
	amount, err := uint256.FromDecimal(value)
	if err != nil {
		return nil, fmt.Errorf("config: %s %q: %w", field, value, err)
	}
	return amount, nil
}
