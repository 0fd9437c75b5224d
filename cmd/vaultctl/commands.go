package main

import (
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"rewardvault/native/vault"
)

var commands = map[string]command{
	"deploy":             {usage: "Initialise the vault from the config file", setup: setupDeploy},
	"mint":               {usage: "Mint test tokens (owner only): -to -amount", setup: setupMint},
	"approve":            {usage: "Approve a spender, the vault by default: -amount [-spender]", setup: setupApprove},
	"balance":            {usage: "Token balance of -account (defaults to caller)", setup: setupBalance},
	"deposit":            {usage: "Deposit -amount base units", setup: setupDeposit},
	"withdraw":           {usage: "Withdraw principal and reward of the caller", setup: setupWithdraw},
	"earned":             {usage: "Projected reward of -account (defaults to caller)", setup: setupEarned},
	"info":               {usage: "Account details of -account (defaults to caller)", setup: setupInfo},
	"stats":              {usage: "Vault totals and parameters", setup: setupStats},
	"available":          {usage: "Balance the owner may sweep", setup: setupAvailable},
	"pause":              {usage: "Pause deposits", setup: setupPause(true)},
	"unpause":            {usage: "Resume deposits", setup: setupPause(false)},
	"set-end-time":       {usage: "Stop accrual at -time (deposits must be paused)", setup: setupSetEndTime},
	"clear-end-time":     {usage: "Remove the reward end time (deposits must be live)", setup: setupClearEndTime},
	"set-budget":         {usage: "Replace the total reward budget: -amount", setup: setupSetBudget},
	"set-lock":           {usage: "Replace the lock duration: -duration 720h", setup: setupSetLock},
	"sweep":              {usage: "Send unencumbered balance to the owner: -amount", setup: setupSweep},
	"transfer-ownership": {usage: "Hand the owner role to -to", setup: setupTransferOwnership},
}

type accountView struct {
	Address          string `json:"address"`
	Principal        string `json:"principal"`
	AccruedReward    string `json:"accruedReward"`
	Earned           string `json:"earned"`
	LastUpdateTime   uint64 `json:"lastUpdateTime"`
	FirstDepositTime uint64 `json:"firstDepositTime"`
	UnlockTime       uint64 `json:"unlockTime,omitempty"`
	Locked           bool   `json:"locked"`
}

type withdrawView struct {
	Principal string `json:"principal"`
	Earned    string `json:"earned"`
	Reward    string `json:"reward"`
	Forfeited string `json:"forfeited"`
	Rationed  string `json:"rationed"`
}

type statsView struct {
	Owner              string `json:"owner"`
	Vault              string `json:"vault"`
	TotalPrincipal     string `json:"totalPrincipal"`
	TotalRewardBudget  string `json:"totalRewardBudget"`
	TotalRewardClaimed string `json:"totalRewardClaimed"`
	RemainingBudget    string `json:"remainingBudget"`
	DepositsPaused     bool   `json:"depositsPaused"`
	RewardStartTime    uint64 `json:"rewardStartTime"`
	RewardEndTime      uint64 `json:"rewardEndTime,omitempty"`
	LockDuration       uint64 `json:"lockDuration"`
	Schedule           string `json:"schedule"`
}

type amountView struct {
	Account string `json:"account,omitempty"`
	Amount  string `json:"amount"`
}

func setupDeploy(fs *flag.FlagSet) action {
	return func(rt *runtime) (interface{}, error) {
		if !rt.owner.IsOwner(rt.caller) {
			return nil, vault.ErrUnauthorized
		}
		genesis, err := rt.cfg.Genesis()
		if err != nil {
			return nil, err
		}
		if err := rt.engine.Deploy(genesis); err != nil {
			return nil, err
		}
		return stats(rt)
	}
}

func setupMint(fs *flag.FlagSet) action {
	to := fs.String("to", "", "Recipient hex address")
	amount := fs.String("amount", "", "Amount in base units")
	return func(rt *runtime) (interface{}, error) {
		if !rt.owner.IsOwner(rt.caller) {
			return nil, vault.ErrUnauthorized
		}
		recipient, err := parseAddress("to", *to)
		if err != nil {
			return nil, err
		}
		value, err := parseAmount(*amount)
		if err != nil {
			return nil, err
		}
		if err := rt.ledger.Mint(recipient, value); err != nil {
			return nil, err
		}
		return balance(rt, recipient)
	}
}

func setupApprove(fs *flag.FlagSet) action {
	spender := fs.String("spender", "", "Spender hex address (defaults to the vault)")
	amount := fs.String("amount", "", "Allowance in base units")
	return func(rt *runtime) (interface{}, error) {
		target := rt.engine.Address()
		if strings.TrimSpace(*spender) != "" {
			var err error
			if target, err = parseAddress("spender", *spender); err != nil {
				return nil, err
			}
		}
		value, err := parseAmount(*amount)
		if err != nil {
			return nil, err
		}
		if err := rt.ledger.Approve(rt.caller, target, value); err != nil {
			return nil, err
		}
		allowed, err := rt.ledger.Allowance(rt.caller, target)
		if err != nil {
			return nil, err
		}
		return amountView{Account: target.Hex(), Amount: allowed.Dec()}, nil
	}
}

func setupBalance(fs *flag.FlagSet) action {
	account := fs.String("account", "", "Hex address (defaults to the caller)")
	return func(rt *runtime) (interface{}, error) {
		addr, err := accountOrCaller(rt, *account)
		if err != nil {
			return nil, err
		}
		return balance(rt, addr)
	}
}

func setupDeposit(fs *flag.FlagSet) action {
	amount := fs.String("amount", "", "Amount in base units")
	return func(rt *runtime) (interface{}, error) {
		value, err := parseAmount(*amount)
		if err != nil {
			return nil, err
		}
		if _, err := rt.engine.Deposit(rt.caller, value); err != nil {
			return nil, err
		}
		return info(rt, rt.caller)
	}
}

func setupWithdraw(fs *flag.FlagSet) action {
	return func(rt *runtime) (interface{}, error) {
		res, err := rt.engine.Withdraw(rt.caller)
		if err != nil {
			return nil, err
		}
		return withdrawView{
			Principal: res.Principal.Dec(),
			Earned:    res.Earned.Dec(),
			Reward:    res.Reward.Dec(),
			Forfeited: res.Forfeited.Dec(),
			Rationed:  res.Rationed.Dec(),
		}, nil
	}
}

func setupEarned(fs *flag.FlagSet) action {
	account := fs.String("account", "", "Hex address (defaults to the caller)")
	return func(rt *runtime) (interface{}, error) {
		addr, err := accountOrCaller(rt, *account)
		if err != nil {
			return nil, err
		}
		earned, err := rt.engine.Earned(addr)
		if err != nil {
			return nil, err
		}
		return amountView{Account: addr.Hex(), Amount: earned.Dec()}, nil
	}
}

func setupInfo(fs *flag.FlagSet) action {
	account := fs.String("account", "", "Hex address (defaults to the caller)")
	return func(rt *runtime) (interface{}, error) {
		addr, err := accountOrCaller(rt, *account)
		if err != nil {
			return nil, err
		}
		return info(rt, addr)
	}
}

func setupStats(fs *flag.FlagSet) action {
	return stats
}

func setupAvailable(fs *flag.FlagSet) action {
	return func(rt *runtime) (interface{}, error) {
		available, err := rt.engine.AvailableForAdminWithdraw()
		if err != nil {
			return nil, err
		}
		return amountView{Account: rt.engine.Address().Hex(), Amount: available.Dec()}, nil
	}
}

func setupPause(paused bool) func(fs *flag.FlagSet) action {
	return func(fs *flag.FlagSet) action {
		return func(rt *runtime) (interface{}, error) {
			if err := rt.engine.SetDepositsPaused(rt.caller, paused); err != nil {
				return nil, err
			}
			return stats(rt)
		}
	}
}

func setupSetEndTime(fs *flag.FlagSet) action {
	at := fs.Uint64("time", 0, "Unix timestamp after which no reward accrues")
	return func(rt *runtime) (interface{}, error) {
		if err := rt.engine.SetRewardEndTime(rt.caller, *at); err != nil {
			return nil, err
		}
		return stats(rt)
	}
}

func setupClearEndTime(fs *flag.FlagSet) action {
	return func(rt *runtime) (interface{}, error) {
		if err := rt.engine.ClearRewardEndTime(rt.caller); err != nil {
			return nil, err
		}
		return stats(rt)
	}
}

func setupSetBudget(fs *flag.FlagSet) action {
	amount := fs.String("amount", "", "Budget in base units")
	return func(rt *runtime) (interface{}, error) {
		value, err := parseAmount(*amount)
		if err != nil {
			return nil, err
		}
		if err := rt.engine.SetTotalRewardBudget(rt.caller, value); err != nil {
			return nil, err
		}
		return stats(rt)
	}
}

func setupSetLock(fs *flag.FlagSet) action {
	duration := fs.Duration("duration", 0, "Lock duration, e.g. 720h")
	return func(rt *runtime) (interface{}, error) {
		if *duration < 0 {
			return nil, fmt.Errorf("%w: -duration must not be negative", vault.ErrInvalidArgument)
		}
		if err := rt.engine.SetLockDuration(rt.caller, uint64(*duration/time.Second)); err != nil {
			return nil, err
		}
		return stats(rt)
	}
}

func setupSweep(fs *flag.FlagSet) action {
	amount := fs.String("amount", "", "Amount in base units")
	return func(rt *runtime) (interface{}, error) {
		value, err := parseAmount(*amount)
		if err != nil {
			return nil, err
		}
		if err := rt.engine.AdminWithdraw(rt.caller, value); err != nil {
			return nil, err
		}
		return balance(rt, rt.caller)
	}
}

func setupTransferOwnership(fs *flag.FlagSet) action {
	to := fs.String("to", "", "New owner hex address")
	return func(rt *runtime) (interface{}, error) {
		next, err := parseAddress("to", *to)
		if err != nil {
			return nil, err
		}
		if err := rt.engine.TransferOwnership(rt.caller, next); err != nil {
			return nil, err
		}
		return stats(rt)
	}
}

func stats(rt *runtime) (interface{}, error) {
	s, err := rt.engine.Stats()
	if err != nil {
		return nil, err
	}
	view := statsView{
		Owner:              s.Owner.Hex(),
		Vault:              rt.engine.Address().Hex(),
		TotalPrincipal:     s.TotalPrincipal.Dec(),
		TotalRewardBudget:  s.TotalRewardBudget.Dec(),
		TotalRewardClaimed: s.TotalRewardClaimed.Dec(),
		RemainingBudget:    s.RemainingBudget.Dec(),
		DepositsPaused:     s.DepositsPaused,
		RewardStartTime:    s.RewardStartTime,
		LockDuration:       s.LockDuration,
		Schedule:           s.Schedule.String(),
	}
	if s.HasRewardEndTime {
		view.RewardEndTime = s.RewardEndTime
	}
	return view, nil
}

func info(rt *runtime, addr common.Address) (interface{}, error) {
	acc, err := rt.engine.AccountInfo(addr)
	if err != nil {
		return nil, err
	}
	return accountView{
		Address:          addr.Hex(),
		Principal:        acc.Principal.Dec(),
		AccruedReward:    acc.AccruedReward.Dec(),
		Earned:           acc.Earned.Dec(),
		LastUpdateTime:   acc.LastUpdateTime,
		FirstDepositTime: acc.FirstDepositTime,
		UnlockTime:       acc.UnlockTime,
		Locked:           acc.Locked,
	}, nil
}

func balance(rt *runtime, addr common.Address) (interface{}, error) {
	bal, err := rt.ledger.BalanceOf(addr)
	if err != nil {
		return nil, err
	}
	return amountView{Account: addr.Hex(), Amount: bal.Dec()}, nil
}

func accountOrCaller(rt *runtime, value string) (common.Address, error) {
	if strings.TrimSpace(value) == "" {
		return rt.caller, nil
	}
	return parseAddress("account", value)
}

func parseAddress(field, value string) (common.Address, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return common.Address{}, fmt.Errorf("%w: -%s is required", vault.ErrInvalidArgument, field)
	}
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("%w: -%s %q is not a hex address", vault.ErrInvalidArgument, field, value)
	}
	return common.HexToAddress(value), nil
}

func parseAmount(value string) (*uint256.Int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, errors.New("-amount is required")
	}
	amount, err := uint256.FromDecimal(value)
	if err != nil {
		return nil, fmt.Errorf("%w: -amount %q: %v", vault.ErrInvalidArgument, value, err)
	}
	return amount, nil
}
