package vault

import (
	"errors"
	"fmt"
)

// Failure categories. Every error returned by the engine wraps exactly one of
// these so callers can classify it with errors.Is; the full message carries
// the human-readable reason.
var (
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrPreconditionFailed = errors.New("precondition failed")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrOverflow           = errors.New("arithmetic overflow")
)

var (
	errNilState            = errors.New("vault engine: state not configured")
	errNilToken            = errors.New("vault engine: token not configured")
	errNilAccess           = errors.New("vault engine: access control not configured")
	errNotDeployed         = fmt.Errorf("vault engine: %w: vault not deployed", ErrPreconditionFailed)
	errAlreadyDeployed     = fmt.Errorf("vault engine: %w: vault already deployed", ErrPreconditionFailed)
	errInvalidAmount       = fmt.Errorf("vault engine: %w: amount must be positive", ErrInvalidArgument)
	errInvalidDuration     = fmt.Errorf("vault engine: %w: duration must be positive", ErrInvalidArgument)
	errLockAboveCeiling    = fmt.Errorf("vault engine: %w: lock duration exceeds ceiling", ErrInvalidArgument)
	errBudgetAboveCeiling  = fmt.Errorf("vault engine: %w: reward budget exceeds ceiling", ErrInvalidArgument)
	errInvalidEndTime      = fmt.Errorf("vault engine: %w: reward end time must be positive", ErrInvalidArgument)
	errInvalidOwner        = fmt.Errorf("vault engine: %w: new owner is invalid", ErrInvalidArgument)
	errNotOwner            = fmt.Errorf("vault engine: %w: caller is not the owner", ErrUnauthorized)
	errDepositsPaused      = fmt.Errorf("vault engine: %w: deposits are paused", ErrPreconditionFailed)
	errDepositsNotPaused   = fmt.Errorf("vault engine: %w: deposits are not paused", ErrPreconditionFailed)
	errNothingToWithdraw   = fmt.Errorf("vault engine: %w: nothing to withdraw", ErrPreconditionFailed)
	errModulePaused        = fmt.Errorf("vault engine: %w: module paused", ErrPreconditionFailed)
	errExceedsAvailable    = fmt.Errorf("vault engine: %w: amount exceeds available balance", ErrInsufficientFunds)
	errPrincipalOverflow   = fmt.Errorf("vault engine: %w: principal overflow", ErrOverflow)
	errLedgerInconsistent  = fmt.Errorf("vault engine: %w: total principal below account principal", ErrOverflow)
	errInvalidSchedule     = fmt.Errorf("vault: %w: invalid rate schedule", ErrInvalidArgument)
	errInvalidRate         = fmt.Errorf("vault: %w: invalid rate", ErrInvalidArgument)
	errTokenTransferFailed = fmt.Errorf("vault engine: %w: token transfer failed", ErrInsufficientFunds)
)

func tokenFailure(err error) error {
	return fmt.Errorf("%w: %v", errTokenTransferFailed, err)
}
