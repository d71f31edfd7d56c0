package stake

import (
	"errors"
)

// Failure kinds. Every Revert returned by the engine matches exactly one of
// these through errors.Is.
var (
	ErrAuthorization = errors.New("stake: unauthorized")
	ErrWindow        = errors.New("stake: outside time window")
	ErrValidation    = errors.New("stake: invalid request")
	ErrTransfer      = errors.New("stake: token transfer failed")
	ErrArithmetic    = errors.New("stake: arithmetic overflow")
)

var (
	// ErrPoolNotInitialized is returned by every call made before Initialize.
	ErrPoolNotInitialized = errors.New("stake engine: pool not initialised")
	// ErrPoolInitialized is returned by a second Initialize.
	ErrPoolInitialized = errors.New("stake engine: pool already initialised")

	errNilState   = errors.New("stake engine: state not configured")
	errNilLedgers = errors.New("stake engine: ledgers not configured")
)

// Revert reasons surfaced to callers.
const (
	reasonDepositZero       = "you should deposite more than 0 token"
	reasonDepositTooSoon    = "you should wait until startTime"
	reasonDepositClosed     = "deposit window is closed"
	reasonWithdrawZero      = "you can not withdraw 0 token"
	reasonWithdrawTooSoon   = "you should withdraw wait until endTime"
	reasonWithdrawExceeds   = "you can not withdraw your requirement"
	reasonRewardZero        = "you should give rewards more than 0 token"
	reasonRewardNoStake     = "no stake to distribute rewards to"
	reasonNotOwner          = "caller is not the owner"
	reasonNotModerator      = "caller is not a moderator"
	reasonZeroIdentity      = "identity must not be empty"
	reasonNoIdentities      = "at least one identity is required"
	reasonInvalidWindow     = "startTime must be before endTime"
	reasonAmountOverflow    = "amount exceeds 256 bits"
	reasonNegativeAmount    = "amount must not be negative"
	reasonAccumulatorBounds = "reward accumulator overflow"
	reasonBalanceOverflow   = "balance overflow"
)

// Revert is the error returned when a call is rejected. Error returns the
// human-readable reason; errors.Is matches the failure kind and, for transfer
// failures, the underlying ledger error.
type Revert struct {
	Kind   error
	Reason string
	Err    error
}

func (r *Revert) Error() string {
	return r.Reason
}

func (r *Revert) Unwrap() []error {
	if r.Err == nil {
		return []error{r.Kind}
	}
	return []error{r.Kind, r.Err}
}

func revert(kind error, reason string) *Revert {
	return &Revert{Kind: kind, Reason: reason}
}

// transferFailed wraps a ledger error without rewording it.
func transferFailed(err error) *Revert {
	return &Revert{Kind: ErrTransfer, Reason: err.Error(), Err: err}
}

// IsRevert reports whether err is a call rejection rather than an
// infrastructure failure.
func IsRevert(err error) bool {
	if err == nil {
		return false
	}
	var r *Revert
	return errors.As(err, &r)
}

// KindOf returns the failure kind of a revert, or nil for any other error.
func KindOf(err error) error {
	var r *Revert
	if errors.As(err, &r) {
		return r.Kind
	}
	return nil
}

// KindName returns a short label for the failure kind, suitable for metrics
// and receipts.
func KindName(err error) string {
	switch KindOf(err) {
	case ErrAuthorization:
		return "authorization"
	case ErrWindow:
		return "window"
	case ErrValidation:
		return "validation"
	case ErrTransfer:
		return "transfer"
	case ErrArithmetic:
		return "arithmetic"
	}
	if err == nil {
		return ""
	}
	return "internal"
}
