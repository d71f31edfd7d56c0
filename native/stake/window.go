package stake

import "time"

// Phase is the time-derived lifecycle stage of the pool. It is never stored.
type Phase uint8

const (
	// PhaseLocked precedes StartTime; nothing but role management is allowed.
	PhaseLocked Phase = iota
	// PhaseDeposit covers [StartTime, EndTime).
	PhaseDeposit
	// PhaseWithdraw starts at EndTime and never ends.
	PhaseWithdraw
)

func (p Phase) String() string {
	switch p {
	case PhaseLocked:
		return "locked"
	case PhaseDeposit:
		return "open-for-deposit"
	case PhaseWithdraw:
		return "open-for-withdraw"
	default:
		return "unknown"
	}
}

// Window gates deposits to [Start, End) and withdrawals to [End, ∞).
// Bounds are unix seconds.
type Window struct {
	Start uint64
	End   uint64
}

// NewWindow validates the bounds.
func NewWindow(start, end uint64) (Window, error) {
	if start >= end {
		return Window{}, revert(ErrValidation, reasonInvalidWindow)
	}
	return Window{Start: start, End: end}, nil
}

func unix(now time.Time) uint64 {
	sec := now.Unix()
	if sec < 0 {
		return 0
	}
	return uint64(sec)
}

// CanDeposit reports whether now lies in [Start, End).
func (w Window) CanDeposit(now time.Time) bool {
	ts := unix(now)
	return ts >= w.Start && ts < w.End
}

// CanWithdraw reports whether now is at or after End.
func (w Window) CanWithdraw(now time.Time) bool {
	return unix(now) >= w.End
}

// Phase returns the lifecycle stage at now.
func (w Window) Phase(now time.Time) Phase {
	switch ts := unix(now); {
	case ts < w.Start:
		return PhaseLocked
	case ts < w.End:
		return PhaseDeposit
	default:
		return PhaseWithdraw
	}
}

func (w Window) checkDeposit(now time.Time) error {
	switch w.Phase(now) {
	case PhaseLocked:
		return revert(ErrWindow, reasonDepositTooSoon)
	case PhaseWithdraw:
		return revert(ErrWindow, reasonDepositClosed)
	}
	return nil
}

func (w Window) checkWithdraw(now time.Time) error {
	if !w.CanWithdraw(now) {
		return revert(ErrWindow, reasonWithdrawTooSoon)
	}
	return nil
}
