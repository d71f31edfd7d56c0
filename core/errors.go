package core

import (
	"errors"

	"stakepool/native/stake"
	"stakepool/native/token"
)

// Failure kind labels shared by receipts, metrics and the RPC layer.
const (
	KindAuthorization = "authorization"
	KindWindow        = "window"
	KindValidation    = "validation"
	KindTransfer      = "transfer"
	KindArithmetic    = "arithmetic"
	KindInternal      = "internal"
)

// ErrorKind classifies err. It returns "" for nil and KindInternal for
// anything that is not a recognised rejection.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	if stake.IsRevert(err) {
		return stake.KindName(err)
	}
	switch {
	case errors.Is(err, token.ErrNotIssuer):
		return KindAuthorization
	case errors.Is(err, token.ErrInsufficientBalance),
		errors.Is(err, token.ErrInsufficientAllowance):
		return KindTransfer
	case errors.Is(err, token.ErrInvalidAmount),
		errors.Is(err, token.ErrZeroAddress),
		errors.Is(err, token.ErrUnknownToken),
		errors.Is(err, stake.ErrPoolNotInitialized),
		errors.Is(err, stake.ErrPoolInitialized):
		return KindValidation
	}
	return KindInternal
}
