package stake

import (
	"math/big"

	"github.com/holiman/uint256"
)

const precisionValue = 1_000_000_000_000 // 1e12

var (
	// Precision is the fixed-point scale of AccRewardPerShare.
	Precision = big.NewInt(precisionValue)

	precision = uint256.NewInt(precisionValue)
)

// All pool arithmetic is carried out on 256-bit words so that overflow is
// reported instead of silently absorbed by arbitrary-precision integers.

func toWord(v *big.Int) (*uint256.Int, error) {
	if v == nil {
		return new(uint256.Int), nil
	}
	if v.Sign() < 0 {
		return nil, revert(ErrValidation, reasonNegativeAmount)
	}
	w, overflow := uint256.FromBig(v)
	if overflow {
		return nil, revert(ErrArithmetic, reasonAmountOverflow)
	}
	return w, nil
}

func mulWord(x, y *uint256.Int, reason string) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).MulOverflow(x, y)
	if overflow {
		return nil, revert(ErrArithmetic, reason)
	}
	return z, nil
}

func addWord(x, y *uint256.Int, reason string) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).AddOverflow(x, y)
	if overflow {
		return nil, revert(ErrArithmetic, reason)
	}
	return z, nil
}

func subWord(x, y *uint256.Int, reason string) (*uint256.Int, error) {
	z, underflow := new(uint256.Int).SubOverflow(x, y)
	if underflow {
		return nil, revert(ErrArithmetic, reason)
	}
	return z, nil
}

// addAmounts returns a+b, failing when the sum leaves the 256-bit range.
func addAmounts(a, b *big.Int, reason string) (*big.Int, error) {
	x, err := toWord(a)
	if err != nil {
		return nil, err
	}
	y, err := toWord(b)
	if err != nil {
		return nil, err
	}
	z, err := addWord(x, y, reason)
	if err != nil {
		return nil, err
	}
	return z.ToBig(), nil
}

// subAmounts returns a-b, failing on underflow.
func subAmounts(a, b *big.Int, reason string) (*big.Int, error) {
	x, err := toWord(a)
	if err != nil {
		return nil, err
	}
	y, err := toWord(b)
	if err != nil {
		return nil, err
	}
	z, err := subWord(x, y, reason)
	if err != nil {
		return nil, err
	}
	return z.ToBig(), nil
}

// RewardPerShareDelta returns amount × Precision / totalStaked, the increase
// of the accumulator caused by injecting amount. totalStaked must be positive.
func RewardPerShareDelta(amount, totalStaked *big.Int) (*big.Int, error) {
	delta, _, err := rewardPerShareDelta(amount, totalStaked)
	if err != nil {
		return nil, err
	}
	return delta.ToBig(), nil
}

// RoundingLoss returns the scaled reward left undistributed by one
// injection, (amount × Precision) mod totalStaked. It is always smaller than
// totalStaked, which keeps the loss under one reward unit whenever
// totalStaked ≤ Precision.
func RoundingLoss(amount, totalStaked *big.Int) (*big.Int, error) {
	_, rem, err := rewardPerShareDelta(amount, totalStaked)
	if err != nil {
		return nil, err
	}
	return rem.ToBig(), nil
}

func rewardPerShareDelta(amount, totalStaked *big.Int) (*uint256.Int, *uint256.Int, error) {
	a, err := toWord(amount)
	if err != nil {
		return nil, nil, err
	}
	s, err := toWord(totalStaked)
	if err != nil {
		return nil, nil, err
	}
	if s.IsZero() {
		return nil, nil, revert(ErrValidation, reasonRewardNoStake)
	}
	scaled, err := mulWord(a, precision, reasonAccumulatorBounds)
	if err != nil {
		return nil, nil, err
	}
	delta, rem := new(uint256.Int), new(uint256.Int)
	delta.DivMod(scaled, s, rem)
	return delta, rem, nil
}
