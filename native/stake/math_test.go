package stake

import (
	"errors"
	"math/big"
	"testing"
)

func TestRewardPerShareDelta(t *testing.T) {
	delta, err := RewardPerShareDelta(big.NewInt(200), big.NewInt(400))
	if err != nil {
		t.Fatalf("delta: %v", err)
	}
	if want := big.NewInt(500_000_000_000); delta.Cmp(want) != 0 {
		t.Fatalf("expected %s, got %s", want, delta)
	}
	if _, err := RewardPerShareDelta(big.NewInt(1), big.NewInt(0)); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for empty pool, got %v", err)
	}
}

func TestRoundingLossBounded(t *testing.T) {
	cases := []struct {
		amount, staked int64
	}{
		{1, 3},
		{7, 999_999_999_999},
		{1, 1_000_000_000_000},
		{123_456, 777},
	}
	for _, tc := range cases {
		amount, staked := big.NewInt(tc.amount), big.NewInt(tc.staked)
		loss, err := RoundingLoss(amount, staked)
		if err != nil {
			t.Fatalf("loss: %v", err)
		}
		if loss.Cmp(staked) >= 0 || loss.Cmp(Precision) >= 0 {
			t.Fatalf("loss %s out of bounds for amount=%d staked=%d", loss, tc.amount, tc.staked)
		}
		delta, _ := RewardPerShareDelta(amount, staked)
		rebuilt := new(big.Int).Mul(delta, staked)
		rebuilt.Add(rebuilt, loss)
		if scaled := new(big.Int).Mul(amount, Precision); rebuilt.Cmp(scaled) != 0 {
			t.Fatalf("delta×staked+loss = %s, want %s", rebuilt, scaled)
		}
	}
}

func TestSettleUsesPreChangeStake(t *testing.T) {
	pool := &Pool{TotalStaked: big.NewInt(400), AccRewardPerShare: big.NewInt(0), TotalReward: big.NewInt(0)}
	acct := newAccount(makeAddress(1))
	acct.Staked = big.NewInt(200)

	if err := inject(pool, big.NewInt(200)); err != nil {
		t.Fatalf("inject: %v", err)
	}
	if err := settle(pool, acct); err != nil {
		t.Fatalf("settle: %v", err)
	}
	if acct.PendingAccrued.Int64() != 100 {
		t.Fatalf("expected 100 settled, got %s", acct.PendingAccrued)
	}
	// A second settle without an injection in between adds nothing.
	if err := settle(pool, acct); err != nil {
		t.Fatalf("settle: %v", err)
	}
	if acct.PendingAccrued.Int64() != 100 {
		t.Fatalf("settle is not idempotent: %s", acct.PendingAccrued)
	}
	acct.Staked = big.NewInt(300)
	if err := rebase(pool, acct); err != nil {
		t.Fatalf("rebase: %v", err)
	}
	pending, err := pendingReward(pool, acct)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if pending.Int64() != 100 {
		t.Fatalf("top-up changed pending reward: %s", pending)
	}
}

func TestCorruptedDebtReported(t *testing.T) {
	pool := &Pool{TotalStaked: big.NewInt(1), AccRewardPerShare: big.NewInt(1), TotalReward: big.NewInt(0)}
	acct := newAccount(makeAddress(1))
	acct.Staked = big.NewInt(1)
	acct.RewardDebt = big.NewInt(2)
	if _, err := pendingReward(pool, acct); !errors.Is(err, ErrArithmetic) {
		t.Fatalf("expected arithmetic error, got %v", err)
	}
}

func TestAddAmountsOverflow(t *testing.T) {
	limit := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	if _, err := addAmounts(limit, big.NewInt(1), reasonBalanceOverflow); !errors.Is(err, ErrArithmetic) {
		t.Fatalf("expected overflow, got %v", err)
	}
	sum, err := addAmounts(limit, big.NewInt(0), reasonBalanceOverflow)
	if err != nil || sum.Cmp(limit) != 0 {
		t.Fatalf("unexpected sum %s: %v", sum, err)
	}
}
