package stake

import (
	"math/big"

	"github.com/holiman/uint256"
)

// The accumulator never iterates accounts. An injection only bumps
// AccRewardPerShare; each account settles lazily against it right before its
// stake changes, so an account's share of every injection is
// staked × (acc_now − acc_at_checkpoint) / Precision.

// owedSince returns the whole reward units accrued by acct since its last
// checkpoint together with the checkpoint value for the current accumulator.
func owedSince(pool *Pool, acct *Account) (owed, checkpoint *uint256.Int, err error) {
	staked, err := toWord(acct.Staked)
	if err != nil {
		return nil, nil, err
	}
	acc, err := toWord(pool.AccRewardPerShare)
	if err != nil {
		return nil, nil, err
	}
	debt, err := toWord(acct.RewardDebt)
	if err != nil {
		return nil, nil, err
	}
	checkpoint, err = mulWord(staked, acc, reasonAccumulatorBounds)
	if err != nil {
		return nil, nil, err
	}
	// debt > checkpoint would mean the accumulator went backwards.
	diff, err := subWord(checkpoint, debt, reasonAccumulatorBounds)
	if err != nil {
		return nil, nil, err
	}
	return new(uint256.Int).Div(diff, precision), checkpoint, nil
}

// settle moves everything acct earned since its last checkpoint into
// PendingAccrued and re-checkpoints it. It must run with the stake the
// account held while that reward accrued, i.e. before the stake changes.
func settle(pool *Pool, acct *Account) error {
	owed, checkpoint, err := owedSince(pool, acct)
	if err != nil {
		return err
	}
	pending, err := toWord(acct.PendingAccrued)
	if err != nil {
		return err
	}
	pending, err = addWord(pending, owed, reasonAccumulatorBounds)
	if err != nil {
		return err
	}
	acct.PendingAccrued = pending.ToBig()
	acct.RewardDebt = checkpoint.ToBig()
	return nil
}

// rebase re-checkpoints acct after its stake changed so that only reward
// injected from now on accrues to the new amount.
func rebase(pool *Pool, acct *Account) error {
	staked, err := toWord(acct.Staked)
	if err != nil {
		return err
	}
	acc, err := toWord(pool.AccRewardPerShare)
	if err != nil {
		return err
	}
	checkpoint, err := mulWord(staked, acc, reasonAccumulatorBounds)
	if err != nil {
		return err
	}
	acct.RewardDebt = checkpoint.ToBig()
	return nil
}

// pendingReward returns settled-but-unpaid reward plus reward accrued since
// the last checkpoint, without touching either record.
func pendingReward(pool *Pool, acct *Account) (*big.Int, error) {
	owed, _, err := owedSince(pool, acct)
	if err != nil {
		return nil, err
	}
	pending, err := toWord(acct.PendingAccrued)
	if err != nil {
		return nil, err
	}
	total, err := addWord(pending, owed, reasonAccumulatorBounds)
	if err != nil {
		return nil, err
	}
	return total.ToBig(), nil
}

// inject distributes amount over the current stake by raising the
// accumulator. The pool is only modified when every check passes.
func inject(pool *Pool, amount *big.Int) error {
	delta, _, err := rewardPerShareDelta(amount, pool.TotalStaked)
	if err != nil {
		return err
	}
	acc, err := toWord(pool.AccRewardPerShare)
	if err != nil {
		return err
	}
	acc, err = addWord(acc, delta, reasonAccumulatorBounds)
	if err != nil {
		return err
	}
	total, err := addAmounts(pool.TotalReward, amount, reasonBalanceOverflow)
	if err != nil {
		return err
	}
	pool.AccRewardPerShare = acc.ToBig()
	pool.TotalReward = total
	return nil
}
