package stake

import (
	"math/big"
	"sort"
)

// Pool is the singleton accounting record of the staking pool.
type Pool struct {
	// StakingToken is the ledger symbol participants lock.
	StakingToken string
	// RewardToken is the ledger symbol paid out as yield.
	RewardToken string
	// StartTime and EndTime bound the deposit window, in unix seconds.
	StartTime uint64
	EndTime   uint64
	// TotalStaked is the sum of every account's staked amount.
	TotalStaked *big.Int
	// AccRewardPerShare is the cumulative reward per staked unit scaled by
	// Precision. It never decreases.
	AccRewardPerShare *big.Int
	// TotalReward is the cumulative reward ever injected.
	TotalReward *big.Int
}

// Clone returns a deep copy of the pool.
func (p *Pool) Clone() *Pool {
	if p == nil {
		return nil
	}
	clone := *p
	clone.TotalStaked = cloneBig(p.TotalStaked)
	clone.AccRewardPerShare = cloneBig(p.AccRewardPerShare)
	clone.TotalReward = cloneBig(p.TotalReward)
	return &clone
}

// Window returns the pool's deposit/withdraw window.
func (p *Pool) Window() Window {
	if p == nil {
		return Window{}
	}
	return Window{Start: p.StartTime, End: p.EndTime}
}

func (p *Pool) normalize() {
	if p.TotalStaked == nil {
		p.TotalStaked = big.NewInt(0)
	}
	if p.AccRewardPerShare == nil {
		p.AccRewardPerShare = big.NewInt(0)
	}
	if p.TotalReward == nil {
		p.TotalReward = big.NewInt(0)
	}
}

// Account is the per-participant staking position.
type Account struct {
	Address [20]byte
	// Staked is the principal currently locked.
	Staked *big.Int
	// RewardDebt is Staked × AccRewardPerShare at the last checkpoint, still
	// carrying the Precision scale.
	RewardDebt *big.Int
	// PendingAccrued is reward settled into the account but not yet paid.
	PendingAccrued *big.Int
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	clone := *a
	clone.Staked = cloneBig(a.Staked)
	clone.RewardDebt = cloneBig(a.RewardDebt)
	clone.PendingAccrued = cloneBig(a.PendingAccrued)
	return &clone
}

func newAccount(addr [20]byte) *Account {
	return &Account{
		Address:        addr,
		Staked:         big.NewInt(0),
		RewardDebt:     big.NewInt(0),
		PendingAccrued: big.NewInt(0),
	}
}

func (a *Account) normalize() {
	if a.Staked == nil {
		a.Staked = big.NewInt(0)
	}
	if a.RewardDebt == nil {
		a.RewardDebt = big.NewInt(0)
	}
	if a.PendingAccrued == nil {
		a.PendingAccrued = big.NewInt(0)
	}
}

// Roles holds the pool's access-control state.
type Roles struct {
	Owner      [20]byte
	Moderators [][20]byte
}

// Clone returns a deep copy of the role set.
func (r *Roles) Clone() *Roles {
	if r == nil {
		return nil
	}
	clone := *r
	clone.Moderators = append([][20]byte(nil), r.Moderators...)
	return &clone
}

func sortIdentities(ids [][20]byte) {
	sort.Slice(ids, func(i, j int) bool {
		return string(ids[i][:]) < string(ids[j][:])
	})
}

// Params configures a pool at initialisation.
type Params struct {
	StakingToken string
	RewardToken  string
	StartTime    uint64
	EndTime      uint64
}

// PoolInfo is the read-only view returned by the getPool query.
type PoolInfo struct {
	TotalStaked       *big.Int
	TotalReward       *big.Int
	AccRewardPerShare *big.Int
}

// WithdrawResult reports what a withdrawal returned to the caller.
type WithdrawResult struct {
	Principal *big.Int
	Reward    *big.Int
}

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
