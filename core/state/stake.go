package state

import (
	"encoding/hex"
	"fmt"
	"math/big"

	"stakepool/native/stake"
)

var (
	stakePoolKey          = []byte("stake/pool")
	stakeRolesKey         = []byte("stake/roles")
	stakeAccountKeyPrefix = []byte("stake/account/")
)

func stakeAccountKey(addr [20]byte) []byte {
	key := make([]byte, 0, len(stakeAccountKeyPrefix)+40)
	key = append(key, stakeAccountKeyPrefix...)
	key = append(key, hex.EncodeToString(addr[:])...)
	return key
}

// storedStakePool is the RLP layout of the pool record. Amounts are never nil
// once decoded.
type storedStakePool struct {
	StakingToken      string
	RewardToken       string
	StartTime         uint64
	EndTime           uint64
	TotalStaked       *big.Int
	AccRewardPerShare *big.Int
	TotalReward       *big.Int
}

type storedStakeAccount struct {
	Address        [20]byte
	Staked         *big.Int
	RewardDebt     *big.Int
	PendingAccrued *big.Int
}

type storedStakeRoles struct {
	Owner      [20]byte
	Moderators [][20]byte
}

func nonNil(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// StakePool returns the pool record or nil when the pool was never
// initialised.
func (m *Manager) StakePool() (*stake.Pool, error) {
	var stored storedStakePool
	ok, err := m.KVGet(stakePoolKey, &stored)
	if err != nil {
		return nil, fmt.Errorf("stake pool: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return &stake.Pool{
		StakingToken:      stored.StakingToken,
		RewardToken:       stored.RewardToken,
		StartTime:         stored.StartTime,
		EndTime:           stored.EndTime,
		TotalStaked:       nonNil(stored.TotalStaked),
		AccRewardPerShare: nonNil(stored.AccRewardPerShare),
		TotalReward:       nonNil(stored.TotalReward),
	}, nil
}

// PutStakePool persists the pool record.
func (m *Manager) PutStakePool(pool *stake.Pool) error {
	if pool == nil {
		return fmt.Errorf("stake pool: nil record")
	}
	return m.KVPut(stakePoolKey, &storedStakePool{
		StakingToken:      pool.StakingToken,
		RewardToken:       pool.RewardToken,
		StartTime:         pool.StartTime,
		EndTime:           pool.EndTime,
		TotalStaked:       nonNil(pool.TotalStaked),
		AccRewardPerShare: nonNil(pool.AccRewardPerShare),
		TotalReward:       nonNil(pool.TotalReward),
	})
}

// StakeAccount returns the staking position of addr or nil when none exists.
func (m *Manager) StakeAccount(addr [20]byte) (*stake.Account, error) {
	var stored storedStakeAccount
	ok, err := m.KVGet(stakeAccountKey(addr), &stored)
	if err != nil {
		return nil, fmt.Errorf("stake account: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return &stake.Account{
		Address:        addr,
		Staked:         nonNil(stored.Staked),
		RewardDebt:     nonNil(stored.RewardDebt),
		PendingAccrued: nonNil(stored.PendingAccrued),
	}, nil
}

// PutStakeAccount persists a staking position. Positions are never deleted,
// even when fully withdrawn.
func (m *Manager) PutStakeAccount(acct *stake.Account) error {
	if acct == nil {
		return fmt.Errorf("stake account: nil record")
	}
	return m.KVPut(stakeAccountKey(acct.Address), &storedStakeAccount{
		Address:        acct.Address,
		Staked:         nonNil(acct.Staked),
		RewardDebt:     nonNil(acct.RewardDebt),
		PendingAccrued: nonNil(acct.PendingAccrued),
	})
}

// StakeRoles returns the owner and moderator set or nil before
// initialisation.
func (m *Manager) StakeRoles() (*stake.Roles, error) {
	var stored storedStakeRoles
	ok, err := m.KVGet(stakeRolesKey, &stored)
	if err != nil {
		return nil, fmt.Errorf("stake roles: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return &stake.Roles{
		Owner:      stored.Owner,
		Moderators: append([][20]byte(nil), stored.Moderators...),
	}, nil
}

// PutStakeRoles persists the role set.
func (m *Manager) PutStakeRoles(roles *stake.Roles) error {
	if roles == nil {
		return fmt.Errorf("stake roles: nil record")
	}
	return m.KVPut(stakeRolesKey, &storedStakeRoles{
		Owner:      roles.Owner,
		Moderators: append([][20]byte{}, roles.Moderators...),
	})
}
