package state

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"stakepool/native/stake"
	"stakepool/storage"
)

func TestOverlayCommitAndDiscard(t *testing.T) {
	db := storage.NewMemDB()
	mgr := NewManager(db)
	addr := []byte{0x01}

	require.NoError(t, mgr.RegisterToken("st", "Staking Token", 12, []byte{0x09}))
	require.NoError(t, mgr.SetBalance(addr, "ST", big.NewInt(500)))
	require.Positive(t, mgr.Pending())
	require.Zero(t, db.Len(), "writes must stay in the overlay until commit")

	require.NoError(t, mgr.Commit())
	require.Zero(t, mgr.Pending())

	fresh := NewManager(db)
	bal, err := fresh.Balance(addr, "st")
	require.NoError(t, err)
	require.Equal(t, int64(500), bal.Int64())

	require.NoError(t, fresh.SetBalance(addr, "ST", big.NewInt(1)))
	fresh.Discard()
	bal, err = fresh.Balance(addr, "ST")
	require.NoError(t, err)
	require.Equal(t, int64(500), bal.Int64())
}

func TestZeroBalanceDeletesKey(t *testing.T) {
	db := storage.NewMemDB()
	mgr := NewManager(db)
	addr := []byte{0x02}
	require.NoError(t, mgr.RegisterToken("RT", "RewardToken", 18, []byte{0x01}))
	require.NoError(t, mgr.SetBalance(addr, "RT", big.NewInt(7)))
	require.NoError(t, mgr.Commit())
	before := db.Len()

	require.NoError(t, mgr.SetBalance(addr, "RT", big.NewInt(0)))
	require.NoError(t, mgr.Commit())
	require.Equal(t, before-1, db.Len())

	bal, err := mgr.Balance(addr, "RT")
	require.NoError(t, err)
	require.Zero(t, bal.Sign())
}

func TestTokenRegistry(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	require.NoError(t, mgr.RegisterToken("rt", "RewardToken", 18, []byte{0x01}))
	require.NoError(t, mgr.RegisterToken("st", "Staking Token", 12, []byte{0x01}))
	require.Error(t, mgr.RegisterToken("RT", "again", 18, []byte{0x01}))

	meta, err := mgr.Token("Rt")
	require.NoError(t, err)
	require.NotNil(t, meta)
	require.Equal(t, "RewardToken", meta.Name)
	require.Equal(t, uint8(18), meta.Decimals)

	missing, err := mgr.Token("XX")
	require.NoError(t, err)
	require.Nil(t, missing)

	list, err := mgr.TokenList()
	require.NoError(t, err)
	require.Equal(t, []string{"RT", "ST"}, list)
}

func TestAllowances(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	owner, spender := []byte{0x01}, []byte{0x02}
	require.NoError(t, mgr.SetAllowance(owner, spender, "ST", big.NewInt(30)))
	got, err := mgr.Allowance(owner, spender, "ST")
	require.NoError(t, err)
	require.Equal(t, int64(30), got.Int64())

	reverse, err := mgr.Allowance(spender, owner, "ST")
	require.NoError(t, err)
	require.Zero(t, reverse.Sign())
}

func TestStakeRecordsRoundTrip(t *testing.T) {
	db := storage.NewMemDB()
	mgr := NewManager(db)

	pool, err := mgr.StakePool()
	require.NoError(t, err)
	require.Nil(t, pool)

	require.NoError(t, mgr.PutStakePool(&stake.Pool{
		StakingToken:      "ST",
		RewardToken:       "RT",
		StartTime:         100,
		EndTime:           200,
		TotalStaked:       big.NewInt(500),
		AccRewardPerShare: big.NewInt(900_000_000_000),
	}))
	addr := [20]byte{0xaa}
	require.NoError(t, mgr.PutStakeAccount(&stake.Account{
		Address:        addr,
		Staked:         big.NewInt(300),
		RewardDebt:     big.NewInt(150_000_000_000_000),
		PendingAccrued: big.NewInt(100),
	}))
	mods := [][20]byte{{0x02}, {0x03}}
	require.NoError(t, mgr.PutStakeRoles(&stake.Roles{Owner: [20]byte{0x01}, Moderators: mods}))
	require.NoError(t, mgr.Commit())

	reloaded := NewManager(db)
	pool, err = reloaded.StakePool()
	require.NoError(t, err)
	require.Equal(t, "ST", pool.StakingToken)
	require.Equal(t, uint64(200), pool.EndTime)
	require.Equal(t, int64(500), pool.TotalStaked.Int64())
	require.Zero(t, pool.TotalReward.Sign())

	acct, err := reloaded.StakeAccount(addr)
	require.NoError(t, err)
	require.Equal(t, addr, acct.Address)
	require.Equal(t, int64(150_000_000_000_000), acct.RewardDebt.Int64())
	require.Equal(t, int64(100), acct.PendingAccrued.Int64())

	unknown, err := reloaded.StakeAccount([20]byte{0xbb})
	require.NoError(t, err)
	require.Nil(t, unknown)

	roles, err := reloaded.StakeRoles()
	require.NoError(t, err)
	require.Equal(t, [20]byte{0x01}, roles.Owner)
	require.Equal(t, mods, roles.Moderators)
}

func TestKVHelpers(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	require.Error(t, mgr.KVPut(nil, uint64(1)))

	require.NoError(t, mgr.KVPut([]byte("counter"), uint64(42)))
	var out uint64
	ok, err := mgr.KVGet([]byte("counter"), &out)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(42), out)

	require.NoError(t, mgr.KVDelete([]byte("counter")))
	ok, err = mgr.KVGet([]byte("counter"), &out)
	require.NoError(t, err)
	require.False(t, ok)
}
