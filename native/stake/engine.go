package stake

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"stakepool/core/events"
)

type engineState interface {
	StakePool() (*Pool, error)
	PutStakePool(*Pool) error
	StakeAccount(addr [20]byte) (*Account, error)
	PutStakeAccount(*Account) error
	StakeRoles() (*Roles, error)
	PutStakeRoles(*Roles) error
}

// Ledger is the fungible-token collaborator the engine moves balances
// through. The pool's own identity is the vault passed to NewEngine.
type Ledger interface {
	Symbol() string
	BalanceOf(addr [20]byte) (*big.Int, error)
	Transfer(from, to [20]byte, amount *big.Int) error
	TransferFrom(spender, owner, to [20]byte, amount *big.Int) error
}

// Engine coordinates deposits, withdrawals and reward injections against the
// configured state backend. It holds no locks; the host serialises calls and
// discards every write of a call that returned an error.
type Engine struct {
	state   engineState
	staking Ledger
	reward  Ledger
	emitter events.Emitter
	vault   [20]byte
	nowFn   func() time.Time
}

// NewEngine creates an engine whose token custody account is vault.
func NewEngine(vault [20]byte) *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		vault:   vault,
		nowFn:   time.Now,
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetLedgers configures the staking and reward token ledgers.
func (e *Engine) SetLedgers(staking, reward Ledger) {
	e.staking = staking
	e.reward = reward
}

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used by the window gate. Primarily
// intended for tests that travel past StartTime and EndTime.
func (e *Engine) SetNowFunc(now func() time.Time) {
	if now == nil {
		e.nowFn = time.Now
		return
	}
	e.nowFn = now
}

// Vault returns the identity holding staked principal and undistributed
// rewards.
func (e *Engine) Vault() [20]byte { return e.vault }

func (e *Engine) now() time.Time {
	if e.nowFn == nil {
		return time.Now()
	}
	return e.nowFn()
}

func (e *Engine) emit(evt events.Event) {
	if e.emitter != nil {
		e.emitter.Emit(evt)
	}
}

// Initialize creates the pool and makes owner its owner. It fails when the
// pool already exists.
func (e *Engine) Initialize(owner [20]byte, params Params) error {
	if e.state == nil {
		return errNilState
	}
	existing, err := e.state.StakePool()
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrPoolInitialized
	}
	if owner == ([20]byte{}) {
		return revert(ErrValidation, reasonZeroIdentity)
	}
	window, err := NewWindow(params.StartTime, params.EndTime)
	if err != nil {
		return err
	}
	stakingToken := strings.ToUpper(strings.TrimSpace(params.StakingToken))
	rewardToken := strings.ToUpper(strings.TrimSpace(params.RewardToken))
	if stakingToken == "" || rewardToken == "" {
		return fmt.Errorf("stake engine: staking and reward tokens are required")
	}
	pool := &Pool{
		StakingToken: stakingToken,
		RewardToken:  rewardToken,
		StartTime:    window.Start,
		EndTime:      window.End,
	}
	pool.normalize()
	if err := e.state.PutStakePool(pool); err != nil {
		return err
	}
	if err := e.state.PutStakeRoles(&Roles{Owner: owner}); err != nil {
		return err
	}
	e.emit(events.StakePoolInitialized{
		Owner:        owner,
		StakingToken: pool.StakingToken,
		RewardToken:  pool.RewardToken,
		StartTime:    pool.StartTime,
		EndTime:      pool.EndTime,
	})
	return nil
}

func (e *Engine) loadPool() (*Pool, error) {
	if e.state == nil {
		return nil, errNilState
	}
	pool, err := e.state.StakePool()
	if err != nil {
		return nil, err
	}
	if pool == nil {
		return nil, ErrPoolNotInitialized
	}
	pool = pool.Clone()
	pool.normalize()
	return pool, nil
}

func (e *Engine) loadAccount(addr [20]byte) (*Account, error) {
	acct, err := e.state.StakeAccount(addr)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return newAccount(addr), nil
	}
	acct = acct.Clone()
	acct.Address = addr
	acct.normalize()
	return acct, nil
}

func (e *Engine) loadRoles() (*Roles, error) {
	if e.state == nil {
		return nil, errNilState
	}
	roles, err := e.state.StakeRoles()
	if err != nil {
		return nil, err
	}
	if roles == nil {
		return nil, ErrPoolNotInitialized
	}
	return roles.Clone(), nil
}

func (e *Engine) ledgers(pool *Pool) (Ledger, Ledger, error) {
	if e.staking == nil || e.reward == nil {
		return nil, nil, errNilLedgers
	}
	if !strings.EqualFold(e.staking.Symbol(), pool.StakingToken) {
		return nil, nil, fmt.Errorf("stake engine: staking ledger %q does not match pool token %q", e.staking.Symbol(), pool.StakingToken)
	}
	if !strings.EqualFold(e.reward.Symbol(), pool.RewardToken) {
		return nil, nil, fmt.Errorf("stake engine: reward ledger %q does not match pool token %q", e.reward.Symbol(), pool.RewardToken)
	}
	return e.staking, e.reward, nil
}

func isPositive(amount *big.Int) bool {
	return amount != nil && amount.Sign() > 0
}

// Deposit locks amount of the staking token from caller. The caller must have
// approved the vault for at least amount beforehand.
func (e *Engine) Deposit(caller [20]byte, amount *big.Int) error {
	if !isPositive(amount) {
		if amount != nil && amount.Sign() < 0 {
			return revert(ErrValidation, reasonNegativeAmount)
		}
		return revert(ErrValidation, reasonDepositZero)
	}
	pool, err := e.loadPool()
	if err != nil {
		return err
	}
	if err := pool.Window().checkDeposit(e.now()); err != nil {
		return err
	}
	staking, _, err := e.ledgers(pool)
	if err != nil {
		return err
	}
	acct, err := e.loadAccount(caller)
	if err != nil {
		return err
	}
	if err := settle(pool, acct); err != nil {
		return err
	}
	staked, err := addAmounts(acct.Staked, amount, reasonBalanceOverflow)
	if err != nil {
		return err
	}
	total, err := addAmounts(pool.TotalStaked, amount, reasonBalanceOverflow)
	if err != nil {
		return err
	}
	acct.Staked = staked
	if err := rebase(pool, acct); err != nil {
		return err
	}
	if err := staking.TransferFrom(e.vault, caller, e.vault, amount); err != nil {
		return transferFailed(err)
	}
	pool.TotalStaked = total
	if err := e.state.PutStakeAccount(acct); err != nil {
		return err
	}
	if err := e.state.PutStakePool(pool); err != nil {
		return err
	}
	e.emit(events.StakeDeposited{
		Account:     caller,
		Amount:      new(big.Int).Set(amount),
		Staked:      cloneBig(acct.Staked),
		TotalStaked: cloneBig(pool.TotalStaked),
	})
	return nil
}

// Withdraw returns amount of principal to caller once EndTime has passed and
// pays out the caller's entire accrued reward, whatever fraction of the
// principal is withdrawn.
func (e *Engine) Withdraw(caller [20]byte, amount *big.Int) (*WithdrawResult, error) {
	if !isPositive(amount) {
		if amount != nil && amount.Sign() < 0 {
			return nil, revert(ErrValidation, reasonNegativeAmount)
		}
		return nil, revert(ErrValidation, reasonWithdrawZero)
	}
	pool, err := e.loadPool()
	if err != nil {
		return nil, err
	}
	if err := pool.Window().checkWithdraw(e.now()); err != nil {
		return nil, err
	}
	staking, reward, err := e.ledgers(pool)
	if err != nil {
		return nil, err
	}
	acct, err := e.loadAccount(caller)
	if err != nil {
		return nil, err
	}
	if amount.Cmp(acct.Staked) > 0 {
		return nil, revert(ErrValidation, reasonWithdrawExceeds)
	}
	if err := settle(pool, acct); err != nil {
		return nil, err
	}
	staked, err := subAmounts(acct.Staked, amount, reasonWithdrawExceeds)
	if err != nil {
		return nil, err
	}
	total, err := subAmounts(pool.TotalStaked, amount, reasonAccumulatorBounds)
	if err != nil {
		return nil, err
	}
	acct.Staked = staked
	pool.TotalStaked = total
	if err := rebase(pool, acct); err != nil {
		return nil, err
	}
	payout := cloneBig(acct.PendingAccrued)

	if err := staking.Transfer(e.vault, caller, amount); err != nil {
		return nil, transferFailed(err)
	}
	if payout.Sign() > 0 {
		if err := reward.Transfer(e.vault, caller, payout); err != nil {
			return nil, transferFailed(err)
		}
	}
	acct.PendingAccrued = big.NewInt(0)
	if err := e.state.PutStakeAccount(acct); err != nil {
		return nil, err
	}
	if err := e.state.PutStakePool(pool); err != nil {
		return nil, err
	}
	e.emit(events.StakeWithdrawn{
		Account:     caller,
		Amount:      new(big.Int).Set(amount),
		Staked:      cloneBig(acct.Staked),
		TotalStaked: cloneBig(pool.TotalStaked),
	})
	if payout.Sign() > 0 {
		e.emit(events.StakeRewardPaid{Account: caller, Token: pool.RewardToken, Amount: cloneBig(payout)})
	}
	return &WithdrawResult{Principal: new(big.Int).Set(amount), Reward: payout}, nil
}

// ReceiveReward pulls amount of the reward token from a moderator and
// distributes it over the current stake.
func (e *Engine) ReceiveReward(caller [20]byte, amount *big.Int) error {
	roles, err := e.loadRoles()
	if err != nil {
		return err
	}
	if err := requireModerator(roles, caller); err != nil {
		return err
	}
	if !isPositive(amount) {
		if amount != nil && amount.Sign() < 0 {
			return revert(ErrValidation, reasonNegativeAmount)
		}
		return revert(ErrValidation, reasonRewardZero)
	}
	pool, err := e.loadPool()
	if err != nil {
		return err
	}
	_, reward, err := e.ledgers(pool)
	if err != nil {
		return err
	}
	if err := inject(pool, amount); err != nil {
		return err
	}
	if err := reward.TransferFrom(e.vault, caller, e.vault, amount); err != nil {
		return transferFailed(err)
	}
	if err := e.state.PutStakePool(pool); err != nil {
		return err
	}
	e.emit(events.StakeRewardReceived{
		Moderator:         caller,
		Amount:            new(big.Int).Set(amount),
		AccRewardPerShare: cloneBig(pool.AccRewardPerShare),
		TotalReward:       cloneBig(pool.TotalReward),
		TotalStaked:       cloneBig(pool.TotalStaked),
	})
	return nil
}

// RegisterMods grants reward-injection rights. Only the owner may call it;
// identities that already are moderators are ignored.
func (e *Engine) RegisterMods(caller [20]byte, ids [][20]byte) error {
	roles, err := e.loadRoles()
	if err != nil {
		return err
	}
	if err := requireOwner(roles, caller); err != nil {
		return err
	}
	if err := checkIdentities(ids); err != nil {
		return err
	}
	added := roles.addModerators(ids)
	if len(added) == 0 {
		return nil
	}
	if err := e.state.PutStakeRoles(roles); err != nil {
		return err
	}
	e.emit(events.StakeModeratorsChanged{Owner: caller, Moderators: added})
	return nil
}

// RemoveMods revokes reward-injection rights. Unknown identities are ignored.
func (e *Engine) RemoveMods(caller [20]byte, ids [][20]byte) error {
	roles, err := e.loadRoles()
	if err != nil {
		return err
	}
	if err := requireOwner(roles, caller); err != nil {
		return err
	}
	if err := checkIdentities(ids); err != nil {
		return err
	}
	removed := roles.removeModerators(ids)
	if len(removed) == 0 {
		return nil
	}
	if err := e.state.PutStakeRoles(roles); err != nil {
		return err
	}
	e.emit(events.StakeModeratorsChanged{Owner: caller, Moderators: removed, Removed: true})
	return nil
}

// TransferOwnership hands role management over to next.
func (e *Engine) TransferOwnership(caller, next [20]byte) error {
	roles, err := e.loadRoles()
	if err != nil {
		return err
	}
	if err := requireOwner(roles, caller); err != nil {
		return err
	}
	if next == ([20]byte{}) {
		return revert(ErrValidation, reasonZeroIdentity)
	}
	if next == caller {
		return nil
	}
	roles.Owner = next
	if err := e.state.PutStakeRoles(roles); err != nil {
		return err
	}
	e.emit(events.StakeOwnershipTransferred{Previous: caller, Next: next})
	return nil
}

// PendingRewards returns the reward addr would receive if it withdrew now.
func (e *Engine) PendingRewards(addr [20]byte) (*big.Int, error) {
	pool, err := e.loadPool()
	if err != nil {
		return nil, err
	}
	acct, err := e.loadAccount(addr)
	if err != nil {
		return nil, err
	}
	return pendingReward(pool, acct)
}

// Pool returns a copy of the pool record.
func (e *Engine) Pool() (*Pool, error) {
	return e.loadPool()
}

// PoolInfo returns the totals exposed by the getPool query.
func (e *Engine) PoolInfo() (*PoolInfo, error) {
	pool, err := e.loadPool()
	if err != nil {
		return nil, err
	}
	return &PoolInfo{
		TotalStaked:       pool.TotalStaked,
		TotalReward:       pool.TotalReward,
		AccRewardPerShare: pool.AccRewardPerShare,
	}, nil
}

// Account returns the staking position of addr. Unknown identities yield an
// empty position.
func (e *Engine) Account(addr [20]byte) (*Account, error) {
	if _, err := e.loadPool(); err != nil {
		return nil, err
	}
	return e.loadAccount(addr)
}

// Roles returns a copy of the owner and moderator set.
func (e *Engine) Roles() (*Roles, error) {
	return e.loadRoles()
}

// StartTime returns the opening of the deposit window.
func (e *Engine) StartTime() (uint64, error) {
	pool, err := e.loadPool()
	if err != nil {
		return 0, err
	}
	return pool.StartTime, nil
}

// EndTime returns the close of the deposit window, from which withdrawals are
// allowed.
func (e *Engine) EndTime() (uint64, error) {
	pool, err := e.loadPool()
	if err != nil {
		return 0, err
	}
	return pool.EndTime, nil
}

// StakingToken returns the symbol of the staked asset.
func (e *Engine) StakingToken() (string, error) {
	pool, err := e.loadPool()
	if err != nil {
		return "", err
	}
	return pool.StakingToken, nil
}

// RewardToken returns the symbol of the reward asset.
func (e *Engine) RewardToken() (string, error) {
	pool, err := e.loadPool()
	if err != nil {
		return "", err
	}
	return pool.RewardToken, nil
}

// Phase returns the current lifecycle stage of the pool.
func (e *Engine) Phase() (Phase, error) {
	pool, err := e.loadPool()
	if err != nil {
		return PhaseLocked, err
	}
	return pool.Window().Phase(e.now()), nil
}
