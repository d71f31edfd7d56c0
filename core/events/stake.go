package events

import (
	"math/big"
	"strconv"

	"stakepool/core/types"
)

const (
	// TypeStakeDeposited is emitted when a participant locks staking tokens.
	TypeStakeDeposited = "stake.deposited"
	// TypeStakeWithdrawn is emitted when principal is returned after the window.
	TypeStakeWithdrawn = "stake.withdrawn"
	// TypeStakeRewardReceived is emitted when a moderator injects rewards.
	TypeStakeRewardReceived = "stake.rewardReceived"
	// TypeStakeRewardPaid is emitted when accrued rewards are paid out.
	TypeStakeRewardPaid = "stake.rewardPaid"
	// TypeStakeModeratorsRegistered is emitted when the owner adds moderators.
	TypeStakeModeratorsRegistered = "stake.moderatorsRegistered"
	// TypeStakeModeratorsRemoved is emitted when the owner removes moderators.
	TypeStakeModeratorsRemoved = "stake.moderatorsRemoved"
	// TypeStakeOwnershipTransferred is emitted when the owner hands over the pool.
	TypeStakeOwnershipTransferred = "stake.ownershipTransferred"
	// TypeStakePoolInitialized is emitted once when the pool is created.
	TypeStakePoolInitialized = "stake.poolInitialized"
)

// StakeDeposited captures a deposit and the resulting positions.
type StakeDeposited struct {
	Account     [20]byte
	Amount      *big.Int
	Staked      *big.Int
	TotalStaked *big.Int
}

// EventType satisfies the Event interface.
func (StakeDeposited) EventType() string { return TypeStakeDeposited }

// Event converts the structured payload into a broadcastable event.
func (e StakeDeposited) Event() *types.Event {
	return &types.Event{Type: TypeStakeDeposited, Attributes: map[string]string{
		"addr":        formatAddress(e.Account),
		"amount":      formatAmount(e.Amount),
		"staked":      formatAmount(e.Staked),
		"totalStaked": formatAmount(e.TotalStaked),
	}}
}

// StakeWithdrawn captures a principal withdrawal.
type StakeWithdrawn struct {
	Account     [20]byte
	Amount      *big.Int
	Staked      *big.Int
	TotalStaked *big.Int
}

// EventType satisfies the Event interface.
func (StakeWithdrawn) EventType() string { return TypeStakeWithdrawn }

// Event converts the structured payload into a broadcastable event.
func (e StakeWithdrawn) Event() *types.Event {
	return &types.Event{Type: TypeStakeWithdrawn, Attributes: map[string]string{
		"addr":        formatAddress(e.Account),
		"amount":      formatAmount(e.Amount),
		"staked":      formatAmount(e.Staked),
		"totalStaked": formatAmount(e.TotalStaked),
	}}
}

// StakeRewardPaid captures the liquidation of an account's accrued rewards.
type StakeRewardPaid struct {
	Account [20]byte
	Token   string
	Amount  *big.Int
}

// EventType satisfies the Event interface.
func (StakeRewardPaid) EventType() string { return TypeStakeRewardPaid }

// Event converts the structured payload into a broadcastable event.
func (e StakeRewardPaid) Event() *types.Event {
	attrs := map[string]string{
		"addr":   formatAddress(e.Account),
		"amount": formatAmount(e.Amount),
	}
	if token := normalizeAsset(e.Token); token != "" {
		attrs["token"] = token
	}
	return &types.Event{Type: TypeStakeRewardPaid, Attributes: attrs}
}

// StakeRewardReceived captures a reward injection and the new accumulator.
type StakeRewardReceived struct {
	Moderator         [20]byte
	Amount            *big.Int
	AccRewardPerShare *big.Int
	TotalReward       *big.Int
	TotalStaked       *big.Int
}

// EventType satisfies the Event interface.
func (StakeRewardReceived) EventType() string { return TypeStakeRewardReceived }

// Event converts the structured payload into a broadcastable event.
func (e StakeRewardReceived) Event() *types.Event {
	return &types.Event{Type: TypeStakeRewardReceived, Attributes: map[string]string{
		"moderator":         formatAddress(e.Moderator),
		"amount":            formatAmount(e.Amount),
		"accRewardPerShare": formatAmount(e.AccRewardPerShare),
		"totalReward":       formatAmount(e.TotalReward),
		"totalStaked":       formatAmount(e.TotalStaked),
	}}
}

// StakeModeratorsChanged captures a moderator set update.
type StakeModeratorsChanged struct {
	Owner      [20]byte
	Moderators [][20]byte
	Removed    bool
}

// EventType satisfies the Event interface.
func (e StakeModeratorsChanged) EventType() string {
	if e.Removed {
		return TypeStakeModeratorsRemoved
	}
	return TypeStakeModeratorsRegistered
}

// Event converts the structured payload into a broadcastable event.
func (e StakeModeratorsChanged) Event() *types.Event {
	return &types.Event{Type: e.EventType(), Attributes: map[string]string{
		"owner":      formatAddress(e.Owner),
		"moderators": formatAddresses(e.Moderators),
		"count":      strconv.Itoa(len(e.Moderators)),
	}}
}

// StakeOwnershipTransferred captures an ownership hand-over.
type StakeOwnershipTransferred struct {
	Previous [20]byte
	Next     [20]byte
}

// EventType satisfies the Event interface.
func (StakeOwnershipTransferred) EventType() string { return TypeStakeOwnershipTransferred }

// Event converts the structured payload into a broadcastable event.
func (e StakeOwnershipTransferred) Event() *types.Event {
	return &types.Event{Type: TypeStakeOwnershipTransferred, Attributes: map[string]string{
		"previous": formatAddress(e.Previous),
		"next":     formatAddress(e.Next),
	}}
}

// StakePoolInitialized captures the immutable pool parameters.
type StakePoolInitialized struct {
	Owner        [20]byte
	StakingToken string
	RewardToken  string
	StartTime    uint64
	EndTime      uint64
}

// EventType satisfies the Event interface.
func (StakePoolInitialized) EventType() string { return TypeStakePoolInitialized }

// Event converts the structured payload into a broadcastable event.
func (e StakePoolInitialized) Event() *types.Event {
	return &types.Event{Type: TypeStakePoolInitialized, Attributes: map[string]string{
		"owner":        formatAddress(e.Owner),
		"stakingToken": normalizeAsset(e.StakingToken),
		"rewardToken":  normalizeAsset(e.RewardToken),
		"startTime":    strconv.FormatUint(e.StartTime, 10),
		"endTime":      strconv.FormatUint(e.EndTime, 10),
	}}
}
