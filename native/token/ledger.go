package token

import (
	"errors"
	"fmt"
	"math/big"

	"stakepool/core/events"
	"stakepool/core/state"
)

var (
	ErrUnknownToken          = errors.New("token: not registered")
	ErrInvalidAmount         = errors.New("token: amount must not be negative")
	ErrZeroAddress           = errors.New("token: zero address")
	ErrNotIssuer             = errors.New("token: caller is not the issuer")
	ErrInsufficientBalance   = errors.New("token: transfer amount exceeds balance")
	ErrInsufficientAllowance = errors.New("token: insufficient allowance")
)

type ledgerState interface {
	Token(symbol string) (*state.TokenMetadata, error)
	Balance(addr []byte, symbol string) (*big.Int, error)
	SetBalance(addr []byte, symbol string, amount *big.Int) error
	Allowance(owner, spender []byte, symbol string) (*big.Int, error)
	SetAllowance(owner, spender []byte, symbol string, amount *big.Int) error
}

// Ledger is a fungible balance ledger for a single registered token symbol.
// It provides the transfer, allowance-based transfer-on-behalf and
// issuer-gated mint primitives the pool relies on.
type Ledger struct {
	state   ledgerState
	symbol  string
	emitter events.Emitter
}

// New binds a ledger to symbol. The token must already be registered.
func New(st ledgerState, symbol string) (*Ledger, error) {
	if st == nil {
		return nil, errors.New("token: state not configured")
	}
	normalized := state.NormalizeSymbol(symbol)
	meta, err := st.Token(normalized)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownToken, normalized)
	}
	return &Ledger{state: st, symbol: normalized, emitter: events.NoopEmitter{}}, nil
}

// SetEmitter configures the event emitter. Passing nil resets the emitter to
// a no-op implementation.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

// Symbol returns the normalised token symbol.
func (l *Ledger) Symbol() string { return l.symbol }

// BalanceOf returns addr's balance.
func (l *Ledger) BalanceOf(addr [20]byte) (*big.Int, error) {
	return l.state.Balance(addr[:], l.symbol)
}

// Allowance returns how much spender may move out of owner's balance.
func (l *Ledger) Allowance(owner, spender [20]byte) (*big.Int, error) {
	return l.state.Allowance(owner[:], spender[:], l.symbol)
}

// Approve sets spender's allowance over owner's balance, replacing any
// previous value.
func (l *Ledger) Approve(owner, spender [20]byte, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if owner == ([20]byte{}) || spender == ([20]byte{}) {
		return ErrZeroAddress
	}
	if err := l.state.SetAllowance(owner[:], spender[:], l.symbol, amount); err != nil {
		return err
	}
	l.emitter.Emit(events.Approval{Asset: l.symbol, Owner: owner, Spender: spender, Amount: new(big.Int).Set(amount)})
	return nil
}

// Transfer moves amount from from to to.
func (l *Ledger) Transfer(from, to [20]byte, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if from == ([20]byte{}) || to == ([20]byte{}) {
		return ErrZeroAddress
	}
	return l.move(from, to, amount)
}

// TransferFrom moves amount from owner to to, consuming spender's allowance.
func (l *Ledger) TransferFrom(spender, owner, to [20]byte, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if owner == ([20]byte{}) || to == ([20]byte{}) {
		return ErrZeroAddress
	}
	allowance, err := l.state.Allowance(owner[:], spender[:], l.symbol)
	if err != nil {
		return err
	}
	if allowance.Cmp(amount) < 0 {
		return ErrInsufficientAllowance
	}
	balance, err := l.state.Balance(owner[:], l.symbol)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	if err := l.state.SetAllowance(owner[:], spender[:], l.symbol, new(big.Int).Sub(allowance, amount)); err != nil {
		return err
	}
	return l.move(owner, to, amount)
}

// Mint credits amount to to. Only the registered issuer may mint.
func (l *Ledger) Mint(caller, to [20]byte, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if to == ([20]byte{}) {
		return ErrZeroAddress
	}
	meta, err := l.state.Token(l.symbol)
	if err != nil {
		return err
	}
	if meta == nil {
		return ErrUnknownToken
	}
	if string(meta.Issuer) != string(caller[:]) {
		return ErrNotIssuer
	}
	balance, err := l.state.Balance(to[:], l.symbol)
	if err != nil {
		return err
	}
	if err := l.state.SetBalance(to[:], l.symbol, new(big.Int).Add(balance, amount)); err != nil {
		return err
	}
	l.emitter.Emit(events.Transfer{Asset: l.symbol, To: to, Amount: new(big.Int).Set(amount)})
	return nil
}

func (l *Ledger) move(from, to [20]byte, amount *big.Int) error {
	fromBalance, err := l.state.Balance(from[:], l.symbol)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	if from != to {
		toBalance, err := l.state.Balance(to[:], l.symbol)
		if err != nil {
			return err
		}
		if err := l.state.SetBalance(from[:], l.symbol, new(big.Int).Sub(fromBalance, amount)); err != nil {
			return err
		}
		if err := l.state.SetBalance(to[:], l.symbol, new(big.Int).Add(toBalance, amount)); err != nil {
			return err
		}
	}
	l.emitter.Emit(events.Transfer{Asset: l.symbol, From: from, To: to, Amount: new(big.Int).Set(amount)})
	return nil
}

func checkAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	return nil
}
