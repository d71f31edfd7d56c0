package token

import (
	"errors"
	"math/big"
	"testing"

	"stakepool/core/events"
	"stakepool/core/state"
	"stakepool/storage"
)

type recordingEmitter struct {
	events []events.Event
}

func (r *recordingEmitter) Emit(evt events.Event) { r.events = append(r.events, evt) }

func addr(b byte) [20]byte {
	var out [20]byte
	out[19] = b
	return out
}

func newTestLedger(t *testing.T) (*Ledger, *recordingEmitter, [20]byte) {
	t.Helper()
	mgr := state.NewManager(storage.NewMemDB())
	issuer := addr(0x01)
	if err := mgr.RegisterToken("st", "Staking Token", 12, issuer[:]); err != nil {
		t.Fatalf("register: %v", err)
	}
	ledger, err := New(mgr, "ST")
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	rec := &recordingEmitter{}
	ledger.SetEmitter(rec)
	return ledger, rec, issuer
}

func mustBalance(t *testing.T, l *Ledger, who [20]byte) int64 {
	t.Helper()
	bal, err := l.BalanceOf(who)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return bal.Int64()
}

func TestNewRejectsUnknownToken(t *testing.T) {
	mgr := state.NewManager(storage.NewMemDB())
	if _, err := New(mgr, "RT"); !errors.Is(err, ErrUnknownToken) {
		t.Fatalf("expected ErrUnknownToken, got %v", err)
	}
}

func TestMintRestrictedToIssuer(t *testing.T) {
	ledger, rec, issuer := newTestLedger(t)
	holder := addr(0x04)

	if err := ledger.Mint(addr(0x02), holder, big.NewInt(300)); !errors.Is(err, ErrNotIssuer) {
		t.Fatalf("expected ErrNotIssuer, got %v", err)
	}
	if got := mustBalance(t, ledger, holder); got != 0 {
		t.Fatalf("balance changed after rejected mint: %d", got)
	}

	if err := ledger.Mint(issuer, holder, big.NewInt(300)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if got := mustBalance(t, ledger, holder); got != 300 {
		t.Fatalf("unexpected balance %d", got)
	}
	if len(rec.events) != 1 || rec.events[0].EventType() != events.TypeTransfer {
		t.Fatalf("expected a single transfer event, got %+v", rec.events)
	}
	if from := rec.events[0].Event().Attr("from"); from != "" {
		t.Fatalf("mint should originate from the zero address, got %q", from)
	}
}

func TestTransferFromConsumesAllowance(t *testing.T) {
	ledger, _, issuer := newTestLedger(t)
	owner, pool := addr(0x04), addr(0x09)

	if err := ledger.Mint(issuer, owner, big.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := ledger.TransferFrom(pool, owner, pool, big.NewInt(10)); !errors.Is(err, ErrInsufficientAllowance) {
		t.Fatalf("expected ErrInsufficientAllowance, got %v", err)
	}
	if err := ledger.Approve(owner, pool, big.NewInt(60)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := ledger.TransferFrom(pool, owner, pool, big.NewInt(40)); err != nil {
		t.Fatalf("transfer from: %v", err)
	}
	remaining, err := ledger.Allowance(owner, pool)
	if err != nil {
		t.Fatalf("allowance: %v", err)
	}
	if remaining.Int64() != 20 {
		t.Fatalf("unexpected remaining allowance %s", remaining)
	}
	if got := mustBalance(t, ledger, owner); got != 60 {
		t.Fatalf("owner balance %d", got)
	}
	if got := mustBalance(t, ledger, pool); got != 40 {
		t.Fatalf("pool balance %d", got)
	}
}

func TestTransferFromChecksBalance(t *testing.T) {
	ledger, _, issuer := newTestLedger(t)
	owner, pool := addr(0x04), addr(0x09)

	if err := ledger.Mint(issuer, owner, big.NewInt(5)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := ledger.Approve(owner, pool, big.NewInt(50)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := ledger.TransferFrom(pool, owner, pool, big.NewInt(10)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	remaining, _ := ledger.Allowance(owner, pool)
	if remaining.Int64() != 50 {
		t.Fatalf("allowance consumed by failed transfer: %s", remaining)
	}
}

func TestTransferRejectsOverdraftAndNegative(t *testing.T) {
	ledger, _, issuer := newTestLedger(t)
	from, to := addr(0x04), addr(0x05)

	if err := ledger.Mint(issuer, from, big.NewInt(1)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := ledger.Transfer(from, to, big.NewInt(2)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if err := ledger.Transfer(from, to, big.NewInt(-1)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if err := ledger.Transfer(from, [20]byte{}, big.NewInt(1)); !errors.Is(err, ErrZeroAddress) {
		t.Fatalf("expected ErrZeroAddress, got %v", err)
	}
}
