package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"stakepool/core/events"
	"stakepool/core/genesis"
	"stakepool/core/state"
	"stakepool/core/types"
	"stakepool/crypto"
	"stakepool/native/stake"
	"stakepool/native/token"
	"stakepool/observability"
	telemetry "stakepool/observability/otel"
	"stakepool/storage"
	"stakepool/storage/receipts"
)

// VaultModule names the module account that custodies staked principal and
// undistributed rewards.
const VaultModule = "stakepool"

// ReceiptRecorder journals the outcome of every call.
type ReceiptRecorder interface {
	Record(ctx context.Context, entry receipts.Entry) (*receipts.Receipt, error)
}

// Node hosts the pool. It admits one call at a time; each call runs against
// a fresh state overlay that is committed as a single batch on success and
// discarded on any error, and the call's events are published only after the
// commit.
type Node struct {
	stateMu sync.Mutex

	db          storage.Database
	vault       [20]byte
	nowFn       func() time.Time
	broadcaster *events.Broadcaster
	receipts    ReceiptRecorder
	logger      *slog.Logger
	metrics     *observability.PoolMetrics
	tracer      trace.Tracer
	committed   metric.Int64Counter
}

// NewNode creates a node on top of db.
func NewNode(db storage.Database) (*Node, error) {
	if db == nil {
		return nil, fmt.Errorf("node: database must not be nil")
	}
	committed, err := telemetry.Meter().Int64Counter("stakepool.node.calls",
		metric.WithDescription("Pool and ledger calls handled by the node, by outcome."))
	if err != nil {
		return nil, fmt.Errorf("node: create call counter: %w", err)
	}
	return &Node{
		db:          db,
		vault:       crypto.ModuleAddress(VaultModule).Raw(),
		nowFn:       time.Now,
		broadcaster: events.NewBroadcaster(),
		logger:      slog.Default().With(slog.String("component", "node")),
		metrics:     observability.Pool(),
		tracer:      telemetry.Tracer(),
		committed:   committed,
	}, nil
}

// SetNowFunc overrides the clock used by the window gate.
func (n *Node) SetNowFunc(now func() time.Time) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	if now == nil {
		now = time.Now
	}
	n.nowFn = now
}

// SetReceipts configures the receipt journal. Nil disables journaling.
func (n *Node) SetReceipts(r ReceiptRecorder) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	n.receipts = r
}

// SetLogger replaces the node logger.
func (n *Node) SetLogger(logger *slog.Logger) {
	if logger == nil {
		return
	}
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	n.logger = logger.With(slog.String("component", "node"))
}

// Vault returns the pool's custody identity. Participants approve it before
// depositing and moderators approve it before injecting rewards.
func (n *Node) Vault() [20]byte { return n.vault }

// Subscribe streams committed events. The cancel function must be called.
func (n *Node) Subscribe(capacity int) (<-chan *types.Event, func()) {
	return n.broadcaster.Subscribe(capacity)
}

// session is the per-call working set.
type session struct {
	manager *state.Manager
	buffer  *events.Buffer
	engine  *stake.Engine
}

func (n *Node) newSession() (*session, error) {
	s := &session{
		manager: state.NewManager(n.db),
		buffer:  &events.Buffer{},
	}
	s.engine = stake.NewEngine(n.vault)
	s.engine.SetState(s.manager)
	s.engine.SetEmitter(s.buffer)
	s.engine.SetNowFunc(n.nowFn)

	pool, err := s.manager.StakePool()
	if err != nil {
		return nil, err
	}
	if pool != nil {
		staking, err := s.ledger(pool.StakingToken)
		if err != nil {
			return nil, err
		}
		reward, err := s.ledger(pool.RewardToken)
		if err != nil {
			return nil, err
		}
		s.engine.SetLedgers(staking, reward)
	}
	return s, nil
}

func (s *session) ledger(symbol string) (*token.Ledger, error) {
	ledger, err := token.New(s.manager, symbol)
	if err != nil {
		return nil, err
	}
	ledger.SetEmitter(s.buffer)
	return ledger, nil
}

type call struct {
	op     string
	caller [20]byte
	asset  string
	amount *big.Int
}

func (c call) callerString() string {
	if c.caller == ([20]byte{}) {
		return ""
	}
	return crypto.FromRaw(c.caller).String()
}

func (c call) amountString() string {
	if c.amount == nil {
		return ""
	}
	return c.amount.String()
}

// execute runs fn as one atomic call.
func (n *Node) execute(ctx context.Context, c call, fn func(*session) error) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()

	ctx, span := n.tracer.Start(ctx, "pool."+c.op, trace.WithAttributes(
		attribute.String("pool.operation", c.op),
		attribute.String("pool.caller", c.callerString()),
	))
	defer span.End()
	started := time.Now()

	s, err := n.newSession()
	if err == nil {
		err = fn(s)
	}
	if err == nil {
		err = s.manager.Commit()
	}
	var published []events.Event
	if err != nil {
		if s != nil {
			s.manager.Discard()
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		published = s.buffer.Events()
		n.publish(published)
		n.recordTotals(s)
	}

	kind := ErrorKind(err)
	n.metrics.Observe(c.op, kind, time.Since(started))
	outcome := "committed"
	if err != nil {
		outcome = "rejected"
	}
	n.committed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", c.op),
		attribute.String("outcome", outcome),
	))
	n.journal(ctx, c, kind, err, len(published))

	switch {
	case err == nil:
		n.logger.Debug("call committed", slog.String("op", c.op), slog.String("caller", c.callerString()))
	case kind == KindInternal:
		n.logger.Error("call failed", slog.String("op", c.op), slog.String("caller", c.callerString()), slog.Any("error", err))
	default:
		n.logger.Info("call rejected", slog.String("op", c.op), slog.String("caller", c.callerString()),
			slog.String("kind", kind), slog.String("reason", err.Error()))
	}
	return err
}

func (n *Node) publish(evts []events.Event) {
	for _, evt := range evts {
		n.broadcaster.Emit(evt)
		observability.Events().RecordEvent(evt.EventType())
		if transfer, ok := evt.(events.Transfer); ok {
			observability.Events().RecordTransfer(transfer.Asset)
		}
	}
}

func (n *Node) recordTotals(s *session) {
	pool, err := s.manager.StakePool()
	if err != nil || pool == nil {
		return
	}
	n.metrics.RecordTotals(pool.TotalStaked, pool.TotalReward, pool.AccRewardPerShare)
}

func (n *Node) journal(ctx context.Context, c call, kind string, callErr error, published int) {
	if n.receipts == nil {
		return
	}
	entry := receipts.Entry{
		Operation: c.op,
		Caller:    c.callerString(),
		Asset:     c.asset,
		Amount:    c.amountString(),
		ErrorKind: kind,
		Events:    published,
	}
	if callErr != nil {
		entry.Reason = callErr.Error()
	}
	if _, err := n.receipts.Record(ctx, entry); err != nil {
		n.logger.Warn("receipt not recorded", slog.String("op", c.op), slog.Any("error", err))
	}
}

// view runs fn against a read-only overlay. Nothing is ever committed.
func (n *Node) view(fn func(*session) error) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	s, err := n.newSession()
	if err != nil {
		return err
	}
	defer s.manager.Discard()
	return fn(s)
}

// Bootstrap applies spec when the store holds no pool yet. It reports
// whether the spec was applied.
func (n *Node) Bootstrap(ctx context.Context, spec *genesis.Spec) (bool, error) {
	if spec == nil {
		return false, fmt.Errorf("node: genesis spec must not be nil")
	}
	var applied bool
	err := n.execute(ctx, call{op: "genesis", caller: spec.Owner()}, func(s *session) error {
		pool, err := s.manager.StakePool()
		if err != nil {
			return err
		}
		if pool != nil {
			return nil
		}
		applied = true
		return genesis.Apply(spec, s.manager, s.engine, s.buffer, n.nowFn())
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

// Deposit locks amount of the staking token from caller.
func (n *Node) Deposit(ctx context.Context, caller [20]byte, amount *big.Int) error {
	return n.execute(ctx, call{op: "deposit", caller: caller, amount: amount}, func(s *session) error {
		return s.engine.Deposit(caller, amount)
	})
}

// Withdraw returns principal and pays all accrued reward to caller.
func (n *Node) Withdraw(ctx context.Context, caller [20]byte, amount *big.Int) (*stake.WithdrawResult, error) {
	var result *stake.WithdrawResult
	err := n.execute(ctx, call{op: "withdraw", caller: caller, amount: amount}, func(s *session) error {
		res, err := s.engine.Withdraw(caller, amount)
		result = res
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ReceiveReward injects amount of the reward token from a moderator.
func (n *Node) ReceiveReward(ctx context.Context, caller [20]byte, amount *big.Int) error {
	return n.execute(ctx, call{op: "receiveReward", caller: caller, amount: amount}, func(s *session) error {
		return s.engine.ReceiveReward(caller, amount)
	})
}

// RegisterMods grants moderator rights; owner only.
func (n *Node) RegisterMods(ctx context.Context, caller [20]byte, ids [][20]byte) error {
	return n.execute(ctx, call{op: "registerMods", caller: caller}, func(s *session) error {
		return s.engine.RegisterMods(caller, ids)
	})
}

// RemoveMods revokes moderator rights; owner only.
func (n *Node) RemoveMods(ctx context.Context, caller [20]byte, ids [][20]byte) error {
	return n.execute(ctx, call{op: "removeMods", caller: caller}, func(s *session) error {
		return s.engine.RemoveMods(caller, ids)
	})
}

// TransferOwnership hands the owner role to next; owner only.
func (n *Node) TransferOwnership(ctx context.Context, caller, next [20]byte) error {
	return n.execute(ctx, call{op: "transferOwnership", caller: caller}, func(s *session) error {
		return s.engine.TransferOwnership(caller, next)
	})
}

// Approve sets spender's allowance over owner's balance of symbol.
func (n *Node) Approve(ctx context.Context, symbol string, owner, spender [20]byte, amount *big.Int) error {
	return n.execute(ctx, call{op: "approve", caller: owner, asset: state.NormalizeSymbol(symbol), amount: amount}, func(s *session) error {
		ledger, err := s.ledger(symbol)
		if err != nil {
			return err
		}
		return ledger.Approve(owner, spender, amount)
	})
}

// Transfer moves amount of symbol from caller to to.
func (n *Node) Transfer(ctx context.Context, symbol string, from, to [20]byte, amount *big.Int) error {
	return n.execute(ctx, call{op: "transfer", caller: from, asset: state.NormalizeSymbol(symbol), amount: amount}, func(s *session) error {
		ledger, err := s.ledger(symbol)
		if err != nil {
			return err
		}
		return ledger.Transfer(from, to, amount)
	})
}

// Mint issues amount of symbol to to; only the token issuer may call it.
func (n *Node) Mint(ctx context.Context, symbol string, caller, to [20]byte, amount *big.Int) error {
	return n.execute(ctx, call{op: "mint", caller: caller, asset: state.NormalizeSymbol(symbol), amount: amount}, func(s *session) error {
		ledger, err := s.ledger(symbol)
		if err != nil {
			return err
		}
		return ledger.Mint(caller, to, amount)
	})
}

// PendingRewards returns the reward addr would receive by withdrawing now.
func (n *Node) PendingRewards(addr [20]byte) (*big.Int, error) {
	var out *big.Int
	err := n.view(func(s *session) error {
		var err error
		out, err = s.engine.PendingRewards(addr)
		return err
	})
	return out, err
}

// PoolInfo returns the pool totals.
func (n *Node) PoolInfo() (*stake.PoolInfo, error) {
	var out *stake.PoolInfo
	err := n.view(func(s *session) error {
		var err error
		out, err = s.engine.PoolInfo()
		return err
	})
	return out, err
}

// Pool returns the full pool record.
func (n *Node) Pool() (*stake.Pool, error) {
	var out *stake.Pool
	err := n.view(func(s *session) error {
		var err error
		out, err = s.engine.Pool()
		return err
	})
	return out, err
}

// Account returns addr's staking position.
func (n *Node) Account(addr [20]byte) (*stake.Account, error) {
	var out *stake.Account
	err := n.view(func(s *session) error {
		var err error
		out, err = s.engine.Account(addr)
		return err
	})
	return out, err
}

// Roles returns the owner and moderators.
func (n *Node) Roles() (*stake.Roles, error) {
	var out *stake.Roles
	err := n.view(func(s *session) error {
		var err error
		out, err = s.engine.Roles()
		return err
	})
	return out, err
}

// WindowInfo describes the pool's time window at a point in time.
type WindowInfo struct {
	StartTime uint64
	EndTime   uint64
	Now       time.Time
	Phase     stake.Phase
}

// Window returns the pool window and the current phase.
func (n *Node) Window() (*WindowInfo, error) {
	var out *WindowInfo
	err := n.view(func(s *session) error {
		start, err := s.engine.StartTime()
		if err != nil {
			return err
		}
		end, err := s.engine.EndTime()
		if err != nil {
			return err
		}
		phase, err := s.engine.Phase()
		if err != nil {
			return err
		}
		out = &WindowInfo{StartTime: start, EndTime: end, Now: n.nowFn(), Phase: phase}
		return nil
	})
	return out, err
}

// PoolTokens returns the staking and reward token metadata.
func (n *Node) PoolTokens() (staking, reward *state.TokenMetadata, err error) {
	err = n.view(func(s *session) error {
		stakingSym, err := s.engine.StakingToken()
		if err != nil {
			return err
		}
		rewardSym, err := s.engine.RewardToken()
		if err != nil {
			return err
		}
		if staking, err = s.manager.Token(stakingSym); err != nil {
			return err
		}
		reward, err = s.manager.Token(rewardSym)
		return err
	})
	return staking, reward, err
}

// Balance returns addr's balance of symbol.
func (n *Node) Balance(symbol string, addr [20]byte) (*big.Int, error) {
	var out *big.Int
	err := n.view(func(s *session) error {
		ledger, err := s.ledger(symbol)
		if err != nil {
			return err
		}
		out, err = ledger.BalanceOf(addr)
		return err
	})
	return out, err
}

// Allowance returns how much spender may move from owner's balance of symbol.
func (n *Node) Allowance(symbol string, owner, spender [20]byte) (*big.Int, error) {
	var out *big.Int
	err := n.view(func(s *session) error {
		ledger, err := s.ledger(symbol)
		if err != nil {
			return err
		}
		out, err = ledger.Allowance(owner, spender)
		return err
	})
	return out, err
}

// IsNotInitialized reports whether err means no pool exists yet.
func IsNotInitialized(err error) bool {
	return errors.Is(err, stake.ErrPoolNotInitialized)
}
