package genesis

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"stakepool/core/events"
	"stakepool/core/state"
	"stakepool/native/stake"
	"stakepool/native/token"
)

// Apply seeds manager from spec: tokens (sorted by symbol), opening balances
// (addresses sorted, then symbols sorted), the pool, then moderators. Opening
// balances are minted by each token's issuer so emitter sees a Transfer per
// allocation. Relative window bounds resolve against now. The caller commits
// or discards manager.
func Apply(spec *Spec, manager *state.Manager, engine *stake.Engine, emitter events.Emitter, now time.Time) error {
	if spec == nil {
		return fmt.Errorf("genesis spec must not be nil")
	}
	if manager == nil || engine == nil {
		return fmt.Errorf("genesis: state and engine are required")
	}
	params, err := spec.Params(now)
	if err != nil {
		return err
	}

	issuers := make(map[string][20]byte, len(spec.Tokens))
	tokens := append([]TokenSpec(nil), spec.Tokens...)
	sort.Slice(tokens, func(i, j int) bool {
		return strings.ToUpper(tokens[i].Symbol) < strings.ToUpper(tokens[j].Symbol)
	})
	for i := range tokens {
		tok := &tokens[i]
		if err := manager.RegisterToken(tok.Symbol, tok.Name, tok.Decimals, tok.issuer[:]); err != nil {
			return fmt.Errorf("register token %q: %w", tok.Symbol, err)
		}
		issuers[state.NormalizeSymbol(tok.Symbol)] = tok.issuer
	}

	addresses := make([]string, 0, len(spec.Alloc))
	for addr := range spec.Alloc {
		addresses = append(addresses, addr)
	}
	sort.Strings(addresses)
	for _, addrStr := range addresses {
		addr, err := ParseAccount(addrStr)
		if err != nil {
			return fmt.Errorf("alloc[%q]: %w", addrStr, err)
		}
		balances := spec.Alloc[addrStr]
		symbols := make([]string, 0, len(balances))
		for symbol := range balances {
			symbols = append(symbols, symbol)
		}
		sort.Strings(symbols)
		for _, symbol := range symbols {
			amount, err := parseAmountString(balances[symbol])
			if err != nil {
				return fmt.Errorf("alloc[%q][%q]: %w", addrStr, symbol, err)
			}
			if amount.Sign() == 0 {
				continue
			}
			ledger, err := token.New(manager, symbol)
			if err != nil {
				return fmt.Errorf("alloc[%q][%q]: %w", addrStr, symbol, err)
			}
			ledger.SetEmitter(emitter)
			if err := ledger.Mint(issuers[state.NormalizeSymbol(symbol)], addr, amount); err != nil {
				return fmt.Errorf("alloc[%q][%q]: %w", addrStr, symbol, err)
			}
		}
	}

	owner := spec.Owner()
	if err := engine.Initialize(owner, params); err != nil {
		return fmt.Errorf("initialise pool: %w", err)
	}
	if mods := spec.ModeratorIDs(); len(mods) > 0 {
		if err := engine.RegisterMods(owner, mods); err != nil {
			return fmt.Errorf("register moderators: %w", err)
		}
	}
	return nil
}
