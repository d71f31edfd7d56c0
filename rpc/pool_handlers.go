package rpc

import (
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"stakepool/core"
	"stakepool/core/genesis"
	"stakepool/crypto"
)

type amountParams struct {
	Amount string `json:"amount"`
}

type accountsParams struct {
	Accounts []string `json:"accounts"`
}

type ownerParams struct {
	Owner string `json:"owner"`
}

type poolResult struct {
	StakingToken      string   `json:"stakingToken"`
	RewardToken       string   `json:"rewardToken"`
	StartTime         uint64   `json:"startTime"`
	EndTime           uint64   `json:"endTime"`
	TotalStaked       string   `json:"totalStaked"`
	TotalReward       string   `json:"totalReward"`
	AccRewardPerShare string   `json:"accRewardPerShare"`
	Owner             string   `json:"owner"`
	Moderators        []string `json:"moderators"`
}

type pendingResult struct {
	Account string `json:"account"`
	Pending string `json:"pending"`
}

type accountResult struct {
	Account        string `json:"account"`
	Staked         string `json:"staked"`
	RewardDebt     string `json:"rewardDebt"`
	PendingAccrued string `json:"pendingAccrued"`
	Pending        string `json:"pending"`
}

type windowResult struct {
	StartTime uint64 `json:"startTime"`
	EndTime   uint64 `json:"endTime"`
	Now       int64  `json:"now"`
	Phase     string `json:"phase"`
}

type withdrawResult struct {
	Principal string `json:"principal"`
	Reward    string `json:"reward"`
}

type tokenResult struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Decimals uint8  `json:"decimals"`
	Issuer   string `json:"issuer,omitempty"`
}

type poolTokensResult struct {
	Staking *tokenResult `json:"staking"`
	Reward  *tokenResult `json:"reward"`
}

type statusResult struct {
	Status string `json:"status"`
}

// maxAmountDigits is the length of 2^256-1 in base 10.
const maxAmountDigits = 78

// parseAmount accepts a base-10 integer of at most maxAmountDigits digits.
// Sign and range checks belong to the pool so callers see its reasons.
func parseAmount(amount string) (*big.Int, error) {
	trimmed := strings.TrimSpace(amount)
	if trimmed == "" {
		return nil, fmt.Errorf("amount is required")
	}
	if len(strings.TrimLeft(trimmed, "+-")) > maxAmountDigits {
		return nil, fmt.Errorf("amount exceeds %d digits", maxAmountDigits)
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount")
	}
	return value, nil
}

func encodeAccount(raw [20]byte) string {
	return crypto.FromRaw(raw).String()
}

func accountParam(w http.ResponseWriter, r *http.Request, name string) ([20]byte, bool) {
	addr, err := genesis.ParseAccount(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, core.KindValidation, fmt.Sprintf("invalid %s: %v", name, err))
		return [20]byte{}, false
	}
	return addr, true
}

func amountFromBody(w http.ResponseWriter, r *http.Request) (*big.Int, bool) {
	var params amountParams
	if !decodeBody(w, r, &params) {
		return nil, false
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, core.KindValidation, err.Error())
		return nil, false
	}
	return amount, true
}

func accountsFromBody(w http.ResponseWriter, r *http.Request) ([][20]byte, bool) {
	var params accountsParams
	if !decodeBody(w, r, &params) {
		return nil, false
	}
	ids := make([][20]byte, 0, len(params.Accounts))
	for _, entry := range params.Accounts {
		id, err := genesis.ParseAccount(entry)
		if err != nil {
			writeError(w, http.StatusBadRequest, core.KindValidation, fmt.Sprintf("invalid account %q: %v", entry, err))
			return nil, false
		}
		ids = append(ids, id)
	}
	return ids, true
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOf(w, r)
	if !ok {
		return
	}
	amount, ok := amountFromBody(w, r)
	if !ok {
		return
	}
	if err := s.node.Deposit(r.Context(), caller, amount); err != nil {
		s.writeCallError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResult{Status: "ok"})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOf(w, r)
	if !ok {
		return
	}
	amount, ok := amountFromBody(w, r)
	if !ok {
		return
	}
	res, err := s.node.Withdraw(r.Context(), caller, amount)
	if err != nil {
		s.writeCallError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, withdrawResult{Principal: res.Principal.String(), Reward: res.Reward.String()})
}

func (s *Server) handleReceiveReward(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOf(w, r)
	if !ok {
		return
	}
	amount, ok := amountFromBody(w, r)
	if !ok {
		return
	}
	if err := s.node.ReceiveReward(r.Context(), caller, amount); err != nil {
		s.writeCallError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResult{Status: "ok"})
}

func (s *Server) handleRegisterMods(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOf(w, r)
	if !ok {
		return
	}
	ids, ok := accountsFromBody(w, r)
	if !ok {
		return
	}
	if err := s.node.RegisterMods(r.Context(), caller, ids); err != nil {
		s.writeCallError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResult{Status: "ok"})
}

func (s *Server) handleRemoveMods(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOf(w, r)
	if !ok {
		return
	}
	ids, ok := accountsFromBody(w, r)
	if !ok {
		return
	}
	if err := s.node.RemoveMods(r.Context(), caller, ids); err != nil {
		s.writeCallError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResult{Status: "ok"})
}

func (s *Server) handleTransferOwnership(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOf(w, r)
	if !ok {
		return
	}
	var params ownerParams
	if !decodeBody(w, r, &params) {
		return
	}
	next, err := genesis.ParseAccount(params.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, core.KindValidation, fmt.Sprintf("invalid owner: %v", err))
		return
	}
	if err := s.node.TransferOwnership(r.Context(), caller, next); err != nil {
		s.writeCallError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResult{Status: "ok"})
}

func (s *Server) handlePoolInfo(w http.ResponseWriter, r *http.Request) {
	pool, err := s.node.Pool()
	if err != nil {
		s.writeCallError(w, err)
		return
	}
	roles, err := s.node.Roles()
	if err != nil {
		s.writeCallError(w, err)
		return
	}
	mods := make([]string, 0, len(roles.Moderators))
	for _, mod := range roles.Moderators {
		mods = append(mods, encodeAccount(mod))
	}
	writeJSON(w, http.StatusOK, poolResult{
		StakingToken:      pool.StakingToken,
		RewardToken:       pool.RewardToken,
		StartTime:         pool.StartTime,
		EndTime:           pool.EndTime,
		TotalStaked:       pool.TotalStaked.String(),
		TotalReward:       pool.TotalReward.String(),
		AccRewardPerShare: pool.AccRewardPerShare.String(),
		Owner:             encodeAccount(roles.Owner),
		Moderators:        mods,
	})
}

func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	addr, ok := accountParam(w, r, "addr")
	if !ok {
		return
	}
	pending, err := s.node.PendingRewards(addr)
	if err != nil {
		s.writeCallError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pendingResult{Account: encodeAccount(addr), Pending: pending.String()})
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	addr, ok := accountParam(w, r, "addr")
	if !ok {
		return
	}
	acct, err := s.node.Account(addr)
	if err != nil {
		s.writeCallError(w, err)
		return
	}
	pending, err := s.node.PendingRewards(addr)
	if err != nil {
		s.writeCallError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, accountResult{
		Account:        encodeAccount(addr),
		Staked:         acct.Staked.String(),
		RewardDebt:     acct.RewardDebt.String(),
		PendingAccrued: acct.PendingAccrued.String(),
		Pending:        pending.String(),
	})
}

func (s *Server) handleWindow(w http.ResponseWriter, r *http.Request) {
	window, err := s.node.Window()
	if err != nil {
		s.writeCallError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, windowResult{
		StartTime: window.StartTime,
		EndTime:   window.EndTime,
		Now:       window.Now.Unix(),
		Phase:     window.Phase.String(),
	})
}

func (s *Server) handlePoolTokens(w http.ResponseWriter, r *http.Request) {
	staking, reward, err := s.node.PoolTokens()
	if err != nil {
		s.writeCallError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, poolTokensResult{Staking: tokenResultFrom(staking), Reward: tokenResultFrom(reward)})
}
