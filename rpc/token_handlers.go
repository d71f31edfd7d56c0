package rpc

import (
	"fmt"
	"math/big"
	"net/http"

	"github.com/go-chi/chi/v5"

	"stakepool/core"
	"stakepool/core/genesis"
	"stakepool/core/state"
	"stakepool/crypto"
)

type approveParams struct {
	Spender string `json:"spender"`
	Amount  string `json:"amount"`
}

type transferParams struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type balanceResult struct {
	Symbol  string `json:"symbol"`
	Account string `json:"account"`
	Balance string `json:"balance"`
}

type allowanceResult struct {
	Symbol    string `json:"symbol"`
	Owner     string `json:"owner"`
	Spender   string `json:"spender"`
	Allowance string `json:"allowance"`
}

func tokenResultFrom(meta *state.TokenMetadata) *tokenResult {
	if meta == nil {
		return nil
	}
	out := &tokenResult{Symbol: meta.Symbol, Name: meta.Name, Decimals: meta.Decimals}
	if len(meta.Issuer) == 20 {
		var raw [20]byte
		copy(raw[:], meta.Issuer)
		out.Issuer = crypto.FromRaw(raw).String()
	}
	return out
}

func symbolParam(r *http.Request) string {
	return state.NormalizeSymbol(chi.URLParam(r, "symbol"))
}

// recipientAndAmount validates a {to|spender, amount} body.
func recipientAndAmount(w http.ResponseWriter, field, raw, amountRaw string) ([20]byte, *big.Int, bool) {
	addr, err := genesis.ParseAccount(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, core.KindValidation, fmt.Sprintf("invalid %s: %v", field, err))
		return [20]byte{}, nil, false
	}
	amount, err := parseAmount(amountRaw)
	if err != nil {
		writeError(w, http.StatusBadRequest, core.KindValidation, err.Error())
		return [20]byte{}, nil, false
	}
	return addr, amount, true
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOf(w, r)
	if !ok {
		return
	}
	var params approveParams
	if !decodeBody(w, r, &params) {
		return
	}
	spender, amount, ok := recipientAndAmount(w, "spender", params.Spender, params.Amount)
	if !ok {
		return
	}
	if err := s.node.Approve(r.Context(), symbolParam(r), caller, spender, amount); err != nil {
		s.writeCallError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResult{Status: "ok"})
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOf(w, r)
	if !ok {
		return
	}
	var params transferParams
	if !decodeBody(w, r, &params) {
		return
	}
	to, amount, ok := recipientAndAmount(w, "to", params.To, params.Amount)
	if !ok {
		return
	}
	if err := s.node.Transfer(r.Context(), symbolParam(r), caller, to, amount); err != nil {
		s.writeCallError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResult{Status: "ok"})
}

func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOf(w, r)
	if !ok {
		return
	}
	var params transferParams
	if !decodeBody(w, r, &params) {
		return
	}
	to, amount, ok := recipientAndAmount(w, "to", params.To, params.Amount)
	if !ok {
		return
	}
	if err := s.node.Mint(r.Context(), symbolParam(r), caller, to, amount); err != nil {
		s.writeCallError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResult{Status: "ok"})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	addr, ok := accountParam(w, r, "addr")
	if !ok {
		return
	}
	symbol := symbolParam(r)
	balance, err := s.node.Balance(symbol, addr)
	if err != nil {
		s.writeCallError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResult{Symbol: symbol, Account: encodeAccount(addr), Balance: balance.String()})
}

func (s *Server) handleAllowance(w http.ResponseWriter, r *http.Request) {
	owner, ok := accountParam(w, r, "owner")
	if !ok {
		return
	}
	spender, ok := accountParam(w, r, "spender")
	if !ok {
		return
	}
	symbol := symbolParam(r)
	allowance, err := s.node.Allowance(symbol, owner, spender)
	if err != nil {
		s.writeCallError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, allowanceResult{
		Symbol:    symbol,
		Owner:     encodeAccount(owner),
		Spender:   encodeAccount(spender),
		Allowance: allowance.String(),
	})
}
