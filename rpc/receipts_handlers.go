package rpc

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"stakepool/core"
	"stakepool/storage/receipts"
)

const maxReceiptsPage = 500

type receiptResult struct {
	ID        string `json:"id"`
	Operation string `json:"operation"`
	Caller    string `json:"caller,omitempty"`
	Asset     string `json:"asset,omitempty"`
	Amount    string `json:"amount,omitempty"`
	Outcome   string `json:"outcome"`
	ErrorKind string `json:"errorKind,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Events    int    `json:"events"`
	Digest    string `json:"digest"`
	CreatedAt string `json:"createdAt"`
}

func parseReceiptFilter(r *http.Request) (receipts.Filter, error) {
	q := r.URL.Query()
	filter := receipts.Filter{
		Operation: strings.TrimSpace(q.Get("operation")),
		Caller:    strings.TrimSpace(q.Get("caller")),
		Outcome:   receipts.Outcome(strings.TrimSpace(q.Get("outcome"))),
	}
	if raw := strings.TrimSpace(q.Get("since")); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, err
		}
		filter.Since = since
	}
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			return filter, err
		}
		if limit > maxReceiptsPage {
			limit = maxReceiptsPage
		}
		filter.Limit = limit
	}
	return filter, nil
}

func (s *Server) handleReceipts(w http.ResponseWriter, r *http.Request) {
	if s.receipts == nil {
		writeError(w, http.StatusServiceUnavailable, core.KindInternal, "receipts journal disabled")
		return
	}
	filter, err := parseReceiptFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, core.KindValidation, "invalid filter: "+err.Error())
		return
	}
	rows, err := s.receipts.List(r.Context(), filter)
	if err != nil {
		s.writeCallError(w, err)
		return
	}
	out := make([]receiptResult, 0, len(rows))
	for _, row := range rows {
		out = append(out, receiptResult{
			ID:        row.ID.String(),
			Operation: row.Operation,
			Caller:    row.Caller,
			Asset:     row.Asset,
			Amount:    row.Amount,
			Outcome:   string(row.Outcome),
			ErrorKind: row.ErrorKind,
			Reason:    row.Reason,
			Events:    row.Events,
			Digest:    row.Digest,
			CreatedAt: row.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
	}
	writeJSON(w, http.StatusOK, out)
}
