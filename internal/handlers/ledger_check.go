package handlers

import (
	"net/http"

	"soleledger/internal/middleware"
	"soleledger/internal/money"
)

type balanceMismatchJSON struct {
	TransactionID string `json:"transaction_id"`
	DebitTotal    string `json:"debit_total"`
	CreditTotal   string `json:"credit_total"`
}

// LedgerCheck verifies the double-entry identity across every posting for
// the business. A clean ledger returns balanced=true with no mismatches.
func (h *Handler) LedgerCheck(w http.ResponseWriter, r *http.Request) {
	businessID, ok := middleware.BusinessIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	mismatches, err := h.journal.UnbalancedTransactions(r.Context(), businessID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to run ledger check")
		return
	}
	out := make([]balanceMismatchJSON, 0, len(mismatches))
	for _, m := range mismatches {
		out = append(out, balanceMismatchJSON{
			TransactionID: m.TransactionID,
			DebitTotal:    money.FormatCents(m.Debit),
			CreditTotal:   money.FormatCents(m.Credit),
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"balanced":   len(out) == 0,
		"mismatches": out,
	})
}
