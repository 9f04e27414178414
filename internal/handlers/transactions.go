package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"soleledger/internal/middleware"
	"soleledger/internal/money"
	"soleledger/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"
)

func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	businessID, ok := middleware.BusinessIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	query := r.URL.Query()
	page := parseInt(query.Get("page"), 1)
	limit := parseInt(query.Get("limit"), 50)
	offset := (page - 1) * limit
	transactions, err := h.transactions.ListByBusiness(r.Context(), businessID, limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load transactions")
		return
	}
	normalized := make([]map[string]any, 0, len(transactions))
	for _, tx := range transactions {
		normalized = append(normalized, transactionJSON(tx))
	}
	respondJSON(w, http.StatusOK, normalized)
}

func transactionJSON(tx store.Transaction) map[string]any {
	return map[string]any{
		"id":          tx.ID,
		"account_id":  tx.AccountID,
		"type":        tx.Type,
		"amount":      money.FormatCents(tx.Amount),
		"currency":    tx.Currency,
		"date":        tx.Date.Format("2006-01-02"),
		"description": tx.Description,
		"category_id": tx.CategoryID,
		"confidence":  tx.Confidence,
		"reconciled":  tx.Reconciled,
		"status":      tx.Status,
		"created_at":  tx.CreatedAt,
	}
}

type reconcileRequest struct {
	Confidence float64 `json:"confidence"`
}

func (h *Handler) ReconcileTransaction(w http.ResponseWriter, r *http.Request) {
	businessID, ok := middleware.BusinessIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	userID, _ := middleware.UserIDFromContext(r.Context())
	transactionID := chi.URLParam(r, "id")
	var req reconcileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if req.Confidence < 0 || req.Confidence > 1 {
		respondError(w, http.StatusBadRequest, "confidence out of range")
		return
	}
	transaction, err := h.transactions.GetByID(r.Context(), transactionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(w, http.StatusNotFound, "transaction not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "unable to load transaction")
		return
	}
	if transaction.BusinessID != businessID {
		respondError(w, http.StatusForbidden, "access denied")
		return
	}

	var rows int64
	err = h.txRunner.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		rows, err = h.transactions.MarkReconciled(r.Context(), tx, transactionID, req.Confidence)
		if err != nil {
			return err
		}
		if rows == 0 {
			return nil
		}
		data := fmt.Sprintf(`{"confidence":%.2f}`, req.Confidence)
		return h.audit.Log(r.Context(), tx, businessID, userID, "transaction_reconciled", "transaction", transactionID, data)
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to reconcile")
		return
	}
	if rows == 0 {
		respondError(w, http.StatusConflict, "transaction already reconciled or removed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"transaction_id": transactionID,
		"reconciled":     true,
	})
}

func parseInt(raw string, fallback int) int {
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}
