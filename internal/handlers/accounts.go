package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"soleledger/internal/ledger"
	"soleledger/internal/middleware"
	"soleledger/internal/money"
	"soleledger/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type linkAccountRequest struct {
	Name           string  `json:"name"`
	Currency       string  `json:"currency"`
	FeedToken      *string `json:"feed_token"`
	OpeningBalance *string `json:"opening_balance"`
}

func (h *Handler) LinkAccount(w http.ResponseWriter, r *http.Request) {
	businessID, ok := middleware.BusinessIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	userID, _ := middleware.UserIDFromContext(r.Context())
	var req linkAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}
	if !validCurrency(req.Currency) {
		respondError(w, http.StatusBadRequest, "invalid currency")
		return
	}
	if req.FeedToken != nil && strings.TrimSpace(*req.FeedToken) == "" {
		req.FeedToken = nil
	}

	accountID := uuid.NewString()
	err := h.txRunner.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		if err := h.ensureChart(r.Context(), tx, businessID); err != nil {
			return err
		}
		if err := h.accounts.Create(r.Context(), tx, store.AccountInput{
			ID:         accountID,
			BusinessID: businessID,
			Name:       req.Name,
			Currency:   req.Currency,
			FeedToken:  req.FeedToken,
		}); err != nil {
			return err
		}
		return h.audit.Log(r.Context(), tx, businessID, userID, "account_linked", "account", accountID, "")
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to link account")
		return
	}

	if req.OpeningBalance != nil && strings.TrimSpace(*req.OpeningBalance) != "" {
		_, err := h.balance.SeedOpeningBalance(r.Context(), ledger.SeedRequest{
			BusinessID: businessID,
			AccountID:  accountID,
			ActorID:    userID,
			Balance:    *req.OpeningBalance,
		})
		if err != nil && !errors.Is(err, ledger.ErrDuplicatePosting) {
			status, message := balanceErrorStatus(err)
			respondJSON(w, status, map[string]string{
				"account_id": accountID,
				"error":      message,
			})
			return
		}
	}
	respondJSON(w, http.StatusCreated, map[string]string{"account_id": accountID})
}

// ensureChart seeds the default chart of accounts for a business that has
// none yet. Runs inside the caller's transaction.
func (h *Handler) ensureChart(ctx context.Context, tx *sqlx.Tx, businessID string) error {
	existing, err := h.categories.ListActiveByBusiness(ctx, businessID)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}
	inputs := make([]store.CategoryInput, 0, len(h.chartNodes))
	for _, node := range h.chartNodes {
		inputs = append(inputs, store.CategoryInput{
			ID:         uuid.NewString(),
			BusinessID: businessID,
			Code:       node.Code,
			Name:       node.Name,
			Type:       node.Type,
		})
	}
	return h.categories.InsertBatch(ctx, tx, inputs)
}

func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	businessID, ok := middleware.BusinessIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	type row struct {
		AccountID      string  `db:"account_id"`
		Name           string  `db:"name"`
		Currency       string  `db:"currency"`
		StoredBalance  int64   `db:"stored_balance"`
		DerivedBalance int64   `db:"derived_balance"`
		FeedToken      *string `db:"feed_token"`
		LastSyncedAt   any     `db:"last_synced_at"`
	}
	// Derived balance = income minus expense cash flow, plus the asset side
	// of balance postings (debit increases the account, credit decreases).
	query := `
		SELECT a.id AS account_id,
		       a.name,
		       a.currency,
		       a.balance AS stored_balance,
		       COALESCE(f.flow, 0) + COALESCE(p.posted, 0) AS derived_balance,
		       a.feed_token,
		       a.last_synced_at
		FROM accounts a
		LEFT JOIN (
			SELECT account_id,
			       SUM(CASE type WHEN 'income' THEN amount WHEN 'expense' THEN -amount ELSE 0 END) AS flow
			FROM transactions
			WHERE status = 'active'
			GROUP BY account_id
		) f ON f.account_id = a.id
		LEFT JOIN (
			SELECT t.account_id, SUM(j.debit - j.credit) AS posted
			FROM transactions t
			JOIN journal_entries j ON j.transaction_id = t.id
			JOIN categories c ON c.id = j.category_id
			WHERE t.status = 'active' AND c.account_type = 'asset'
			GROUP BY t.account_id
		) p ON p.account_id = a.id
		WHERE a.business_id = $1
		ORDER BY a.created_at
	`
	var rows []row
	if err := h.reconcileDB.SelectContext(r.Context(), &rows, query, businessID); err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load accounts")
		return
	}
	normalized := make([]map[string]any, 0, len(rows))
	for _, item := range rows {
		normalized = append(normalized, map[string]any{
			"id":              item.AccountID,
			"name":            item.Name,
			"currency":        item.Currency,
			"balance":         money.FormatCents(item.StoredBalance),
			"derived_balance": money.FormatCents(item.DerivedBalance),
			"difference":      money.FormatCents(item.StoredBalance - item.DerivedBalance),
			"linked":          item.FeedToken != nil,
			"last_synced_at":  item.LastSyncedAt,
		})
	}
	respondJSON(w, http.StatusOK, normalized)
}

type adjustBalanceRequest struct {
	Balance string `json:"balance"`
}

func (h *Handler) AdjustBalance(w http.ResponseWriter, r *http.Request) {
	businessID, ok := middleware.BusinessIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	userID, _ := middleware.UserIDFromContext(r.Context())
	accountID := chi.URLParam(r, "id")
	var req adjustBalanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	result, err := h.balance.AdjustBalance(r.Context(), ledger.AdjustRequest{
		BusinessID: businessID,
		AccountID:  accountID,
		ActorID:    userID,
		NewBalance: req.Balance,
	})
	if err != nil {
		status, message := balanceErrorStatus(err)
		respondError(w, status, message)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"account_id":     accountID,
		"no_change":      result.NoChange,
		"transaction_id": result.TransactionID,
		"delta":          money.FormatCents(result.DeltaCents),
	})
}

func balanceErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, ledger.ErrInvalidBalance):
		return http.StatusBadRequest, "invalid_balance"
	case errors.Is(err, ledger.ErrAccountingSetup):
		return http.StatusUnprocessableEntity, "accounting_setup_incomplete"
	case errors.Is(err, ledger.ErrAccountAccess):
		return http.StatusForbidden, "account_access_denied"
	case errors.Is(err, ledger.ErrInvariantViolation):
		return http.StatusInternalServerError, "posting_failed"
	case errors.Is(err, sql.ErrNoRows):
		return http.StatusNotFound, "account not found"
	default:
		return http.StatusInternalServerError, "posting_failed"
	}
}

func validCurrency(currency string) bool {
	if len(currency) != 3 {
		return false
	}
	for _, r := range currency {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
