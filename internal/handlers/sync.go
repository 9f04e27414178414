package handlers

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"soleledger/internal/auth"
	"soleledger/internal/ledger"
	"soleledger/internal/middleware"
	"soleledger/internal/reconciler"
	"soleledger/internal/websocket"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) SyncAccount(w http.ResponseWriter, r *http.Request) {
	businessID, ok := middleware.BusinessIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	userID, _ := middleware.UserIDFromContext(r.Context())
	accountID := chi.URLParam(r, "id")

	h.hub.BroadcastSync(businessID, websocket.SyncUpdate{
		AccountID: accountID,
		Status:    websocket.StatusStarted,
	})
	result, err := h.sync.Run(r.Context(), reconciler.RunRequest{
		AccountID:  accountID,
		BusinessID: businessID,
		ActorID:    userID,
	})
	if err != nil {
		h.hub.BroadcastSync(businessID, websocket.SyncUpdate{
			AccountID: accountID,
			Status:    websocket.StatusFailed,
			Error:     syncErrorCode(err),
		})
		status, message := syncErrorStatus(err)
		respondError(w, status, message)
		return
	}
	h.hub.BroadcastSync(businessID, websocket.SyncUpdate{
		AccountID: accountID,
		Status:    websocket.StatusFinished,
		Imported:  result.Imported,
		Updated:   result.Updated,
		Removed:   result.Removed,
		Skipped:   result.Skipped,
	})
	respondJSON(w, http.StatusOK, result)
}

func syncErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, reconciler.ErrSync):
		return http.StatusBadGateway, "sync_failed_retryable"
	case errors.Is(err, reconciler.ErrNotLinked):
		return http.StatusBadRequest, "account_not_linked"
	case errors.Is(err, ledger.ErrAccountAccess):
		return http.StatusForbidden, "account_access_denied"
	case errors.Is(err, sql.ErrNoRows):
		return http.StatusNotFound, "account not found"
	default:
		return http.StatusInternalServerError, "sync_failed"
	}
}

func syncErrorCode(err error) string {
	_, message := syncErrorStatus(err)
	return message
}

func (h *Handler) WSSync(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		authHeader := r.Header.Get("Authorization")
		if strings.HasPrefix(authHeader, "Bearer ") {
			token = strings.TrimPrefix(authHeader, "Bearer ")
		}
	}
	if token == "" {
		respondError(w, http.StatusUnauthorized, "missing token")
		return
	}
	claims, err := auth.ParseToken(h.cfg.JWTSecret, token)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	websocket.ServeWS(w, r, h.hub, claims.BusinessID)
}
