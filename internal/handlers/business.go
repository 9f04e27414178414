package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"soleledger/internal/middleware"

	"github.com/jmoiron/sqlx"
)

type createBusinessRequest struct {
	Name string `json:"name"`
}

// CreateBusiness provisions the business row for the token's business id.
// Calling it again is a no-op returning the existing profile.
func (h *Handler) CreateBusiness(w http.ResponseWriter, r *http.Request) {
	businessID, ok := middleware.BusinessIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	userID, _ := middleware.UserIDFromContext(r.Context())
	var req createBusinessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}

	existing, err := h.businesses.GetByID(r.Context(), businessID)
	if err == nil {
		respondJSON(w, http.StatusOK, map[string]any{
			"id":   existing.ID,
			"name": existing.Name,
		})
		return
	}
	if !errors.Is(err, sql.ErrNoRows) {
		respondError(w, http.StatusInternalServerError, "unable to load business")
		return
	}

	err = h.txRunner.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		if err := h.businesses.Create(r.Context(), tx, businessID, req.Name); err != nil {
			return err
		}
		return h.audit.Log(r.Context(), tx, businessID, userID, "business_created", "business", businessID, "")
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to create business")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{
		"id":   businessID,
		"name": req.Name,
	})
}

func (h *Handler) GetBusiness(w http.ResponseWriter, r *http.Request) {
	businessID, ok := middleware.BusinessIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	business, err := h.businesses.GetByID(r.Context(), businessID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(w, http.StatusNotFound, "business not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "unable to load business")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"id":         business.ID,
		"name":       business.Name,
		"created_at": business.CreatedAt,
	})
}

func (h *Handler) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	businessID, ok := middleware.BusinessIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	query := r.URL.Query()
	page := parseInt(query.Get("page"), 1)
	limit := parseInt(query.Get("limit"), 50)
	offset := (page - 1) * limit
	logs, err := h.audit.List(r.Context(), businessID, limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load audit logs")
		return
	}
	respondJSON(w, http.StatusOK, logs)
}
