package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"soleledger/internal/docmatch"
	"soleledger/internal/extraction"
	"soleledger/internal/middleware"
	"soleledger/internal/store"
)

type matchDocumentRequest struct {
	DocumentURL string             `json:"document_url"`
	Document    *extraction.Result `json:"document"`
}

// MatchDocument extracts a document (or accepts pre-extracted fields) and
// proposes matching transactions. Proposals are advisory; accepting one goes
// through the reconcile endpoint.
func (h *Handler) MatchDocument(w http.ResponseWriter, r *http.Request) {
	businessID, ok := middleware.BusinessIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req matchDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	var result extraction.Result
	switch {
	case strings.TrimSpace(req.DocumentURL) != "":
		extracted, err := h.extractor.Extract(r.Context(), req.DocumentURL)
		if err != nil {
			if errors.Is(err, extraction.ErrExtractorUnavailable) {
				respondError(w, http.StatusBadGateway, "extraction_unavailable")
				return
			}
			respondError(w, http.StatusInternalServerError, "extraction failed")
			return
		}
		result = extracted
	case req.Document != nil:
		result = *req.Document
		result.Financial = true
	default:
		respondError(w, http.StatusBadRequest, "document_url or document is required")
		return
	}

	if !result.Financial {
		respondJSON(w, http.StatusOK, map[string]any{
			"financial": false,
			"matches":   []docmatch.Match{},
		})
		return
	}

	doc := extraction.ToDocument(result)
	matches := []docmatch.Match{}
	if doc.TotalCents != nil && doc.Date != nil {
		candidates, err := h.matchCandidates(r, businessID, *doc.Date)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "unable to load candidates")
			return
		}
		matches = docmatch.Run(doc, candidates)
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"financial":     true,
		"document_type": result.DocumentType,
		"vendor":        result.Vendor,
		"confidence":    result.Confidence,
		"matches":       matches,
	})
}

// matchCandidates loads unreconciled expenses dated around the document.
func (h *Handler) matchCandidates(r *http.Request, businessID string, docDate time.Time) ([]docmatch.Candidate, error) {
	from := docDate.AddDate(0, 0, -7)
	to := docDate.AddDate(0, 0, 7)
	transactions, err := h.transactions.ListWindow(r.Context(), businessID, from, to)
	if err != nil {
		return nil, err
	}
	candidates := make([]docmatch.Candidate, 0, len(transactions))
	for _, tx := range transactions {
		if tx.Type != store.TransactionExpense || tx.Reconciled {
			continue
		}
		candidates = append(candidates, docmatch.Candidate{
			TransactionID: tx.ID,
			AmountCents:   tx.Amount,
			Date:          tx.Date,
			Description:   tx.Description,
		})
	}
	return candidates, nil
}
