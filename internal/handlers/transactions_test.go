package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"soleledger/internal/store"

	"github.com/go-chi/chi/v5"
)

func reconcileRequestFor(t *testing.T, transactionID, body string) *http.Request {
	t.Helper()
	req := authedRequest(t, http.MethodPost, "/transactions/"+transactionID+"/reconcile", strings.NewReader(body))
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add("id", transactionID)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
}

func TestListTransactions(t *testing.T) {
	handler := newTestHandler(stubReconcileDB{}, fakeTxRunner{}, stubAccountStore{}, stubCategoryStore{}, stubTransactionStore{
		listFn: func(_ context.Context, businessID string, limit, offset int) ([]store.Transaction, error) {
			if businessID != "biz-1" || limit != 50 || offset != 0 {
				t.Fatalf("unexpected listing args: %s %d %d", businessID, limit, offset)
			}
			return []store.Transaction{{
				ID: "tx-1", Type: store.TransactionExpense, Amount: 5432,
				Currency: "CAD", Date: time.Now(), Description: "TIM HORTONS",
				Status: store.StatusActive,
			}}, nil
		},
	}, stubAuditStore{}, stubBalanceService{}, stubSyncService{}, stubExtractor{})

	rr := serveAuthed(handler.ListTransactions, authedRequest(t, http.MethodGet, "/transactions", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var payload []map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(payload) != 1 || payload[0]["amount"] != "54.32" {
		t.Fatalf("unexpected payload: %#v", payload)
	}
}

func TestReconcileTransaction(t *testing.T) {
	var audited bool
	handler := newTestHandler(stubReconcileDB{}, fakeTxRunner{}, stubAccountStore{}, stubCategoryStore{}, stubTransactionStore{
		getFn: func(context.Context, string) (store.Transaction, error) {
			return store.Transaction{ID: "tx-1", BusinessID: "biz-1", Status: store.StatusActive}, nil
		},
		reconcileFn: func(_ context.Context, _ store.Execer, transactionID string, confidence float64) (int64, error) {
			if transactionID != "tx-1" || confidence != 0.93 {
				t.Fatalf("unexpected reconcile args: %s %f", transactionID, confidence)
			}
			return 1, nil
		},
	}, stubAuditStore{
		logFn: func(_ context.Context, _ store.Execer, _, _, action, _, _, _ string) error {
			if action == "transaction_reconciled" {
				audited = true
			}
			return nil
		},
	}, stubBalanceService{}, stubSyncService{}, stubExtractor{})

	rr := serveAuthed(handler.ReconcileTransaction, reconcileRequestFor(t, "tx-1", `{"confidence":0.93}`))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if !audited {
		t.Fatalf("reconciliation must be audited")
	}
}

func TestReconcileTransactionWrongBusiness(t *testing.T) {
	handler := newTestHandler(stubReconcileDB{}, fakeTxRunner{}, stubAccountStore{}, stubCategoryStore{}, stubTransactionStore{
		getFn: func(context.Context, string) (store.Transaction, error) {
			return store.Transaction{ID: "tx-1", BusinessID: "other-biz"}, nil
		},
	}, stubAuditStore{}, stubBalanceService{}, stubSyncService{}, stubExtractor{})

	rr := serveAuthed(handler.ReconcileTransaction, reconcileRequestFor(t, "tx-1", `{"confidence":0.9}`))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}

func TestReconcileTransactionAlreadyReconciled(t *testing.T) {
	handler := newTestHandler(stubReconcileDB{}, fakeTxRunner{}, stubAccountStore{}, stubCategoryStore{}, stubTransactionStore{
		getFn: func(context.Context, string) (store.Transaction, error) {
			return store.Transaction{ID: "tx-1", BusinessID: "biz-1", Reconciled: true}, nil
		},
		reconcileFn: func(context.Context, store.Execer, string, float64) (int64, error) {
			return 0, nil
		},
	}, stubAuditStore{}, stubBalanceService{}, stubSyncService{}, stubExtractor{})

	rr := serveAuthed(handler.ReconcileTransaction, reconcileRequestFor(t, "tx-1", `{"confidence":0.9}`))
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
}

func TestReconcileTransactionConfidenceOutOfRange(t *testing.T) {
	handler := newTestHandler(stubReconcileDB{}, fakeTxRunner{}, stubAccountStore{}, stubCategoryStore{}, stubTransactionStore{}, stubAuditStore{}, stubBalanceService{}, stubSyncService{}, stubExtractor{})

	rr := serveAuthed(handler.ReconcileTransaction, reconcileRequestFor(t, "tx-1", `{"confidence":1.4}`))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}
