package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"soleledger/internal/reconciler"

	"github.com/go-chi/chi/v5"
)

func syncRequest(t *testing.T, accountID string) *http.Request {
	t.Helper()
	req := authedRequest(t, http.MethodPost, "/accounts/"+accountID+"/sync", nil)
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add("id", accountID)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
}

func TestSyncAccountReturnsCounts(t *testing.T) {
	handler := newTestHandler(stubReconcileDB{}, fakeTxRunner{}, stubAccountStore{}, stubCategoryStore{}, stubTransactionStore{}, stubAuditStore{}, stubBalanceService{}, stubSyncService{
		runFn: func(_ context.Context, req reconciler.RunRequest) (reconciler.RunResult, error) {
			if req.AccountID != "acc-1" || req.BusinessID != "biz-1" {
				t.Fatalf("unexpected run request: %#v", req)
			}
			return reconciler.RunResult{Imported: 3, Skipped: 1}, nil
		},
	}, stubExtractor{})

	rr := serveAuthed(handler.SyncAccount, syncRequest(t, "acc-1"))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var result reconciler.RunResult
	if err := json.NewDecoder(rr.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if result.Imported != 3 || result.Skipped != 1 {
		t.Fatalf("unexpected result: %#v", result)
	}
}

func TestSyncAccountRetryableFailureIs502(t *testing.T) {
	handler := newTestHandler(stubReconcileDB{}, fakeTxRunner{}, stubAccountStore{}, stubCategoryStore{}, stubTransactionStore{}, stubAuditStore{}, stubBalanceService{}, stubSyncService{
		runFn: func(context.Context, reconciler.RunRequest) (reconciler.RunResult, error) {
			return reconciler.RunResult{}, fmt.Errorf("%w: delta at cursor %q: timeout", reconciler.ErrSync, "c1")
		},
	}, stubExtractor{})

	rr := serveAuthed(handler.SyncAccount, syncRequest(t, "acc-1"))
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rr.Code)
	}
}

func TestSyncAccountUnlinkedIs400(t *testing.T) {
	handler := newTestHandler(stubReconcileDB{}, fakeTxRunner{}, stubAccountStore{}, stubCategoryStore{}, stubTransactionStore{}, stubAuditStore{}, stubBalanceService{}, stubSyncService{
		runFn: func(context.Context, reconciler.RunRequest) (reconciler.RunResult, error) {
			return reconciler.RunResult{}, reconciler.ErrNotLinked
		},
	}, stubExtractor{})

	rr := serveAuthed(handler.SyncAccount, syncRequest(t, "acc-1"))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestWSSyncMissingToken(t *testing.T) {
	handler := newTestHandler(stubReconcileDB{}, fakeTxRunner{}, stubAccountStore{}, stubCategoryStore{}, stubTransactionStore{}, stubAuditStore{}, stubBalanceService{}, stubSyncService{}, stubExtractor{})

	req, rr := newPlainRequest(http.MethodGet, "/ws/sync")
	handler.WSSync(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestWSSyncInvalidToken(t *testing.T) {
	handler := newTestHandler(stubReconcileDB{}, fakeTxRunner{}, stubAccountStore{}, stubCategoryStore{}, stubTransactionStore{}, stubAuditStore{}, stubBalanceService{}, stubSyncService{}, stubExtractor{})

	req, rr := newPlainRequest(http.MethodGet, "/ws/sync?token=bad")
	handler.WSSync(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}
