package handlers

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"soleledger/internal/auth"
	"soleledger/internal/chart"
	"soleledger/internal/config"
	"soleledger/internal/extraction"
	"soleledger/internal/ledger"
	"soleledger/internal/middleware"
	"soleledger/internal/reconciler"
	"soleledger/internal/store"
	"soleledger/internal/websocket"

	"github.com/jmoiron/sqlx"
)

type fakeTxRunner struct {
	err error
}

func (f fakeTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	if f.err != nil {
		return f.err
	}
	return fn(nil)
}

type stubReconcileDB struct {
	selectFn func(ctx context.Context, dest any, query string, args ...any) error
}

func (s stubReconcileDB) SelectContext(ctx context.Context, dest any, query string, args ...any) error {
	if s.selectFn == nil {
		return nil
	}
	return s.selectFn(ctx, dest, query, args...)
}

type stubBusinessStore struct {
	createFn func(ctx context.Context, tx store.Execer, id, name string) error
	getFn    func(ctx context.Context, businessID string) (store.Business, error)
}

func (s stubBusinessStore) Create(ctx context.Context, tx store.Execer, id, name string) error {
	if s.createFn == nil {
		return nil
	}
	return s.createFn(ctx, tx, id, name)
}

func (s stubBusinessStore) GetByID(ctx context.Context, businessID string) (store.Business, error) {
	if s.getFn == nil {
		return store.Business{ID: businessID}, nil
	}
	return s.getFn(ctx, businessID)
}

type stubAccountStore struct {
	createFn func(ctx context.Context, tx store.Execer, input store.AccountInput) error
	getFn    func(ctx context.Context, accountID string) (store.Account, error)
	listFn   func(ctx context.Context, businessID string) ([]store.Account, error)
}

func (s stubAccountStore) Create(ctx context.Context, tx store.Execer, input store.AccountInput) error {
	if s.createFn == nil {
		return nil
	}
	return s.createFn(ctx, tx, input)
}

func (s stubAccountStore) GetByID(ctx context.Context, accountID string) (store.Account, error) {
	if s.getFn == nil {
		return store.Account{}, nil
	}
	return s.getFn(ctx, accountID)
}

func (s stubAccountStore) ListByBusiness(ctx context.Context, businessID string) ([]store.Account, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, businessID)
}

type stubCategoryStore struct {
	listFn   func(ctx context.Context, businessID string) ([]store.Category, error)
	insertFn func(ctx context.Context, tx store.Execer, inputs []store.CategoryInput) error
}

func (s stubCategoryStore) ListActiveByBusiness(ctx context.Context, businessID string) ([]store.Category, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, businessID)
}

func (s stubCategoryStore) InsertBatch(ctx context.Context, tx store.Execer, inputs []store.CategoryInput) error {
	if s.insertFn == nil {
		return nil
	}
	return s.insertFn(ctx, tx, inputs)
}

type stubTransactionStore struct {
	getFn        func(ctx context.Context, transactionID string) (store.Transaction, error)
	listFn       func(ctx context.Context, businessID string, limit, offset int) ([]store.Transaction, error)
	listWindowFn func(ctx context.Context, businessID string, from, to time.Time) ([]store.Transaction, error)
	reconcileFn  func(ctx context.Context, tx store.Execer, transactionID string, confidence float64) (int64, error)
}

func (s stubTransactionStore) GetByID(ctx context.Context, transactionID string) (store.Transaction, error) {
	if s.getFn == nil {
		return store.Transaction{}, nil
	}
	return s.getFn(ctx, transactionID)
}

func (s stubTransactionStore) ListByBusiness(ctx context.Context, businessID string, limit, offset int) ([]store.Transaction, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, businessID, limit, offset)
}

func (s stubTransactionStore) ListWindow(ctx context.Context, businessID string, from, to time.Time) ([]store.Transaction, error) {
	if s.listWindowFn == nil {
		return nil, nil
	}
	return s.listWindowFn(ctx, businessID, from, to)
}

func (s stubTransactionStore) MarkReconciled(ctx context.Context, tx store.Execer, transactionID string, confidence float64) (int64, error) {
	if s.reconcileFn == nil {
		return 1, nil
	}
	return s.reconcileFn(ctx, tx, transactionID, confidence)
}

type stubJournalStore struct {
	unbalancedFn func(ctx context.Context, businessID string) ([]store.BalanceMismatch, error)
}

func (s stubJournalStore) UnbalancedTransactions(ctx context.Context, businessID string) ([]store.BalanceMismatch, error) {
	if s.unbalancedFn == nil {
		return nil, nil
	}
	return s.unbalancedFn(ctx, businessID)
}

type stubAuditStore struct {
	logFn  func(ctx context.Context, tx store.Execer, businessID, actorID, action, entityType, entityID, data string) error
	listFn func(ctx context.Context, businessID string, limit, offset int) ([]map[string]any, error)
}

func (s stubAuditStore) Log(ctx context.Context, tx store.Execer, businessID, actorID, action, entityType, entityID, data string) error {
	if s.logFn == nil {
		return nil
	}
	return s.logFn(ctx, tx, businessID, actorID, action, entityType, entityID, data)
}

func (s stubAuditStore) List(ctx context.Context, businessID string, limit, offset int) ([]map[string]any, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, businessID, limit, offset)
}

type stubBalanceService struct {
	seedFn   func(ctx context.Context, req ledger.SeedRequest) (ledger.PostingResult, error)
	adjustFn func(ctx context.Context, req ledger.AdjustRequest) (ledger.PostingResult, error)
}

func (s stubBalanceService) SeedOpeningBalance(ctx context.Context, req ledger.SeedRequest) (ledger.PostingResult, error) {
	if s.seedFn == nil {
		return ledger.PostingResult{}, nil
	}
	return s.seedFn(ctx, req)
}

func (s stubBalanceService) AdjustBalance(ctx context.Context, req ledger.AdjustRequest) (ledger.PostingResult, error) {
	if s.adjustFn == nil {
		return ledger.PostingResult{}, nil
	}
	return s.adjustFn(ctx, req)
}

type stubSyncService struct {
	runFn func(ctx context.Context, req reconciler.RunRequest) (reconciler.RunResult, error)
}

func (s stubSyncService) Run(ctx context.Context, req reconciler.RunRequest) (reconciler.RunResult, error) {
	if s.runFn == nil {
		return reconciler.RunResult{}, nil
	}
	return s.runFn(ctx, req)
}

type stubExtractor struct {
	extractFn func(ctx context.Context, documentURL string) (extraction.Result, error)
}

func (s stubExtractor) Extract(ctx context.Context, documentURL string) (extraction.Result, error) {
	if s.extractFn == nil {
		return extraction.Result{}, nil
	}
	return s.extractFn(ctx, documentURL)
}

func newTestHandler(reconcileDB stubReconcileDB, txRunner fakeTxRunner, accounts stubAccountStore, categories stubCategoryStore, transactions stubTransactionStore, audit stubAuditStore, balance stubBalanceService, sync stubSyncService, extractor stubExtractor) *Handler {
	cfg := config.Config{JWTSecret: "test-secret", AllowedOrigins: "*"}
	return New(reconcileDB, txRunner, cfg, stubBusinessStore{}, accounts, categories, transactions, stubJournalStore{}, audit, balance, sync, extractor, chart.Default(), websocket.NewHub())
}

func authedRequest(t *testing.T, method, target string, body io.Reader) *http.Request {
	t.Helper()
	token, err := auth.GenerateToken("test-secret", "user-1", "biz-1", time.Minute)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func serveAuthed(handlerFn http.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	middleware.Auth("test-secret")(handlerFn).ServeHTTP(rr, req)
	return rr
}

func newPlainRequest(method, target string) (*http.Request, *httptest.ResponseRecorder) {
	return httptest.NewRequest(method, target, nil), httptest.NewRecorder()
}
