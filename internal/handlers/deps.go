package handlers

import (
	"context"
	"time"

	"soleledger/internal/extraction"
	"soleledger/internal/ledger"
	"soleledger/internal/reconciler"
	"soleledger/internal/store"
)

type BusinessStore interface {
	Create(ctx context.Context, tx store.Execer, id, name string) error
	GetByID(ctx context.Context, businessID string) (store.Business, error)
}

type AccountStore interface {
	Create(ctx context.Context, tx store.Execer, input store.AccountInput) error
	GetByID(ctx context.Context, accountID string) (store.Account, error)
	ListByBusiness(ctx context.Context, businessID string) ([]store.Account, error)
}

type CategoryStore interface {
	ListActiveByBusiness(ctx context.Context, businessID string) ([]store.Category, error)
	InsertBatch(ctx context.Context, tx store.Execer, inputs []store.CategoryInput) error
}

type TransactionStore interface {
	GetByID(ctx context.Context, transactionID string) (store.Transaction, error)
	ListByBusiness(ctx context.Context, businessID string, limit, offset int) ([]store.Transaction, error)
	ListWindow(ctx context.Context, businessID string, from, to time.Time) ([]store.Transaction, error)
	MarkReconciled(ctx context.Context, tx store.Execer, transactionID string, confidence float64) (int64, error)
}

type JournalStore interface {
	UnbalancedTransactions(ctx context.Context, businessID string) ([]store.BalanceMismatch, error)
}

type AuditStore interface {
	Log(ctx context.Context, tx store.Execer, businessID, actorID, action, entityType, entityID, data string) error
	List(ctx context.Context, businessID string, limit, offset int) ([]map[string]any, error)
}

type BalanceService interface {
	SeedOpeningBalance(ctx context.Context, req ledger.SeedRequest) (ledger.PostingResult, error)
	AdjustBalance(ctx context.Context, req ledger.AdjustRequest) (ledger.PostingResult, error)
}

type SyncService interface {
	Run(ctx context.Context, req reconciler.RunRequest) (reconciler.RunResult, error)
}

type Extractor interface {
	Extract(ctx context.Context, documentURL string) (extraction.Result, error)
}
