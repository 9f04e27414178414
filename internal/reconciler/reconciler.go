// Package reconciler pulls aggregator deltas into the ledger. A run is
// all-or-nothing: every page is fetched and staged in memory first, then a
// single transaction commits rows and advances the account watermark.
package reconciler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"soleledger/internal/bankfeed"
	"soleledger/internal/chart"
	"soleledger/internal/db"
	"soleledger/internal/ledger"
	"soleledger/internal/money"
	"soleledger/internal/store"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
)

var (
	// ErrSync wraps aggregator failures. Retryable: the watermark is not
	// advanced, so the next run replays the same window.
	ErrSync = errors.New("sync failed")

	// ErrNotLinked means the account has no feed token to sync from.
	ErrNotLinked = errors.New("account is not linked to a bank feed")
)

type AccountStore interface {
	GetByID(ctx context.Context, accountID string) (store.Account, error)
	AdvanceWatermark(ctx context.Context, tx store.Execer, accountID string, syncedAt time.Time) error
}

type CategoryStore interface {
	ListActiveByBusiness(ctx context.Context, businessID string) ([]store.Category, error)
	InsertBatch(ctx context.Context, tx store.Execer, inputs []store.CategoryInput) error
}

type TransactionStore interface {
	ExistingExternalIDs(ctx context.Context, businessID string, externalIDs []string) (map[string]struct{}, error)
	InsertBatch(ctx context.Context, tx store.Execer, inputs []store.TransactionInput) error
	UpdateFromFeed(ctx context.Context, tx store.Execer, businessID, externalID string, amount int64, date time.Time, description string) (int64, error)
	FlagRemoved(ctx context.Context, tx store.Execer, businessID, externalID string) (int64, error)
}

type AuditStore interface {
	Log(ctx context.Context, tx store.Execer, businessID, actorID, action, entityType, entityID, data string) error
}

type Reconciler struct {
	txRunner      db.TxRunner
	feed          bankfeed.Client
	accounts      AccountStore
	categories    CategoryStore
	transactions  TransactionStore
	audit         AuditStore
	log           zerolog.Logger
	batchSize     int
	historyMonths int
	now           func() time.Time
}

func New(txRunner db.TxRunner, feed bankfeed.Client, accounts AccountStore, categories CategoryStore, transactions TransactionStore, audit AuditStore, log zerolog.Logger, batchSize, historyMonths int) *Reconciler {
	if batchSize <= 0 {
		batchSize = 100
	}
	if historyMonths <= 0 {
		historyMonths = 24
	}
	return &Reconciler{
		txRunner:      txRunner,
		feed:          feed,
		accounts:      accounts,
		categories:    categories,
		transactions:  transactions,
		audit:         audit,
		log:           log,
		batchSize:     batchSize,
		historyMonths: historyMonths,
		now:           time.Now,
	}
}

type RunRequest struct {
	AccountID  string
	BusinessID string
	ActorID    string
}

type RunResult struct {
	Imported          int `json:"imported"`
	Updated           int `json:"updated"`
	Removed           int `json:"removed"`
	Skipped           int `json:"skipped"`
	CategoriesCreated int `json:"categories_created"`
}

// Run syncs one account against the aggregator. Fetch failures abort before
// anything is written; re-running after a failure imports nothing twice.
func (r *Reconciler) Run(ctx context.Context, req RunRequest) (RunResult, error) {
	started := r.now()
	account, err := r.accounts.GetByID(ctx, req.AccountID)
	if err != nil {
		return RunResult{}, err
	}
	if account.BusinessID != req.BusinessID {
		return RunResult{}, ledger.ErrAccountAccess
	}
	if account.FeedToken == nil || *account.FeedToken == "" {
		return RunResult{}, ErrNotLinked
	}
	token := *account.FeedToken

	if err := r.feed.Refresh(ctx, token); err != nil {
		return RunResult{}, fmt.Errorf("%w: refresh: %v", ErrSync, err)
	}

	var added, modified []bankfeed.Record
	var removed []bankfeed.RemovedRecord
	cursor := ""
	for {
		page, err := r.feed.Delta(ctx, token, cursor)
		if err != nil {
			return RunResult{}, fmt.Errorf("%w: delta at cursor %q: %v", ErrSync, cursor, err)
		}
		added = append(added, page.Added...)
		modified = append(modified, page.Modified...)
		removed = append(removed, page.Removed...)
		if !page.HasMore {
			break
		}
		cursor = page.NextCursor
	}

	result := RunResult{}
	cutoff := started.AddDate(0, -r.historyMonths, 0)
	settled := added[:0]
	for _, record := range added {
		if record.Pending || record.Date.Before(cutoff) {
			result.Skipped++
			continue
		}
		settled = append(settled, record)
	}

	externalIDs := make([]string, 0, len(settled))
	for _, record := range settled {
		externalIDs = append(externalIDs, record.ExternalID)
	}
	existing, err := r.transactions.ExistingExternalIDs(ctx, req.BusinessID, externalIDs)
	if err != nil {
		return RunResult{}, err
	}
	known, err := r.categories.ListActiveByBusiness(ctx, req.BusinessID)
	if err != nil {
		return RunResult{}, err
	}
	cache := ledger.NewCategoryCache(req.BusinessID, known)

	staged := make([]store.TransactionInput, 0, len(settled))
	for _, record := range settled {
		if _, dup := existing[record.ExternalID]; dup {
			result.Skipped++
			continue
		}
		// Marks the id as seen so duplicates across pages collapse too.
		existing[record.ExternalID] = struct{}{}
		input, ok := r.stage(account, cache, record)
		if !ok {
			result.Skipped++
			continue
		}
		staged = append(staged, input)
	}
	result.CategoriesCreated = len(cache.Staged())

	syncedAt := r.now()
	err = r.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := r.categories.InsertBatch(ctx, tx, cache.Staged()); err != nil {
			return err
		}
		for start := 0; start < len(staged); start += r.batchSize {
			end := start + r.batchSize
			if end > len(staged) {
				end = len(staged)
			}
			if err := r.transactions.InsertBatch(ctx, tx, staged[start:end]); err != nil {
				return err
			}
		}
		for _, record := range modified {
			cents, err := money.ParseSignedCents(record.Amount)
			if err != nil {
				continue
			}
			rows, err := r.transactions.UpdateFromFeed(ctx, tx, req.BusinessID, record.ExternalID, money.Abs(cents), record.Date, record.Description)
			if err != nil {
				return err
			}
			result.Updated += int(rows)
		}
		for _, record := range removed {
			rows, err := r.transactions.FlagRemoved(ctx, tx, req.BusinessID, record.ExternalID)
			if err != nil {
				return err
			}
			if rows == 0 {
				continue
			}
			result.Removed += int(rows)
			if err := r.audit.Log(ctx, tx, req.BusinessID, req.ActorID, "transaction_removed", "transaction", record.ExternalID, ""); err != nil {
				return err
			}
		}
		if err := r.accounts.AdvanceWatermark(ctx, tx, req.AccountID, syncedAt); err != nil {
			return err
		}
		result.Imported = len(staged)
		data, _ := json.Marshal(result)
		return r.audit.Log(ctx, tx, req.BusinessID, req.ActorID, "account_synced", "account", req.AccountID, string(data))
	})
	if err != nil {
		return RunResult{}, err
	}

	r.log.Info().
		Str("account_id", req.AccountID).
		Int("imported", result.Imported).
		Int("updated", result.Updated).
		Int("removed", result.Removed).
		Int("skipped", result.Skipped).
		Int("categories_created", result.CategoriesCreated).
		Dur("elapsed", r.now().Sub(started)).
		Msg("account synced")
	return result, nil
}

// stage builds the pending row for one settled record. The aggregator signs
// amounts from the account holder's view: positive is money out, negative is
// money in. Zero-amount and unparseable records are dropped.
func (r *Reconciler) stage(account store.Account, cache *ledger.CategoryCache, record bankfeed.Record) (store.TransactionInput, bool) {
	cents, err := money.ParseSignedCents(record.Amount)
	if err != nil {
		r.log.Warn().Str("external_id", record.ExternalID).Str("amount", record.Amount).Msg("unparseable feed amount")
		return store.TransactionInput{}, false
	}
	if cents == 0 {
		return store.TransactionInput{}, false
	}
	txType := store.TransactionExpense
	categoryType := chart.Expense
	if cents < 0 {
		txType = store.TransactionIncome
		categoryType = chart.Income
	}

	var categoryID *string
	if record.Category != nil && *record.Category != "" {
		id, err := cache.Resolve(categoryType, *record.Category)
		if err != nil {
			r.log.Warn().Str("external_id", record.ExternalID).Str("label", *record.Category).Err(err).Msg("category resolution failed")
		} else {
			categoryID = &id
		}
	}

	currency := record.Currency
	if currency == "" {
		currency = account.Currency
	}
	externalID := record.ExternalID
	return store.TransactionInput{
		ID:          uuid.NewString(),
		BusinessID:  account.BusinessID,
		AccountID:   account.ID,
		Type:        txType,
		Amount:      money.Abs(cents),
		Currency:    currency,
		Date:        record.Date,
		Description: record.Description,
		ExternalID:  &externalID,
		CategoryID:  categoryID,
	}, true
}
