package store

import (
	"context"
	"time"
)

type AccountStore struct {
	db DB
}

type Account struct {
	ID             string     `db:"id"`
	BusinessID     string     `db:"business_id"`
	Name           string     `db:"name"`
	Currency       string     `db:"currency"`
	Balance        int64      `db:"balance"`
	FeedToken      *string    `db:"feed_token"`
	CashCategoryID *string    `db:"cash_category_id"`
	LastSyncedAt   *time.Time `db:"last_synced_at"`
	CreatedAt      time.Time  `db:"created_at"`
}

type AccountInput struct {
	ID             string
	BusinessID     string
	Name           string
	Currency       string
	Balance        int64
	FeedToken      *string
	CashCategoryID *string
}

func NewAccountStore(db DB) *AccountStore {
	return &AccountStore{db: db}
}

func (s *AccountStore) Create(ctx context.Context, tx Execer, input AccountInput) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO accounts (id, business_id, name, currency, balance, feed_token, cash_category_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, input.ID, input.BusinessID, input.Name, input.Currency, input.Balance, input.FeedToken, input.CashCategoryID)
	return err
}

func (s *AccountStore) GetByID(ctx context.Context, accountID string) (Account, error) {
	var row Account
	err := s.db.GetContext(ctx, &row, `
		SELECT id, business_id, name, currency, balance, feed_token, cash_category_id, last_synced_at, created_at
		FROM accounts
		WHERE id = $1
	`, accountID)
	if err != nil {
		return Account{}, err
	}
	return row, nil
}

func (s *AccountStore) GetForUpdate(ctx context.Context, tx Getter, accountID string) (Account, error) {
	var row Account
	err := tx.GetContext(ctx, &row, `
		SELECT id, business_id, name, currency, balance, feed_token, cash_category_id, last_synced_at, created_at
		FROM accounts
		WHERE id = $1
		FOR UPDATE
	`, accountID)
	if err != nil {
		return Account{}, err
	}
	return row, nil
}

func (s *AccountStore) ListByBusiness(ctx context.Context, businessID string) ([]Account, error) {
	var rows []Account
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, business_id, name, currency, balance, feed_token, cash_category_id, last_synced_at, created_at
		FROM accounts
		WHERE business_id = $1
		ORDER BY created_at
	`, businessID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ListStale returns linked accounts whose watermark is missing or older than
// the cutoff. Accounts without a feed token are never synced.
func (s *AccountStore) ListStale(ctx context.Context, cutoff time.Time) ([]Account, error) {
	var rows []Account
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, business_id, name, currency, balance, feed_token, cash_category_id, last_synced_at, created_at
		FROM accounts
		WHERE feed_token IS NOT NULL
		  AND (last_synced_at IS NULL OR last_synced_at < $1)
		ORDER BY last_synced_at NULLS FIRST
	`, cutoff)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *AccountStore) UpdateBalance(ctx context.Context, tx Execer, accountID string, balance int64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET balance = $1, updated_at = NOW()
		WHERE id = $2
	`, balance, accountID)
	return err
}

// AdvanceWatermark moves the sync watermark forward. A concurrent run that
// already advanced it further wins; the watermark never moves backwards.
func (s *AccountStore) AdvanceWatermark(ctx context.Context, tx Execer, accountID string, syncedAt time.Time) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET last_synced_at = $1, updated_at = NOW()
		WHERE id = $2
		  AND (last_synced_at IS NULL OR last_synced_at < $1)
	`, syncedAt, accountID)
	return err
}
