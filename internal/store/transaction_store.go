package store

import (
	"context"
	"time"

	"github.com/lib/pq"
)

type TransactionStore struct {
	db DB
}

const (
	TransactionIncome   = "income"
	TransactionExpense  = "expense"
	TransactionTransfer = "transfer"

	StatusActive  = "active"
	StatusRemoved = "removed"
)

type Transaction struct {
	ID          string    `db:"id"`
	BusinessID  string    `db:"business_id"`
	AccountID   string    `db:"account_id"`
	Type        string    `db:"type"`
	Amount      int64     `db:"amount"`
	Currency    string    `db:"currency"`
	Date        time.Time `db:"date"`
	Description string    `db:"description"`
	ExternalID  *string   `db:"external_id"`
	CategoryID  *string   `db:"category_id"`
	Confidence  *float64  `db:"confidence"`
	Reconciled  bool      `db:"reconciled"`
	Status      string    `db:"status"`
	CreatedAt   time.Time `db:"created_at"`
}

type TransactionInput struct {
	ID          string
	BusinessID  string
	AccountID   string
	Type        string
	Amount      int64
	Currency    string
	Date        time.Time
	Description string
	ExternalID  *string
	CategoryID  *string
	Confidence  *float64
	Reconciled  bool
}

func NewTransactionStore(db DB) *TransactionStore {
	return &TransactionStore{db: db}
}

func (s *TransactionStore) Create(ctx context.Context, tx Execer, input TransactionInput) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO transactions (id, business_id, account_id, type, amount, currency, date, description, external_id, category_id, confidence, reconciled, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, input.ID, input.BusinessID, input.AccountID, input.Type, input.Amount, input.Currency,
		input.Date, input.Description, input.ExternalID, input.CategoryID, input.Confidence,
		input.Reconciled, StatusActive)
	return err
}

// InsertBatch writes staged sync rows; a duplicate external id for the
// business is skipped, which makes replayed runs idempotent.
func (s *TransactionStore) InsertBatch(ctx context.Context, tx Execer, inputs []TransactionInput) error {
	query := `
		INSERT INTO transactions (id, business_id, account_id, type, amount, currency, date, description, external_id, category_id, confidence, reconciled, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT DO NOTHING
	`
	for _, input := range inputs {
		if _, err := tx.ExecContext(ctx, query, input.ID, input.BusinessID, input.AccountID, input.Type,
			input.Amount, input.Currency, input.Date, input.Description, input.ExternalID,
			input.CategoryID, input.Confidence, input.Reconciled, StatusActive); err != nil {
			return err
		}
	}
	return nil
}

// ExistingExternalIDs returns which of the given external ids are already
// imported for the business, in one query.
func (s *TransactionStore) ExistingExternalIDs(ctx context.Context, businessID string, externalIDs []string) (map[string]struct{}, error) {
	existing := make(map[string]struct{}, len(externalIDs))
	if len(externalIDs) == 0 {
		return existing, nil
	}
	var rows []string
	err := s.db.SelectContext(ctx, &rows, `
		SELECT external_id
		FROM transactions
		WHERE business_id = $1 AND external_id = ANY($2)
	`, businessID, pq.Array(externalIDs))
	if err != nil {
		return nil, err
	}
	for _, id := range rows {
		existing[id] = struct{}{}
	}
	return existing, nil
}

// UpdateFromFeed applies an aggregator "modified" notification to the
// matching imported transaction's mutable fields.
func (s *TransactionStore) UpdateFromFeed(ctx context.Context, tx Execer, businessID, externalID string, amount int64, date time.Time, description string) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE transactions
		SET amount = $1, date = $2, description = $3
		WHERE business_id = $4 AND external_id = $5 AND status = $6
	`, amount, date, description, businessID, externalID, StatusActive)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// FlagRemoved marks an upstream-deleted transaction as removed. Rows are
// never hard-deleted; the audit trail keeps the original.
func (s *TransactionStore) FlagRemoved(ctx context.Context, tx Execer, businessID, externalID string) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE transactions
		SET status = $1
		WHERE business_id = $2 AND external_id = $3 AND status = $4
	`, StatusRemoved, businessID, externalID, StatusActive)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// HasOpeningPosting reports whether the account already carries an opening
// balance posting, identified by the transfer type plus the reserved
// description.
func (s *TransactionStore) HasOpeningPosting(ctx context.Context, tx Getter, accountID, openingDescription string) (bool, error) {
	var exists bool
	err := tx.GetContext(ctx, &exists, `
		SELECT EXISTS(
			SELECT 1 FROM transactions
			WHERE account_id = $1 AND type = $2 AND description = $3
		)
	`, accountID, TransactionTransfer, openingDescription)
	return exists, err
}

func (s *TransactionStore) GetByID(ctx context.Context, transactionID string) (Transaction, error) {
	var row Transaction
	err := s.db.GetContext(ctx, &row, `
		SELECT id, business_id, account_id, type, amount, currency, date, description, external_id, category_id, confidence, reconciled, status, created_at
		FROM transactions
		WHERE id = $1
	`, transactionID)
	if err != nil {
		return Transaction{}, err
	}
	return row, nil
}

func (s *TransactionStore) ListByBusiness(ctx context.Context, businessID string, limit, offset int) ([]Transaction, error) {
	var rows []Transaction
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, business_id, account_id, type, amount, currency, date, description, external_id, category_id, confidence, reconciled, status, created_at
		FROM transactions
		WHERE business_id = $1
		ORDER BY date DESC, created_at DESC
		LIMIT $2 OFFSET $3
	`, businessID, limit, offset)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ListWindow returns active transactions dated inside [from, to], the
// candidate pool for document matching.
func (s *TransactionStore) ListWindow(ctx context.Context, businessID string, from, to time.Time) ([]Transaction, error) {
	var rows []Transaction
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, business_id, account_id, type, amount, currency, date, description, external_id, category_id, confidence, reconciled, status, created_at
		FROM transactions
		WHERE business_id = $1 AND status = $2 AND date BETWEEN $3 AND $4
		ORDER BY date
	`, businessID, StatusActive, from, to)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// MarkReconciled records an accepted document match.
func (s *TransactionStore) MarkReconciled(ctx context.Context, tx Execer, transactionID string, confidence float64) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE transactions
		SET reconciled = TRUE, confidence = $1
		WHERE id = $2 AND status = $3 AND reconciled = FALSE
	`, confidence, transactionID, StatusActive)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
