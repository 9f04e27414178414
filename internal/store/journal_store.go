package store

import "context"

type JournalStore struct {
	db DB
}

type JournalEntryInput struct {
	ID            string
	TransactionID string
	CategoryID    string
	Debit         int64
	Credit        int64
	Description   string
}

type BalanceMismatch struct {
	TransactionID string `db:"transaction_id"`
	Debit         int64  `db:"debit_total"`
	Credit        int64  `db:"credit_total"`
}

func NewJournalStore(db DB) *JournalStore {
	return &JournalStore{db: db}
}

func (s *JournalStore) InsertEntries(ctx context.Context, tx Execer, entries []JournalEntryInput) error {
	query := `
		INSERT INTO journal_entries (id, transaction_id, category_id, debit, credit, description)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	for _, entry := range entries {
		if _, err := tx.ExecContext(ctx, query, entry.ID, entry.TransactionID, entry.CategoryID, entry.Debit, entry.Credit, entry.Description); err != nil {
			return err
		}
	}
	return nil
}

// UnbalancedTransactions surfaces any posting whose journal lines fail the
// double-entry identity. A non-empty result indicates data corruption.
func (s *JournalStore) UnbalancedTransactions(ctx context.Context, businessID string) ([]BalanceMismatch, error) {
	var rows []BalanceMismatch
	err := s.db.SelectContext(ctx, &rows, `
		SELECT j.transaction_id,
		       COALESCE(SUM(j.debit), 0) AS debit_total,
		       COALESCE(SUM(j.credit), 0) AS credit_total
		FROM journal_entries j
		JOIN transactions t ON t.id = j.transaction_id
		WHERE t.business_id = $1
		GROUP BY j.transaction_id
		HAVING COALESCE(SUM(j.debit), 0) <> COALESCE(SUM(j.credit), 0)
	`, businessID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
