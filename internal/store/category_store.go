package store

import (
	"context"
	"time"
)

type CategoryStore struct {
	db DB
}

type Category struct {
	ID         string    `db:"id"`
	BusinessID string    `db:"business_id"`
	Code       string    `db:"code"`
	Name       string    `db:"name"`
	Type       string    `db:"account_type"`
	ParentID   *string   `db:"parent_id"`
	Active     bool      `db:"active"`
	CreatedAt  time.Time `db:"created_at"`
}

type CategoryInput struct {
	ID         string
	BusinessID string
	Code       string
	Name       string
	Type       string
	ParentID   *string
}

func NewCategoryStore(db DB) *CategoryStore {
	return &CategoryStore{db: db}
}

// InsertBatch stages categories idempotently: a row whose (business, code)
// already exists is skipped rather than erroring, so replayed sync runs are
// safe.
func (s *CategoryStore) InsertBatch(ctx context.Context, tx Execer, inputs []CategoryInput) error {
	query := `
		INSERT INTO categories (id, business_id, code, name, account_type, parent_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT DO NOTHING
	`
	for _, input := range inputs {
		if _, err := tx.ExecContext(ctx, query, input.ID, input.BusinessID, input.Code, input.Name, input.Type, input.ParentID); err != nil {
			return err
		}
	}
	return nil
}

func (s *CategoryStore) ListActiveByBusiness(ctx context.Context, businessID string) ([]Category, error) {
	var rows []Category
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, business_id, code, name, account_type, parent_id, active, created_at
		FROM categories
		WHERE business_id = $1 AND active = TRUE
		ORDER BY code
	`, businessID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *CategoryStore) GetByID(ctx context.Context, categoryID string) (Category, error) {
	var row Category
	err := s.db.GetContext(ctx, &row, `
		SELECT id, business_id, code, name, account_type, parent_id, active, created_at
		FROM categories
		WHERE id = $1
	`, categoryID)
	if err != nil {
		return Category{}, err
	}
	return row, nil
}

// GetInTx reads a category inside the caller's transaction.
func (s *CategoryStore) GetInTx(ctx context.Context, tx Getter, categoryID string) (Category, error) {
	var row Category
	err := tx.GetContext(ctx, &row, `
		SELECT id, business_id, code, name, account_type, parent_id, active, created_at
		FROM categories
		WHERE id = $1 AND active = TRUE
	`, categoryID)
	if err != nil {
		return Category{}, err
	}
	return row, nil
}

// FindByCode looks up a chart node by its account code, inside the caller's
// transaction so the posting engine sees a consistent chart.
func (s *CategoryStore) FindByCode(ctx context.Context, tx Getter, businessID, code string) (Category, error) {
	var row Category
	err := tx.GetContext(ctx, &row, `
		SELECT id, business_id, code, name, account_type, parent_id, active, created_at
		FROM categories
		WHERE business_id = $1 AND code = $2 AND active = TRUE
	`, businessID, code)
	if err != nil {
		return Category{}, err
	}
	return row, nil
}

func (s *CategoryStore) ReferenceCount(ctx context.Context, categoryID string) (int64, error) {
	var count int64
	err := s.db.GetContext(ctx, &count, `
		SELECT COUNT(*)
		FROM transactions
		WHERE category_id = $1
	`, categoryID)
	return count, err
}

// Deactivate soft-deletes a category still referenced by transactions.
func (s *CategoryStore) Deactivate(ctx context.Context, tx Execer, categoryID string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE categories
		SET active = FALSE
		WHERE id = $1
	`, categoryID)
	return err
}

// Delete hard-deletes a category; callers must have checked it is
// unreferenced.
func (s *CategoryStore) Delete(ctx context.Context, tx Execer, categoryID string) error {
	_, err := tx.ExecContext(ctx, `
		DELETE FROM categories
		WHERE id = $1
	`, categoryID)
	return err
}
