package store

import (
	"context"
	"time"
)

type BusinessStore struct {
	db DB
}

type Business struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	CreatedAt time.Time `db:"created_at"`
}

func NewBusinessStore(db DB) *BusinessStore {
	return &BusinessStore{db: db}
}

func (s *BusinessStore) Create(ctx context.Context, tx Execer, id, name string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO businesses (id, name)
		VALUES ($1, $2)
	`, id, name)
	return err
}

func (s *BusinessStore) GetByID(ctx context.Context, businessID string) (Business, error) {
	var row Business
	err := s.db.GetContext(ctx, &row, `
		SELECT id, name, created_at
		FROM businesses
		WHERE id = $1
	`, businessID)
	if err != nil {
		return Business{}, err
	}
	return row, nil
}
