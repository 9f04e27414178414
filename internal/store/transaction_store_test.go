package store

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"
)

func TestInsertBatchSkipsOnConflict(t *testing.T) {
	var queries []string
	s := NewTransactionStore(stubDB{})
	tx := stubExecer{
		execFn: func(_ context.Context, query string, args ...any) (sql.Result, error) {
			queries = append(queries, query)
			return stubResult{rows: 1}, nil
		},
	}
	externalID := "ext-1"
	err := s.InsertBatch(context.Background(), tx, []TransactionInput{
		{ID: "t1", BusinessID: "biz", AccountID: "acc", Type: TransactionExpense, Amount: 5432, Currency: "CAD", Date: time.Now(), ExternalID: &externalID},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(queries) != 1 || !strings.Contains(queries[0], "ON CONFLICT DO NOTHING") {
		t.Fatalf("expected conflict-skipping insert, got %q", queries)
	}
}

func TestExistingExternalIDsEmptyInput(t *testing.T) {
	s := NewTransactionStore(stubDB{
		selectFn: func(context.Context, any, string, ...any) error {
			t.Fatalf("unexpected query for empty id set")
			return nil
		},
	})
	existing, err := s.ExistingExternalIDs(context.Background(), "biz", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(existing) != 0 {
		t.Fatalf("expected empty set, got %v", existing)
	}
}

func TestFlagRemovedOnlyTouchesActiveRows(t *testing.T) {
	var gotQuery string
	var gotArgs []any
	s := NewTransactionStore(stubDB{})
	tx := stubExecer{
		execFn: func(_ context.Context, query string, args ...any) (sql.Result, error) {
			gotQuery = query
			gotArgs = args
			return stubResult{rows: 1}, nil
		},
	}
	affected, err := s.FlagRemoved(context.Background(), tx, "biz", "ext-9")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if affected != 1 {
		t.Fatalf("expected 1 row affected, got %d", affected)
	}
	if !strings.Contains(gotQuery, "SET status") || strings.Contains(gotQuery, "DELETE") {
		t.Fatalf("removed rows must be flagged, not deleted: %q", gotQuery)
	}
	if gotArgs[0] != StatusRemoved {
		t.Fatalf("expected status %q, got %v", StatusRemoved, gotArgs[0])
	}
}

func TestMarkReconciledIgnoresAlreadyReconciled(t *testing.T) {
	s := NewTransactionStore(stubDB{})
	tx := stubExecer{
		execFn: func(_ context.Context, query string, _ ...any) (sql.Result, error) {
			if !strings.Contains(query, "reconciled = FALSE") {
				t.Fatalf("expected reconciled guard in query: %q", query)
			}
			return stubResult{rows: 0}, nil
		},
	}
	affected, err := s.MarkReconciled(context.Background(), tx, "t1", 0.95)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if affected != 0 {
		t.Fatalf("expected 0 rows affected, got %d", affected)
	}
}
