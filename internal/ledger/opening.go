package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"soleledger/internal/chart"
	"soleledger/internal/db"
	"soleledger/internal/money"
	"soleledger/internal/store"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Reserved descriptions marking postings created by the balance engine.
// The opening description doubles as the duplicate-posting marker.
const (
	OpeningDescription    = "Opening balance"
	AdjustmentDescription = "Balance adjustment"
)

type AccountStore interface {
	GetForUpdate(ctx context.Context, tx store.Getter, accountID string) (store.Account, error)
	UpdateBalance(ctx context.Context, tx store.Execer, accountID string, balance int64) error
}

type CategoryStore interface {
	GetInTx(ctx context.Context, tx store.Getter, categoryID string) (store.Category, error)
	FindByCode(ctx context.Context, tx store.Getter, businessID, code string) (store.Category, error)
}

type TransactionStore interface {
	Create(ctx context.Context, tx store.Execer, input store.TransactionInput) error
	HasOpeningPosting(ctx context.Context, tx store.Getter, accountID, openingDescription string) (bool, error)
}

type JournalStore interface {
	InsertEntries(ctx context.Context, tx store.Execer, entries []store.JournalEntryInput) error
}

type AuditStore interface {
	Log(ctx context.Context, tx store.Execer, businessID, actorID, action, entityType, entityID, data string) error
}

// BalanceService turns out-of-band balance changes into balanced postings.
// Seeding or correcting a tracked balance never touches the ledger except
// through a transfer transaction plus two journal lines that offset each
// other, so assets always equal liabilities plus equity.
type BalanceService struct {
	txRunner     db.TxRunner
	accounts     AccountStore
	categories   CategoryStore
	transactions TransactionStore
	journal      JournalStore
	audit        AuditStore
}

func NewBalanceService(txRunner db.TxRunner, accounts AccountStore, categories CategoryStore, transactions TransactionStore, journal JournalStore, audit AuditStore) *BalanceService {
	return &BalanceService{
		txRunner:     txRunner,
		accounts:     accounts,
		categories:   categories,
		transactions: transactions,
		journal:      journal,
		audit:        audit,
	}
}

type SeedRequest struct {
	BusinessID string
	AccountID  string
	ActorID    string
	Balance    string
}

type AdjustRequest struct {
	BusinessID string
	AccountID  string
	ActorID    string
	NewBalance string
}

type PostingResult struct {
	TransactionID string
	DeltaCents    int64
	NoChange      bool
}

// SeedOpeningBalance posts an account's starting balance. A second call for
// the same account is a no-op surfaced as ErrDuplicatePosting.
func (s *BalanceService) SeedOpeningBalance(ctx context.Context, req SeedRequest) (PostingResult, error) {
	cents, err := money.ValidateBalance(req.Balance)
	if err != nil {
		return PostingResult{}, fmt.Errorf("%w: %v", ErrInvalidBalance, err)
	}
	if cents == 0 {
		return PostingResult{NoChange: true}, nil
	}
	var result PostingResult
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		account, err := s.accounts.GetForUpdate(ctx, tx, req.AccountID)
		if err != nil {
			return err
		}
		if account.BusinessID != req.BusinessID {
			return ErrAccountAccess
		}
		exists, err := s.transactions.HasOpeningPosting(ctx, tx, req.AccountID, OpeningDescription)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicatePosting
		}
		result, err = s.post(ctx, tx, account, req.ActorID, cents, cents, OpeningDescription)
		return err
	})
	if err != nil {
		return PostingResult{}, err
	}
	return result, nil
}

// AdjustBalance posts the delta between the account's tracked balance and
// the corrected value. A delta under one cent is a successful no-op.
func (s *BalanceService) AdjustBalance(ctx context.Context, req AdjustRequest) (PostingResult, error) {
	newCents, err := money.ValidateBalance(req.NewBalance)
	if err != nil {
		return PostingResult{}, fmt.Errorf("%w: %v", ErrInvalidBalance, err)
	}
	var result PostingResult
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		account, err := s.accounts.GetForUpdate(ctx, tx, req.AccountID)
		if err != nil {
			return err
		}
		if account.BusinessID != req.BusinessID {
			return ErrAccountAccess
		}
		delta := newCents - account.Balance
		if delta == 0 {
			result = PostingResult{NoChange: true}
			return nil
		}
		result, err = s.post(ctx, tx, account, req.ActorID, delta, newCents, AdjustmentDescription)
		return err
	})
	if err != nil {
		return PostingResult{}, err
	}
	return result, nil
}

// post creates the transfer transaction and its two journal lines inside
// the caller's transaction. A positive delta debits the asset category and
// credits opening-balance equity; a negative delta reverses the sides.
func (s *BalanceService) post(ctx context.Context, tx *sqlx.Tx, account store.Account, actorID string, delta, newBalance int64, description string) (PostingResult, error) {
	assetCategory, err := s.resolveAssetCategory(ctx, tx, account)
	if err != nil {
		return PostingResult{}, err
	}
	equityCategory, err := s.categories.FindByCode(ctx, tx, account.BusinessID, chart.OpeningEquityCode)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return PostingResult{}, fmt.Errorf("%w: opening-balance equity", ErrAccountingSetup)
		}
		return PostingResult{}, err
	}

	transactionID := uuid.NewString()
	magnitude := money.Abs(delta)
	input := store.TransactionInput{
		ID:          transactionID,
		BusinessID:  account.BusinessID,
		AccountID:   account.ID,
		Type:        store.TransactionTransfer,
		Amount:      magnitude,
		Currency:    account.Currency,
		Date:        time.Now().UTC(),
		Description: description,
		Reconciled:  true,
	}
	if err := s.transactions.Create(ctx, tx, input); err != nil {
		return PostingResult{}, err
	}

	debitCategory, creditCategory := assetCategory.ID, equityCategory.ID
	if delta < 0 {
		debitCategory, creditCategory = equityCategory.ID, assetCategory.ID
	}
	entries := []store.JournalEntryInput{
		{
			ID:            uuid.NewString(),
			TransactionID: transactionID,
			CategoryID:    debitCategory,
			Debit:         magnitude,
			Description:   description,
		},
		{
			ID:            uuid.NewString(),
			TransactionID: transactionID,
			CategoryID:    creditCategory,
			Credit:        magnitude,
			Description:   description,
		},
	}
	if err := verifyBalanced(entries); err != nil {
		return PostingResult{}, err
	}
	if err := s.journal.InsertEntries(ctx, tx, entries); err != nil {
		return PostingResult{}, err
	}
	if err := s.accounts.UpdateBalance(ctx, tx, account.ID, newBalance); err != nil {
		return PostingResult{}, err
	}

	data, _ := json.Marshal(map[string]string{
		"delta":       money.FormatCents(delta),
		"new_balance": money.FormatCents(newBalance),
	})
	if err := s.audit.Log(ctx, tx, account.BusinessID, actorID, "balance_posted", "transaction", transactionID, string(data)); err != nil {
		return PostingResult{}, err
	}
	return PostingResult{TransactionID: transactionID, DeltaCents: delta}, nil
}

func (s *BalanceService) resolveAssetCategory(ctx context.Context, tx *sqlx.Tx, account store.Account) (store.Category, error) {
	if account.CashCategoryID != nil {
		category, err := s.categories.GetInTx(ctx, tx, *account.CashCategoryID)
		if err == nil {
			return category, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return store.Category{}, err
		}
		// The designated category was removed; fall through to the
		// business-level cash category.
	}
	category, err := s.categories.FindByCode(ctx, tx, account.BusinessID, chart.CashCode)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Category{}, fmt.Errorf("%w: cash", ErrAccountingSetup)
		}
		return store.Category{}, err
	}
	return category, nil
}

// verifyBalanced re-sums both sides before anything persists. A mismatch
// beyond one cent is a logic defect and aborts the whole unit.
func verifyBalanced(entries []store.JournalEntryInput) error {
	var debit, credit int64
	for _, entry := range entries {
		if entry.Debit != 0 && entry.Credit != 0 {
			return fmt.Errorf("%w: entry has both sides set", ErrInvariantViolation)
		}
		debit += entry.Debit
		credit += entry.Credit
	}
	if diff := money.Abs(debit - credit); diff > 1 {
		return fmt.Errorf("%w: debit %s credit %s", ErrInvariantViolation, money.FormatCents(debit), money.FormatCents(credit))
	}
	return nil
}
