package reconciler

import (
	"context"
	"errors"
	"testing"
	"time"

	"soleledger/internal/bankfeed"
	"soleledger/internal/store"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
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

type stubFeed struct {
	refreshErr error
	pages      []bankfeed.DeltaPage
	deltaErr   error
	calls      int
}

func (s *stubFeed) Refresh(context.Context, string) error {
	return s.refreshErr
}

func (s *stubFeed) Delta(_ context.Context, _, _ string) (bankfeed.DeltaPage, error) {
	if s.deltaErr != nil {
		return bankfeed.DeltaPage{}, s.deltaErr
	}
	if s.calls >= len(s.pages) {
		return bankfeed.DeltaPage{}, nil
	}
	page := s.pages[s.calls]
	s.calls++
	return page, nil
}

type stubAccounts struct {
	account     store.Account
	getErr      error
	watermarked []time.Time
	stale       []store.Account
}

func (s *stubAccounts) GetByID(context.Context, string) (store.Account, error) {
	if s.getErr != nil {
		return store.Account{}, s.getErr
	}
	return s.account, nil
}

func (s *stubAccounts) AdvanceWatermark(_ context.Context, _ store.Execer, _ string, syncedAt time.Time) error {
	s.watermarked = append(s.watermarked, syncedAt)
	return nil
}

func (s *stubAccounts) ListStale(context.Context, time.Time) ([]store.Account, error) {
	return s.stale, nil
}

type stubCategories struct {
	known    []store.Category
	inserted []store.CategoryInput
}

func (s *stubCategories) ListActiveByBusiness(context.Context, string) ([]store.Category, error) {
	return s.known, nil
}

func (s *stubCategories) InsertBatch(_ context.Context, _ store.Execer, inputs []store.CategoryInput) error {
	s.inserted = append(s.inserted, inputs...)
	return nil
}

type stubTransactions struct {
	existing map[string]struct{}
	inserted []store.TransactionInput
	updated  []string
	flagged  []string
}

func (s *stubTransactions) ExistingExternalIDs(context.Context, string, []string) (map[string]struct{}, error) {
	existing := make(map[string]struct{}, len(s.existing))
	for id := range s.existing {
		existing[id] = struct{}{}
	}
	return existing, nil
}

func (s *stubTransactions) InsertBatch(_ context.Context, _ store.Execer, inputs []store.TransactionInput) error {
	s.inserted = append(s.inserted, inputs...)
	return nil
}

func (s *stubTransactions) UpdateFromFeed(_ context.Context, _ store.Execer, _, externalID string, _ int64, _ time.Time, _ string) (int64, error) {
	s.updated = append(s.updated, externalID)
	return 1, nil
}

func (s *stubTransactions) FlagRemoved(_ context.Context, _ store.Execer, _, externalID string) (int64, error) {
	s.flagged = append(s.flagged, externalID)
	return 1, nil
}

type stubAudit struct {
	actions []string
}

func (s *stubAudit) Log(_ context.Context, _ store.Execer, _, _, action, _, _, _ string) error {
	s.actions = append(s.actions, action)
	return nil
}

func linkedAccount() store.Account {
	token := "tok-1"
	return store.Account{ID: "acc-1", BusinessID: "biz", Name: "Chequing", Currency: "CAD", FeedToken: &token}
}

func feedRecord(externalID, amount string, daysAgo int, pending bool) bankfeed.Record {
	return bankfeed.Record{
		ExternalID:  externalID,
		Amount:      amount,
		Currency:    "CAD",
		Date:        time.Now().UTC().AddDate(0, 0, -daysAgo),
		Description: "CARD PURCHASE " + externalID,
		Pending:     pending,
	}
}

func newTestReconciler(feed *stubFeed, accounts *stubAccounts, categories *stubCategories, transactions *stubTransactions, audit *stubAudit) *Reconciler {
	return New(fakeTxRunner{}, feed, accounts, categories, transactions, audit, zerolog.Nop(), 100, 24)
}

func TestRunImportsSettledSkipsPending(t *testing.T) {
	feed := &stubFeed{pages: []bankfeed.DeltaPage{{
		Added: []bankfeed.Record{
			feedRecord("ext-1", "10.00", 1, false),
			feedRecord("ext-2", "20.00", 2, false),
			feedRecord("ext-3", "30.00", 3, false),
			feedRecord("ext-4", "40.00", 0, true),
		},
	}}}
	accounts := &stubAccounts{account: linkedAccount()}
	transactions := &stubTransactions{}
	audit := &stubAudit{}
	r := newTestReconciler(feed, accounts, &stubCategories{}, transactions, audit)

	result, err := r.Run(context.Background(), RunRequest{AccountID: "acc-1", BusinessID: "biz", ActorID: "user-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Imported != 3 || result.Skipped != 1 {
		t.Fatalf("expected 3 imported 1 skipped, got %#v", result)
	}
	if len(transactions.inserted) != 3 {
		t.Fatalf("expected 3 inserted rows, got %d", len(transactions.inserted))
	}
	if len(accounts.watermarked) != 1 {
		t.Fatalf("watermark must advance exactly once, got %d", len(accounts.watermarked))
	}
	if len(audit.actions) != 1 || audit.actions[0] != "account_synced" {
		t.Fatalf("expected account_synced audit entry, got %v", audit.actions)
	}
}

func TestRunReplayIsIdempotent(t *testing.T) {
	feed := &stubFeed{pages: []bankfeed.DeltaPage{{
		Added: []bankfeed.Record{feedRecord("ext-1", "10.00", 1, false)},
	}}}
	accounts := &stubAccounts{account: linkedAccount()}
	transactions := &stubTransactions{existing: map[string]struct{}{"ext-1": {}}}
	r := newTestReconciler(feed, accounts, &stubCategories{}, transactions, &stubAudit{})

	result, err := r.Run(context.Background(), RunRequest{AccountID: "acc-1", BusinessID: "biz", ActorID: "user-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Imported != 0 || result.Skipped != 1 {
		t.Fatalf("replay must skip the known record: %#v", result)
	}
	if len(transactions.inserted) != 0 {
		t.Fatalf("no rows may be inserted on replay")
	}
}

func TestRunDropsDuplicatesAcrossPages(t *testing.T) {
	feed := &stubFeed{pages: []bankfeed.DeltaPage{
		{Added: []bankfeed.Record{feedRecord("ext-1", "10.00", 1, false)}, NextCursor: "c1", HasMore: true},
		{Added: []bankfeed.Record{feedRecord("ext-1", "10.00", 1, false)}},
	}}
	accounts := &stubAccounts{account: linkedAccount()}
	transactions := &stubTransactions{}
	r := newTestReconciler(feed, accounts, &stubCategories{}, transactions, &stubAudit{})

	result, err := r.Run(context.Background(), RunRequest{AccountID: "acc-1", BusinessID: "biz", ActorID: "user-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Imported != 1 || len(transactions.inserted) != 1 {
		t.Fatalf("duplicate across pages must collapse: %#v", result)
	}
}

func TestRunFeedFailureLeavesWatermark(t *testing.T) {
	feed := &stubFeed{deltaErr: errors.New("connection reset")}
	accounts := &stubAccounts{account: linkedAccount()}
	transactions := &stubTransactions{}
	r := newTestReconciler(feed, accounts, &stubCategories{}, transactions, &stubAudit{})

	_, err := r.Run(context.Background(), RunRequest{AccountID: "acc-1", BusinessID: "biz", ActorID: "user-1"})
	if !errors.Is(err, ErrSync) {
		t.Fatalf("expected ErrSync, got %v", err)
	}
	if len(accounts.watermarked) != 0 {
		t.Fatalf("watermark must not advance on fetch failure")
	}
	if len(transactions.inserted) != 0 {
		t.Fatalf("nothing may be inserted on fetch failure")
	}
}

func TestRunUnlinkedAccountFails(t *testing.T) {
	account := linkedAccount()
	account.FeedToken = nil
	accounts := &stubAccounts{account: account}
	r := newTestReconciler(&stubFeed{}, accounts, &stubCategories{}, &stubTransactions{}, &stubAudit{})

	_, err := r.Run(context.Background(), RunRequest{AccountID: "acc-1", BusinessID: "biz", ActorID: "user-1"})
	if !errors.Is(err, ErrNotLinked) {
		t.Fatalf("expected ErrNotLinked, got %v", err)
	}
}

func TestRunSignConventionAndCategories(t *testing.T) {
	meals := "Meals"
	sales := "Sales"
	outflow := feedRecord("ext-out", "54.32", 1, false)
	outflow.Category = &meals
	inflow := feedRecord("ext-in", "-200.00", 2, false)
	inflow.Category = &sales
	feed := &stubFeed{pages: []bankfeed.DeltaPage{{Added: []bankfeed.Record{outflow, inflow}}}}
	accounts := &stubAccounts{account: linkedAccount()}
	categories := &stubCategories{}
	transactions := &stubTransactions{}
	r := newTestReconciler(feed, accounts, categories, transactions, &stubAudit{})

	result, err := r.Run(context.Background(), RunRequest{AccountID: "acc-1", BusinessID: "biz", ActorID: "user-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.CategoriesCreated != 2 || len(categories.inserted) != 2 {
		t.Fatalf("expected 2 staged categories, got %#v", categories.inserted)
	}
	byExternal := map[string]store.TransactionInput{}
	for _, input := range transactions.inserted {
		byExternal[*input.ExternalID] = input
	}
	expense := byExternal["ext-out"]
	if expense.Type != store.TransactionExpense || expense.Amount != 5432 {
		t.Fatalf("positive amount must become an expense of 5432 cents: %#v", expense)
	}
	income := byExternal["ext-in"]
	if income.Type != store.TransactionIncome || income.Amount != 20000 {
		t.Fatalf("negative amount must become an income of 20000 cents: %#v", income)
	}
	if expense.CategoryID == nil || income.CategoryID == nil {
		t.Fatalf("labeled records must get categories")
	}
}

func TestRunUnlabeledRecordHasNoCategory(t *testing.T) {
	feed := &stubFeed{pages: []bankfeed.DeltaPage{{Added: []bankfeed.Record{feedRecord("ext-1", "10.00", 1, false)}}}}
	accounts := &stubAccounts{account: linkedAccount()}
	transactions := &stubTransactions{}
	r := newTestReconciler(feed, accounts, &stubCategories{}, transactions, &stubAudit{})

	if _, err := r.Run(context.Background(), RunRequest{AccountID: "acc-1", BusinessID: "biz", ActorID: "user-1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if transactions.inserted[0].CategoryID != nil {
		t.Fatalf("unlabeled record must stay uncategorized")
	}
}

func TestRunFlagsRemovedRecords(t *testing.T) {
	feed := &stubFeed{pages: []bankfeed.DeltaPage{{
		Removed: []bankfeed.RemovedRecord{{ExternalID: "ext-9"}},
	}}}
	accounts := &stubAccounts{account: linkedAccount()}
	transactions := &stubTransactions{}
	audit := &stubAudit{}
	r := newTestReconciler(feed, accounts, &stubCategories{}, transactions, audit)

	result, err := r.Run(context.Background(), RunRequest{AccountID: "acc-1", BusinessID: "biz", ActorID: "user-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Removed != 1 || len(transactions.flagged) != 1 {
		t.Fatalf("removed record must be flagged: %#v", result)
	}
	if audit.actions[0] != "transaction_removed" {
		t.Fatalf("removal must be audited, got %v", audit.actions)
	}
}

func TestRunSkipsOutOfWindowRecords(t *testing.T) {
	feed := &stubFeed{pages: []bankfeed.DeltaPage{{
		Added: []bankfeed.Record{
			feedRecord("ext-old", "10.00", 800, false),
			feedRecord("ext-new", "10.00", 1, false),
		},
	}}}
	accounts := &stubAccounts{account: linkedAccount()}
	transactions := &stubTransactions{}
	r := newTestReconciler(feed, accounts, &stubCategories{}, transactions, &stubAudit{})

	result, err := r.Run(context.Background(), RunRequest{AccountID: "acc-1", BusinessID: "biz", ActorID: "user-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Imported != 1 || result.Skipped != 1 {
		t.Fatalf("record beyond the history window must be skipped: %#v", result)
	}
}
