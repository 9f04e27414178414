package ledger

import "errors"

var (
	// ErrInvalidBalance rejects malformed monetary input before any side
	// effects.
	ErrInvalidBalance = errors.New("invalid balance value")

	// ErrAccountingSetup means the business's chart of accounts lacks a
	// category the posting engine requires. Not retryable; the chart must
	// be fixed first.
	ErrAccountingSetup = errors.New("chart of accounts is missing a required category")

	// ErrDuplicatePosting means the account already has an opening balance
	// posting. Callers treat it as a soft no-change outcome.
	ErrDuplicatePosting = errors.New("opening balance already posted")

	// ErrInvariantViolation means computed journal lines do not balance.
	// It is a logic defect signal; nothing is persisted when it fires.
	ErrInvariantViolation = errors.New("journal lines do not balance")

	// ErrAccountAccess means the account does not belong to the business.
	ErrAccountAccess = errors.New("account does not belong to business")

	// ErrBandExhausted means a type's code band has no codes left.
	ErrBandExhausted = errors.New("account code band exhausted")
)
