package domain

import "time"

// CreditBalance holds an owner's spendable amount. The amount never goes
// negative; the store enforces this with a CHECK constraint and the ledger
// only ever decrements conditionally.
type CreditBalance struct {
	UserID    string
	Amount    int
	UpdatedAt time.Time
}

// TransactionKind enumerates ledger entry categories.
type TransactionKind string

const (
	TransactionCharge TransactionKind = "charge"
	TransactionRefund TransactionKind = "refund"
	TransactionGrant  TransactionKind = "grant"
)

// CreditTransaction is an append-only ledger entry. Every charge and refund
// produces one; refunds additionally reference the originating job.
type CreditTransaction struct {
	ID          string
	UserID      string
	Amount      int
	Kind        TransactionKind
	JobID       string
	Description string
	CreatedAt   time.Time
}
