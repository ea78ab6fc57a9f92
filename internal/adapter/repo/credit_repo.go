package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"mediagen/internal/domain"
	"mediagen/internal/infra"
)

// CreditLedgerPG implements domain.CreditLedger on PostgreSQL. Every mutation
// is a single statement (balance update and transaction insert in one CTE),
// so concurrent charges against the same owner serialize on the row without a
// read-modify-write window.
type CreditLedgerPG struct {
	db infra.SQLExecutor
}

// NewCreditLedger creates a ledger backed by PostgreSQL.
func NewCreditLedger(db infra.SQLExecutor) *CreditLedgerPG {
	return &CreditLedgerPG{db: db}
}

// Balance returns the owner's current amount.
func (l *CreditLedgerPG) Balance(ctx context.Context, userID string) (int, error) {
	var amount int
	row := l.db.QueryRow(ctx, "SELECT amount FROM credits WHERE user_id = $1", userID)
	if err := row.Scan(&amount); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrNotFound
		}
		return 0, err
	}
	return amount, nil
}

// Charge atomically debits amount and records the ledger entry. The WHERE
// guard keeps the balance non-negative: zero rows updated means insufficient
// funds and nothing is written.
func (l *CreditLedgerPG) Charge(ctx context.Context, userID string, amount int, description string) (int, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("%w: charge amount must be positive", domain.ErrValidation)
	}
	query := `
WITH debit AS (
    UPDATE credits
    SET amount = amount - $2, updated_at = now()
    WHERE user_id = $1 AND amount >= $2
    RETURNING amount
), entry AS (
    INSERT INTO credit_transactions (id, user_id, amount, kind, description)
    SELECT $3, $1, -$2, $4, $5 FROM debit
)
SELECT amount FROM debit`
	var newBalance int
	row := l.db.QueryRow(ctx, query, userID, amount, uuid.NewString(), string(domain.TransactionCharge), description)
	if err := row.Scan(&newBalance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrInsufficientFunds
		}
		return 0, fmt.Errorf("charge credits: %w", err)
	}
	return newBalance, nil
}

// Refund credits the amount back, referencing the originating job. The job's
// refunded flag is the exactly-once gate: it flips in the same statement, so
// a second refund attempt for the same job updates zero rows regardless of
// which process issues it.
func (l *CreditLedgerPG) Refund(ctx context.Context, userID, jobID string, amount int, reason string) error {
	if amount <= 0 {
		return nil
	}
	query := `
WITH gate AS (
    UPDATE jobs
    SET refunded = TRUE, updated_at = now()
    WHERE id = $2 AND refunded = FALSE
    RETURNING user_id
), credit AS (
    UPDATE credits
    SET amount = amount + $3, updated_at = now()
    WHERE user_id = $1 AND EXISTS (SELECT 1 FROM gate)
    RETURNING amount
), entry AS (
    INSERT INTO credit_transactions (id, user_id, amount, kind, job_id, description)
    SELECT $4, $1, $3, $5, $2, $6 FROM credit
)
SELECT amount FROM credit`
	var newBalance int
	row := l.db.QueryRow(ctx, query, userID, jobID, amount, uuid.NewString(), string(domain.TransactionRefund), reason)
	if err := row.Scan(&newBalance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrAlreadyRefunded
		}
		return fmt.Errorf("refund credits: %w", err)
	}
	return nil
}

// Grant tops up an owner's balance outside the job lifecycle.
func (l *CreditLedgerPG) Grant(ctx context.Context, userID string, amount int, description string) error {
	if amount <= 0 {
		return fmt.Errorf("%w: grant amount must be positive", domain.ErrValidation)
	}
	query := `
WITH credit AS (
    UPDATE credits
    SET amount = amount + $2, updated_at = now()
    WHERE user_id = $1
    RETURNING amount
), entry AS (
    INSERT INTO credit_transactions (id, user_id, amount, kind, description)
    SELECT $3, $1, $2, $4, $5 FROM credit
)
SELECT amount FROM credit`
	var newBalance int
	row := l.db.QueryRow(ctx, query, userID, amount, uuid.NewString(), string(domain.TransactionGrant), description)
	if err := row.Scan(&newBalance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("grant credits: %w", err)
	}
	return nil
}

var _ domain.CreditLedger = (*CreditLedgerPG)(nil)

// OwnerProvisionerPG creates the owner rows (user plus zero balance) that job
// inserts foreign-key against. Both inserts are idempotent.
type OwnerProvisionerPG struct {
	db infra.SQLExecutor
}

func NewOwnerProvisioner(db infra.SQLExecutor) *OwnerProvisionerPG {
	return &OwnerProvisionerPG{db: db}
}

func (p *OwnerProvisionerPG) EnsureOwner(ctx context.Context, userID string) error {
	if _, err := p.db.Exec(ctx,
		"INSERT INTO users (id) VALUES ($1) ON CONFLICT (id) DO NOTHING", userID); err != nil {
		return fmt.Errorf("ensure user: %w", err)
	}
	if _, err := p.db.Exec(ctx,
		"INSERT INTO credits (user_id, amount) VALUES ($1, 0) ON CONFLICT (user_id) DO NOTHING", userID); err != nil {
		return fmt.Errorf("ensure credits row: %w", err)
	}
	return nil
}

var _ domain.OwnerProvisioner = (*OwnerProvisionerPG)(nil)
