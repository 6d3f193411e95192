package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/predictify/engine/internal/domain"
)

// LedgerStore implements domain.AssetLedger on PostgreSQL. Transfers run
// as a single transaction debiting one account and crediting the other;
// the balance CHECK constraint rejects overdrafts, and every movement is
// appended to ledger_entries for audit.
type LedgerStore struct {
	pool *pgxpool.Pool
}

// NewLedgerStore creates a new LedgerStore backed by the given pool.
func NewLedgerStore(pool *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

var _ domain.AssetLedger = (*LedgerStore)(nil)

// Balance returns an account's balance. Unknown accounts hold zero.
func (s *LedgerStore) Balance(ctx context.Context, account string) (int64, error) {
	var balance int64
	err := s.pool.QueryRow(ctx,
		"SELECT balance FROM ledger_accounts WHERE account = $1", account,
	).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("postgres: balance of %s: %w", account, err)
	}
	return balance, nil
}

// Deposit credits an account outside a transfer, used to seed balances
// from external funding events.
func (s *LedgerStore) Deposit(ctx context.Context, account string, amount int64) error {
	if amount <= 0 {
		return domain.ErrInvalidInput
	}
	const query = `
		INSERT INTO ledger_accounts (account, balance) VALUES ($1, $2)
		ON CONFLICT (account) DO UPDATE SET balance = ledger_accounts.balance + EXCLUDED.balance`
	if _, err := s.pool.Exec(ctx, query, account, amount); err != nil {
		return fmt.Errorf("postgres: deposit to %s: %w", account, err)
	}
	return nil
}

// Transfer moves amount between accounts atomically. Accounts are locked
// in a fixed order to avoid deadlocks between concurrent transfers.
func (s *LedgerStore) Transfer(ctx context.Context, from, to string, amount int64) error {
	if amount <= 0 {
		return domain.ErrInvalidInput
	}
	if from == to {
		return domain.ErrInvalidInput
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("postgres: begin transfer: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	first, second := from, to
	if second < first {
		first, second = second, first
	}
	for _, account := range []string{first, second} {
		if _, err := tx.Exec(ctx,
			`INSERT INTO ledger_accounts (account, balance) VALUES ($1, 0)
			 ON CONFLICT (account) DO NOTHING`, account); err != nil {
			return fmt.Errorf("postgres: ensure account %s: %w", account, err)
		}
		if _, err := tx.Exec(ctx,
			"SELECT balance FROM ledger_accounts WHERE account = $1 FOR UPDATE", account); err != nil {
			return fmt.Errorf("postgres: lock account %s: %w", account, err)
		}
	}

	tag, err := tx.Exec(ctx,
		`UPDATE ledger_accounts SET balance = balance - $2
		 WHERE account = $1 AND balance >= $2`, from, amount)
	if err != nil {
		return fmt.Errorf("postgres: debit %s: %w", from, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: %s cannot cover %d: %w", from, amount, domain.ErrTransferFailed)
	}
	if _, err := tx.Exec(ctx,
		"UPDATE ledger_accounts SET balance = balance + $2 WHERE account = $1", to, amount); err != nil {
		return fmt.Errorf("postgres: credit %s: %w", to, err)
	}
	if _, err := tx.Exec(ctx,
		"INSERT INTO ledger_entries (from_account, to_account, amount) VALUES ($1, $2, $3)",
		from, to, amount); err != nil {
		return fmt.Errorf("postgres: record transfer: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit transfer: %w", err)
	}
	return nil
}
