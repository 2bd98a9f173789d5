package credit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteLedger implements Ledger on a local SQLite database.
type SQLiteLedger struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteLedger opens (and if needed initializes) the ledger database.
func NewSQLiteLedger(dbPath string) (*SQLiteLedger, error) {
	// WAL mode and busy timeout for better concurrency
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	ledger := &SQLiteLedger{db: db}
	if err := ledger.init(); err != nil {
		db.Close()
		return nil, err
	}
	return ledger, nil
}

func (l *SQLiteLedger) init() error {
	usersQuery := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		credits INTEGER NOT NULL DEFAULT 0,
		unlimited INTEGER NOT NULL DEFAULT 0,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	if _, err := l.db.Exec(usersQuery); err != nil {
		return fmt.Errorf("failed to create users table: %w", err)
	}

	transactionsQuery := `
	CREATE TABLE IF NOT EXISTS credit_transactions (
		submission_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);
	`
	if _, err := l.db.Exec(transactionsQuery); err != nil {
		return fmt.Errorf("failed to create credit_transactions table: %w", err)
	}

	return nil
}

// CheckAndReserve reports whether the user has credit for a run. Unknown
// users are denied.
func (l *SQLiteLedger) CheckAndReserve(ctx context.Context, userID string) (Decision, error) {
	var credits int64
	var unlimited bool

	err := l.db.QueryRowContext(ctx,
		"SELECT credits, unlimited FROM users WHERE id = ?", userID,
	).Scan(&credits, &unlimited)
	if err == sql.ErrNoRows {
		return Decision{}, nil
	}
	if err != nil {
		return Decision{}, fmt.Errorf("failed to query user credits: %w", err)
	}

	return Decision{
		Allowed:   credits >= 1 || unlimited,
		Unlimited: unlimited,
	}, nil
}

// Debit records the transaction for submissionID and decrements the user's
// balance. Inserting the transaction row is the idempotency guard: a second
// debit for the same submission returns ErrAlreadyDebited without touching
// the balance. Unlimited-plan users get a transaction row but no decrement.
func (l *SQLiteLedger) Debit(ctx context.Context, userID, submissionID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin debit transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"INSERT INTO credit_transactions (submission_id, user_id, created_at) VALUES (?, ?, ?)",
		submissionID, userID, time.Now().UTC(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrAlreadyDebited
		}
		return fmt.Errorf("failed to record transaction: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE users SET credits = MAX(credits - 1, 0), updated_at = CURRENT_TIMESTAMP WHERE id = ? AND unlimited = 0",
		userID,
	)
	if err != nil {
		return fmt.Errorf("failed to decrement credits: %w", err)
	}

	return tx.Commit()
}

// Grant tops up a user's balance, creating the user row if needed. Used by
// the payment webhook integration and by tests.
func (l *SQLiteLedger) Grant(ctx context.Context, userID string, credits int64, unlimited bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO users (id, credits, unlimited) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			credits = credits + excluded.credits,
			unlimited = MAX(unlimited, excluded.unlimited),
			updated_at = CURRENT_TIMESTAMP`,
		userID, credits, unlimited,
	)
	if err != nil {
		return fmt.Errorf("failed to grant credits: %w", err)
	}
	return nil
}

// Balance returns the user's current credit balance.
func (l *SQLiteLedger) Balance(ctx context.Context, userID string) (int64, error) {
	var credits int64
	err := l.db.QueryRowContext(ctx, "SELECT credits FROM users WHERE id = ?", userID).Scan(&credits)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to query balance: %w", err)
	}
	return credits, nil
}

// TransactionCount returns the number of debit transactions recorded for a
// submission id. It is at most one.
func (l *SQLiteLedger) TransactionCount(ctx context.Context, submissionID string) (int, error) {
	var n int
	err := l.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM credit_transactions WHERE submission_id = ?", submissionID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return n, nil
}

func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}
