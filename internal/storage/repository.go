package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"budget/internal/core"
	"budget/internal/ledger"
)

// Sync states of a transaction row with respect to the external export.
const (
	SyncPending = "pending"
	SyncSynced  = "synced"
	SyncError   = "error"
)

var _ ledger.Store = (*SQLiteRepository)(nil)

type SQLiteRepository struct {
	db *sql.DB
}

// DSN builds the connection string used for both the pool and migrations.
func DSN(dbPath string) string {
	return dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", DSN(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows a single writer; one connection keeps writes serialised
	// and pragmas applied.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(DSN(dbPath)); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return core.Unavailable("ping", err)
	}
	return nil
}

// Insert implements ledger.TransactionWriter
func (r *SQLiteRepository) Insert(ctx context.Context, ownerID string, in core.NewTransaction) (core.Transaction, error) {
	now := time.Now().UTC().Truncate(time.Millisecond)
	in = in.Normalize(now)
	if err := in.Validate(ownerID); err != nil {
		return core.Transaction{}, err
	}

	t := core.Transaction{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Kind:        in.Kind,
		Amount:      in.Amount,
		Category:    in.Category,
		Description: in.Description,
		OccurredAt:  in.OccurredAt.Truncate(time.Millisecond),
		CreatedAt:   now,
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO transactions (id, owner_id, kind, amount_cents, category, description, occurred_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.OwnerID, string(t.Kind), t.Amount.Cents, t.Category, t.Description,
		t.OccurredAt.UnixMilli(), t.CreatedAt.UnixMilli(),
	)
	if err != nil {
		if isConstraint(err, "FOREIGN KEY") {
			return core.Transaction{}, core.NewValidationError("owner", "unknown owner")
		}
		return core.Transaction{}, core.Unavailable("insert transaction", err)
	}

	slog.DebugContext(ctx, "Transaction saved to SQLite",
		"id", t.ID,
		"kind", t.Kind,
		"amount_cents", t.Amount.Cents,
		"category", t.Category)

	return t, nil
}

const transactionColumns = `id, owner_id, kind, amount_cents, category, description, occurred_at, created_at`

// ListByOwner implements ledger.TransactionLister
func (r *SQLiteRepository) ListByOwner(ctx context.Context, ownerID string) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE owner_id = ?
		 ORDER BY occurred_at DESC, rowid DESC`,
		ownerID,
	)
	if err != nil {
		return nil, core.Unavailable("list transactions", err)
	}
	defer rows.Close()

	out := make([]core.Transaction, 0)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, core.Unavailable("scan transaction", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, core.Unavailable("list transactions", err)
	}
	return out, nil
}

// DeleteByIDForOwner implements ledger.TransactionDeleter. The owner is part
// of the WHERE clause so a foreign id can never match.
func (r *SQLiteRepository) DeleteByIDForOwner(ctx context.Context, id, ownerID string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM transactions WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return false, core.Unavailable("delete transaction", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, core.Unavailable("delete transaction", err)
	}
	return n > 0, nil
}

// GetTransaction retrieves a single transaction by id, for the export worker.
func (r *SQLiteRepository) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, core.ErrNotFound
	}
	if err != nil {
		return core.Transaction{}, core.Unavailable("get transaction", err)
	}
	return t, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(s scanner) (core.Transaction, error) {
	var (
		t                     core.Transaction
		kind                  string
		occurredAt, createdAt int64
	)
	if err := s.Scan(&t.ID, &t.OwnerID, &kind, &t.Amount.Cents, &t.Category, &t.Description, &occurredAt, &createdAt); err != nil {
		return core.Transaction{}, err
	}
	t.Kind = core.Kind(kind)
	t.OccurredAt = time.UnixMilli(occurredAt).UTC()
	t.CreatedAt = time.UnixMilli(createdAt).UTC()
	return t, nil
}

// PendingSyncTransaction is the minimal data needed to re-publish an export.
type PendingSyncTransaction struct {
	ID        string
	OwnerID   string
	CreatedAt time.Time
}

// GetPendingSyncTransactions returns rows not yet mirrored to the external ledger, oldest first.
func (r *SQLiteRepository) GetPendingSyncTransactions(ctx context.Context, limit int) ([]PendingSyncTransaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, owner_id, created_at FROM transactions
		 WHERE sync_status = ?
		 ORDER BY created_at ASC
		 LIMIT ?`, SyncPending, limit)
	if err != nil {
		return nil, core.Unavailable("get pending sync transactions", err)
	}
	defer rows.Close()

	var out []PendingSyncTransaction
	for rows.Next() {
		var p PendingSyncTransaction
		var createdAt int64
		if err := rows.Scan(&p.ID, &p.OwnerID, &createdAt); err != nil {
			return nil, core.Unavailable("scan pending sync transaction", err)
		}
		p.CreatedAt = time.UnixMilli(createdAt).UTC()
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, core.Unavailable("get pending sync transactions", err)
	}
	return out, nil
}

// MarkSynced marks a transaction as successfully exported
func (r *SQLiteRepository) MarkSynced(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET sync_status = ?, synced_at = ? WHERE id = ?`,
		SyncSynced, time.Now().UTC().UnixMilli(), id)
	if err != nil {
		return core.Unavailable("mark transaction synced", err)
	}
	slog.DebugContext(ctx, "Transaction marked as synced", "id", id)
	return nil
}

// MarkSyncError marks a transaction whose export failed
func (r *SQLiteRepository) MarkSyncError(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET sync_status = ? WHERE id = ?`, SyncError, id)
	if err != nil {
		return core.Unavailable("mark transaction sync error", err)
	}
	slog.WarnContext(ctx, "Transaction marked with sync error", "id", id)
	return nil
}

// RetrySyncErrors moves failed exports back to pending and returns how many moved.
func (r *SQLiteRepository) RetrySyncErrors(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET sync_status = ? WHERE sync_status = ?`, SyncPending, SyncError)
	if err != nil {
		return 0, core.Unavailable("retry sync errors", err)
	}
	return res.RowsAffected()
}

func (r *SQLiteRepository) CreateUser(ctx context.Context, u core.User) (core.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	u.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, name, email, password_hash, created_at) VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.Name, u.Email, u.PasswordHash, u.CreatedAt.UnixMilli())
	if err != nil {
		if isConstraint(err, "UNIQUE") {
			return core.User{}, core.ErrDuplicateEmail
		}
		return core.User{}, core.Unavailable("create user", err)
	}
	return u, nil
}

func (r *SQLiteRepository) GetUserByEmail(ctx context.Context, email string) (core.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, name, email, password_hash, created_at FROM users WHERE email = ?`,
		strings.ToLower(strings.TrimSpace(email)))
	return scanUser(row, "get user by email")
}

func (r *SQLiteRepository) GetUserByID(ctx context.Context, id string) (core.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, name, email, password_hash, created_at FROM users WHERE id = ?`, id)
	return scanUser(row, "get user by id")
}

func scanUser(row *sql.Row, op string) (core.User, error) {
	var u core.User
	var createdAt int64
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, core.ErrNotFound
	}
	if err != nil {
		return core.User{}, core.Unavailable(op, err)
	}
	u.CreatedAt = time.UnixMilli(createdAt).UTC()
	return u, nil
}

// UserCount returns the number of registered users.
func (r *SQLiteRepository) UserCount(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return 0, core.Unavailable("count users", err)
	}
	return count, nil
}

func (r *SQLiteRepository) CreateSession(ctx context.Context, s core.Session) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (token, user_id, expires_at, last_activity) VALUES (?, ?, ?, ?)`,
		s.Token, s.UserID, s.ExpiresAt.UnixMilli(), s.LastActivity.UnixMilli())
	if err != nil {
		return core.Unavailable("create session", err)
	}
	return nil
}

func (r *SQLiteRepository) GetSession(ctx context.Context, token string, now time.Time) (core.Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT s.token, s.user_id, s.expires_at, s.last_activity
		FROM sessions s
		JOIN users u ON s.user_id = u.id
		WHERE s.token = ? AND s.expires_at > ?`, token, now.UnixMilli())

	var s core.Session
	var expiresAt, lastActivity int64
	err := row.Scan(&s.Token, &s.UserID, &expiresAt, &lastActivity)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Session{}, core.ErrNotFound
	}
	if err != nil {
		return core.Session{}, core.Unavailable("get session", err)
	}
	s.ExpiresAt = time.UnixMilli(expiresAt).UTC()
	s.LastActivity = time.UnixMilli(lastActivity).UTC()
	return s, nil
}

func (r *SQLiteRepository) RenewSession(ctx context.Context, token string, lastActivity, expiresAt time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET last_activity = ?, expires_at = ? WHERE token = ?`,
		lastActivity.UnixMilli(), expiresAt.UnixMilli(), token)
	if err != nil {
		return core.Unavailable("renew session", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) DeleteSession(ctx context.Context, token string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = ?`, token); err != nil {
		return core.Unavailable("delete session", err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, now.UnixMilli())
	if err != nil {
		return 0, core.Unavailable("delete expired sessions", err)
	}
	return res.RowsAffected()
}

// isConstraint reports whether err is a SQLite constraint violation whose
// message mentions kind ("UNIQUE", "FOREIGN KEY").
func isConstraint(err error, kind string) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(se.Error(), kind)
}
