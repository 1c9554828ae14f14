/*
Package sqlite provides a SQLite-backed implementation of the settlement
storage interfaces.

PURPOSE:
  Implements settlement.PolicyStore, settlement.RecordStore, and the TxStore
  transaction wrapper using SQLite. In production the same patterns apply to
  PostgreSQL - only minor SQL dialect differences.

APPEND-ONLY ENFORCEMENT:
  Purchase and claim records are never updated or deleted. Policies receive
  exactly one terminal status write, enforced with a conditional UPDATE
  (WHERE status = 'active') so a second terminal write can never land.

AMOUNT STORAGE:
  Amounts are stored as base-unit decimal strings, never floats, so a round
  trip through the database loses nothing.

CONCURRENCY:
  sync.RWMutex for thread-safety, WAL mode for reader/writer concurrency.
  With PostgreSQL, database-level concurrency control replaces the mutex.

USAGE:
  st, err := sqlite.New("./data/settlement.db")  // or ":memory:"
  defer st.Close()
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/settlement-engine/settlement"
)

// Store implements settlement.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a SQLite store. Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection keeps ":memory:" databases coherent (each SQLite
	// connection would otherwise get its own) and sidesteps writer contention.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	-- Policies: immutable except the single terminal status write
	CREATE TABLE IF NOT EXISTS policies (
		id TEXT PRIMARY KEY,
		holder TEXT NOT NULL,
		premium TEXT NOT NULL,
		purchased_at TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_policies_holder
		ON policies(holder);
	CREATE INDEX IF NOT EXISTS idx_policies_status_purchased
		ON policies(status, purchased_at);

	-- Purchase records (append-only)
	CREATE TABLE IF NOT EXISTS purchase_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		policy_id TEXT NOT NULL,
		holder TEXT NOT NULL,
		gross_amount TEXT NOT NULL,
		fee TEXT NOT NULL,
		net TEXT NOT NULL,
		recorded_at TEXT NOT NULL,
		transaction_ref TEXT NOT NULL UNIQUE
	);

	CREATE INDEX IF NOT EXISTS idx_purchase_records_policy
		ON purchase_records(policy_id);

	-- Claim records (append-only)
	CREATE TABLE IF NOT EXISTS claim_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		policy_id TEXT NOT NULL,
		holder TEXT NOT NULL,
		claim_amount TEXT NOT NULL,
		claim_percent TEXT NOT NULL,
		days_held INTEGER NOT NULL,
		time_bonus TEXT NOT NULL,
		recorded_at TEXT NOT NULL,
		transaction_ref TEXT NOT NULL UNIQUE
	);

	CREATE INDEX IF NOT EXISTS idx_claim_records_policy
		ON claim_records(policy_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// POLICY STORE (settlement.PolicyStore interface)
// =============================================================================

// execer is satisfied by both *sql.DB and *sql.Tx so every helper can run
// either directly or inside a transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) CreatePolicy(ctx context.Context, p settlement.Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createPolicy(ctx, s.db, p)
}

func (s *Store) createPolicy(ctx context.Context, db execer, p settlement.Policy) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO policies (id, holder, premium, purchased_at, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID,
		p.Holder,
		p.Premium.Value.String(),
		p.PurchasedAt.UTC().Format(time.RFC3339Nano),
		p.Status,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to create policy: %w", err)
	}
	return nil
}

func (s *Store) GetPolicy(ctx context.Context, id settlement.PolicyID) (settlement.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		"SELECT id, holder, premium, purchased_at, status FROM policies WHERE id = ?", id)

	p, err := scanPolicy(row)
	if err == sql.ErrNoRows {
		return settlement.Policy{}, settlement.ErrPolicyNotFound
	}
	return p, err
}

func (s *Store) ListPolicies(ctx context.Context) ([]settlement.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return queryPolicies(ctx, s.db, `
		SELECT id, holder, premium, purchased_at, status
		FROM policies ORDER BY purchased_at DESC`)
}

func (s *Store) ListActivePurchasedBefore(ctx context.Context, cutoff time.Time) ([]settlement.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return queryPolicies(ctx, s.db, `
		SELECT id, holder, premium, purchased_at, status
		FROM policies
		WHERE status = 'active' AND purchased_at < ?
		ORDER BY purchased_at ASC`,
		cutoff.UTC().Format(time.RFC3339Nano))
}

// SetPolicyStatus performs the single terminal status write. The conditional
// UPDATE makes a second terminal write impossible at the database level.
func (s *Store) SetPolicyStatus(ctx context.Context, id settlement.PolicyID, status settlement.PolicyStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setPolicyStatus(ctx, s.db, id, status)
}

func (s *Store) setPolicyStatus(ctx context.Context, db execer, id settlement.PolicyID, status settlement.PolicyStatus) error {
	res, err := db.ExecContext(ctx,
		"UPDATE policies SET status = ? WHERE id = ? AND status = 'active'",
		status, id)
	if err != nil {
		return fmt.Errorf("failed to set policy status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		// Zero rows means missing or already terminal; look up which.
		var current settlement.PolicyStatus
		err := db.QueryRowContext(ctx,
			"SELECT status FROM policies WHERE id = ?", id).Scan(&current)
		if err == sql.ErrNoRows {
			return settlement.ErrPolicyNotFound
		}
		if err != nil {
			return err
		}
		return &settlement.PolicyStateError{PolicyID: id, Status: current}
	}
	return nil
}

func queryPolicies(ctx context.Context, db execer, query string, args ...any) ([]settlement.Policy, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query policies: %w", err)
	}
	defer rows.Close()

	var policies []settlement.Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		policies = append(policies, p)
	}
	return policies, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPolicy(row rowScanner) (settlement.Policy, error) {
	var (
		p           settlement.Policy
		premium     string
		purchasedAt string
	)

	err := row.Scan(&p.ID, &p.Holder, &premium, &purchasedAt, &p.Status)
	if err != nil {
		return p, err
	}

	p.Premium = parseAmount(premium)
	p.PurchasedAt, _ = time.Parse(time.RFC3339Nano, purchasedAt)
	return p, nil
}

func parseAmount(s string) settlement.Amount {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return settlement.Amount{}
	}
	return settlement.Amount{Value: d}
}

// =============================================================================
// RECORD STORE (settlement.RecordStore interface)
// =============================================================================

func (s *Store) AppendPurchase(ctx context.Context, rec settlement.PurchaseRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendPurchase(ctx, s.db, rec)
}

func (s *Store) appendPurchase(ctx context.Context, db execer, rec settlement.PurchaseRecord) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO purchase_records
		(policy_id, holder, gross_amount, fee, net, recorded_at, transaction_ref)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.PolicyID,
		rec.Holder,
		rec.GrossAmount.Value.String(),
		rec.Fee.Value.String(),
		rec.Net.Value.String(),
		rec.Timestamp.UTC().Format(time.RFC3339Nano),
		rec.TransactionRef,
	)
	if err != nil {
		return fmt.Errorf("failed to append purchase record: %w", err)
	}
	return nil
}

func (s *Store) AppendClaim(ctx context.Context, rec settlement.ClaimRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendClaim(ctx, s.db, rec)
}

func (s *Store) appendClaim(ctx context.Context, db execer, rec settlement.ClaimRecord) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO claim_records
		(policy_id, holder, claim_amount, claim_percent, days_held, time_bonus, recorded_at, transaction_ref)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.PolicyID,
		rec.Holder,
		rec.ClaimAmount.Value.String(),
		rec.ClaimPercent,
		rec.DaysHeld,
		rec.TimeBonus,
		rec.Timestamp.UTC().Format(time.RFC3339Nano),
		rec.TransactionRef,
	)
	if err != nil {
		return fmt.Errorf("failed to append claim record: %w", err)
	}
	return nil
}

func (s *Store) Purchases(ctx context.Context, id settlement.PolicyID) ([]settlement.PurchaseRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryPurchases(ctx, s.db, id)
}

func queryPurchases(ctx context.Context, db execer, id settlement.PolicyID) ([]settlement.PurchaseRecord, error) {
	query := `
		SELECT policy_id, holder, gross_amount, fee, net, recorded_at, transaction_ref
		FROM purchase_records`
	args := []any{}
	if id != "" {
		query += " WHERE policy_id = ?"
		args = append(args, id)
	}
	query += " ORDER BY id ASC"

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query purchase records: %w", err)
	}
	defer rows.Close()

	var records []settlement.PurchaseRecord
	for rows.Next() {
		var (
			rec        settlement.PurchaseRecord
			gross      string
			fee        string
			net        string
			recordedAt string
		)
		if err := rows.Scan(&rec.PolicyID, &rec.Holder, &gross, &fee, &net, &recordedAt, &rec.TransactionRef); err != nil {
			return nil, err
		}
		rec.GrossAmount = parseAmount(gross)
		rec.Fee = parseAmount(fee)
		rec.Net = parseAmount(net)
		rec.Timestamp, _ = time.Parse(time.RFC3339Nano, recordedAt)
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *Store) Claims(ctx context.Context, id settlement.PolicyID) ([]settlement.ClaimRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryClaims(ctx, s.db, id)
}

func queryClaims(ctx context.Context, db execer, id settlement.PolicyID) ([]settlement.ClaimRecord, error) {
	query := `
		SELECT policy_id, holder, claim_amount, claim_percent, days_held, time_bonus, recorded_at, transaction_ref
		FROM claim_records`
	args := []any{}
	if id != "" {
		query += " WHERE policy_id = ?"
		args = append(args, id)
	}
	query += " ORDER BY id ASC"

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query claim records: %w", err)
	}
	defer rows.Close()

	var records []settlement.ClaimRecord
	for rows.Next() {
		var (
			rec        settlement.ClaimRecord
			amount     string
			recordedAt string
		)
		if err := rows.Scan(&rec.PolicyID, &rec.Holder, &amount, &rec.ClaimPercent, &rec.DaysHeld, &rec.TimeBonus, &recordedAt, &rec.TransactionRef); err != nil {
			return nil, err
		}
		rec.ClaimAmount = parseAmount(amount)
		rec.Timestamp, _ = time.Parse(time.RFC3339Nano, recordedAt)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// =============================================================================
// TRANSACTIONAL STORE (settlement.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(settlement.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx, parent: s}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

type txStore struct {
	tx     *sql.Tx
	parent *Store
}

func (ts *txStore) CreatePolicy(ctx context.Context, p settlement.Policy) error {
	return ts.parent.createPolicy(ctx, ts.tx, p)
}

func (ts *txStore) GetPolicy(ctx context.Context, id settlement.PolicyID) (settlement.Policy, error) {
	row := ts.tx.QueryRowContext(ctx,
		"SELECT id, holder, premium, purchased_at, status FROM policies WHERE id = ?", id)

	p, err := scanPolicy(row)
	if err == sql.ErrNoRows {
		return settlement.Policy{}, settlement.ErrPolicyNotFound
	}
	return p, err
}

func (ts *txStore) ListPolicies(ctx context.Context) ([]settlement.Policy, error) {
	return queryPolicies(ctx, ts.tx, `
		SELECT id, holder, premium, purchased_at, status
		FROM policies ORDER BY purchased_at DESC`)
}

func (ts *txStore) ListActivePurchasedBefore(ctx context.Context, cutoff time.Time) ([]settlement.Policy, error) {
	return queryPolicies(ctx, ts.tx, `
		SELECT id, holder, premium, purchased_at, status
		FROM policies
		WHERE status = 'active' AND purchased_at < ?
		ORDER BY purchased_at ASC`,
		cutoff.UTC().Format(time.RFC3339Nano))
}

func (ts *txStore) SetPolicyStatus(ctx context.Context, id settlement.PolicyID, status settlement.PolicyStatus) error {
	return ts.parent.setPolicyStatus(ctx, ts.tx, id, status)
}

func (ts *txStore) AppendPurchase(ctx context.Context, rec settlement.PurchaseRecord) error {
	return ts.parent.appendPurchase(ctx, ts.tx, rec)
}

func (ts *txStore) AppendClaim(ctx context.Context, rec settlement.ClaimRecord) error {
	return ts.parent.appendClaim(ctx, ts.tx, rec)
}

func (ts *txStore) Purchases(ctx context.Context, id settlement.PolicyID) ([]settlement.PurchaseRecord, error) {
	return queryPurchases(ctx, ts.tx, id)
}

func (ts *txStore) Claims(ctx context.Context, id settlement.PolicyID) ([]settlement.ClaimRecord, error) {
	return queryClaims(ctx, ts.tx, id)
}
