package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/avierra/claim-sync/internal/claims"
)

// ErrDuplicateEvent is returned when an event id was already recorded for the
// contract. Callers treat it as a benign skip; it indicates two cycles raced
// on the same event, not data corruption.
var ErrDuplicateEvent = errors.New("event already recorded")

// ProcessedEvent is one row of the append-only idempotency ledger.
type ProcessedEvent struct {
	EventID        string
	ContractID     string
	TxHash         string
	LedgerSequence uint32
	EventType      string
	EventData      string
	ClaimID        string
	ProcessedAt    time.Time
}

// Store wraps SQLite-backed persistence for processed events and claims.
type Store struct {
	db *sql.DB
}

// Open initializes a SQLite database and runs minimal schema setup.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := configure(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("store not initialized")
	}
	return s.db.PingContext(ctx)
}

func configure(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	pragmas := []string{
		"PRAGMA foreign_keys = ON;",
		"PRAGMA journal_mode = WAL;",
		"PRAGMA busy_timeout = 5000;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("set pragma %q: %w", p, err)
		}
	}
	return nil
}

func migrate(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	schema := `
CREATE TABLE IF NOT EXISTS processed_events (
  event_id        TEXT NOT NULL,
  contract_id     TEXT NOT NULL,
  tx_hash         TEXT NOT NULL,
  ledger_sequence INTEGER NOT NULL,
  event_type      TEXT NOT NULL,
  event_data      TEXT,
  claim_id        TEXT,
  processed_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
  PRIMARY KEY (contract_id, event_id)
);

CREATE INDEX IF NOT EXISTS idx_processed_events_recency
  ON processed_events (contract_id, processed_at DESC);

CREATE TABLE IF NOT EXISTS claims (
  id                 TEXT PRIMARY KEY,
  status             TEXT NOT NULL,
  blockchain_tx_hash TEXT,
  notes              TEXT,
  updated_at         TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// HasProcessed reports whether the event was already ingested for the contract.
func (s *Store) HasProcessed(ctx context.Context, contractID, eventID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `
SELECT 1 FROM processed_events WHERE contract_id = ? AND event_id = ?;
`, contractID, eventID).Scan(&one)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	default:
		return false, fmt.Errorf("check processed: %w", err)
	}
}

// RecordEvent appends a processed-event row; the primary key enforces
// at-most-once insertion per (contract_id, event_id).
func (s *Store) RecordEvent(ctx context.Context, ev ProcessedEvent) error {
	if ev.EventID == "" || ev.ContractID == "" {
		return errors.New("event_id and contract_id required")
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO processed_events (event_id, contract_id, tx_hash, ledger_sequence, event_type, event_data, claim_id, processed_at)
VALUES (?, ?, ?, ?, ?, ?, ?, COALESCE(?, CURRENT_TIMESTAMP));
`, ev.EventID, ev.ContractID, ev.TxHash, ev.LedgerSequence, ev.EventType, nullString(ev.EventData), nullString(ev.ClaimID), nullTime(ev.ProcessedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("event %s for contract %s: %w", ev.EventID, ev.ContractID, ErrDuplicateEvent)
		}
		return fmt.Errorf("record event: %w", err)
	}
	return nil
}

// LastCursor returns the event id of the most recently processed event for
// the contract. ok is false when no event was ever recorded, in which case
// ingestion starts from the latest upstream position.
func (s *Store) LastCursor(ctx context.Context, contractID string) (string, bool, error) {
	var eventID string
	err := s.db.QueryRowContext(ctx, `
SELECT event_id FROM processed_events
WHERE contract_id = ?
ORDER BY processed_at DESC, rowid DESC
LIMIT 1;
`, contractID).Scan(&eventID)
	switch {
	case err == nil:
		return eventID, true, nil
	case errors.Is(err, sql.ErrNoRows):
		return "", false, nil
	default:
		return "", false, fmt.Errorf("last cursor: %w", err)
	}
}

// CountEvents returns the number of processed events for the contract.
func (s *Store) CountEvents(ctx context.Context, contractID string) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM processed_events WHERE contract_id = ?;
`, contractID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

// RecentEvents returns the most recently processed events for the contract,
// newest first.
func (s *Store) RecentEvents(ctx context.Context, contractID string, limit int) ([]ProcessedEvent, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT event_id, contract_id, tx_hash, ledger_sequence, event_type,
       COALESCE(event_data, ''), COALESCE(claim_id, ''), processed_at
FROM processed_events
WHERE contract_id = ?
ORDER BY processed_at DESC, rowid DESC
LIMIT ?;
`, contractID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent events: %w", err)
	}
	defer rows.Close()

	var out []ProcessedEvent
	for rows.Next() {
		var ev ProcessedEvent
		if err := rows.Scan(&ev.EventID, &ev.ContractID, &ev.TxHash, &ev.LedgerSequence, &ev.EventType, &ev.EventData, &ev.ClaimID, &ev.ProcessedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// GetClaim retrieves a claim by id.
func (s *Store) GetClaim(ctx context.Context, id string) (claims.Claim, bool, error) {
	var c claims.Claim
	var status string
	err := s.db.QueryRowContext(ctx, `
SELECT id, status, COALESCE(blockchain_tx_hash, ''), COALESCE(notes, ''), updated_at
FROM claims WHERE id = ?;
`, id).Scan(&c.ID, &status, &c.BlockchainTxHash, &c.Notes, &c.UpdatedAt)
	switch {
	case err == nil:
		c.Status = claims.Status(status)
		return c, true, nil
	case errors.Is(err, sql.ErrNoRows):
		return claims.Claim{}, false, nil
	default:
		return claims.Claim{}, false, fmt.Errorf("get claim: %w", err)
	}
}

// SaveClaim inserts or updates a claim.
func (s *Store) SaveClaim(ctx context.Context, c claims.Claim) error {
	if c.ID == "" {
		return errors.New("claim id required")
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO claims (id, status, blockchain_tx_hash, notes, updated_at)
VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(id) DO UPDATE SET
  status=excluded.status,
  blockchain_tx_hash=excluded.blockchain_tx_hash,
  notes=excluded.notes,
  updated_at=CURRENT_TIMESTAMP;
`, c.ID, string(c.Status), nullString(c.BlockchainTxHash), nullString(c.Notes))
	if err != nil {
		return fmt.Errorf("save claim: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}
