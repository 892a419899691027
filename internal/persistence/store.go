// Package persistence provides the durable sqlite-backed store for
// everything that must survive a restart: C3's learned Q-table, the mutable
// Strategy it tunes, the last-100 trade ledger, and C4's alert list.
// Ephemeral ML results live in internal/mlcache instead — the two stores are
// kept deliberately separate, one durable, one TTL'd (§6.6).
package persistence

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"go.uber.org/zap"

	"github.com/atlas-desktop/nova-trader/pkg/types"
)

const maxRetainedTrades = 100

// Store is the mutex-guarded sqlite handle every persisted concern shares.
type Store struct {
	mu     sync.Mutex
	logger *zap.Logger
	db     *sql.DB
}

// Open creates (or attaches to) the sqlite database at path and ensures the
// schema exists.
func Open(logger *zap.Logger, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1) // sqlite serializes writers; avoid SQLITE_BUSY storms

	s := &Store{logger: logger, db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS kv_blobs (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS trades (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			token_address TEXT NOT NULL,
			kind TEXT NOT NULL,
			amount TEXT NOT NULL,
			price TEXT NOT NULL,
			pnl TEXT,
			outcome TEXT,
			close_reason TEXT,
			signature TEXT,
			timestamp TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id TEXT PRIMARY KEY,
			payload TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the underlying sqlite handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveBlob persists an arbitrary JSON-serializable value under key. Used for
// C3's Q-table snapshot and the tuned Strategy.
func (s *Store) SaveBlob(key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", key, err)
	}

	_, err = s.db.Exec(
		`INSERT INTO kv_blobs (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, string(data), time.Now(),
	)
	if err != nil {
		return fmt.Errorf("saving %s: %w", key, err)
	}
	return nil
}

// LoadBlob decodes the JSON value stored under key into dest. Returns
// sql.ErrNoRows if the key has never been saved — callers fall back to a
// freshly-constructed default in that case.
func (s *Store) LoadBlob(key string, dest any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var raw string
	err := s.db.QueryRow(`SELECT value FROM kv_blobs WHERE key = ?`, key).Scan(&raw)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return fmt.Errorf("decoding %s: %w", key, err)
	}
	return nil
}

// AppendTrade records a closed trade and trims the ledger back to the most
// recent maxRetainedTrades rows.
func (s *Store) AppendTrade(t *types.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pnl, outcome sql.NullString
	if t.PnL != nil {
		pnl = sql.NullString{String: t.PnL.String(), Valid: true}
	}
	if t.Outcome != "" {
		outcome = sql.NullString{String: string(t.Outcome), Valid: true}
	}

	_, err := s.db.Exec(
		`INSERT INTO trades (token_address, kind, amount, price, pnl, outcome, close_reason, signature, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.TokenAddress, string(t.Kind), t.Amount.String(), t.Price.String(), pnl, outcome, t.CloseReason, t.Signature, t.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("appending trade: %w", err)
	}

	_, err = s.db.Exec(`
		DELETE FROM trades WHERE id NOT IN (
			SELECT id FROM trades ORDER BY id DESC LIMIT ?
		)`, maxRetainedTrades)
	if err != nil {
		s.logger.Warn("trimming trade ledger failed", zap.Error(err))
	}
	return nil
}

// RecentTrades returns up to maxRetainedTrades trades, oldest first.
func (s *Store) RecentTrades() ([]*types.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT token_address, kind, amount, price, pnl, outcome, close_reason, signature, timestamp
		FROM trades ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying trades: %w", err)
	}
	defer rows.Close()

	var out []*types.Trade
	for rows.Next() {
		var (
			tokenAddr, kind, amount, price, signature, closeReason string
			pnl, outcome                                           sql.NullString
			ts                                                     time.Time
		)
		if err := rows.Scan(&tokenAddr, &kind, &amount, &price, &pnl, &outcome, &closeReason, &signature, &ts); err != nil {
			return nil, fmt.Errorf("scanning trade row: %w", err)
		}
		trade := &types.Trade{
			TokenAddress: tokenAddr,
			Kind:         types.OrderSide(kind),
			Timestamp:    ts,
			Signature:    signature,
			CloseReason:  closeReason,
		}
		trade.Amount = decimal.RequireFromString(amount)
		trade.Price = decimal.RequireFromString(price)
		if pnl.Valid {
			v := decimal.RequireFromString(pnl.String)
			trade.PnL = &v
		}
		if outcome.Valid {
			trade.Outcome = types.TradeOutcome(outcome.String)
		}
		out = append(out, trade)
	}
	return out, rows.Err()
}

// SaveAlert upserts an alert's full JSON payload.
func (s *Store) SaveAlert(a *types.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshaling alert %s: %w", a.ID, err)
	}
	_, err = s.db.Exec(
		`INSERT INTO alerts (id, payload, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		a.ID, string(data), time.Now(),
	)
	return err
}

// DeleteAlert removes an alert by ID.
func (s *Store) DeleteAlert(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`DELETE FROM alerts WHERE id = ?`, id)
	return err
}

// LoadAlerts returns every persisted alert.
func (s *Store) LoadAlerts() ([]*types.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT payload FROM alerts`)
	if err != nil {
		return nil, fmt.Errorf("querying alerts: %w", err)
	}
	defer rows.Close()

	var out []*types.Alert
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scanning alert row: %w", err)
		}
		var a types.Alert
		if err := json.Unmarshal([]byte(raw), &a); err != nil {
			return nil, fmt.Errorf("decoding alert: %w", err)
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}
