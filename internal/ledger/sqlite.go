package ledger

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists the ledger in a SQLite database file. The daemon is
// the only writer; WAL mode plus a busy timeout covers concurrent readers
// and the occasional checkpoint.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at path and runs
// the migrations.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger db: %w", err)
	}

	for _, pragma := range []string{
		`PRAGMA journal_mode = WAL`,
		`PRAGMA busy_timeout = 5000`,
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %s: %w", pragma, err)
		}
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate ledger db: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS wallets (
			user_id      TEXT PRIMARY KEY,
			balances     TEXT NOT NULL,
			total_earned INTEGER NOT NULL,
			total_spent  INTEGER NOT NULL,
			updated_at   TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS audit_records (
			record_id       TEXT PRIMARY KEY,
			user_id         TEXT NOT NULL,
			interaction_id  TEXT NOT NULL,
			direction       TEXT NOT NULL,
			amount          INTEGER NOT NULL,
			destination     TEXT NOT NULL,
			universal_drawn INTEGER NOT NULL,
			balance_after   INTEGER NOT NULL,
			created_at      TEXT NOT NULL,
			UNIQUE (user_id, interaction_id, direction)
		)`,
		`CREATE TABLE IF NOT EXISTS preferences (
			user_id       TEXT PRIMARY KEY,
			preferred_org TEXT NOT NULL
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) Wallet(userID string) (Wallet, error) {
	row := s.db.QueryRow(
		`SELECT balances, total_earned, total_spent FROM wallets WHERE user_id = ?`, userID)

	var (
		balancesJSON string
		earned       int64
		spent        int64
	)
	if err := row.Scan(&balancesJSON, &earned, &spent); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Wallet{}, ErrWalletNotFound
		}
		return Wallet{}, fmt.Errorf("scan wallet: %w", err)
	}

	balances := make(map[string]int64)
	if err := json.Unmarshal([]byte(balancesJSON), &balances); err != nil {
		return Wallet{}, fmt.Errorf("decode balances for %s: %w", userID, err)
	}
	return Wallet{UserID: userID, Balances: balances, TotalEarned: earned, TotalSpent: spent}, nil
}

func (s *SQLiteStore) FindRecord(userID, interactionID string, direction Direction) (Record, error) {
	row := s.db.QueryRow(
		`SELECT record_id, amount, destination, universal_drawn, balance_after, created_at
		 FROM audit_records
		 WHERE user_id = ? AND interaction_id = ? AND direction = ?`,
		userID, interactionID, string(direction))

	rec := Record{UserID: userID, InteractionID: interactionID, Direction: direction}
	var createdAt string
	err := row.Scan(&rec.RecordID, &rec.Amount, &rec.Destination, &rec.UniversalDrawn, &rec.BalanceAfter, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrRecordNotFound
		}
		return Record{}, fmt.Errorf("scan record: %w", err)
	}
	rec.CreatedAt = parseTime(createdAt)
	return rec, nil
}

func (s *SQLiteStore) HasInteraction(userID, interactionID string) (bool, error) {
	row := s.db.QueryRow(
		`SELECT COUNT(1) FROM audit_records WHERE user_id = ? AND interaction_id = ?`,
		userID, interactionID)

	var count int
	if err := row.Scan(&count); err != nil {
		return false, fmt.Errorf("count interaction: %w", err)
	}
	return count > 0, nil
}

func (s *SQLiteStore) Commit(w Wallet, rec Record) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("%w: begin: %v", ErrStorageConflict, err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(
		`INSERT INTO audit_records
		 (record_id, user_id, interaction_id, direction, amount, destination, universal_drawn, balance_after, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RecordID, rec.UserID, rec.InteractionID, string(rec.Direction),
		rec.Amount, rec.Destination, rec.UniversalDrawn, rec.BalanceAfter,
		rec.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicateRecord
		}
		return fmt.Errorf("%w: insert record: %v", ErrStorageConflict, err)
	}

	balancesJSON, err := json.Marshal(w.Balances)
	if err != nil {
		return fmt.Errorf("encode balances for %s: %w", w.UserID, err)
	}
	_, err = tx.Exec(
		`INSERT INTO wallets (user_id, balances, total_earned, total_spent, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET
			balances = excluded.balances,
			total_earned = excluded.total_earned,
			total_spent = excluded.total_spent,
			updated_at = excluded.updated_at`,
		w.UserID, string(balancesJSON), w.TotalEarned, w.TotalSpent,
		rec.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("%w: upsert wallet: %v", ErrStorageConflict, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", ErrStorageConflict, err)
	}
	return nil
}

func (s *SQLiteStore) Records(userID string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no bound
	}
	rows, err := s.db.Query(
		`SELECT record_id, interaction_id, direction, amount, destination, universal_drawn, balance_after, created_at
		 FROM audit_records
		 WHERE user_id = ?
		 ORDER BY created_at DESC, record_id DESC
		 LIMIT ?`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Record
	for rows.Next() {
		rec := Record{UserID: userID}
		var direction, createdAt string
		if err := rows.Scan(&rec.RecordID, &rec.InteractionID, &direction, &rec.Amount,
			&rec.Destination, &rec.UniversalDrawn, &rec.BalanceAfter, &createdAt); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec.Direction = Direction(direction)
		rec.CreatedAt = parseTime(createdAt)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SQLiteStore) PreferredOrg(userID string) (string, error) {
	row := s.db.QueryRow(`SELECT preferred_org FROM preferences WHERE user_id = ?`, userID)

	var org string
	if err := row.Scan(&org); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("scan preference: %w", err)
	}
	return org, nil
}

func (s *SQLiteStore) SetPreferredOrg(userID, org string) error {
	if org == "" {
		_, err := s.db.Exec(`DELETE FROM preferences WHERE user_id = ?`, userID)
		return err
	}
	_, err := s.db.Exec(
		`INSERT INTO preferences (user_id, preferred_org) VALUES (?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET preferred_org = excluded.preferred_org`,
		userID, org)
	return err
}

func (s *SQLiteStore) Totals() (Totals, error) {
	row := s.db.QueryRow(
		`SELECT
			COALESCE(SUM(CASE WHEN direction = 'earn' THEN amount ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN direction = 'spend' THEN -amount ELSE 0 END), 0)
		 FROM audit_records`)

	var t Totals
	if err := row.Scan(&t.PointsDistributed, &t.PointsSpent); err != nil {
		return Totals{}, fmt.Errorf("scan totals: %w", err)
	}
	return t, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t
	}
	return time.Time{}
}
