package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"tootsync/pkg/logger"
	"tootsync/pkg/mastodon"
)

// AccountMismatchError is returned when a store already bound to one account
// is asked to sync a different one.
type AccountMismatchError struct {
	Existing  string // "username (id)" of the account in the store
	Requested string // "username (id)" of the account being synced
}

func (e *AccountMismatchError) Error() string {
	return fmt.Sprintf("sync store is bound to account %s but currently running for account %s",
		e.Existing, e.Requested)
}

// Store is a persistent keyed store of statuses for exactly one account,
// plus a single watermark recording the newest synced status id. Writes are
// committed per logical operation, so an interrupted run loses at most the
// in-flight page.
type Store struct {
	db  *sql.DB
	log logger.Logger
}

// Open opens (or creates) a sync store at path.
func Open(path string, log logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.GetLogger()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sync store: %w", err)
	}
	// The store is single-owner; one connection keeps sqlite happy.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, log: log}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) createTables() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS status(id TEXT NOT NULL PRIMARY KEY, status TEXT)`,
		`CREATE TABLE IF NOT EXISTS account(id TEXT NOT NULL PRIMARY KEY, account TEXT)`,
		`CREATE TABLE IF NOT EXISTS newest_status(id TEXT NOT NULL PRIMARY KEY)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create sync store tables: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SetAccount binds the store to an account. A store holds statuses for
// exactly one account; binding a second, different account is a hard error
// naming both.
func (s *Store) SetAccount(account mastodon.Account) error {
	rows, err := s.db.Query(`SELECT id, account FROM account`)
	if err != nil {
		return fmt.Errorf("failed to read account table: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, body string
		if err := rows.Scan(&id, &body); err != nil {
			return fmt.Errorf("failed to scan account row: %w", err)
		}
		if id != account.ID() {
			var existing mastodon.Account
			if err := json.Unmarshal([]byte(body), &existing); err != nil {
				existing = mastodon.Account{}
			}
			return &AccountMismatchError{
				Existing:  fmt.Sprintf("%s (%s)", mastodon.AccountUsername(existing), id),
				Requested: fmt.Sprintf("%s (%s)", mastodon.AccountUsername(account), account.ID()),
			}
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate account rows: %w", err)
	}

	body, err := json.Marshal(account)
	if err != nil {
		return fmt.Errorf("failed to serialize account: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO account(id, account) VALUES(?, ?) ON CONFLICT DO UPDATE SET account=EXCLUDED.account`,
		account.ID(), string(body),
	)
	if err != nil {
		return fmt.Errorf("failed to write account: %w", err)
	}
	return nil
}

// Account returns the account the store is bound to, or nil for an empty
// store.
func (s *Store) Account() (mastodon.Account, error) {
	var body string
	err := s.db.QueryRow(`SELECT account FROM account`).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read account: %w", err)
	}
	var account mastodon.Account
	if err := json.Unmarshal([]byte(body), &account); err != nil {
		return nil, fmt.Errorf("failed to parse stored account: %w", err)
	}
	return account, nil
}

// Watermark returns the newest synced status id, or "" when no incremental
// run has completed a first page yet.
func (s *Store) Watermark() (string, error) {
	var id string
	err := s.db.QueryRow(`SELECT id FROM newest_status`).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read watermark: %w", err)
	}
	return id, nil
}

// SetWatermark replaces the watermark atomically. At most one row ever
// exists.
func (s *Store) SetWatermark(statusID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin watermark update: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM newest_status`); err != nil {
		return fmt.Errorf("failed to clear watermark: %w", err)
	}
	if _, err := tx.Exec(`INSERT INTO newest_status(id) VALUES(?)`, statusID); err != nil {
		return fmt.Errorf("failed to set watermark: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit watermark: %w", err)
	}

	s.log.DebugWithFields("watermark updated", map[string]interface{}{
		"status_id": statusID,
	})
	return nil
}

// AddStatus upserts a status by id. Re-adding a known id overwrites its
// body; page boundaries re-fetch overlapping statuses and that must not
// error.
func (s *Store) AddStatus(status mastodon.Status) error {
	body, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to serialize status: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO status(id, status) VALUES(?, ?) ON CONFLICT DO UPDATE SET status=EXCLUDED.status`,
		status.ID(), string(body),
	)
	if err != nil {
		return fmt.Errorf("failed to write status: %w", err)
	}
	return nil
}

// HasStatus reports whether a status id is already stored.
func (s *Store) HasStatus(statusID string) (bool, error) {
	var id string
	err := s.db.QueryRow(`SELECT id FROM status WHERE id=?`, statusID).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up status: %w", err)
	}
	return true, nil
}

// Status returns a stored status body by id, or nil when absent.
func (s *Store) Status(statusID string) (mastodon.Status, error) {
	var body string
	err := s.db.QueryRow(`SELECT status FROM status WHERE id=?`, statusID).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read status: %w", err)
	}
	var status mastodon.Status
	if err := json.Unmarshal([]byte(body), &status); err != nil {
		return nil, fmt.Errorf("failed to parse stored status: %w", err)
	}
	return status, nil
}

// StatusCount returns the number of stored statuses.
func (s *Store) StatusCount() (int, error) {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM status`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count statuses: %w", err)
	}
	return count, nil
}
