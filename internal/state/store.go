// Package state persists the position bookkeeping the strategy owns:
// holding-duration counters, high-water prices, per-day selection
// history, and daily-job markers. All of it lives in one embedded
// SQLite database; a missing database is created empty on open, so a
// lost file degrades to "no state" rather than an error.
package state

import (
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Store is the durable key-value state shared by the tick path, the
// daily scheduler, and the broker fill callback. Every mutation takes
// the store mutex so read-modify-write sequences from different threads
// cannot interleave.
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS held_days (
	code TEXT PRIMARY KEY,
	days INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS max_prices (
	code  TEXT PRIMARY KEY,
	price REAL NOT NULL
);
CREATE TABLE IF NOT EXISTS selections (
	day  TEXT NOT NULL,
	code TEXT NOT NULL,
	PRIMARY KEY (day, code)
);
CREATE TABLE IF NOT EXISTS job_runs (
	job TEXT PRIMARY KEY,
	day TEXT NOT NULL
);
`

// Open opens (or creates) the state database at dbPath.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating state schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// ---------------------------------------------------------------------------
// Held days
// ---------------------------------------------------------------------------

// HeldDays returns a snapshot of all holding-duration counters.
func (s *Store) HeldDays() (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT code, days FROM held_days`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	held := make(map[string]int)
	for rows.Next() {
		var code string
		var days int
		if err := rows.Scan(&code, &days); err != nil {
			return nil, err
		}
		held[code] = days
	}
	return held, rows.Err()
}

// NewHeld records codes as held since today (day counter 0). An existing
// counter is reset: a re-entry restarts the clock.
func (s *Store) NewHeld(codes []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, code := range codes {
		if _, err := s.db.Exec(
			`INSERT INTO held_days (code, days) VALUES (?, 0)
			 ON CONFLICT(code) DO UPDATE SET days = 0`, code); err != nil {
			return err
		}
	}
	return nil
}

// IncrementAllHeld advances every holding counter by one day in a single
// statement.
func (s *Store) IncrementAllHeld() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`UPDATE held_days SET days = days + 1`)
	return err
}

// ClosePosition removes the bookkeeping for a fully closed code: both
// the holding counter and the high-water mark.
func (s *Store) ClosePosition(code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM held_days WHERE code = ?`, code); err != nil {
		return err
	}
	_, err := s.db.Exec(`DELETE FROM max_prices WHERE code = ?`, code)
	return err
}

// SyncHeld reconciles the counters against the broker's live position
// codes: positions with no counter get one at 0, counters with no
// position are dropped. Run pre-open so a fill missed during downtime
// does not leave the store inconsistent.
func (s *Store) SyncHeld(positionCodes []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	live := make(map[string]bool, len(positionCodes))
	for _, code := range positionCodes {
		live[code] = true
		if _, err := s.db.Exec(
			`INSERT OR IGNORE INTO held_days (code, days) VALUES (?, 0)`, code); err != nil {
			return err
		}
	}

	rows, err := s.db.Query(`SELECT code FROM held_days`)
	if err != nil {
		return err
	}
	var stale []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			rows.Close()
			return err
		}
		if !live[code] {
			stale = append(stale, code)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, code := range stale {
		if _, err := s.db.Exec(`DELETE FROM held_days WHERE code = ?`, code); err != nil {
			return err
		}
		if _, err := s.db.Exec(`DELETE FROM max_prices WHERE code = ?`, code); err != nil {
			return err
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// High-water prices
// ---------------------------------------------------------------------------

// MaxPrices returns a snapshot of all high-water marks.
func (s *Store) MaxPrices() (map[string]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT code, price FROM max_prices`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	prices := make(map[string]float64)
	for rows.Next() {
		var code string
		var price float64
		if err := rows.Scan(&code, &price); err != nil {
			return nil, err
		}
		prices[code] = price
	}
	return prices, rows.Err()
}

// RaiseMaxPrice advances the high-water mark for code, monotonically:
// a price below the recorded mark leaves it unchanged.
func (s *Store) RaiseMaxPrice(code string, price float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO max_prices (code, price) VALUES (?, ?)
		 ON CONFLICT(code) DO UPDATE SET price = MAX(price, excluded.price)`,
		code, price)
	return err
}

// ---------------------------------------------------------------------------
// Selection history
// ---------------------------------------------------------------------------

// MarkSelected records that code was proposed for purchase on day.
// Idempotent: re-marking is a no-op.
func (s *Store) MarkSelected(day, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO selections (day, code) VALUES (?, ?)`, day, code)
	return err
}

// Selected returns the set of codes already proposed on day.
func (s *Store) Selected(day string) (map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT code FROM selections WHERE day = ?`, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	selected := make(map[string]bool)
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		selected[code] = true
	}
	return selected, rows.Err()
}
