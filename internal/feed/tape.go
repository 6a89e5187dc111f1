package feed

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"kestrel/internal/domain"
	"kestrel/internal/market"
)

// TapePoint is one intraday observation of a code: merge time, last
// price, and cumulative session volume.
type TapePoint struct {
	Time   string  `json:"time"`
	Price  float64 `json:"price"`
	Volume int64   `json:"volume"`
}

// Tape keeps an in-memory intraday record of every merged quote and
// flushes it to disk after the close. It exists for offline inspection
// of what the engine actually saw; nothing on the trading path reads it.
type Tape struct {
	mu      sync.Mutex
	dir     string
	entries map[string][]TapePoint
	log     *slog.Logger
}

// NewTape creates a tape writing under dir, one file per code per day.
func NewTape(dir string, log *slog.Logger) *Tape {
	return &Tape{
		dir:     dir,
		entries: make(map[string][]TapePoint),
		log:     log,
	}
}

// Record appends one observation for the quote's code.
func (t *Tape) Record(now time.Time, q domain.Quote) {
	if q.Code == "" {
		return
	}
	t.mu.Lock()
	t.entries[q.Code] = append(t.entries[q.Code], TapePoint{
		Time:   now.Format("15:04:05"),
		Price:  q.LastPrice,
		Volume: q.Volume,
	})
	t.mu.Unlock()
}

// Flush writes the day's tape to <dir>/<date>/<symbol>.json and clears
// the in-memory record. Failures are logged per code; a partial flush
// still clears everything so the next session starts empty.
func (t *Tape) Flush(date string) error {
	t.mu.Lock()
	entries := t.entries
	t.entries = make(map[string][]TapePoint)
	t.mu.Unlock()

	if len(entries) == 0 {
		return nil
	}
	dayDir := filepath.Join(t.dir, date)
	if err := os.MkdirAll(dayDir, 0o755); err != nil {
		return fmt.Errorf("creating tape dir: %w", err)
	}
	for code, points := range entries {
		data, err := json.Marshal(points)
		if err != nil {
			t.log.Error("encoding tape", "code", code, "error", err)
			continue
		}
		path := filepath.Join(dayDir, market.Symbol(code)+".json")
		if err := os.WriteFile(path, data, 0o644); err != nil {
			t.log.Error("writing tape", "code", code, "error", err)
		}
	}
	t.log.Info("tape flushed", "date", date, "codes", len(entries))
	return nil
}
