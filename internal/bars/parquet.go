// Package bars maintains the daily history used by indicator-driven
// exit rules: a Parquet archive on disk, a remote fetcher to top it up,
// and an in-memory tail served to the evaluation cycle.
package bars

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/parquet-go/parquet-go"

	"kestrel/internal/domain"
	"kestrel/internal/market"
)

// Archive stores daily bars as Parquet files on disk, one file per
// code and year.
type Archive struct {
	DataDir string
}

// NewArchive creates an archive rooted at the given data directory.
func NewArchive(dataDir string) *Archive {
	return &Archive{DataDir: dataDir}
}

// barRecord is the Parquet on-disk schema for one daily bar.
type barRecord struct {
	Code      string  `parquet:"code"`
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    int64   `parquet:"volume"`
	Amount    float64 `parquet:"amount"`
}

// WriteBars merges bars into the archive, grouped by code and year.
// Incoming rows win over stored rows with the same timestamp.
func (a *Archive) WriteBars(bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	type key struct {
		code string
		year int
	}
	groups := make(map[key][]barRecord)
	for _, b := range bars {
		k := key{code: b.Code, year: b.Timestamp.Year()}
		groups[k] = append(groups[k], barRecord{
			Code:      b.Code,
			Timestamp: b.Timestamp.UnixMilli(),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
			Amount:    b.Amount,
		})
	}

	for k, records := range groups {
		path := a.barPath(k.code, k.year)
		existing, _ := readParquetFile[barRecord](path)
		merged := mergeRecords(existing, records)
		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing bars for %s/%d: %w", k.code, k.year, err)
		}
	}
	return nil
}

// ReadBars returns the archived bars for code inside [start, end],
// sorted by timestamp. Missing year files are not an error.
func (a *Archive) ReadBars(code string, start, end time.Time) ([]domain.Bar, error) {
	var bars []domain.Bar
	for year := start.Year(); year <= end.Year(); year++ {
		records, err := readParquetFile[barRecord](a.barPath(code, year))
		if err != nil {
			continue
		}
		for _, r := range records {
			ts := time.UnixMilli(r.Timestamp)
			if ts.Before(start) || ts.After(end) {
				continue
			}
			bars = append(bars, domain.Bar{
				Code:      r.Code,
				Timestamp: ts,
				Open:      r.Open,
				High:      r.High,
				Low:       r.Low,
				Close:     r.Close,
				Volume:    r.Volume,
				Amount:    r.Amount,
			})
		}
	}
	sort.Slice(bars, func(i, j int) bool {
		return bars[i].Timestamp.Before(bars[j].Timestamp)
	})
	return bars, nil
}

// LatestTimestamp returns the newest archived bar time for code, or a
// zero time when nothing is stored.
func (a *Archive) LatestTimestamp(code string) time.Time {
	dir := filepath.Join(a.DataDir, "daily", market.Symbol(code))
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) == 0 {
		return time.Time{}
	}
	// Year files sort lexicographically; the last one holds the tail.
	last := entries[len(entries)-1].Name()
	records, err := readParquetFile[barRecord](filepath.Join(dir, last))
	if err != nil || len(records) == 0 {
		return time.Time{}
	}
	newest := records[0].Timestamp
	for _, r := range records[1:] {
		if r.Timestamp > newest {
			newest = r.Timestamp
		}
	}
	return time.UnixMilli(newest)
}

// barPath layout: <dataDir>/daily/<SYMBOL>/<YYYY>.parquet
func (a *Archive) barPath(code string, year int) string {
	return filepath.Join(a.DataDir, "daily", market.Symbol(code), fmt.Sprintf("%d.parquet", year))
}

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	return parquet.ReadFile[T](path)
}

// mergeRecords deduplicates by (code, timestamp), incoming rows
// winning, sorted by timestamp.
func mergeRecords(existing, incoming []barRecord) []barRecord {
	type key struct {
		code string
		ts   int64
	}
	seen := make(map[key]barRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[key{r.Code, r.Timestamp}] = r
	}
	for _, r := range incoming {
		seen[key{r.Code, r.Timestamp}] = r
	}
	merged := make([]barRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	return merged
}
