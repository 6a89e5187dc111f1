package feed

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"kestrel/internal/domain"
	"kestrel/internal/util"
)

func TestTapeRecordAndFlush(t *testing.T) {
	dir := t.TempDir()
	tape := NewTape(dir, util.NewLogger("error", "text"))

	tape.Record(at(0), domain.Quote{Code: "000001.SZ", LastPrice: 10.50, Volume: 1200})
	tape.Record(at(1), domain.Quote{Code: "000001.SZ", LastPrice: 10.60, Volume: 1300})
	tape.Record(at(1), domain.Quote{}) // code-less warm-up packet, dropped

	if err := tape.Flush("2026-09-01"); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "2026-09-01", "000001.json"))
	if err != nil {
		t.Fatalf("reading tape file: %v", err)
	}
	var points []TapePoint
	if err := json.Unmarshal(data, &points); err != nil {
		t.Fatalf("decoding tape: %v", err)
	}
	if len(points) != 2 || points[1].Price != 10.60 || points[1].Volume != 1300 {
		t.Errorf("points = %v, want two observations ending at 10.60", points)
	}
	if points[0].Time != "10:00:00" {
		t.Errorf("first observation time = %q, want 10:00:00", points[0].Time)
	}
}

func TestTapeFlushClearsRecord(t *testing.T) {
	dir := t.TempDir()
	tape := NewTape(dir, util.NewLogger("error", "text"))

	tape.Record(at(0), domain.Quote{Code: "000001.SZ", LastPrice: 10.50, Volume: 1200})
	if err := tape.Flush("2026-09-01"); err != nil {
		t.Fatalf("first Flush: %v", err)
	}
	if err := tape.Flush("2026-09-02"); err != nil {
		t.Fatalf("second Flush: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "2026-09-02")); !os.IsNotExist(err) {
		t.Errorf("empty flush wrote a day directory, stat err = %v", err)
	}
}
