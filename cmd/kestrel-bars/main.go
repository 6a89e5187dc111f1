package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"kestrel/internal/bars"
	"kestrel/internal/config"
	"kestrel/internal/universe"
	"kestrel/internal/util"
)

// Backfills the daily bar archive for the candidate pool, so the first
// live session starts with full indicator history.
func main() {
	days := flag.Int("days", 180, "calendar days of history to backfill")
	flag.Parse()

	_ = godotenv.Load()

	cfgPath := "config/kestrel.yaml"
	if p := os.Getenv("KESTREL_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)

	pool := universe.New(cfg.Universe)
	if err := pool.Reload(); err != nil {
		log.Fatalf("failed to load candidate pool: %v", err)
	}
	codes := pool.Codes()
	if len(codes) == 0 {
		log.Fatal("candidate pool is empty")
	}

	fetcher := bars.NewAlpacaFetcher(
		cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.DataURL,
		cfg.Bars.BatchSize, cfg.Bars.RatePerMinute)
	archive := bars.NewArchive(cfg.Storage.DataDir)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	end := time.Now()
	start := end.AddDate(0, 0, -*days)
	logger.Info("backfill starting",
		"codes", len(codes),
		"start", start.Format("2006-01-02"),
		"end", end.Format("2006-01-02"))

	fetched, err := fetcher.Fetch(ctx, codes, start, end)
	if err != nil {
		log.Fatalf("fetch failed: %v", err)
	}
	if err := archive.WriteBars(fetched); err != nil {
		log.Fatalf("archive write failed: %v", err)
	}
	logger.Info("backfill complete", "bars", len(fetched))
}
