package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"kestrel/internal/bars"
	"kestrel/internal/broker"
	"kestrel/internal/config"
	"kestrel/internal/domain"
	"kestrel/internal/engine"
	"kestrel/internal/feed"
	"kestrel/internal/httpapi"
	"kestrel/internal/metrics"
	"kestrel/internal/notify"
	"kestrel/internal/rules"
	"kestrel/internal/sched"
	"kestrel/internal/state"
	"kestrel/internal/trader"
	"kestrel/internal/universe"
	"kestrel/internal/util"
)

func main() {
	// Local .env is optional; real deployments set the environment.
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
	util.SetDefault(logger)

	store, err := state.Open(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("failed to open state store: %v", err)
	}
	defer store.Close()

	webhook := notify.NewWebhook(cfg.Notify.WebhookURL, logger)
	recorder := trader.NewRecorder(store, webhook, logger)

	var paper *broker.PaperDelegate
	var delegate broker.Delegate
	switch cfg.Broker.Kind {
	case "paper":
		paper = broker.NewPaperDelegate(cfg.Broker.PaperCash, recorder)
		delegate = paper
	case "alpaca":
		delegate = broker.NewAlpacaDelegate(
			cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.BaseURL,
			recorder, logger)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := delegate.Connect(ctx); err != nil {
		log.Fatalf("failed to connect broker: %v", err)
	}
	defer delegate.Close()

	chain, err := rules.Build(cfg.Seller)
	if err != nil {
		log.Fatalf("failed to build exit chain: %v", err)
	}
	logger.Info("exit chain", "rules", chain.Labels())

	var fetcher bars.Fetcher
	if cfg.Alpaca.APIKey != "" {
		fetcher = bars.NewAlpacaFetcher(
			cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.DataURL,
			cfg.Bars.BatchSize, cfg.Bars.RatePerMinute)
	}
	barSvc := bars.NewService(bars.NewArchive(cfg.Storage.DataDir), fetcher, cfg.Bars.TailLen, logger)

	pool := universe.New(cfg.Universe)
	if err := pool.Reload(); err != nil {
		log.Fatalf("failed to load candidate pool: %v", err)
	}
	router := trader.NewRouter(delegate, cfg.Broker.Premium, cfg.Strategy, logger)
	seller := trader.NewSeller(chain, store, barSvc, router, cfg.Bars.TailLen, logger)
	buyer := trader.NewBuyer(cfg.Buyer.BuyerConfig, trader.LowOpenTurnRed{
		MinOpenRatio: cfg.Buyer.Signal.MinOpenRatio,
		MaxOpenRatio: cfg.Buyer.Signal.MaxOpenRatio,
		MaxGainRatio: cfg.Buyer.Signal.MaxGainRatio,
	}, store, router, logger)

	eng := engine.New(delegate, store, state.NewRunner(store, logger), barSvc, pool, seller, buyer, engine.Sessions{
		Morning:   cfg.Session.Morning,
		Afternoon: cfg.Session.Afternoon,
	}, logger)

	var tape *feed.Tape
	if cfg.Feed.TapeDir != "" {
		tape = feed.NewTape(cfg.Feed.TapeDir, logger)
	}

	scheduler := sched.New(0, logger)
	scheduler.Add("prepare", cfg.Session.PrepareAt, func(ctx context.Context) {
		if err := pool.Reload(); err != nil {
			logger.Error("candidate pool reload failed", "error", err)
		}
		eng.Prepare(ctx, time.Now())
	})
	if paper != nil {
		scheduler.Add("settle", cfg.Session.SettleAt, func(context.Context) {
			paper.Settle()
		})
	}
	scheduler.Add("summary", cfg.Session.SettleAt, func(ctx context.Context) {
		asset, err := delegate.Asset(ctx)
		if err != nil {
			logger.Error("post-close asset snapshot failed", "error", err)
			return
		}
		webhook.Send(ctx, "daily summary",
			fmt.Sprintf("cash %.2f, total %.2f", asset.Cash, asset.TotalValue))
	})
	if tape != nil {
		scheduler.Add("tape-flush", cfg.Session.SettleAt, func(context.Context) {
			if err := tape.Flush(time.Now().Format("2006-01-02")); err != nil {
				logger.Error("tape flush failed", "error", err)
			}
		})
	}
	go scheduler.Run(ctx)

	prober := broker.NewProber(delegate, time.Minute, logger)
	go prober.Run(ctx)

	if cfg.Server.Addr != "" {
		api := httpapi.NewServer(delegate, store, cfg.Strategy, logger)
		go func() {
			logger.Info("status api listening", "addr", cfg.Server.Addr)
			if err := http.ListenAndServe(cfg.Server.Addr, api.Handler()); err != nil {
				logger.Error("status api failed", "error", err)
			}
		}()
	}

	if cfg.Metrics.Addr != "" {
		go func() {
			if err := metrics.Serve(cfg.Metrics.Addr); err != nil {
				logger.Error("metrics listener failed", "error", err)
			}
		}()
	}

	handler := func(ctx context.Context, now time.Time, quotes map[string]domain.Quote) {
		if paper != nil {
			for code, q := range quotes {
				if q.Valid() {
					paper.Mark(code, q.LastPrice)
				}
			}
		}
		eng.Cycle(ctx, now, quotes)
	}
	subscriber := feed.NewSubscriber(handler, logger)
	if tape != nil {
		subscriber.AttachTape(tape)
	}
	source := feed.NewWSSource(
		cfg.Feed.URL,
		pool.Codes(),
		time.Duration(cfg.Feed.ReconnectSeconds)*time.Second,
		logger)

	logger.Info("kestrel-trader starting",
		"broker", delegate.Name(),
		"strategy", cfg.Strategy,
		"feed", cfg.Feed.URL)
	webhook.Send(ctx, "trader started",
		fmt.Sprintf("broker %s, strategy %s", delegate.Name(), cfg.Strategy))

	if err := subscriber.Run(ctx, source); err != nil && ctx.Err() == nil {
		log.Fatalf("feed terminated: %v", err)
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	webhook.Send(stopCtx, "trader stopped", "shutdown signal received")
}
