package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"kestrel/internal/feedsim"
	"kestrel/internal/universe"
	"kestrel/internal/util"
)

func main() {
	addr := flag.String("addr", ":9000", "listen address")
	codesFlag := flag.String("codes", "000001.SZ,000002.SZ,600000.SH", "comma-separated codes to simulate")
	file := flag.String("file", "", "candidate file, one code per line (overrides -codes)")
	interval := flag.Duration("interval", 200*time.Millisecond, "tick interval")
	seed := flag.Int64("seed", 1, "price walk seed")
	flag.Parse()

	logger := util.NewLogger("info", "text")

	codes := strings.Split(*codesFlag, ",")
	if *file != "" {
		pool := universe.New(universe.Config{File: *file})
		if err := pool.Reload(); err != nil {
			log.Fatalf("loading codes: %v", err)
		}
		codes = pool.Codes()
	}

	hub := feedsim.NewHub(logger)
	sim := feedsim.NewSimulator(hub, codes, *interval, *seed, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	go sim.Run(ctx)

	mux := http.NewServeMux()
	mux.Handle("/quotes", hub)
	srv := &http.Server{Addr: *addr, Handler: mux}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	logger.Info("feed simulator listening", "addr", *addr, "codes", len(codes))
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("serve: %v", err)
	}
}
