package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"kestrel/internal/bars"
	"kestrel/internal/broker"
	"kestrel/internal/domain"
	"kestrel/internal/market"
	"kestrel/internal/rules"
	"kestrel/internal/state"
	"kestrel/internal/trader"
	"kestrel/internal/universe"
	"kestrel/internal/util"
)

var testSessions = Sessions{
	Morning:   market.TimeRange{Begin: "09:30", End: "11:30"},
	Afternoon: market.TimeRange{Begin: "13:00", End: "15:00"},
}

type fixture struct {
	store  *state.Store
	paper  *broker.PaperDelegate
	pool   *universe.Pool
	engine *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := util.NewLogger("error", "text")

	store, err := state.Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	recorder := trader.NewRecorder(store, nil, log)
	paper := broker.NewPaperDelegate(100_000, recorder)
	t.Cleanup(func() { paper.Close() })

	chain := rules.NewChain(&rules.HardStop{HardStopConfig: rules.HardStopConfig{
		RiskLimit: 0.97, EarnLimit: 1.25,
	}})
	router := trader.NewRouter(paper, 0.05, "kestrel", log)
	barSvc := bars.NewService(bars.NewArchive(t.TempDir()), nil, 60, log)
	seller := trader.NewSeller(chain, store, barSvc, router, 60, log)
	buyer := trader.NewBuyer(trader.BuyerConfig{
		Slots:      10,
		SlotCash:   10_000,
		CycleLimit: 2,
		MinPrice:   2,
	}, trader.LowOpenTurnRed{MinOpenRatio: 0.92, MaxOpenRatio: 0.99}, store, router, log)

	pool := universe.New(universe.Config{})
	runner := state.NewRunner(store, log)

	return &fixture{
		store:  store,
		paper:  paper,
		pool:   pool,
		engine: New(paper, store, runner, barSvc, pool, seller, buyer, testSessions, log),
	}
}

func waitHeld(t *testing.T, store *state.Store, check func(map[string]int) bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		held, err := store.HeldDays()
		if err != nil {
			t.Fatal(err)
		}
		if check(held) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	held, _ := store.HeldDays()
	t.Fatalf("state never converged; held = %v", held)
}

func sessionClock(clock string) time.Time {
	ts, _ := time.Parse("2006-01-02 15:04", "2026-09-01 "+clock)
	return ts
}

func TestCycleSellsAndBuys(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// One position held since yesterday, now trading through its stop.
	f.paper.Seed("000001.SZ", 10.00, 500)
	f.paper.Mark("000001.SZ", 9.50)
	if err := f.store.NewHeld([]string{"000001.SZ"}); err != nil {
		t.Fatal(err)
	}
	if err := f.store.IncrementAllHeld(); err != nil {
		t.Fatal(err)
	}
	f.pool.Refresh([]string{"000002.SZ"})
	f.paper.Mark("000002.SZ", 10.20)

	quotes := map[string]domain.Quote{
		"000001.SZ": {Code: "000001.SZ", LastPrice: 9.50, Open: 9.80, High: 9.90, Low: 9.45, LastClose: 10.00},
		// Low open, recovered above the previous close: entry candidate.
		"000002.SZ": {Code: "000002.SZ", LastPrice: 10.20, Open: 9.70, High: 10.25, Low: 9.65, LastClose: 10.00},
	}
	f.engine.Cycle(ctx, sessionClock("10:00"), quotes)

	waitHeld(t, f.store, func(held map[string]int) bool {
		_, sold := held["000001.SZ"]
		days, bought := held["000002.SZ"]
		return !sold && bought && days == 0
	})

	positions, err := f.paper.Positions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(positions) != 1 || positions[0].Code != "000002.SZ" {
		t.Fatalf("positions after cycle = %v, want only 000002.SZ", positions)
	}
	if positions[0].Volume != 900 {
		t.Errorf("entry volume = %d, want 900 whole-lot shares", positions[0].Volume)
	}
}

func TestCycleInactiveOutsideSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.pool.Refresh([]string{"000002.SZ"})
	quotes := map[string]domain.Quote{
		"000002.SZ": {Code: "000002.SZ", LastPrice: 10.20, Open: 9.70, High: 10.25, Low: 9.65, LastClose: 10.00},
	}

	for _, clock := range []string{"09:00", "12:00", "15:30"} {
		f.engine.Cycle(ctx, sessionClock(clock), quotes)
	}
	// In-session clock on a Saturday: still inactive.
	saturday, _ := time.Parse("2006-01-02 15:04", "2026-09-05 10:00")
	f.engine.Cycle(ctx, saturday, quotes)
	time.Sleep(50 * time.Millisecond)

	positions, err := f.paper.Positions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(positions) != 0 {
		t.Errorf("positions after off-session cycles = %v, want none", positions)
	}
}

func TestPrepareReconcilesAndAges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// The broker book holds one code; the store tracks that one plus a
	// stale one from a fill missed during downtime.
	f.paper.Seed("000001.SZ", 10.00, 500)
	if err := f.store.NewHeld([]string{"000001.SZ", "000009.SZ"}); err != nil {
		t.Fatal(err)
	}

	day := time.Date(2026, 9, 1, 9, 5, 0, 0, time.UTC)
	f.engine.Prepare(ctx, day)

	held, err := f.store.HeldDays()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := held["000009.SZ"]; ok {
		t.Errorf("stale counter survived reconcile: %v", held)
	}
	if held["000001.SZ"] != 1 {
		t.Errorf("held after aging = %v, want day 1", held)
	}

	// Preparing the same day again must not age the counters twice.
	f.engine.Prepare(ctx, day)
	held, _ = f.store.HeldDays()
	if held["000001.SZ"] != 1 {
		t.Errorf("held after repeated prepare = %v, want still day 1", held)
	}
}
