package bars

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"kestrel/internal/domain"
)

// Service owns the in-memory bar tails the evaluation cycle reads. It
// is filled once pre-open by Prepare and read concurrently afterwards;
// Tail never touches disk or network.
type Service struct {
	archive *Archive
	fetcher Fetcher
	tailLen int
	log     *slog.Logger

	mu    sync.RWMutex
	tails map[string][]domain.Bar
}

// NewService creates a bar service. fetcher may be nil, in which case
// Prepare serves from the archive alone. tailLen is the history depth
// kept per code.
func NewService(archive *Archive, fetcher Fetcher, tailLen int, log *slog.Logger) *Service {
	if tailLen <= 0 {
		tailLen = 60
	}
	return &Service{
		archive: archive,
		fetcher: fetcher,
		tailLen: tailLen,
		log:     log,
		tails:   make(map[string][]domain.Bar),
	}
}

// Prepare loads the tail for every code as of the session date: it
// tops the archive up from the fetcher, then caches the last tailLen
// bars strictly before the session date in memory. A fetch failure
// degrades to whatever the archive holds.
func (s *Service) Prepare(ctx context.Context, codes []string, sessionDate time.Time) error {
	start := sessionDate.AddDate(0, 0, -s.tailLen*2)
	end := sessionDate.AddDate(0, 0, -1)

	if s.fetcher != nil {
		fetched, err := s.fetcher.Fetch(ctx, codes, start, end)
		if err != nil {
			s.log.Warn("bar fetch failed, serving archived history", "error", err)
		} else if err := s.archive.WriteBars(fetched); err != nil {
			s.log.Error("archiving fetched bars", "error", err)
		}
	}

	tails := make(map[string][]domain.Bar, len(codes))
	for _, code := range codes {
		rows, err := s.archive.ReadBars(code, start, end)
		if err != nil {
			s.log.Warn("reading archived bars", "code", code, "error", err)
			continue
		}
		if len(rows) > s.tailLen {
			rows = rows[len(rows)-s.tailLen:]
		}
		if len(rows) > 0 {
			tails[code] = rows
		}
	}

	s.mu.Lock()
	s.tails = tails
	s.mu.Unlock()
	s.log.Info("bar tails prepared", "codes", len(codes), "cached", len(tails))
	return nil
}

// Tail returns up to n archived bars for code, oldest first. The
// returned slice must not be modified.
func (s *Service) Tail(code string, n int) []domain.Bar {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.tails[code]
	if n > 0 && len(rows) > n {
		rows = rows[len(rows)-n:]
	}
	return rows
}
