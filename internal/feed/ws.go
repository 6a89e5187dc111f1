package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"kestrel/internal/domain"
)

// Compile-time interface check.
var _ Source = (*WSSource)(nil)

// WSSource streams quotes from a websocket endpoint pushing one JSON
// quote per message. It reconnects with a fixed backoff after any read
// or dial failure and resubscribes on every fresh connection.
type WSSource struct {
	url     string
	codes   []string
	backoff time.Duration
	log     *slog.Logger
}

// subscribeMsg is the subscription request sent on connect.
type subscribeMsg struct {
	Action string   `json:"action"`
	Codes  []string `json:"codes"`
}

// NewWSSource creates a source for the endpoint and code list. A zero
// backoff defaults to five seconds.
func NewWSSource(url string, codes []string, backoff time.Duration, log *slog.Logger) *WSSource {
	if backoff <= 0 {
		backoff = 5 * time.Second
	}
	return &WSSource{url: url, codes: codes, backoff: backoff, log: log}
}

// Run dials, subscribes, and pumps messages until ctx is cancelled.
func (s *WSSource) Run(ctx context.Context, push func(domain.Quote)) error {
	for {
		if err := s.session(ctx, push); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.log.Warn("feed connection lost", "url", s.url, "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.backoff):
		}
	}
}

func (s *WSSource) session(ctx context.Context, push func(domain.Quote)) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.WriteJSON(subscribeMsg{Action: "subscribe", Codes: s.codes}); err != nil {
		return err
	}
	s.log.Info("feed connected", "url", s.url, "codes", len(s.codes))

	// Unblock the read loop when ctx is cancelled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var quote domain.Quote
		if err := json.Unmarshal(payload, &quote); err != nil {
			s.log.Warn("malformed quote message", "error", err)
			continue
		}
		push(quote)
	}
}
