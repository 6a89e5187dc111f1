// Package feedsim serves a synthetic quote stream over websocket, for
// paper trading and local development against the real feed protocol.
package feedsim

import (
	"context"
	"log/slog"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"kestrel/internal/domain"
	"kestrel/internal/market"
)

// Walker generates a bounded random walk of quotes for one code,
// clamped inside the day's price-limit band around the previous close.
type Walker struct {
	code      string
	prevClose float64
	open      float64
	last      float64
	high      float64
	low       float64
	volume    int64
	amount    float64
	rng       *rand.Rand
}

// NewWalker creates a walker starting from the given previous close,
// opening with a random gap of up to ±3%.
func NewWalker(code string, prevClose float64, rng *rand.Rand) *Walker {
	w := &Walker{code: code, prevClose: prevClose, rng: rng}
	w.open = w.clamp(prevClose * (1 + (rng.Float64()-0.5)*0.06))
	w.last = w.open
	w.high = w.open
	w.low = w.open
	return w
}

// Next advances the walk by one tick and returns the resulting quote.
func (w *Walker) Next(now time.Time) domain.Quote {
	w.last = w.clamp(w.last * (1 + (w.rng.Float64()-0.5)*0.004))
	if w.last > w.high {
		w.high = w.last
	}
	if w.last < w.low {
		w.low = w.last
	}
	lots := int64(w.rng.Intn(50) + 1)
	w.volume += lots
	w.amount += float64(lots*market.LotSize) * w.last

	return domain.Quote{
		Code:      w.code,
		LastPrice: w.last,
		Open:      w.open,
		High:      w.high,
		Low:       w.low,
		LastClose: w.prevClose,
		Volume:    w.volume,
		Amount:    w.amount,
		Timestamp: now,
	}
}

func (w *Walker) clamp(price float64) float64 {
	up := market.LimitUpPrice(w.code, w.prevClose)
	down := market.LimitDownPrice(w.code, w.prevClose)
	if price > up {
		return up
	}
	if price < down {
		return down
	}
	return price
}

// Hub fans generated quotes out to connected websocket clients. Clients
// that cannot keep up are dropped rather than allowed to stall the
// broadcast.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]bool
	log     *slog.Logger
}

type client struct {
	conn *websocket.Conn
	send chan domain.Quote
}

// NewHub creates an empty hub.
func NewHub(log *slog.Logger) *Hub {
	return &Hub{clients: make(map[*client]bool), log: log}
}

// Broadcast queues a quote for every connected client.
func (h *Hub) Broadcast(quote domain.Quote) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- quote:
		default:
			delete(h.clients, c)
			close(c.send)
			h.log.Warn("dropping slow feed client")
		}
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// ServeHTTP upgrades the connection and streams quotes until the client
// disconnects. The initial subscribe message is read and discarded: the
// simulator streams its whole universe regardless.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	c := &client{conn: conn, send: make(chan domain.Quote, 256)}

	h.mu.Lock()
	h.clients[c] = true
	n := len(h.clients)
	h.mu.Unlock()
	h.log.Info("feed client connected", "clients", n)

	go h.writePump(c)
	// Drain (and ignore) client messages; a read error ends the session.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.drop(c)
}

func (h *Hub) writePump(c *client) {
	for quote := range c.send {
		if err := c.conn.WriteJSON(quote); err != nil {
			h.drop(c)
			return
		}
	}
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	if h.clients[c] {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	c.conn.Close()
}

// Simulator drives walkers for a code universe and broadcasts their
// ticks through a hub.
type Simulator struct {
	hub      *Hub
	walkers  []*Walker
	interval time.Duration
	log      *slog.Logger
}

// NewSimulator creates walkers for each code, seeding previous closes
// pseudo-randomly in a retail price range.
func NewSimulator(hub *Hub, codes []string, interval time.Duration, seed int64, log *slog.Logger) *Simulator {
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	rng := rand.New(rand.NewSource(seed))
	walkers := make([]*Walker, 0, len(codes))
	for _, code := range codes {
		prevClose := 3 + rng.Float64()*47
		walkers = append(walkers, NewWalker(code, prevClose, rng))
	}
	return &Simulator{hub: hub, walkers: walkers, interval: interval, log: log}
}

// Run ticks a random walker each interval until ctx is cancelled.
func (s *Simulator) Run(ctx context.Context) {
	if len(s.walkers) == 0 {
		<-ctx.Done()
		return
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			w := s.walkers[rng.Intn(len(s.walkers))]
			s.hub.Broadcast(w.Next(now))
		}
	}
}
