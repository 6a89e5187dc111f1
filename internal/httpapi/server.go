// Package httpapi serves a read-only status API over the running
// trader: account, positions, and the persisted holding state.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"kestrel/internal/broker"
	"kestrel/internal/state"
)

// Server exposes the trader's state for dashboards and operators. It
// never mutates anything: every broker call is a read, every store
// call is a query.
type Server struct {
	delegate broker.Delegate
	store    *state.Store
	strategy string
	started  time.Time
	log      *slog.Logger
}

// NewServer creates a status server over the delegate and store.
func NewServer(delegate broker.Delegate, store *state.Store, strategy string, log *slog.Logger) *Server {
	return &Server{
		delegate: delegate,
		store:    store,
		strategy: strategy,
		started:  time.Now(),
		log:      log,
	}
}

// RegisterRoutes registers all API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/positions", s.handlePositions)
	mux.HandleFunc("GET /api/held", s.handleHeld)
}

// Handler returns an http.Handler with CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusResponse struct {
	Strategy  string  `json:"strategy"`
	Broker    string  `json:"broker"`
	UptimeSec int64   `json:"uptimeSec"`
	Cash      float64 `json:"cash"`
	Total     float64 `json:"total"`
	Positions int     `json:"positions"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	asset, err := s.delegate.Asset(ctx)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	positions, err := s.delegate.Positions(ctx)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, statusResponse{
		Strategy:  s.strategy,
		Broker:    s.delegate.Name(),
		UptimeSec: int64(time.Since(s.started).Seconds()),
		Cash:      asset.Cash,
		Total:     asset.TotalValue,
		Positions: len(positions),
	})
}

type positionResponse struct {
	Code      string  `json:"code"`
	OpenPrice float64 `json:"openPrice"`
	Volume    int64   `json:"volume"`
	Usable    int64   `json:"usable"`
	HeldDays  int     `json:"heldDays"`
	MaxPrice  float64 `json:"maxPrice,omitempty"`
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	positions, err := s.delegate.Positions(ctx)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	held, err := s.store.HeldDays()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	maxPrices, err := s.store.MaxPrices()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]positionResponse, 0, len(positions))
	for _, p := range positions {
		out = append(out, positionResponse{
			Code:      p.Code,
			OpenPrice: p.OpenPrice,
			Volume:    p.Volume,
			Usable:    p.UsableVolume,
			HeldDays:  held[p.Code],
			MaxPrice:  maxPrices[p.Code],
		})
	}
	writeJSON(w, out)
}

func (s *Server) handleHeld(w http.ResponseWriter, _ *http.Request) {
	held, err := s.store.HeldDays()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, held)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
