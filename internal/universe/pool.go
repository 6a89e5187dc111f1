// Package universe maintains the candidate pool the entry signal scans:
// a filtered, bounded list of instrument codes refreshed before each
// session.
package universe

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"kestrel/internal/market"
)

// Config filters candidates into the pool. Codes and File supply the
// raw candidate list (File holds one code per line, refreshed on every
// Reload). Prefixes whitelists symbol prefixes (empty means any),
// Exclude blacklists exact codes, and MaxSize bounds the pool (zero
// means unbounded).
type Config struct {
	Codes    []string `yaml:"codes"`
	File     string   `yaml:"file"`
	Prefixes []string `yaml:"prefixes"`
	Exclude  []string `yaml:"exclude"`
	MaxSize  int      `yaml:"max_size"`
}

// Pool is the live candidate list. Refresh replaces it wholesale;
// readers get stable copies.
type Pool struct {
	mu      sync.RWMutex
	cfg     Config
	exclude map[string]bool
	codes   []string
}

// New creates an empty pool with the given filter.
func New(cfg Config) *Pool {
	exclude := make(map[string]bool, len(cfg.Exclude))
	for _, code := range cfg.Exclude {
		exclude[code] = true
	}
	return &Pool{cfg: cfg, exclude: exclude}
}

// Reload rebuilds the pool from the configured sources: the static
// code list, then the candidate file when one is set.
func (p *Pool) Reload() error {
	codes := append([]string(nil), p.cfg.Codes...)
	if p.cfg.File != "" {
		data, err := os.ReadFile(p.cfg.File)
		if err != nil {
			return fmt.Errorf("reading candidate file: %w", err)
		}
		for _, line := range strings.Split(string(data), "\n") {
			if code := strings.TrimSpace(line); code != "" {
				codes = append(codes, code)
			}
		}
	}
	p.Refresh(codes)
	return nil
}

// Refresh replaces the pool with the admissible subset of codes,
// preserving input order. Codes on an unknown exchange, outside the
// prefix whitelist, or on the exclude list are dropped.
func (p *Pool) Refresh(codes []string) {
	admitted := make([]string, 0, len(codes))
	seen := make(map[string]bool, len(codes))
	for _, code := range codes {
		if seen[code] {
			continue
		}
		seen[code] = true
		if p.exclude[code] {
			continue
		}
		if market.CodeExchange(code) == market.ExchangeUnknown {
			continue
		}
		if !p.prefixAllowed(code) {
			continue
		}
		admitted = append(admitted, code)
		if p.cfg.MaxSize > 0 && len(admitted) >= p.cfg.MaxSize {
			break
		}
	}

	p.mu.Lock()
	p.codes = admitted
	p.mu.Unlock()
}

func (p *Pool) prefixAllowed(code string) bool {
	if len(p.cfg.Prefixes) == 0 {
		return true
	}
	symbol := market.Symbol(code)
	for _, prefix := range p.cfg.Prefixes {
		if strings.HasPrefix(symbol, prefix) {
			return true
		}
	}
	return false
}

// Codes returns a copy of the current pool.
func (p *Pool) Codes() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, len(p.codes))
	copy(out, p.codes)
	return out
}

// Contains reports whether the code is currently in the pool.
func (p *Pool) Contains(code string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, c := range p.codes {
		if c == code {
			return true
		}
	}
	return false
}

// Size returns the current pool size.
func (p *Pool) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.codes)
}
