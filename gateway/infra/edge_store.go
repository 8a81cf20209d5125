package infra

import (
	"context"
	"sync"
	"time"

	"overload-gateway/gateway/clock"
	"overload-gateway/gateway/domain"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// EdgeStore mantém um token bucket (x/time/rate) por cliente, com limpeza
// periódica de clientes inativos. Protege as rotas de controle do gateway.
type EdgeStore struct {
	mu           sync.Mutex
	entries      map[string]*edgeEntry
	rps          rate.Limit
	burst        int
	idleTTL      time.Duration
	cleanupEvery time.Duration
	clk          clock.Clock
	log          *zap.Logger
}

type edgeEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

type EdgeOption func(*EdgeStore)

func WithIdleTTL(d time.Duration) EdgeOption {
	return func(s *EdgeStore) { s.idleTTL = d }
}

func WithCleanupEvery(d time.Duration) EdgeOption {
	return func(s *EdgeStore) { s.cleanupEvery = d }
}

func WithEdgeClock(c clock.Clock) EdgeOption {
	return func(s *EdgeStore) { s.clk = clock.OrReal(c) }
}

func WithEdgeLogger(l *zap.Logger) EdgeOption {
	return func(s *EdgeStore) {
		if l != nil {
			s.log = l
		}
	}
}

func NewEdgeStore(rps float64, burst int, opts ...EdgeOption) *EdgeStore {
	s := &EdgeStore{
		entries:      make(map[string]*edgeEntry),
		rps:          rate.Limit(rps),
		burst:        burst,
		idleTTL:      15 * time.Minute,
		cleanupEvery: 2 * time.Minute,
		clk:          clock.Real{},
		log:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *EdgeStore) RPS() float64 { return float64(s.rps) }
func (s *EdgeStore) Burst() int   { return s.burst }

// Len retorna quantos clientes estão sendo rastreados.
func (s *EdgeStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Get implementa domain.LimiterStore.
func (s *EdgeStore) Get(key domain.Key) domain.Limiter {
	now := s.clk.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.entries[string(key)]
	if !ok {
		ent = &edgeEntry{lim: rate.NewLimiter(s.rps, s.burst)}
		s.entries[string(key)] = ent
	}
	ent.lastSeen = now
	return edgeLimiter{lim: ent.lim, clk: s.clk}
}

// edgeLimiter consulta o bucket com o horário do clock injetado.
type edgeLimiter struct {
	lim *rate.Limiter
	clk clock.Clock
}

func (l edgeLimiter) Allow() bool { return l.lim.AllowN(l.clk.Now(), 1) }

// Cleanup remove clientes sem acesso há mais de idleTTL e retorna quantos saíram.
func (s *EdgeStore) Cleanup() int {
	cutoff := s.clk.Now().Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for k, ent := range s.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(s.entries, k)
			n++
		}
	}
	return n
}

// StartJanitor inicia uma goroutine que limpa chaves inativas periodicamente.
// Pare cancelando o contexto.
func (s *EdgeStore) StartJanitor(ctx context.Context) {
	if s.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if n := s.Cleanup(); n > 0 {
					s.log.Debug("edge limiter cleanup", zap.Int("evicted", n))
				}
			}
		}
	}()
}
