package infra

import (
	"context"
	"sync"

	"overload-gateway/gateway/domain"
)

// Counters conta decisões por desfecho.
type Counters struct {
	Accepted int64 `json:"accepted"`
	Queued   int64 `json:"queued"`
	Rejected int64 `json:"rejected"`
	Failed   int64 `json:"failed"`
}

func (c *Counters) add(o domain.Outcome) {
	switch o {
	case domain.OutcomeAccepted:
		c.Accepted++
	case domain.OutcomeQueued:
		c.Queued++
	case domain.OutcomeRejected:
		c.Rejected++
	case domain.OutcomeFailed:
		c.Failed++
	}
}

// MemoryStatsStore é uma implementação simples em memória.
// Útil para testes, desenvolvimento e para GET /system/stats.
//
// Não faz expiração e não é indicada para produção multi-instância.
type MemoryStatsStore struct {
	mu       sync.Mutex
	total    Counters
	byReason map[domain.Reason]int64
	byRoute  map[string]Counters
	byKey    map[string]Counters

	trackKeys bool
}

// StatsReport é a fotografia exposta em /system/stats.
type StatsReport struct {
	Total    Counters                `json:"total"`
	ByReason map[domain.Reason]int64 `json:"byReason"`
	ByRoute  map[string]Counters     `json:"byRoute"`
	ByKey    map[string]Counters     `json:"byKey,omitempty"`
}

type MemoryStatsOption func(*MemoryStatsStore)

func WithTrackKeys(track bool) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.trackKeys = track }
}

func NewMemoryStatsStore(opts ...MemoryStatsOption) *MemoryStatsStore {
	s := &MemoryStatsStore{
		byReason: make(map[domain.Reason]int64),
		byRoute:  make(map[string]Counters),
		byKey:    make(map[string]Counters),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	route := ev.Method + " " + ev.Path

	s.mu.Lock()
	defer s.mu.Unlock()

	s.total.add(ev.Outcome)
	if ev.Reason != domain.ReasonNone {
		s.byReason[ev.Reason]++
	}

	c := s.byRoute[route]
	c.add(ev.Outcome)
	s.byRoute[route] = c

	if s.trackKeys && ev.Identity != "" {
		k := s.byKey[string(ev.Identity)]
		k.add(ev.Outcome)
		s.byKey[string(ev.Identity)] = k
	}
	return nil
}

func (s *MemoryStatsStore) Total() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

func (s *MemoryStatsStore) Report() StatsReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := StatsReport{
		Total:    s.total,
		ByReason: make(map[domain.Reason]int64, len(s.byReason)),
		ByRoute:  make(map[string]Counters, len(s.byRoute)),
	}
	for k, v := range s.byReason {
		r.ByReason[k] = v
	}
	for k, v := range s.byRoute {
		r.ByRoute[k] = v
	}
	if s.trackKeys {
		r.ByKey = make(map[string]Counters, len(s.byKey))
		for k, v := range s.byKey {
			r.ByKey[k] = v
		}
	}
	return r
}
