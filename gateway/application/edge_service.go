package application

import (
	"math"
	"time"

	"overload-gateway/gateway/domain"
)

// EdgeService decide se um cliente pode usar as rotas de controle agora.
//
// Ele não sabe nada sobre HTTP (headers/status), apenas retorna uma decisão.
type EdgeService struct {
	Store domain.LimiterStore
	// RetryAfter fixo; 0 deriva do RPS do store (1/rps, mínimo 1s).
	RetryAfter time.Duration
}

type rateReporter interface {
	RPS() float64
}

func (s EdgeService) Decide(key domain.Key) domain.Decision {
	if s.Store == nil {
		return domain.Decision{Allowed: true}
	}

	lim := s.Store.Get(key)
	if lim == nil || lim.Allow() {
		return domain.Decision{Allowed: true}
	}
	return domain.Decision{Allowed: false, RetryAfter: s.retryAfter()}
}

func (s EdgeService) retryAfter() time.Duration {
	if s.RetryAfter > 0 {
		return s.RetryAfter
	}
	if rr, ok := s.Store.(rateReporter); ok && rr.RPS() > 0 {
		secs := math.Ceil(1 / rr.RPS())
		return time.Duration(secs) * time.Second
	}
	return time.Second
}
