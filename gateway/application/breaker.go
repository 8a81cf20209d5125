package application

import (
	"context"
	"errors"
	"sync"
	"time"

	"overload-gateway/gateway/clock"
	"overload-gateway/gateway/domain"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

type BreakerConfig struct {
	Name             string
	FailureThreshold int
	ResetTimeout     time.Duration
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{Name: "backends", FailureThreshold: 3, ResetTimeout: 5 * time.Second}
}

// Breaker protege as chamadas aos backends com gobreaker.
//
// CLOSED abre após FailureThreshold falhas consecutivas; OPEN falha rápido com
// domain.ErrCircuitOpen até ResetTimeout; HALF_OPEN deixa passar uma única
// chamada de prova. A injeção de falhas roda dentro da chamada protegida.
type Breaker struct {
	cb  *gobreaker.CircuitBreaker
	clk clock.Clock
	log *zap.Logger

	mu          sync.Mutex
	failures    int
	nextAttempt time.Time
	faults      domain.FaultConfig
	onChange    []func(from, to domain.BreakerState)

	// transições aguardando os hooks; drenadas fora do lock do gobreaker
	pending     []transition
	dispatching bool
}

type transition struct {
	from, to domain.BreakerState
}

type BreakerOption func(*Breaker)

func WithBreakerClock(c clock.Clock) BreakerOption {
	return func(b *Breaker) { b.clk = clock.OrReal(c) }
}

func WithBreakerLogger(l *zap.Logger) BreakerOption {
	return func(b *Breaker) {
		if l != nil {
			b.log = l
		}
	}
}

func NewBreaker(cfg BreakerConfig, opts ...BreakerOption) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 5 * time.Second
	}

	b := &Breaker{
		clk:    clock.Real{},
		log:    zap.NewNop(),
		faults: domain.FaultConfig{LatencyMs: 2000},
	}
	for _, opt := range opts {
		opt(b)
	}

	threshold := uint32(cfg.FailureThreshold)
	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Timeout:     cfg.ResetTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.mu.Lock()
			if to == gobreaker.StateOpen {
				b.nextAttempt = b.clk.Now().Add(cfg.ResetTimeout)
			}
			b.pending = append(b.pending, transition{from: mapState(from), to: mapState(to)})
			start := !b.dispatching
			b.dispatching = true
			b.mu.Unlock()

			b.log.Info("circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
			if start {
				go b.dispatch()
			}
		},
	})
	return b
}

// dispatch entrega as transições pendentes aos hooks, em ordem. Roda em
// goroutine própria: o gobreaker segura seu mutex durante OnStateChange.
func (b *Breaker) dispatch() {
	for {
		b.mu.Lock()
		if len(b.pending) == 0 {
			b.dispatching = false
			b.mu.Unlock()
			return
		}
		t := b.pending[0]
		b.pending = b.pending[1:]
		hooks := append([]func(from, to domain.BreakerState){}, b.onChange...)
		b.mu.Unlock()

		for _, h := range hooks {
			h(t.from, t.to)
		}
	}
}

// OnStateChange registra um callback chamado a cada transição, fora do
// caminho da chamada protegida.
func (b *Breaker) OnStateChange(fn func(from, to domain.BreakerState)) {
	b.mu.Lock()
	b.onChange = append(b.onChange, fn)
	b.mu.Unlock()
}

func mapState(s gobreaker.State) domain.BreakerState {
	switch s {
	case gobreaker.StateOpen:
		return domain.BreakerOpen
	case gobreaker.StateHalfOpen:
		return domain.BreakerHalfOpen
	default:
		return domain.BreakerClosed
	}
}

// Do executa fn através do breaker. Qualquer erro de fn conta como falha.
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		if err := b.injectFaults(ctx); err != nil {
			return nil, err
		}
		return nil, fn(ctx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return domain.ErrCircuitOpen
	}

	b.mu.Lock()
	if err != nil {
		b.failures++
	} else {
		b.failures = 0
	}
	b.mu.Unlock()
	return err
}

func (b *Breaker) injectFaults(ctx context.Context) error {
	b.mu.Lock()
	f := b.faults
	b.mu.Unlock()

	if f.InjectError {
		return domain.ErrInjectedFault
	}
	if f.InjectLatency && f.LatencyMs > 0 {
		select {
		case <-b.clk.After(time.Duration(f.LatencyMs) * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (b *Breaker) State() domain.BreakerState { return mapState(b.cb.State()) }

func (b *Breaker) Stats() domain.BreakerStats {
	state := b.State()

	b.mu.Lock()
	defer b.mu.Unlock()
	st := domain.BreakerStats{State: state, Failures: b.failures, Config: b.faults}
	if state == domain.BreakerOpen {
		next := b.nextAttempt
		st.NextAttempt = &next
	}
	return st
}

// SetFaults aplica um merge sobre a configuração de injeção de falhas.
func (b *Breaker) SetFaults(u domain.FaultUpdate) domain.FaultConfig {
	b.mu.Lock()
	b.faults = b.faults.Merge(u)
	cfg := b.faults
	b.mu.Unlock()

	b.log.Info("fault injection updated",
		zap.Bool("inject_error", cfg.InjectError),
		zap.Bool("inject_latency", cfg.InjectLatency),
		zap.Int("latency_ms", cfg.LatencyMs))
	return cfg
}
