package application

import (
	"context"
	"fmt"
	"math"
	"time"

	"overload-gateway/gateway/clock"
	"overload-gateway/gateway/domain"

	"go.uber.org/zap"
)

// RateLimiterConfig define o bucket global e os sub-buckets por tenant.
type RateLimiterConfig struct {
	Capacity   float64
	RefillRate float64 // tokens por tick de refill

	TenantCapacity float64 // teto de cada tenant
	TenantRefill   float64 // concessão por tick para cada tenant
	// TenantIdleTTL remove tenants cheios e sem uso; 0 mantém para sempre.
	TenantIdleTTL time.Duration
}

func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		Capacity:       40,
		RefillRate:     3,
		TenantCapacity: 10,
		TenantRefill:   4,
		TenantIdleTTL:  10 * time.Minute,
	}
}

type bucketState struct {
	Tokens     float64                 `msgpack:"tokens"`
	Capacity   float64                 `msgpack:"capacity"`
	RefillRate float64                 `msgpack:"refill_rate"`
	Tenants    map[string]tenantBucket `msgpack:"tenants"`
}

type tenantBucket struct {
	Tokens     float64   `msgpack:"tokens"`
	LastRefill time.Time `msgpack:"last_refill"`
	LastUsed   time.Time `msgpack:"last_used"`
}

// RateLimiter é o token bucket global + por tenant guardado no StateStore.
// Global e tenants ficam na mesma chave para que consume seja uma única
// operação atômica.
type RateLimiter struct {
	store domain.StateStore
	codec domain.Codec
	cfg   RateLimiterConfig
	key   string
	clk   clock.Clock
	log   *zap.Logger
}

type RateLimiterOption func(*RateLimiter)

func WithLimiterClock(c clock.Clock) RateLimiterOption {
	return func(r *RateLimiter) { r.clk = clock.OrReal(c) }
}

func WithLimiterLogger(l *zap.Logger) RateLimiterOption {
	return func(r *RateLimiter) {
		if l != nil {
			r.log = l
		}
	}
}

func WithLimiterKey(key string) RateLimiterOption {
	return func(r *RateLimiter) { r.key = key }
}

func NewRateLimiter(store domain.StateStore, codec domain.Codec, cfg RateLimiterConfig, opts ...RateLimiterOption) *RateLimiter {
	r := &RateLimiter{
		store: store,
		codec: codec,
		cfg:   cfg,
		key:   "ratelimit",
		clk:   clock.Real{},
		log:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RateLimiter) initial() bucketState {
	return bucketState{
		Tokens:     r.cfg.Capacity,
		Capacity:   r.cfg.Capacity,
		RefillRate: r.cfg.RefillRate,
		Tenants:    map[string]tenantBucket{},
	}
}

func (r *RateLimiter) update(ctx context.Context, fn func(*bucketState) (bool, error)) error {
	return mutate(ctx, r.store, r.codec, r.key, r.initial, func(st *bucketState) (bool, error) {
		if st.Tenants == nil {
			st.Tenants = map[string]tenantBucket{}
		}
		return fn(st)
	})
}

// Consume tenta retirar cost tokens do bucket global e, se tenant != "",
// do sub-bucket do tenant. Em qualquer negação nada é alterado.
func (r *RateLimiter) Consume(ctx context.Context, cost float64, tenant string) (domain.ConsumeResult, error) {
	now := r.clk.Now()
	var res domain.ConsumeResult

	err := r.update(ctx, func(st *bucketState) (bool, error) {
		if st.Tokens < cost {
			res = domain.ConsumeResult{Reason: domain.ReasonGlobalLimit}
			return false, nil
		}

		if tenant != "" {
			tb, ok := st.Tenants[tenant]
			if !ok {
				tb = tenantBucket{Tokens: r.cfg.TenantCapacity, LastRefill: now}
			}
			if tb.Tokens < cost {
				res = domain.ConsumeResult{Reason: domain.ReasonTenantLimit}
				return false, nil
			}
			tb.Tokens -= cost
			tb.LastUsed = now
			st.Tenants[tenant] = tb
		}

		st.Tokens -= cost
		res = domain.ConsumeResult{Allowed: true}
		return true, nil
	})
	if err != nil {
		return domain.ConsumeResult{}, fmt.Errorf("rate limiter consume: %w", err)
	}
	return res, nil
}

// Refill executa um tick: global += refillRate (teto capacity) e cada tenant
// += TenantRefill (teto TenantCapacity).
func (r *RateLimiter) Refill(ctx context.Context) error {
	now := r.clk.Now()
	err := r.update(ctx, func(st *bucketState) (bool, error) {
		st.Tokens = math.Min(st.Capacity, st.Tokens+st.RefillRate)
		for id, tb := range st.Tenants {
			tb.Tokens = math.Min(r.cfg.TenantCapacity, tb.Tokens+r.cfg.TenantRefill)
			tb.LastRefill = now
			// tenant cheio e ocioso é indistinguível de um tenant novo
			if r.cfg.TenantIdleTTL > 0 && tb.Tokens >= r.cfg.TenantCapacity && now.Sub(tb.LastUsed) > r.cfg.TenantIdleTTL {
				delete(st.Tenants, id)
				continue
			}
			st.Tenants[id] = tb
		}
		return true, nil
	})
	if err != nil {
		return fmt.Errorf("rate limiter refill: %w", err)
	}
	return nil
}

// UpdateConfig troca capacidade e refill; tokens são truncados na nova capacidade.
func (r *RateLimiter) UpdateConfig(ctx context.Context, capacity, refillRate float64) error {
	return r.Reconfigure(ctx, func(float64, float64) (float64, float64) { return capacity, refillRate })
}

// Reconfigure aplica fn sobre (capacity, refillRate) atuais de forma atômica.
func (r *RateLimiter) Reconfigure(ctx context.Context, fn func(capacity, refillRate float64) (float64, float64)) error {
	var from, to [2]float64
	err := r.update(ctx, func(st *bucketState) (bool, error) {
		c, rr := fn(st.Capacity, st.RefillRate)
		if c <= 0 || rr <= 0 || math.IsNaN(c) || math.IsNaN(rr) {
			return false, fmt.Errorf("%w: capacity=%v refillRate=%v", domain.ErrInvalidConfig, c, rr)
		}
		from = [2]float64{st.Capacity, st.RefillRate}
		to = [2]float64{c, rr}
		st.Capacity = c
		st.RefillRate = rr
		st.Tokens = math.Min(st.Tokens, c)
		return true, nil
	})
	if err != nil {
		return fmt.Errorf("rate limiter reconfigure: %w", err)
	}
	if from != to {
		r.log.Info("rate limiter reconfigured",
			zap.Float64("capacity", to[0]), zap.Float64("refill_rate", to[1]),
			zap.Float64("prev_capacity", from[0]), zap.Float64("prev_refill_rate", from[1]))
	}
	return nil
}

func (r *RateLimiter) Stats(ctx context.Context) (domain.LimiterStats, error) {
	st, err := read(ctx, r.store, r.codec, r.key, r.initial)
	if err != nil {
		return domain.LimiterStats{}, fmt.Errorf("rate limiter stats: %w", err)
	}
	return domain.LimiterStats{
		Tokens:        st.Tokens,
		Capacity:      st.Capacity,
		RefillRate:    st.RefillRate,
		ActiveTenants: len(st.Tenants),
	}, nil
}

// TenantTokens retorna os tokens de um tenant (teto se ainda não existe).
func (r *RateLimiter) TenantTokens(ctx context.Context, tenant string) (float64, error) {
	st, err := read(ctx, r.store, r.codec, r.key, r.initial)
	if err != nil {
		return 0, err
	}
	if tb, ok := st.Tenants[tenant]; ok {
		return tb.Tokens, nil
	}
	return r.cfg.TenantCapacity, nil
}

// Run executa Refill a cada interval até ctx encerrar.
func (r *RateLimiter) Run(ctx context.Context, interval time.Duration) error {
	return runEvery(ctx, interval, func(ctx context.Context) {
		if err := r.Refill(ctx); err != nil && ctx.Err() == nil {
			r.log.Warn("refill failed", zap.Error(err))
		}
	})
}
