package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"overload-gateway/gateway/clock"
	"overload-gateway/gateway/domain"

	"go.uber.org/zap"
)

// Request é uma requisição de trabalho já decodificada pelo adapter.
type Request struct {
	Identity string
	Priority domain.Priority
	Body     []byte

	Method string
	Path   string
}

// Result é a decisão do gateway para uma Request.
type Result struct {
	Outcome  domain.Outcome
	Reason   domain.Reason
	Cause    domain.Reason // causa interna de FAILED (ex: CIRCUIT_OPEN)
	Token    int64
	Priority domain.Priority
	Position int

	Degraded    bool
	Backend     string
	Response    json.RawMessage
	ActiveUsers int
}

// Gateway é o ponto de entrada do caminho de requisição:
// saúde do upstream -> rate limit -> admissão -> round-robin -> breaker -> backend.
type Gateway struct {
	Limiter   *RateLimiter
	Admission *Admission
	Balancer  *Balancer
	Breaker   *Breaker
	Caller    domain.Caller
	Metrics   *Metrics
	Recovery  *Recovery

	// Stats recebe cada decisão (best-effort).
	Stats []domain.StatsStore
	// DegradeRatio: acima de active/max o backend recebe x-degraded-mode (padrão 0.8).
	DegradeRatio float64

	Clock clock.Clock
	Log   *zap.Logger
}

func (g *Gateway) log() *zap.Logger {
	if g.Log == nil {
		return zap.NewNop()
	}
	return g.Log
}

func (g *Gateway) Handle(ctx context.Context, req Request) (Result, error) {
	res, err := g.handle(ctx, req)
	g.record(ctx, req, res)
	return res, err
}

func (g *Gateway) handle(ctx context.Context, req Request) (Result, error) {
	if g.Balancer.HealthyCount() == 0 {
		return Result{Outcome: domain.OutcomeRejected, Reason: domain.ReasonUpstreamUnhealthy}, nil
	}

	rl, err := g.Limiter.Consume(ctx, 1, req.Identity)
	if err != nil {
		return internalError(), err
	}
	if !rl.Allowed {
		g.Metrics.Record(domain.OutcomeRejected)
		return Result{Outcome: domain.OutcomeRejected, Reason: rl.Reason}, nil
	}

	adm, err := g.Admission.Allow(ctx, req.Identity, req.Priority)
	if err != nil {
		return internalError(), err
	}
	switch adm.Outcome {
	case domain.Queued:
		g.Metrics.Record(domain.OutcomeQueued)
		return Result{
			Outcome:  domain.OutcomeQueued,
			Token:    adm.Token,
			Priority: adm.Priority,
			Position: adm.Position,
		}, nil
	case domain.Rejected:
		g.Metrics.Record(domain.OutcomeRejected)
		return Result{Outcome: domain.OutcomeRejected, Reason: adm.Reason}, nil
	}

	ratio := g.DegradeRatio
	if ratio <= 0 {
		ratio = 0.8
	}
	degraded := adm.MaxUsers > 0 && float64(adm.ActiveUsers)/float64(adm.MaxUsers) > ratio

	target, err := g.Balancer.Next()
	if errors.Is(err, domain.ErrNoBackend) {
		// nada foi despachado: devolve a vaga
		if _, rerr := g.Admission.Release(ctx, req.Identity); rerr != nil {
			g.log().Warn("release after empty pool failed", zap.Error(rerr))
		}
		g.Metrics.Record(domain.OutcomeRejected)
		return Result{Outcome: domain.OutcomeRejected, Reason: domain.ReasonUpstreamUnhealthy}, nil
	}
	if err != nil {
		return internalError(), err
	}

	done, err := g.Balancer.Begin(target)
	if err != nil {
		return internalError(), err
	}

	var resp domain.BackendResponse
	callErr := g.Breaker.Do(ctx, func(ctx context.Context) error {
		r, err := g.Caller.Process(ctx, target, req.Body, degraded)
		if err != nil {
			return err
		}
		resp = r
		if r.Status >= 500 {
			return fmt.Errorf("%w: %s returned %d", domain.ErrBackendStatus, target, r.Status)
		}
		return nil
	})
	done(callErr == nil)

	if callErr != nil {
		g.Metrics.Record(domain.OutcomeFailed)
		cause := domain.ReasonApplicationServerError
		if errors.Is(callErr, domain.ErrCircuitOpen) {
			cause = domain.ReasonCircuitOpen
		}
		g.log().Debug("dispatch failed",
			zap.String("backend", target),
			zap.String("identity", req.Identity),
			zap.Error(callErr))
		return Result{
			Outcome: domain.OutcomeFailed,
			Reason:  domain.ReasonApplicationServerError,
			Cause:   cause,
			Backend: target,
		}, nil
	}

	g.Metrics.Record(domain.OutcomeAccepted)
	return Result{
		Outcome:     domain.OutcomeAccepted,
		Degraded:    degraded,
		Backend:     target,
		Response:    resp.Body,
		ActiveUsers: adm.ActiveUsers,
	}, nil
}

func internalError() Result {
	return Result{Outcome: domain.OutcomeFailed, Reason: domain.ReasonInternalError}
}

func (g *Gateway) record(ctx context.Context, req Request, res Result) {
	if len(g.Stats) == 0 {
		return
	}
	reason := res.Reason
	if res.Cause != domain.ReasonNone {
		reason = res.Cause
	}
	ev := domain.StatsEvent{
		Identity: domain.Key(req.Identity),
		Outcome:  res.Outcome,
		Reason:   reason,
		Method:   req.Method,
		Path:     req.Path,
		At:       clock.OrReal(g.Clock).Now(),
	}
	for _, s := range g.Stats {
		if err := s.Record(ctx, ev); err != nil {
			g.log().Debug("stats record failed", zap.Error(err))
		}
	}
}

// Release encerra a sessão de identity.
func (g *Gateway) Release(ctx context.Context, identity string) (int, error) {
	return g.Admission.Release(ctx, identity)
}

// ControlConfig é a configuração viva exposta em /system/control/config.
type ControlConfig struct {
	MaxUsers      int     `json:"maxUsers"`
	Capacity      float64 `json:"capacity"`
	RefillRate    float64 `json:"refillRate"`
	RecoveryPhase bool    `json:"recoveryPhase"`
}

// ControlUpdate sobrescreve parâmetros; campos nil são mantidos.
type ControlUpdate struct {
	MaxUsers   *int     `json:"maxUsers,omitempty"`
	Capacity   *float64 `json:"capacity,omitempty"`
	RefillRate *float64 `json:"refillRate,omitempty"`
}

func (g *Gateway) Config(ctx context.Context) (ControlConfig, error) {
	ls, err := g.Limiter.Stats(ctx)
	if err != nil {
		return ControlConfig{}, err
	}
	as, err := g.Admission.Status(ctx)
	if err != nil {
		return ControlConfig{}, err
	}
	return ControlConfig{
		MaxUsers:      as.MaxUsers,
		Capacity:      ls.Capacity,
		RefillRate:    ls.RefillRate,
		RecoveryPhase: g.Recovery != nil && g.Recovery.Active(),
	}, nil
}

func (g *Gateway) UpdateConfig(ctx context.Context, u ControlUpdate) error {
	if u.MaxUsers != nil {
		if err := g.Admission.UpdateMaxUsers(ctx, *u.MaxUsers); err != nil {
			return err
		}
	}
	if u.Capacity == nil && u.RefillRate == nil {
		return nil
	}
	return g.Limiter.Reconfigure(ctx, func(capacity, refill float64) (float64, float64) {
		if u.Capacity != nil {
			capacity = *u.Capacity
		}
		if u.RefillRate != nil {
			refill = *u.RefillRate
		}
		return capacity, refill
	})
}

// View monta a visão de /system/metrics a partir do último snapshot.
func (g *Gateway) View(ctx context.Context, recentAlerts int) (domain.SystemView, error) {
	ls, err := g.Limiter.Stats(ctx)
	if err != nil {
		return domain.SystemView{}, err
	}
	as, err := g.Admission.Status(ctx)
	if err != nil {
		return domain.SystemView{}, err
	}

	backends := g.Balancer.Snapshot()
	snap, ok := g.Metrics.Latest()
	cpuPct := snap.CPU / float64(g.Metrics.Cores()) * 100

	status := "STABLE"
	if snap.Requests > scaleUpRate || cpuPct > 80 {
		status = "OVERLOAD"
	}
	instances := len(backends)
	if instances == 0 {
		instances = g.Metrics.InstanceCount()
	}

	v := domain.SystemView{
		System: domain.SystemSection{
			InstanceCount:   instances,
			CPULoad:         strconv.FormatFloat(cpuPct, 'f', 1, 64) + "%",
			MemoryUsage:     strconv.FormatFloat(snap.Memory*100, 'f', 1, 64) + "%",
			PredictedStatus: status,
			Backends:        backends,
		},
		Traffic: domain.TrafficSection{
			ReqPerSec: snap.Requests,
			Accepted:  snap.Accepted,
			Rejected:  snap.Rejected,
			Queued:    snap.Queued,
		},
		Resources: domain.ResourceSection{
			Tokens:         ls.Tokens,
			BucketCapacity: ls.Capacity,
			RefillRate:     ls.RefillRate,
			ActiveUsers:    as.ActiveUsers,
			MaxUsers:       as.MaxUsers,
			ActiveTenants:  ls.ActiveTenants,
		},
		Queues:       as.Queues,
		RecentAlerts: g.Metrics.Alerts(recentAlerts),
		Breaker:      g.Breaker.State(),
	}
	if ok {
		v.Snapshot = &snap
	}
	return v, nil
}
