package application

import (
	"context"
	"sync"
	"time"

	"overload-gateway/gateway/clock"
	"overload-gateway/gateway/domain"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Recovery é a fase de recuperação: depois que a frota sai de "nenhum backend
// saudável", o teto de admissão fica baixo por um tempo fixo.
type Recovery struct {
	admission *Admission
	alerts    Alerter
	clk       clock.Clock
	log       *zap.Logger

	duration time.Duration
	maxUsers int

	mu    sync.Mutex
	until time.Time
}

type RecoveryConfig struct {
	Duration time.Duration
	MaxUsers int
}

func NewRecovery(admission *Admission, alerts Alerter, cfg RecoveryConfig, c clock.Clock, log *zap.Logger) *Recovery {
	if alerts == nil {
		alerts = nopAlerter{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Duration <= 0 {
		cfg.Duration = 30 * time.Second
	}
	if cfg.MaxUsers <= 0 {
		cfg.MaxUsers = 5
	}
	return &Recovery{
		admission: admission,
		alerts:    alerts,
		clk:       clock.OrReal(c),
		log:       log,
		duration:  cfg.Duration,
		maxUsers:  cfg.MaxUsers,
	}
}

// Begin inicia (ou reinicia) a fase e força o teto baixo.
func (r *Recovery) Begin(ctx context.Context) error {
	r.mu.Lock()
	r.until = r.clk.Now().Add(r.duration)
	r.mu.Unlock()

	r.alerts.AddAlert(domain.AlertInfo, "Recovery Phase Initiated: At least one server recovered.")
	return r.admission.UpdateMaxUsers(ctx, r.maxUsers)
}

// Active informa se a fase ainda está em vigor. Ao expirar, o teto volta a
// seguir o controlador adaptativo.
func (r *Recovery) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.clk.Now().Before(r.until)
}

// HealthChecker faz o probe periódico de todos os backends.
type HealthChecker struct {
	balancer *Balancer
	prober   domain.Prober
	slots    ConcurrencyService
	recovery *Recovery
	log      *zap.Logger

	mu         sync.Mutex
	anyHealthy bool
}

func NewHealthChecker(b *Balancer, p domain.Prober, slots ConcurrencyService, r *Recovery, log *zap.Logger) *HealthChecker {
	if log == nil {
		log = zap.NewNop()
	}
	return &HealthChecker{
		balancer:   b,
		prober:     p,
		slots:      slots,
		recovery:   r,
		log:        log,
		anyHealthy: b.HealthyCount() > 0,
	}
}

// Check executa um ciclo e retorna quantos backends estão saudáveis.
func (h *HealthChecker) Check(ctx context.Context) (int, error) {
	urls := h.balancer.URLs()
	results := make([]ProbeResult, 0, len(urls))
	var (
		mu sync.Mutex
		g  errgroup.Group
	)

	for _, u := range urls {
		u := u
		release, ok := h.slots.Acquire(ctx)
		if !ok {
			break
		}
		g.Go(func() error {
			defer release()
			rep, err := h.prober.Probe(ctx, u)
			mu.Lock()
			results = append(results, ProbeResult{URL: u, Report: rep, Err: err})
			mu.Unlock()
			// falha de probe é resultado, não erro do ciclo
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return h.balancer.HealthyCount(), err
	}

	healthy := h.balancer.ApplyHealth(results)

	h.mu.Lock()
	wasDown := !h.anyHealthy
	h.anyHealthy = healthy > 0
	h.mu.Unlock()

	if wasDown && healthy > 0 && h.recovery != nil {
		h.log.Info("backends recovered", zap.Int("healthy", healthy))
		if err := h.recovery.Begin(ctx); err != nil {
			return healthy, err
		}
	}
	if !wasDown && healthy == 0 {
		h.log.Warn("no healthy backends", zap.Int("registered", len(urls)))
	}
	return healthy, nil
}

func (h *HealthChecker) Run(ctx context.Context, interval time.Duration) error {
	return runEvery(ctx, interval, func(ctx context.Context) {
		if _, err := h.Check(ctx); err != nil && ctx.Err() == nil {
			h.log.Warn("health check failed", zap.Error(err))
		}
	})
}
