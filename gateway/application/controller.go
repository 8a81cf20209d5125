package application

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"overload-gateway/gateway/domain"

	"go.uber.org/zap"
)

type ControllerConfig struct {
	// QueueTimeout é o limite absoluto de espera na fila (varredura de SLA).
	QueueTimeout time.Duration
	MaxInstances int
}

func DefaultControllerConfig() ControllerConfig {
	return ControllerConfig{QueueTimeout: 30 * time.Second, MaxInstances: 5}
}

// Controller é o laço de ajuste adaptativo (a cada 5s): varre filas vencidas,
// calcula a recomendação a partir do último snapshot e a aplica no teto de
// admissão e no rate limiter.
type Controller struct {
	limiter   *RateLimiter
	admission *Admission
	metrics   *Metrics
	recovery  *Recovery
	cfg       ControllerConfig
	log       *zap.Logger
}

func NewController(l *RateLimiter, a *Admission, m *Metrics, r *Recovery, cfg ControllerConfig, log *zap.Logger) *Controller {
	def := DefaultControllerConfig()
	if cfg.QueueTimeout <= 0 {
		cfg.QueueTimeout = def.QueueTimeout
	}
	if cfg.MaxInstances <= 0 {
		cfg.MaxInstances = def.MaxInstances
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{limiter: l, admission: a, metrics: m, recovery: r, cfg: cfg, log: log}
}

// FailRate = (rejected + queued) / max(requests, 1).
func FailRate(s domain.Snapshot) float64 {
	return float64(s.Rejected+s.Queued) / float64(max(s.Requests, 1))
}

func (c *Controller) Tune(ctx context.Context) (domain.Advice, error) {
	var errs []error

	dropped, err := c.admission.CleanUpExpired(ctx, c.cfg.QueueTimeout)
	if err != nil {
		errs = append(errs, err)
	}
	if dropped > 0 {
		c.metrics.AddAlert(domain.AlertWarning, fmt.Sprintf("SLA Enforcement: Dropped %d queued requests.", dropped))
	}

	snap, _ := c.metrics.Latest()
	advice := c.metrics.Advise(snap.Requests, snap.CPU, FailRate(snap))

	if c.recovery == nil || !c.recovery.Active() {
		if err := c.admission.UpdateMaxUsers(ctx, advice.RecommendedMaxUsers); err != nil {
			errs = append(errs, err)
		}
	}

	switch advice.Action {
	case domain.ActionThrottle:
		err := c.limiter.Reconfigure(ctx, func(capacity, refill float64) (float64, float64) {
			return math.Max(5, capacity-5), math.Max(1, refill-1)
		})
		if err != nil {
			errs = append(errs, err)
		}
	case domain.ActionScaleUp:
		if n, ok := c.metrics.ScaleUp(c.cfg.MaxInstances); ok {
			if err := c.limiter.UpdateConfig(ctx, float64(15+n*10), float64(3+n*2)); err != nil {
				errs = append(errs, err)
			}
			c.metrics.AddAlert(domain.AlertInfo, fmt.Sprintf("Auto-Scaling: Scaled UP to %d instances.", n))
		}
	}

	c.log.Debug("adaptive tuning",
		zap.String("action", string(advice.Action)),
		zap.Int("recommended_max_users", advice.RecommendedMaxUsers),
		zap.Int("dropped", dropped))
	return advice, errors.Join(errs...)
}

func (c *Controller) Run(ctx context.Context, interval time.Duration) error {
	return runEvery(ctx, interval, func(ctx context.Context) {
		if _, err := c.Tune(ctx); err != nil && ctx.Err() == nil {
			c.log.Warn("adaptive tuning failed", zap.Error(err))
		}
	})
}
