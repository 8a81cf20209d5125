package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"overload-gateway/gateway"
	"overload-gateway/gateway/application"
	"overload-gateway/gateway/domain"
	"overload-gateway/gateway/infra"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func runServe(parent context.Context, v *viper.Viper) error {
	cfg, err := readConfig(v)
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log, err := newLogger(cfg.logLevel, cfg.logFormat)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	state, closeState, err := openStateStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeState()
	codec := infra.MsgpackCodec{}

	limiter := application.NewRateLimiter(state, codec, application.RateLimiterConfig{
		Capacity:       cfg.rateCapacity,
		RefillRate:     cfg.rateRefill,
		TenantCapacity: cfg.rateTenantCapacity,
		TenantRefill:   cfg.rateTenantRefill,
		TenantIdleTTL:  cfg.rateTenantIdleTTL,
	}, application.WithLimiterLogger(log.Named("limiter")))

	admission := application.NewAdmission(state, codec, application.AdmissionConfig{
		MaxUsers: cfg.maxUsers,
		MaxQueue: cfg.maxQueue,
	}, application.WithAdmissionLogger(log.Named("admission")))

	balancer := application.NewBalancer(nil)
	for _, u := range cfg.backends {
		// saudáveis até o primeiro probe
		if err := balancer.Add(u, true); err != nil {
			return fmt.Errorf("backend %s: %w", u, err)
		}
	}

	breaker := application.NewBreaker(application.BreakerConfig{
		Name:             "backends",
		FailureThreshold: cfg.breakerThreshold,
		ResetTimeout:     cfg.breakerReset,
	}, application.WithBreakerLogger(log.Named("breaker")))

	backend := infra.NewHTTPBackend(infra.WithProbeTimeout(cfg.healthTimeout))

	metrics := application.NewMetrics(infra.HostSampler{}, application.MetricsConfig{
		Window:    cfg.metricsWindow,
		MaxAlerts: cfg.metricsMaxAlerts,
	},
		application.WithMetricsLogger(log.Named("metrics")),
		application.WithBackendCount(balancer.HealthyCount),
	)

	breaker.OnStateChange(func(_, to domain.BreakerState) {
		if to == domain.BreakerOpen {
			metrics.AddAlert(domain.AlertCritical, "Circuit Breaker OPEN: backend calls are failing fast.")
		}
	})

	recovery := application.NewRecovery(admission, metrics, application.RecoveryConfig{
		Duration: cfg.recoveryDuration,
		MaxUsers: cfg.recoveryMaxUsers,
	}, nil, log.Named("recovery"))

	health := application.NewHealthChecker(balancer, backend, application.ConcurrencyService{
		Pool: infra.NewChanPool(cfg.probeConcurrency),
	}, recovery, log.Named("health"))

	controller := application.NewController(limiter, admission, metrics, recovery, application.ControllerConfig{
		QueueTimeout: cfg.queueTimeout,
		MaxInstances: cfg.tuningMaxInstance,
	}, log.Named("controller"))

	collector := infra.NewCollector("gateway")
	memStats := infra.NewMemoryStatsStore(infra.WithTrackKeys(cfg.statsTrackKeys))
	sinks := []domain.StatsStore{collector, memStats}
	if cfg.statsEnabled && cfg.statsBackend == "redis" {
		rs, closeStats, err := openRedisStats(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeStats()
		sinks = append(sinks, rs)
	}

	gw := &application.Gateway{
		Limiter:      limiter,
		Admission:    admission,
		Balancer:     balancer,
		Breaker:      breaker,
		Caller:       backend,
		Metrics:      metrics,
		Recovery:     recovery,
		Stats:        sinks,
		DegradeRatio: cfg.degradeRatio,
		Log:          log.Named("gateway"),
	}

	var provisioner domain.Provisioner
	if cfg.provisionCommand != "" {
		provisioner = &infra.ExecProvisioner{
			Command: cfg.provisionCommand,
			Args:    cfg.provisionArgs,
			Dir:     cfg.provisionDir,
			Log:     log.Named("provisioner"),
		}
	}
	provisioning := &application.Provisioning{
		Balancer:    balancer,
		Provisioner: provisioner,
		Alerts:      metrics,
		Host:        cfg.provisionHost,
		Log:         log.Named("provisioning"),
	}

	hub := infra.NewHub(log.Named("ws"))
	metrics.OnTick(func(domain.Snapshot) {
		view, err := gw.View(ctx, 5)
		if err != nil {
			log.Debug("build system view", zap.Error(err))
			return
		}
		collector.Update(view)
		hub.Broadcast("metrics", view)
	})
	metrics.OnAlert(func(a domain.Alert) {
		hub.Broadcast("alert", a)
	})

	edge := infra.NewEdgeStore(cfg.controlRPS, cfg.controlBurst, infra.WithEdgeLogger(log.Named("edge")))
	edge.StartJanitor(ctx)

	srv := &gateway.Server{
		Gateway:      gw,
		Provisioning: provisioning,
		Stats:        memStats,
		Collector:    collector,
		Hub:          hub,
		Edge: gateway.EdgeOptions{
			Store:               edge,
			Stats:               memStats,
			KeyHeader:           cfg.controlKeyHeader,
			TrustXForwardedFor:  cfg.trustXFF,
			AddRateLimitHeaders: cfg.addHeaders,
		},
		Concurrency: gateway.ConcurrencyOptions{
			Max:            cfg.concurrencyMax,
			AcquireTimeout: cfg.concurrencyTimeout,
		},
		Log: log.Named("http"),
	}

	log.Info("gateway starting",
		zap.String("addr", cfg.listenAddr),
		zap.Strings("backends", cfg.backends),
		zap.String("store", cfg.storeBackend),
		zap.Int("max_users", cfg.maxUsers),
		zap.Float64("capacity", cfg.rateCapacity))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return limiter.Run(gctx, cfg.refillInterval) })
	g.Go(func() error { return metrics.Run(gctx, cfg.metricsInterval) })
	g.Go(func() error { return health.Run(gctx, cfg.healthInterval) })
	g.Go(func() error { return controller.Run(gctx, cfg.tuningInterval) })
	g.Go(func() error { return gateway.ListenAndServe(gctx, cfg.listenAddr, srv.Routes(), log) })

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	if err != nil {
		log.Error("gateway stopped", zap.Error(err))
		return err
	}
	log.Info("gateway stopped")
	return nil
}

func newRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

func ping(ctx context.Context, rdb *redis.Client) error {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	_, err := rdb.Ping(pingCtx).Result()
	return err
}

func openStateStore(ctx context.Context, cfg config) (domain.StateStore, func(), error) {
	if cfg.storeBackend != "redis" {
		return infra.NewMemoryStateStore(), func() {}, nil
	}
	rdb := newRedisClient(cfg.redisAddr, cfg.redisPassword, cfg.redisDB)
	if err := ping(ctx, rdb); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("redis state ping error: %w", err)
	}
	store := infra.NewRedisStateStore(rdb, infra.WithStatePrefix(cfg.statePrefix))
	return store, func() { _ = rdb.Close() }, nil
}

func openRedisStats(ctx context.Context, cfg config) (domain.StatsStore, func(), error) {
	rdb := newRedisClient(cfg.statsRedisAddr, cfg.redisPassword, cfg.redisDB)
	if err := ping(ctx, rdb); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("redis stats ping error: %w", err)
	}
	store := infra.NewRedisStatsStore(
		rdb,
		infra.WithStatsPrefix(cfg.statsPrefix),
		infra.WithStatsTTL(cfg.statsTTL),
		infra.WithStatsBucket(cfg.statsBucket),
		infra.WithStatsTrackKeys(cfg.statsTrackKeys),
	)
	return store, func() { _ = rdb.Close() }, nil
}
