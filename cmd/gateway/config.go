package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type config struct {
	listenAddr string
	backends   []string

	rateCapacity       float64
	rateRefill         float64
	rateTenantCapacity float64
	rateTenantRefill   float64
	rateTenantIdleTTL  time.Duration
	refillInterval     time.Duration

	maxUsers     int
	maxQueue     int
	queueTimeout time.Duration
	degradeRatio float64

	breakerThreshold int
	breakerReset     time.Duration

	healthInterval    time.Duration
	healthTimeout     time.Duration
	probeConcurrency  int
	recoveryDuration  time.Duration
	recoveryMaxUsers  int
	metricsInterval   time.Duration
	metricsWindow     int
	metricsMaxAlerts  int
	tuningInterval    time.Duration
	tuningMaxInstance int

	storeBackend  string
	redisAddr     string
	redisPassword string
	redisDB       int
	statePrefix   string

	statsEnabled   bool
	statsBackend   string
	statsRedisAddr string
	statsPrefix    string
	statsTTL       time.Duration
	statsBucket    string
	statsTrackKeys bool

	controlRPS       float64
	controlBurst     int
	controlKeyHeader string
	trustXFF         bool
	addHeaders       bool

	concurrencyMax     int
	concurrencyTimeout time.Duration

	provisionCommand string
	provisionArgs    []string
	provisionDir     string
	provisionHost    string

	logLevel  string
	logFormat string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen_addr", ":3005")
	backends := make([]string, 0, 11)
	for port := 4000; port <= 4010; port++ {
		backends = append(backends, fmt.Sprintf("http://localhost:%d", port))
	}
	v.SetDefault("backends", strings.Join(backends, ","))

	v.SetDefault("rate.capacity", 40)
	v.SetDefault("rate.refill_rate", 3)
	v.SetDefault("rate.tenant_capacity", 10)
	v.SetDefault("rate.tenant_refill", 4)
	v.SetDefault("rate.tenant_idle_ttl", "10m")
	v.SetDefault("rate.refill_interval", "1s")

	v.SetDefault("admission.max_users", 50)
	v.SetDefault("admission.max_queue", 1000)
	v.SetDefault("admission.queue_timeout", "30s")
	v.SetDefault("admission.degrade_ratio", 0.8)

	v.SetDefault("breaker.failure_threshold", 3)
	v.SetDefault("breaker.reset_timeout", "5s")

	v.SetDefault("health.interval", "2s")
	v.SetDefault("health.timeout", "1500ms")
	v.SetDefault("health.probe_concurrency", 8)
	v.SetDefault("recovery.duration", "30s")
	v.SetDefault("recovery.max_users", 5)
	v.SetDefault("metrics.interval", "1s")
	v.SetDefault("metrics.window", 30)
	v.SetDefault("metrics.max_alerts", 20)
	v.SetDefault("tuning.interval", "5s")
	v.SetDefault("tuning.max_instances", 5)

	v.SetDefault("store.backend", "memory")
	v.SetDefault("store.redis_addr", "")
	v.SetDefault("store.redis_password", "")
	v.SetDefault("store.redis_db", 0)
	v.SetDefault("store.prefix", "gateway:state")

	v.SetDefault("rate_stats.enabled", true)
	v.SetDefault("rate_stats.backend", "memory")
	v.SetDefault("rate_stats.redis_addr", "")
	v.SetDefault("rate_stats.prefix", "gateway:stats")
	v.SetDefault("rate_stats.ttl", "24h")
	v.SetDefault("rate_stats.bucket", "minute")
	v.SetDefault("rate_stats.track_keys", false)

	v.SetDefault("control.rps", 5)
	v.SetDefault("control.burst", 10)
	v.SetDefault("control.key_header", "X-Api-Key")
	v.SetDefault("control.add_headers", true)
	v.SetDefault("trust_xff", false)

	v.SetDefault("concurrency.max", 200)
	v.SetDefault("concurrency.timeout", "0s")

	v.SetDefault("provision.command", "")
	v.SetDefault("provision.args", "--port,{port}")
	v.SetDefault("provision.dir", "")
	v.SetDefault("provision.host", "localhost")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// splitList aceita tanto uma lista (arquivo de config) quanto uma string
// separada por vírgulas (env).
func splitList(v *viper.Viper, key string) []string {
	var raw []string
	switch val := v.Get(key).(type) {
	case []any:
		for _, x := range val {
			raw = append(raw, fmt.Sprint(x))
		}
	case []string:
		raw = val
	default:
		raw = strings.Split(v.GetString(key), ",")
	}
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func readConfig(v *viper.Viper) (config, error) {
	cfg := config{
		listenAddr: v.GetString("listen_addr"),
		backends:   splitList(v, "backends"),

		rateCapacity:       v.GetFloat64("rate.capacity"),
		rateRefill:         v.GetFloat64("rate.refill_rate"),
		rateTenantCapacity: v.GetFloat64("rate.tenant_capacity"),
		rateTenantRefill:   v.GetFloat64("rate.tenant_refill"),
		rateTenantIdleTTL:  v.GetDuration("rate.tenant_idle_ttl"),
		refillInterval:     v.GetDuration("rate.refill_interval"),

		maxUsers:     v.GetInt("admission.max_users"),
		maxQueue:     v.GetInt("admission.max_queue"),
		queueTimeout: v.GetDuration("admission.queue_timeout"),
		degradeRatio: v.GetFloat64("admission.degrade_ratio"),

		breakerThreshold: v.GetInt("breaker.failure_threshold"),
		breakerReset:     v.GetDuration("breaker.reset_timeout"),

		healthInterval:    v.GetDuration("health.interval"),
		healthTimeout:     v.GetDuration("health.timeout"),
		probeConcurrency:  v.GetInt("health.probe_concurrency"),
		recoveryDuration:  v.GetDuration("recovery.duration"),
		recoveryMaxUsers:  v.GetInt("recovery.max_users"),
		metricsInterval:   v.GetDuration("metrics.interval"),
		metricsWindow:     v.GetInt("metrics.window"),
		metricsMaxAlerts:  v.GetInt("metrics.max_alerts"),
		tuningInterval:    v.GetDuration("tuning.interval"),
		tuningMaxInstance: v.GetInt("tuning.max_instances"),

		storeBackend:  strings.ToLower(v.GetString("store.backend")),
		redisAddr:     v.GetString("store.redis_addr"),
		redisPassword: v.GetString("store.redis_password"),
		redisDB:       v.GetInt("store.redis_db"),
		statePrefix:   v.GetString("store.prefix"),

		statsEnabled:   v.GetBool("rate_stats.enabled"),
		statsBackend:   strings.ToLower(v.GetString("rate_stats.backend")),
		statsRedisAddr: v.GetString("rate_stats.redis_addr"),
		statsPrefix:    v.GetString("rate_stats.prefix"),
		statsTTL:       v.GetDuration("rate_stats.ttl"),
		statsBucket:    v.GetString("rate_stats.bucket"),
		statsTrackKeys: v.GetBool("rate_stats.track_keys"),

		controlRPS:       v.GetFloat64("control.rps"),
		controlBurst:     v.GetInt("control.burst"),
		controlKeyHeader: v.GetString("control.key_header"),
		trustXFF:         v.GetBool("trust_xff"),
		addHeaders:       v.GetBool("control.add_headers"),

		concurrencyMax:     v.GetInt("concurrency.max"),
		concurrencyTimeout: v.GetDuration("concurrency.timeout"),

		provisionCommand: v.GetString("provision.command"),
		provisionArgs:    splitList(v, "provision.args"),
		provisionDir:     v.GetString("provision.dir"),
		provisionHost:    v.GetString("provision.host"),

		logLevel:  v.GetString("log.level"),
		logFormat: v.GetString("log.format"),
	}

	// o redis de stats herda o do state store quando não informado
	if cfg.statsRedisAddr == "" {
		cfg.statsRedisAddr = cfg.redisAddr
	}

	if len(cfg.backends) == 0 {
		return config{}, errors.New("backends: at least one backend URL is required")
	}
	if cfg.rateCapacity <= 0 || cfg.rateRefill <= 0 {
		return config{}, errors.New("rate.capacity and rate.refill_rate must be > 0")
	}
	if cfg.rateTenantCapacity <= 0 || cfg.rateTenantRefill <= 0 {
		return config{}, errors.New("rate.tenant_capacity and rate.tenant_refill must be > 0")
	}
	if cfg.maxUsers <= 0 {
		return config{}, errors.New("admission.max_users must be > 0")
	}
	if cfg.maxQueue < 0 {
		return config{}, errors.New("admission.max_queue must be >= 0")
	}
	if cfg.degradeRatio <= 0 || cfg.degradeRatio > 1 {
		return config{}, errors.New("admission.degrade_ratio must be in (0, 1]")
	}
	if cfg.breakerThreshold <= 0 {
		return config{}, errors.New("breaker.failure_threshold must be > 0")
	}
	for name, d := range map[string]time.Duration{
		"rate.refill_interval":    cfg.refillInterval,
		"admission.queue_timeout": cfg.queueTimeout,
		"breaker.reset_timeout":   cfg.breakerReset,
		"health.interval":         cfg.healthInterval,
		"health.timeout":          cfg.healthTimeout,
		"recovery.duration":       cfg.recoveryDuration,
		"metrics.interval":        cfg.metricsInterval,
		"tuning.interval":         cfg.tuningInterval,
	} {
		if d <= 0 {
			return config{}, fmt.Errorf("%s must be > 0", name)
		}
	}
	if cfg.probeConcurrency <= 0 {
		return config{}, errors.New("health.probe_concurrency must be > 0")
	}
	if cfg.controlRPS <= 0 || cfg.controlBurst <= 0 {
		return config{}, errors.New("control.rps and control.burst must be > 0")
	}
	if cfg.concurrencyMax < 0 {
		return config{}, errors.New("concurrency.max must be >= 0")
	}

	switch cfg.storeBackend {
	case "memory":
	case "redis":
		if strings.TrimSpace(cfg.redisAddr) == "" {
			return config{}, errors.New("store.redis_addr is required when store.backend=redis")
		}
	default:
		return config{}, fmt.Errorf("store.backend: unknown backend %q", cfg.storeBackend)
	}

	if cfg.statsEnabled {
		switch cfg.statsBackend {
		case "memory":
		case "redis":
			if strings.TrimSpace(cfg.statsRedisAddr) == "" {
				return config{}, errors.New("rate_stats.redis_addr is required when rate_stats.backend=redis")
			}
		default:
			return config{}, fmt.Errorf("rate_stats.backend: unknown backend %q", cfg.statsBackend)
		}
	}
	return cfg, nil
}
