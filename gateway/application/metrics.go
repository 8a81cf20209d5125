package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	"overload-gateway/gateway/clock"
	"overload-gateway/gateway/domain"

	"go.uber.org/zap"
)

type MetricsConfig struct {
	Window    int // snapshots retidos
	MaxAlerts int
}

func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{Window: 30, MaxAlerts: 20}
}

const (
	predictionSamples = 5
	anomalyFactor     = 1.5
	softOverloadRate  = 15
	scaleUpRate       = 20
	scaleDownRate     = 5
	throttleFailRate  = 0.10
	cpuOverloadFactor = 0.8
)

// Metrics agrega contadores por tick de 1s numa janela deslizante, aprende um
// perfil de tráfego por hora:minuto e mantém a lista de alertas recentes.
type Metrics struct {
	cfg     MetricsConfig
	sampler domain.SystemSampler
	clk     clock.Clock
	log     *zap.Logger

	backends func() int

	mu            sync.Mutex
	current       domain.Snapshot
	window        []domain.Snapshot
	profile       map[string]float64
	alerts        []domain.Alert
	instanceCount int
	lastSample    domain.SystemSample

	onAlert []func(domain.Alert)
	onTick  []func(domain.Snapshot)
}

type MetricsOption func(*Metrics)

func WithMetricsClock(c clock.Clock) MetricsOption {
	return func(m *Metrics) { m.clk = clock.OrReal(c) }
}

func WithMetricsLogger(l *zap.Logger) MetricsOption {
	return func(m *Metrics) {
		if l != nil {
			m.log = l
		}
	}
}

// WithBackendCount informa quantos backends existem em cada snapshot.
func WithBackendCount(fn func() int) MetricsOption {
	return func(m *Metrics) { m.backends = fn }
}

func NewMetrics(sampler domain.SystemSampler, cfg MetricsConfig, opts ...MetricsOption) *Metrics {
	def := DefaultMetricsConfig()
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.MaxAlerts <= 0 {
		cfg.MaxAlerts = def.MaxAlerts
	}
	m := &Metrics{
		cfg:           cfg,
		sampler:       sampler,
		clk:           clock.Real{},
		log:           zap.NewNop(),
		profile:       make(map[string]float64),
		instanceCount: 1,
		lastSample:    domain.SystemSample{Cores: 1},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Metrics) OnAlert(fn func(domain.Alert)) {
	m.mu.Lock()
	m.onAlert = append(m.onAlert, fn)
	m.mu.Unlock()
}

func (m *Metrics) OnTick(fn func(domain.Snapshot)) {
	m.mu.Lock()
	m.onTick = append(m.onTick, fn)
	m.mu.Unlock()
}

// Record conta uma decisão no período corrente. FAILED conta como rejeitada.
func (m *Metrics) Record(o domain.Outcome) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.Requests++
	switch o {
	case domain.OutcomeAccepted:
		m.current.Accepted++
	case domain.OutcomeQueued:
		m.current.Queued++
	case domain.OutcomeRejected, domain.OutcomeFailed:
		m.current.Rejected++
	}
}

func profileKey(t time.Time) string {
	return fmt.Sprintf("%d:%d", t.Hour(), t.Minute())
}

// Tick fecha o período corrente: amostra o host, grava o snapshot na janela,
// atualiza o perfil, zera os contadores e roda a predição de carga.
func (m *Metrics) Tick(ctx context.Context) domain.Snapshot {
	var (
		sample    domain.SystemSample
		sampleErr error
	)
	if m.sampler != nil {
		sample, sampleErr = m.sampler.Sample(ctx)
	}
	backends := 0
	if m.backends != nil {
		backends = m.backends()
	}
	now := m.clk.Now()

	m.mu.Lock()
	if m.sampler != nil && sampleErr == nil {
		if sample.Cores <= 0 {
			sample.Cores = m.lastSample.Cores
		}
		m.lastSample = sample
	}
	snap := m.current
	snap.At = now
	snap.InstanceCount = m.instanceCount
	snap.CPU = m.lastSample.Load1
	snap.Memory = m.lastSample.Memory
	snap.Backends = backends

	key := profileKey(now)
	if prev, ok := m.profile[key]; ok {
		m.profile[key] = prev*0.9 + float64(snap.Requests)*0.1
	} else {
		m.profile[key] = float64(snap.Requests)
	}

	m.window = append(m.window, snap)
	if len(m.window) > m.cfg.Window {
		m.window = m.window[len(m.window)-m.cfg.Window:]
	}
	m.current = domain.Snapshot{}

	alerts := m.predictLocked(key)
	hooks := append([]func(domain.Snapshot){}, m.onTick...)
	m.mu.Unlock()

	if sampleErr != nil {
		m.log.Debug("system sample failed", zap.Error(sampleErr))
	}
	for _, a := range alerts {
		m.AddAlert(domain.AlertWarning, a)
	}
	for _, h := range hooks {
		h(snap)
	}
	return snap
}

// predictLocked compara a média dos últimos 5 ticks com o perfil aprendido e
// com o limiar de soft overload. Deve ser chamado com m.mu travado.
func (m *Metrics) predictLocked(key string) []string {
	if len(m.window) < predictionSamples {
		return nil
	}
	last := m.window[len(m.window)-predictionSamples:]
	sum := 0
	for _, s := range last {
		sum += s.Requests
	}
	avg := float64(sum) / predictionSamples
	latest := float64(last[len(last)-1].Requests)

	var out []string
	if hist := m.profile[key]; hist > 0 && avg > hist*anomalyFactor {
		out = append(out, "Traffic Anomaly: Loading is 50% higher than historical average for this time.")
	}
	// tendência de alta: o tick mais recente ainda abaixo da média dos 5
	if avg > softOverloadRate && latest < avg {
		out = append(out, "Soft Overload Predicted: Incoming traffic trend is increasing.")
	}
	return out
}

// AddAlert insere um alerta no topo da lista, ignorando repetição do mais recente.
func (m *Metrics) AddAlert(level domain.AlertLevel, message string) {
	m.mu.Lock()
	if len(m.alerts) > 0 && m.alerts[0].Message == message {
		m.mu.Unlock()
		return
	}
	a := domain.Alert{Type: level, Message: message, Timestamp: m.clk.Now()}
	m.alerts = append([]domain.Alert{a}, m.alerts...)
	if len(m.alerts) > m.cfg.MaxAlerts {
		m.alerts = m.alerts[:m.cfg.MaxAlerts]
	}
	hooks := append([]func(domain.Alert){}, m.onAlert...)
	m.mu.Unlock()

	fields := []zap.Field{zap.String("type", string(level)), zap.String("message", message)}
	switch level {
	case domain.AlertCritical:
		m.log.Error("alert", fields...)
	case domain.AlertWarning:
		m.log.Warn("alert", fields...)
	default:
		m.log.Info("alert", fields...)
	}
	for _, h := range hooks {
		h(a)
	}
}

// Alerts retorna até n alertas, do mais recente para o mais antigo (n <= 0: todos).
func (m *Metrics) Alerts(n int) []domain.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n <= 0 || n > len(m.alerts) {
		n = len(m.alerts)
	}
	out := make([]domain.Alert, n)
	copy(out, m.alerts[:n])
	return out
}

func (m *Metrics) Latest() (domain.Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.window) == 0 {
		return domain.Snapshot{}, false
	}
	return m.window[len(m.window)-1], true
}

func (m *Metrics) Window() []domain.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Snapshot(nil), m.window...)
}

// Profile retorna a taxa aprendida para o hora:minuto de t.
func (m *Metrics) Profile(t time.Time) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.profile[profileKey(t)]
	return v, ok
}

func (m *Metrics) Cores() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastSample.Cores <= 0 {
		return 1
	}
	return m.lastSample.Cores
}

func (m *Metrics) InstanceCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.instanceCount
}

// ScaleUp incrementa o número de instâncias se ainda estiver abaixo de max.
func (m *Metrics) ScaleUp(max int) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.instanceCount >= max {
		return m.instanceCount, false
	}
	m.instanceCount++
	return m.instanceCount, true
}

// Advise decide a ação de ajuste e o teto recomendado. Sobrecarga de CPU
// (load > núcleos*0.8) gera alerta crítico.
func (m *Metrics) Advise(reqRate int, cpuLoad, failRate float64) domain.Advice {
	overloaded := cpuLoad > float64(m.Cores())*cpuOverloadFactor

	action := domain.ActionMaintain
	switch {
	case failRate > throttleFailRate || overloaded:
		action = domain.ActionThrottle
		if overloaded {
			m.AddAlert(domain.AlertCritical, "System overloaded: High CPU detected.")
		}
	case reqRate > scaleUpRate:
		action = domain.ActionScaleUp
	case reqRate < scaleDownRate:
		action = domain.ActionScaleDown
	}

	return domain.Advice{
		Action:              action,
		RecommendedMaxUsers: RecommendedCapacity(failRate, overloaded),
		CPUOverloaded:       overloaded,
	}
}

// RecommendedCapacity: base 50; 25 com CPU sobrecarregada; no máximo 30 com
// failRate > 0.05; 10 com failRate > 0.20.
func RecommendedCapacity(failRate float64, cpuOverloaded bool) int {
	target := 50
	if cpuOverloaded {
		target = 25
	}
	if failRate > 0.05 {
		target = min(target, 30)
	}
	if failRate > 0.20 {
		target = 10
	}
	return target
}

func (m *Metrics) Run(ctx context.Context, interval time.Duration) error {
	return runEvery(ctx, interval, func(ctx context.Context) { m.Tick(ctx) })
}
