package application

import (
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"overload-gateway/gateway/clock"
	"overload-gateway/gateway/domain"
)

// ProbeResult é o resultado de um health check.
type ProbeResult struct {
	URL    string
	Report domain.HealthReport
	Err    error
}

// Balancer é o registro de backends e o round-robin sobre os saudáveis.
// Backends nunca são removidos, apenas marcados como unhealthy.
type Balancer struct {
	mu       sync.RWMutex
	backends []*domain.Backend
	index    map[string]*domain.Backend
	healthy  []string

	cursor atomic.Uint64
	clk    clock.Clock
}

func NewBalancer(c clock.Clock) *Balancer {
	return &Balancer{
		index: make(map[string]*domain.Backend),
		clk:   clock.OrReal(c),
	}
}

// Add registra um backend. Os seeds de configuração entram healthy; backends
// provisionados entram unhealthy até o primeiro probe passar.
func (b *Balancer) Add(rawURL string, healthy bool) error {
	if _, err := url.ParseRequestURI(rawURL); err != nil {
		return fmt.Errorf("backend url %q: %w", rawURL, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.index[rawURL]; ok {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateBackend, rawURL)
	}
	be := &domain.Backend{
		URL:         rawURL,
		Healthy:     healthy,
		CPU:         "0%",
		Memory:      "0%",
		LoadStatus:  "STABLE",
		LastUpdated: b.clk.Now(),
	}
	b.backends = append(b.backends, be)
	b.index[rawURL] = be
	b.recompute()
	return nil
}

// recompute deve ser chamado com b.mu travado para escrita.
func (b *Balancer) recompute() {
	healthy := make([]string, 0, len(b.backends))
	for _, be := range b.backends {
		if be.Healthy {
			healthy = append(healthy, be.URL)
		}
	}
	b.healthy = healthy
}

// Next escolhe o próximo backend saudável em round-robin.
func (b *Balancer) Next() (string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := len(b.healthy)
	if n == 0 {
		return "", domain.ErrNoBackend
	}
	i := b.cursor.Add(1) - 1
	return b.healthy[i%uint64(n)], nil
}

// Begin marca o início de um dispatch (active++). A função devolvida encerra o
// dispatch: active--, requests++ ou rejected++ e atualiza a latência suavizada.
func (b *Balancer) Begin(rawURL string) (func(ok bool), error) {
	b.mu.Lock()
	be, found := b.index[rawURL]
	if !found {
		b.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownBackend, rawURL)
	}
	be.Active++
	b.mu.Unlock()

	start := b.clk.Now()
	var once sync.Once
	return func(ok bool) {
		once.Do(func() {
			latency := float64(b.clk.Since(start)) / float64(time.Millisecond)
			b.mu.Lock()
			defer b.mu.Unlock()
			be.Active--
			if ok {
				be.Requests++
				be.AvgLatency = be.AvgLatency*0.8 + latency*0.2
			} else {
				be.Rejected++
			}
		})
	}, nil
}

// ApplyHealth aplica um ciclo de probes e retorna quantos estão saudáveis.
// URLs sem resultado mantêm o estado anterior.
func (b *Balancer) ApplyHealth(results []ProbeResult) int {
	now := b.clk.Now()

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, r := range results {
		be, ok := b.index[r.URL]
		if !ok {
			continue
		}
		be.LastUpdated = now
		if r.Err != nil {
			be.Healthy = false
			be.CPU = "N/A"
			be.Memory = "N/A"
			continue
		}
		be.Healthy = true
		be.CPU = orDefault(r.Report.CPU, "0%")
		be.Memory = orDefault(r.Report.Memory, "0%")
		be.LoadStatus = orDefault(r.Report.LoadStatus, "STABLE")
		be.RequestsLastPeriod = be.Requests - be.PreviousTotalRequests
		be.PreviousTotalRequests = be.Requests
	}
	b.recompute()
	return len(b.healthy)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func (b *Balancer) URLs() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, len(b.backends))
	for i, be := range b.backends {
		out[i] = be.URL
	}
	return out
}

// Has informa se a URL já está registrada.
func (b *Balancer) Has(rawURL string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.index[rawURL]
	return ok
}

func (b *Balancer) HealthyCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.healthy)
}

func (b *Balancer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.backends)
}

// Snapshot copia o estado de todos os backends, na ordem de registro.
func (b *Balancer) Snapshot() []domain.Backend {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]domain.Backend, len(b.backends))
	for i, be := range b.backends {
		out[i] = *be
	}
	return out
}

// LastPort retorna a porta do último backend registrado.
func (b *Balancer) LastPort() (string, int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.backends) == 0 {
		return "", 0, domain.ErrUnknownBackend
	}
	u, err := url.Parse(b.backends[len(b.backends)-1].URL)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		return "", 0, fmt.Errorf("backend %s has no numeric port: %w", u, err)
	}
	return u.Hostname(), port, nil
}
