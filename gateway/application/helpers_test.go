package application

import (
	"context"
	"errors"
	"sync"
	"time"

	"overload-gateway/gateway/clock"
	"overload-gateway/gateway/domain"
	"overload-gateway/gateway/infra"
)

var epoch = time.Date(2026, 5, 4, 10, 15, 0, 0, time.UTC)

func newVirtual() *clock.Virtual { return clock.NewVirtual(epoch) }

func newLimiter(vc clock.Clock, capacity, refill float64) *RateLimiter {
	cfg := DefaultRateLimiterConfig()
	cfg.Capacity = capacity
	cfg.RefillRate = refill
	return NewRateLimiter(infra.NewMemoryStateStore(), infra.MsgpackCodec{}, cfg, WithLimiterClock(vc))
}

func newAdmission(vc clock.Clock, maxUsers int) *Admission {
	return NewAdmission(infra.NewMemoryStateStore(), infra.MsgpackCodec{}, AdmissionConfig{MaxUsers: maxUsers}, WithAdmissionClock(vc))
}

type alertLog struct {
	mu     sync.Mutex
	alerts []domain.Alert
}

func (a *alertLog) AddAlert(level domain.AlertLevel, msg string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = append(a.alerts, domain.Alert{Type: level, Message: msg})
}

func (a *alertLog) messages() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.alerts))
	for i, al := range a.alerts {
		out[i] = al.Message
	}
	return out
}

type fakeProber struct {
	mu   sync.Mutex
	down map[string]bool
	rep  domain.HealthReport
}

func (p *fakeProber) set(url string, down bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.down == nil {
		p.down = map[string]bool{}
	}
	p.down[url] = down
}

func (p *fakeProber) Probe(_ context.Context, url string) (domain.HealthReport, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.down[url] {
		return domain.HealthReport{}, errors.New("connection refused")
	}
	return p.rep, nil
}

type fakeCaller struct {
	mu     sync.Mutex
	status int
	err    error
	calls  []string
	degr   []bool
}

func (c *fakeCaller) Process(_ context.Context, url string, _ []byte, degraded bool) (domain.BackendResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, url)
	c.degr = append(c.degr, degraded)
	if c.err != nil {
		return domain.BackendResponse{}, c.err
	}
	status := c.status
	if status == 0 {
		status = 200
	}
	return domain.BackendResponse{Status: status, Body: []byte(`{"ok":true}`)}, nil
}

type fixedSampler struct {
	sample domain.SystemSample
	err    error
}

func (s fixedSampler) Sample(context.Context) (domain.SystemSample, error) { return s.sample, s.err }
