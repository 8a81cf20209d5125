package domain

import "time"

type BreakerState string

const (
	BreakerClosed   BreakerState = "CLOSED"
	BreakerOpen     BreakerState = "OPEN"
	BreakerHalfOpen BreakerState = "HALF_OPEN"
)

// FaultConfig controla a injeção de falhas usada em testes de resiliência.
type FaultConfig struct {
	InjectError   bool `json:"injectError"`
	InjectLatency bool `json:"injectLatency"`
	LatencyMs     int  `json:"latencyMs"`
}

// FaultUpdate é um merge parcial sobre FaultConfig; campos nil são mantidos.
type FaultUpdate struct {
	InjectError   *bool `json:"injectError,omitempty"`
	InjectLatency *bool `json:"injectLatency,omitempty"`
	LatencyMs     *int  `json:"latencyMs,omitempty"`
}

func (c FaultConfig) Merge(u FaultUpdate) FaultConfig {
	if u.InjectError != nil {
		c.InjectError = *u.InjectError
	}
	if u.InjectLatency != nil {
		c.InjectLatency = *u.InjectLatency
	}
	if u.LatencyMs != nil && *u.LatencyMs >= 0 {
		c.LatencyMs = *u.LatencyMs
	}
	return c
}

// BreakerStats é a visão diagnóstica do breaker.
// NextAttempt só é preenchido quando State == OPEN.
type BreakerStats struct {
	State       BreakerState `json:"state"`
	Failures    int          `json:"failures"`
	NextAttempt *time.Time   `json:"nextAttempt"`
	Config      FaultConfig  `json:"config"`
}
