package domain

// Camada de domínio do rate limit.
//
// Dois níveis convivem aqui: o bucket global + sub-buckets por tenant que
// protegem os backends, e o limiter de borda por cliente que protege as rotas
// de controle do próprio gateway.

import "time"

type Key string

// Limiter representa algo que pode decidir se uma ação é permitida agora.
// A camada de infra usa golang.org/x/time/rate.
type Limiter interface {
	Allow() bool
}

// LimiterStore obtém um limiter por chave (ex: IP, API key).
type LimiterStore interface {
	Get(Key) Limiter
}

// Decision é a decisão do limiter de borda.
type Decision struct {
	Allowed bool
	// RetryAfter é o valor a ser retornado em Retry-After quando bloquear.
	// Se 0, não há recomendação.
	RetryAfter time.Duration
}

// ConsumeResult é o resultado de consumir tokens do bucket global/tenant.
type ConsumeResult struct {
	Allowed bool
	Reason  Reason
}

// LimiterStats é a visão diagnóstica do bucket global.
type LimiterStats struct {
	Tokens        float64 `json:"tokens"`
	Capacity      float64 `json:"capacity"`
	RefillRate    float64 `json:"refillRate"`
	ActiveTenants int     `json:"activeTenants"`
}
