package domain

import (
	"context"
	"time"
)

// StatsEvent representa uma decisão tomada pelo gateway para uma requisição.
//
// Method/Path são strings genéricas. Cuidado com cardinalidade: salvar
// Identity sem controle pode explodir o número de chaves em Redis/Prometheus.
type StatsEvent struct {
	Identity Key
	Outcome  Outcome
	Reason   Reason

	Method string
	Path   string

	At time.Time
}

// StatsStore é a estratégia de persistência para estatísticas de decisão.
//
// Implementações podem armazenar em Redis, memória, Prometheus, etc.
// Quem registra deve tratar erro como best-effort (não derrubar request).
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}
