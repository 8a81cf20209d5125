package domain

import (
	"context"
	"encoding/json"
	"time"
)

// Backend é a visão (cópia) de um worker registrado.
type Backend struct {
	URL                   string    `json:"url"`
	Healthy               bool      `json:"healthy"`
	Requests              int64     `json:"requests"`
	Rejected              int64     `json:"rejected"`
	Active                int64     `json:"active"`
	AvgLatency            float64   `json:"avgLatency"`
	CPU                   string    `json:"cpu"`
	Memory                string    `json:"memory"`
	LoadStatus            string    `json:"loadStatus"`
	RequestsLastPeriod    int64     `json:"requestsLastPeriod"`
	PreviousTotalRequests int64     `json:"previousTotalRequests"`
	LastUpdated           time.Time `json:"lastUpdated"`
}

// HealthReport é o corpo de GET /health de um worker.
type HealthReport struct {
	CPU        string `json:"cpu"`
	Memory     string `json:"memory"`
	LoadStatus string `json:"loadStatus"`
}

// BackendResponse é a resposta de POST /process.
type BackendResponse struct {
	Status int
	Body   json.RawMessage
}

// Prober consulta a saúde de um backend. Erro ou status fora de 2xx = unhealthy.
type Prober interface {
	Probe(ctx context.Context, url string) (HealthReport, error)
}

// Caller encaminha uma requisição admitida para um backend.
// Respostas 5xx são devolvidas sem erro; quem decide se é falha é o chamador.
type Caller interface {
	Process(ctx context.Context, url string, body []byte, degraded bool) (BackendResponse, error)
}

// Provisioner sobe um novo processo worker na porta indicada.
// onExit é chamado uma vez quando o processo termina (err nil = saída limpa).
type Provisioner interface {
	Provision(ctx context.Context, port int, onExit func(error)) error
}
