package main

import (
	"context"
	"encoding/json"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"
)

const highLoadPercent = 80

type usage struct {
	CPU    float64 // percentual 0-100
	Memory float64 // percentual 0-100
}

type sampler interface {
	Sample(ctx context.Context) (usage, error)
}

type hostSampler struct{}

func (hostSampler) Sample(ctx context.Context) (usage, error) {
	var u usage
	pct, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return u, err
	}
	if len(pct) > 0 {
		u.CPU = pct[0]
	}
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return u, err
	}
	u.Memory = vm.UsedPercent
	return u, nil
}

type Worker struct {
	Port      int
	Latency   time.Duration
	ErrorRate float64
	Sampler   sampler
	Log       *zap.Logger

	// Now e Rand são trocados nos testes.
	Now  func() time.Time
	Rand func() float64
}

type healthResponse struct {
	CPU        string `json:"cpu"`
	Memory     string `json:"memory"`
	LoadStatus string `json:"loadStatus"`
}

type processResponse struct {
	Message    string          `json:"message"`
	Port       int             `json:"port"`
	Degraded   bool            `json:"degraded"`
	ReceivedAt time.Time       `json:"receivedAt"`
	Echo       json.RawMessage `json:"echo,omitempty"`
}

func (w *Worker) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/health", w.handleHealth)
	r.Post("/process", w.handleProcess)
	return r
}

func (w *Worker) log() *zap.Logger {
	if w.Log == nil {
		return zap.NewNop()
	}
	return w.Log
}

func percent(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64) + "%"
}

func (w *Worker) handleHealth(rw http.ResponseWriter, r *http.Request) {
	var u usage
	if w.Sampler != nil {
		var err error
		u, err = w.Sampler.Sample(r.Context())
		if err != nil {
			w.log().Warn("sample host usage", zap.Error(err))
		}
	}
	status := "NORMAL"
	if u.CPU > highLoadPercent {
		status = "HIGH"
	}
	writeJSON(rw, http.StatusOK, healthResponse{
		CPU:        percent(u.CPU),
		Memory:     percent(u.Memory),
		LoadStatus: status,
	})
}

func (w *Worker) handleProcess(rw http.ResponseWriter, r *http.Request) {
	degraded := r.Header.Get("x-degraded-mode") == "true"

	if w.Latency > 0 {
		d := w.Latency
		// em modo degradado o trabalho é mais leve
		if degraded {
			d /= 2
		}
		select {
		case <-time.After(d):
		case <-r.Context().Done():
			return
		}
	}

	rnd := w.Rand
	if rnd == nil {
		rnd = rand.Float64
	}
	if w.ErrorRate > 0 && rnd() < w.ErrorRate {
		writeJSON(rw, http.StatusInternalServerError, map[string]string{"error": "simulated failure"})
		return
	}

	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	resp := processResponse{
		Message:    "Processed by server " + strconv.Itoa(w.Port),
		Port:       w.Port,
		Degraded:   degraded,
		ReceivedAt: now().UTC(),
	}
	if degraded {
		resp.Message = "Processed (degraded) by server " + strconv.Itoa(w.Port)
	} else {
		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err == nil && json.Valid(body) {
			resp.Echo = body
		}
	}
	writeJSON(rw, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
