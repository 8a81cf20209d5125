package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"overload-gateway/gateway/application"
	"overload-gateway/gateway/infra"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Server agrupa as dependências dos handlers HTTP.
type Server struct {
	Gateway      *application.Gateway
	Provisioning *application.Provisioning

	// Stats alimenta GET /system/stats; nil desliga a rota.
	Stats *infra.MemoryStatsStore
	// Collector expõe GET /metrics; os gauges são atualizados a cada scrape.
	Collector *infra.Collector
	// Hub atende GET /ws.
	Hub http.Handler

	Edge        EdgeOptions
	Concurrency ConcurrencyOptions

	// RecentAlerts é quantos alertas entram em /system/metrics (padrão 5).
	RecentAlerts int
	Log          *zap.Logger
}

func (s *Server) log() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

// Routes monta o roteador. As rotas também respondem sob /api, o prefixo
// usado pelo dashboard.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(RequestID)
	r.Use(AccessLog(s.log()))
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	if s.Collector != nil {
		r.Get("/metrics", s.handlePrometheus)
	}
	if s.Hub != nil {
		r.Get("/ws", s.Hub.ServeHTTP)
	}

	// um único pool de concorrência e um único limiter de borda para os dois prefixos
	mount := s.mount(ConcurrencyMiddleware(s.Concurrency), EdgeRateLimit(s.Edge))
	r.Group(mount)
	r.Route("/api", mount)
	return r
}

func (s *Server) mount(inflight, edge func(http.Handler) http.Handler) func(chi.Router) {
	return func(r chi.Router) {
		r.Use(inflight)
		s.routes(r, edge)
	}
}

func (s *Server) routes(r chi.Router, edge func(http.Handler) http.Handler) {
	r.Post("/request", s.handleRequest)
	r.Post("/release", s.handleRelease)
	r.Get("/queue-status", s.handleQueueStatus)

	r.Get("/system/metrics", s.handleMetrics)
	r.Get("/system/alerts", s.handleAlerts)
	r.Get("/system/circuit-breaker", s.handleBreaker)
	r.Get("/system/stats", s.handleStats)

	r.Group(func(r chi.Router) {
		r.Use(edge)
		r.Get("/system/control/config", s.handleConfig)
		r.Post("/system/control/update", s.handleConfigUpdate)
		r.Post("/system/servers/add", s.handleAddServer)
		r.Post("/system/circuit-breaker/faults", s.handleFaults)
	})
}

// ListenAndServe serve até ctx encerrar e então faz shutdown gracioso.
func ListenAndServe(ctx context.Context, addr string, h http.Handler, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("gateway listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	log.Info("shutting down http server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
