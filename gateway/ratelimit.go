package gateway

import (
	"net/http"
	"time"

	"overload-gateway/gateway/application"
	"overload-gateway/gateway/domain"
)

// EdgeOptions configura o limiter de borda das rotas de controle.
type EdgeOptions struct {
	Store     domain.LimiterStore
	Stats     domain.StatsStore
	KeyFn     KeyFunc
	KeyHeader string

	TrustXForwardedFor  bool
	RejectStatus        int
	RetryAfter          time.Duration
	AddRateLimitHeaders bool
}

type rateInfo interface {
	RPS() float64
	Burst() int
}

// EdgeRateLimit limita cada cliente com um token bucket próprio. Recusas
// respondem RejectStatus (429) com Retry-After em segundos.
func EdgeRateLimit(opts EdgeOptions) func(next http.Handler) http.Handler {
	if opts.Store == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusTooManyRequests
	}
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.KeyHeader, opts.TrustXForwardedFor)
	}

	svc := application.EdgeService{
		Store:      opts.Store,
		RetryAfter: opts.RetryAfter,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := opts.KeyFn(r)

			if opts.AddRateLimitHeaders {
				w.Header().Set("X-RateLimit-Key", key)
				if ri, ok := opts.Store.(rateInfo); ok {
					w.Header().Set("X-RateLimit-RPS", formatFloat(ri.RPS()))
					w.Header().Set("X-RateLimit-Burst", formatInt(ri.Burst()))
				}
			}

			dec := svc.Decide(domain.Key(key))
			if !dec.Allowed {
				if opts.Stats != nil {
					_ = opts.Stats.Record(r.Context(), domain.StatsEvent{
						Identity: domain.Key(key),
						Outcome:  domain.OutcomeRejected,
						Reason:   domain.ReasonEdgeLimit,
						Method:   r.Method,
						Path:     r.URL.Path,
						At:       time.Now(),
					})
				}
				w.Header().Set("Retry-After", formatInt(int(dec.RetryAfter.Seconds())))
				writeJSON(w, opts.RejectStatus, map[string]any{
					"decision": domain.OutcomeRejected,
					"reason":   domain.ReasonEdgeLimit,
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
