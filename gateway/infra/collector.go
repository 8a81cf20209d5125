package infra

import (
	"context"
	"net/http"

	"overload-gateway/gateway/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector exporta decisões e a visão do sistema para Prometheus.
//
// Implementa domain.StatsStore (contador por decisão) e recebe a SystemView
// a cada tick em Update (gauges).
type Collector struct {
	reg *prometheus.Registry

	decisions *prometheus.CounterVec

	tokens         prometheus.Gauge
	bucketCapacity prometheus.Gauge
	refillRate     prometheus.Gauge
	activeUsers    prometheus.Gauge
	maxUsers       prometheus.Gauge
	activeTenants  prometheus.Gauge
	queueLength    *prometheus.GaugeVec
	healthy        prometheus.Gauge
	backends       prometheus.Gauge
	breakerOpen    *prometheus.GaugeVec
	reqPerSec      prometheus.Gauge
}

func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "gateway"
	}
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help})
	}

	c := &Collector{
		reg: prometheus.NewRegistry(),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Decisions taken for /request, by outcome and reason.",
		}, []string{"decision", "reason"}),
		tokens:         gauge("bucket_tokens", "Tokens currently in the global bucket."),
		bucketCapacity: gauge("bucket_capacity", "Global bucket capacity."),
		refillRate:     gauge("bucket_refill_rate", "Global bucket refill rate (tokens/s)."),
		activeUsers:    gauge("active_users", "Sessions currently admitted."),
		maxUsers:       gauge("max_users", "Current admission ceiling."),
		activeTenants:  gauge("active_tenants", "Tenants with a sub-bucket."),
		queueLength: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_length",
			Help:      "Queued entries by priority.",
		}, []string{"priority"}),
		healthy:  gauge("backends_healthy", "Healthy backends."),
		backends: gauge("backends_registered", "Registered backends."),
		breakerOpen: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "breaker_state",
			Help:      "1 for the current circuit breaker state, 0 otherwise.",
		}, []string{"state"}),
		reqPerSec: gauge("requests_last_tick", "Requests seen in the last 1s tick."),
	}

	c.reg.MustRegister(
		c.decisions, c.tokens, c.bucketCapacity, c.refillRate, c.activeUsers, c.maxUsers,
		c.activeTenants, c.queueLength, c.healthy, c.backends, c.breakerOpen, c.reqPerSec,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

func (c *Collector) Registry() *prometheus.Registry { return c.reg }

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{Registry: c.reg})
}

func (c *Collector) Record(_ context.Context, ev domain.StatsEvent) error {
	reason := string(ev.Reason)
	if reason == "" {
		reason = "none"
	}
	c.decisions.WithLabelValues(string(ev.Outcome), reason).Inc()
	return nil
}

func (c *Collector) Update(v domain.SystemView) {
	c.tokens.Set(v.Resources.Tokens)
	c.bucketCapacity.Set(v.Resources.BucketCapacity)
	c.refillRate.Set(v.Resources.RefillRate)
	c.activeUsers.Set(float64(v.Resources.ActiveUsers))
	c.maxUsers.Set(float64(v.Resources.MaxUsers))
	c.activeTenants.Set(float64(v.Resources.ActiveTenants))
	c.reqPerSec.Set(float64(v.Traffic.ReqPerSec))

	c.queueLength.WithLabelValues(domain.PriorityHigh.String()).Set(float64(v.Queues.High))
	c.queueLength.WithLabelValues(domain.PriorityMedium.String()).Set(float64(v.Queues.Medium))
	c.queueLength.WithLabelValues(domain.PriorityLow.String()).Set(float64(v.Queues.Low))

	healthy := 0
	for _, b := range v.System.Backends {
		if b.Healthy {
			healthy++
		}
	}
	c.healthy.Set(float64(healthy))
	c.backends.Set(float64(len(v.System.Backends)))

	for _, s := range []domain.BreakerState{domain.BreakerClosed, domain.BreakerOpen, domain.BreakerHalfOpen} {
		val := 0.0
		if s == v.Breaker {
			val = 1
		}
		c.breakerOpen.WithLabelValues(string(s)).Set(val)
	}
}
