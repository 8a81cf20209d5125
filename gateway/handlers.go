package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"overload-gateway/gateway/application"
	"overload-gateway/gateway/domain"

	"go.uber.org/zap"
)

const defaultIdentity = "guest"

// identityBody aceita "identity" ou, de clientes antigos, "email".
type identityBody struct {
	Identity string `json:"identity"`
	Email    string `json:"email"`
	Priority string `json:"priority"`
}

func (b identityBody) identity() string {
	if v := strings.TrimSpace(b.Identity); v != "" {
		return v
	}
	if v := strings.TrimSpace(b.Email); v != "" {
		return v
	}
	return defaultIdentity
}

type acceptedResponse struct {
	Decision        domain.Outcome  `json:"decision"`
	Degraded        bool            `json:"degraded"`
	BackendResponse json.RawMessage `json:"backendResponse"`
	ActiveUsers     int             `json:"activeUsers"`
}

type queuedResponse struct {
	Decision domain.Outcome  `json:"decision"`
	Token    int64           `json:"token"`
	Priority domain.Priority `json:"priority"`
	Position int             `json:"position"`
}

type decisionResponse struct {
	Decision domain.Outcome `json:"decision"`
	Reason   domain.Reason  `json:"reason"`
}

func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	var in identityBody
	body, err := decodeBody(w, r, &in)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	prio, err := domain.ParsePriority(in.Priority)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.Gateway.Handle(r.Context(), application.Request{
		Identity: in.identity(),
		Priority: prio,
		Body:     body,
		Method:   r.Method,
		Path:     r.URL.Path,
	})
	if err != nil {
		s.log().Error("request handling failed",
			zap.String("identity", in.identity()),
			zap.String("request_id", GetRequestID(r.Context())),
			zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, decisionResponse{
			Decision: domain.OutcomeFailed,
			Reason:   domain.ReasonInternalError,
		})
		return
	}
	writeResult(w, res)
}

func writeResult(w http.ResponseWriter, res application.Result) {
	switch res.Outcome {
	case domain.OutcomeAccepted:
		payload := res.Response
		if len(payload) == 0 {
			payload = json.RawMessage("null")
		}
		writeJSON(w, http.StatusOK, acceptedResponse{
			Decision:        res.Outcome,
			Degraded:        res.Degraded,
			BackendResponse: payload,
			ActiveUsers:     res.ActiveUsers,
		})
	case domain.OutcomeQueued:
		writeJSON(w, http.StatusServiceUnavailable, queuedResponse{
			Decision: res.Outcome,
			Token:    res.Token,
			Priority: res.Priority,
			Position: res.Position,
		})
	case domain.OutcomeRejected:
		status := http.StatusServiceUnavailable
		if res.Reason == domain.ReasonGlobalLimit || res.Reason == domain.ReasonTenantLimit {
			w.Header().Set("Retry-After", "1")
			status = http.StatusTooManyRequests
		}
		writeJSON(w, status, decisionResponse{Decision: res.Outcome, Reason: res.Reason})
	default:
		writeJSON(w, http.StatusInternalServerError, decisionResponse{Decision: domain.OutcomeFailed, Reason: res.Reason})
	}
}

func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	var in identityBody
	if _, err := decodeBody(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	active, err := s.Gateway.Release(r.Context(), in.identity())
	if err != nil {
		s.log().Error("release failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "release failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "USER_RELEASED", "activeUsers": active})
}

func (s *Server) handleQueueStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	queue, err := s.Gateway.Admission.Queue(ctx)
	if err != nil {
		s.log().Error("queue listing failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "queue unavailable")
		return
	}
	st, err := s.Gateway.Admission.Status(ctx)
	if err != nil {
		s.log().Error("queue status failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "queue unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"queue":       queue,
		"counts":      st.Queues,
		"activeUsers": st.ActiveUsers,
		"maxUsers":    st.MaxUsers,
	})
}

func (s *Server) recentAlerts() int {
	if s.RecentAlerts <= 0 {
		return 5
	}
	return s.RecentAlerts
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	v, err := s.Gateway.View(r.Context(), s.recentAlerts())
	if err != nil {
		s.log().Error("metrics view failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "metrics unavailable")
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handlePrometheus(w http.ResponseWriter, r *http.Request) {
	if v, err := s.Gateway.View(r.Context(), 0); err == nil {
		s.Collector.Update(v)
	} else {
		s.log().Warn("collector refresh failed", zap.Error(err))
	}
	s.Collector.Handler().ServeHTTP(w, r)
}

func (s *Server) handleAlerts(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Gateway.Metrics.Alerts(0))
}

func (s *Server) handleBreaker(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Gateway.Breaker.Stats())
}

func (s *Server) handleFaults(w http.ResponseWriter, r *http.Request) {
	var u domain.FaultUpdate
	if _, err := decodeBody(w, r, &u); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.Gateway.Breaker.SetFaults(u))
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	if s.Stats == nil {
		writeError(w, http.StatusNotImplemented, "decision stats disabled")
		return
	}
	writeJSON(w, http.StatusOK, s.Stats.Report())
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.Gateway.Config(r.Context())
	if err != nil {
		s.log().Error("config read failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "config unavailable")
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleConfigUpdate(w http.ResponseWriter, r *http.Request) {
	var u application.ControlUpdate
	if _, err := decodeBody(w, r, &u); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx := r.Context()
	if err := s.Gateway.UpdateConfig(ctx, u); err != nil {
		if errors.Is(err, domain.ErrInvalidConfig) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.log().Error("config update failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "config update failed")
		return
	}
	cfg, err := s.Gateway.Config(ctx)
	if err != nil {
		s.log().Error("config read failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "config unavailable")
		return
	}
	s.log().Info("control config updated",
		zap.Int("max_users", cfg.MaxUsers),
		zap.Float64("capacity", cfg.Capacity),
		zap.Float64("refill_rate", cfg.RefillRate))
	writeJSON(w, http.StatusOK, map[string]any{"status": "UPDATED", "config": cfg})
}

func (s *Server) handleAddServer(w http.ResponseWriter, r *http.Request) {
	if s.Provisioning == nil {
		writeError(w, http.StatusNotImplemented, domain.ErrProvisioningDisabled.Error())
		return
	}
	url, err := s.Provisioning.AddServer(r.Context())
	if errors.Is(err, domain.ErrProvisioningDisabled) {
		writeError(w, http.StatusNotImplemented, err.Error())
		return
	}
	if err != nil {
		s.log().Error("provisioning failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to provision server")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "SUCCESS",
		"message": "Server provisioned at " + url,
		"url":     url,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	healthy := s.Gateway.Balancer.HealthyCount()
	status := "UP"
	if healthy == 0 {
		status = "DEGRADED"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          status,
		"healthyBackends": healthy,
		"backends":        s.Gateway.Balancer.Len(),
		"breaker":         s.Gateway.Breaker.State(),
	})
}
