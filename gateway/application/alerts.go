package application

import "overload-gateway/gateway/domain"

// Alerter recebe alertas operacionais (SLA, recuperação, provisionamento).
type Alerter interface {
	AddAlert(level domain.AlertLevel, message string)
}

type nopAlerter struct{}

func (nopAlerter) AddAlert(domain.AlertLevel, string) {}
