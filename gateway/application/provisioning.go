package application

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"

	"overload-gateway/gateway/domain"

	"go.uber.org/zap"
)

// Provisioning sobe um novo worker na porta seguinte à do último backend
// registrado e o registra como unhealthy até o próximo probe.
type Provisioning struct {
	Balancer    *Balancer
	Provisioner domain.Provisioner
	Alerts      Alerter
	// Host sobrescreve o host do último backend na URL do novo worker.
	Host string
	Log  *zap.Logger

	mu sync.Mutex
}

func (p *Provisioning) AddServer(ctx context.Context) (string, error) {
	if p.Provisioner == nil {
		return "", domain.ErrProvisioningDisabled
	}
	alerts := p.Alerts
	if alerts == nil {
		alerts = nopAlerter{}
	}
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	host, last, err := p.Balancer.LastPort()
	if err != nil {
		return "", fmt.Errorf("resolve next port: %w", err)
	}
	if p.Host != "" {
		host = p.Host
	}
	// backends fora de ordem de porta: pula as URLs já registradas antes de
	// subir o processo, senão o worker ficaria órfão
	port := last + 1
	url := "http://" + net.JoinHostPort(host, strconv.Itoa(port))
	for p.Balancer.Has(url) {
		port++
		url = "http://" + net.JoinHostPort(host, strconv.Itoa(port))
	}

	log.Info("provisioning backend", zap.Int("port", port))
	err = p.Provisioner.Provision(ctx, port, func(exitErr error) {
		if exitErr != nil {
			alerts.AddAlert(domain.AlertCritical, fmt.Sprintf("Backend Crashed: Server on %d stopped working.", port))
		}
	})
	if errors.Is(err, domain.ErrProvisioningDisabled) {
		return "", err
	}
	if err != nil {
		alerts.AddAlert(domain.AlertCritical, fmt.Sprintf("Provisioning Failed: Server on %d failed to start.", port))
		return "", err
	}

	if err := p.Balancer.Add(url, false); err != nil {
		return "", err
	}
	alerts.AddAlert(domain.AlertInfo, fmt.Sprintf("Infrastructure Scaling: Provisioned new server on port %d.", port))
	return url, nil
}
