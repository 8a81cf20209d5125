package application

import (
	"context"
	"errors"
	"sync"
	"testing"

	"overload-gateway/gateway/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvisioner struct {
	mu     sync.Mutex
	err    error
	ports  []int
	onExit func(error)
}

func (p *fakeProvisioner) Provision(_ context.Context, port int, onExit func(error)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.ports = append(p.ports, port)
	p.onExit = onExit
	return nil
}

func newProvisioning(t *testing.T, prov domain.Provisioner) (*Provisioning, *alertLog) {
	t.Helper()
	b := NewBalancer(newVirtual())
	require.NoError(t, b.Add(backendA, true))
	require.NoError(t, b.Add(backendB, true))
	alerts := &alertLog{}
	return &Provisioning{Balancer: b, Provisioner: prov, Alerts: alerts}, alerts
}

func TestProvisioning_AddServerUsesNextPort(t *testing.T) {
	prov := &fakeProvisioner{}
	p, alerts := newProvisioning(t, prov)

	url, err := p.AddServer(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:4003", url)
	assert.Equal(t, []int{4003}, prov.ports)
	assert.Equal(t, []string{"Infrastructure Scaling: Provisioned new server on port 4003."}, alerts.messages())

	snap := p.Balancer.Snapshot()
	require.Len(t, snap, 3)
	assert.False(t, snap[2].Healthy, "new backend waits for the first probe")
	assert.Equal(t, 2, p.Balancer.HealthyCount())

	url, err = p.AddServer(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:4004", url)
}

func TestProvisioning_CrashRaisesAlert(t *testing.T) {
	prov := &fakeProvisioner{}
	p, alerts := newProvisioning(t, prov)

	_, err := p.AddServer(context.Background())
	require.NoError(t, err)

	prov.onExit(nil)
	assert.Len(t, alerts.messages(), 1, "clean exit is not a crash")

	prov.onExit(errors.New("exit status 2"))
	assert.Equal(t, "Backend Crashed: Server on 4003 stopped working.", alerts.messages()[1])
}

func TestProvisioning_StartFailure(t *testing.T) {
	prov := &fakeProvisioner{err: errors.New("exec: not found")}
	p, alerts := newProvisioning(t, prov)

	_, err := p.AddServer(context.Background())
	assert.Error(t, err)
	assert.Equal(t, []string{"Provisioning Failed: Server on 4003 failed to start."}, alerts.messages())
	assert.Equal(t, 2, p.Balancer.Len())
}

func TestProvisioning_Disabled(t *testing.T) {
	p, alerts := newProvisioning(t, nil)
	_, err := p.AddServer(context.Background())
	assert.ErrorIs(t, err, domain.ErrProvisioningDisabled)
	assert.Empty(t, alerts.messages())

	p.Provisioner = &fakeProvisioner{err: domain.ErrProvisioningDisabled}
	_, err = p.AddServer(context.Background())
	assert.ErrorIs(t, err, domain.ErrProvisioningDisabled)
	assert.Empty(t, alerts.messages())
}

func TestProvisioning_HostOverride(t *testing.T) {
	p, _ := newProvisioning(t, &fakeProvisioner{})
	p.Host = "10.1.0.9"
	url, err := p.AddServer(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "http://10.1.0.9:4003", url)
}

func TestProvisioning_SkipsRegisteredPortBeforeStarting(t *testing.T) {
	prov := &fakeProvisioner{}
	b := NewBalancer(newVirtual())
	require.NoError(t, b.Add("http://localhost:4001", true))
	require.NoError(t, b.Add("http://localhost:4003", true))
	require.NoError(t, b.Add("http://localhost:4002", true))
	p := &Provisioning{Balancer: b, Provisioner: prov, Alerts: &alertLog{}}

	url, err := p.AddServer(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:4004", url)
	assert.Equal(t, []int{4004}, prov.ports, "no worker is started on a registered port")
	assert.Equal(t, 4, b.Len())
}
