package application

import (
	"context"
	"testing"
	"time"

	"overload-gateway/gateway/domain"
	"overload-gateway/gateway/infra"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	backendA = "http://localhost:4001"
	backendB = "http://localhost:4002"
)

type healthFixture struct {
	balancer  *Balancer
	prober    *fakeProber
	admission *Admission
	recovery  *Recovery
	alerts    *alertLog
	checker   *HealthChecker
}

func setupHealth(t *testing.T) (*healthFixture, func(time.Duration)) {
	t.Helper()
	vc := newVirtual()
	b := NewBalancer(vc)
	require.NoError(t, b.Add(backendA, true))
	require.NoError(t, b.Add(backendB, true))

	f := &healthFixture{
		balancer:  b,
		prober:    &fakeProber{rep: domain.HealthReport{CPU: "5%", Memory: "30%", LoadStatus: "STABLE"}},
		admission: newAdmission(vc, 50),
		alerts:    &alertLog{},
	}
	f.recovery = NewRecovery(f.admission, f.alerts, RecoveryConfig{}, vc, nil)
	slots := ConcurrencyService{Pool: infra.NewChanPool(1)}
	f.checker = NewHealthChecker(b, f.prober, slots, f.recovery, nil)
	return f, vc.Advance
}

func TestHealthChecker_HealthySeedsDoNotTriggerRecovery(t *testing.T) {
	f, _ := setupHealth(t)

	healthy, err := f.checker.Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, healthy)
	assert.False(t, f.recovery.Active())
	assert.Empty(t, f.alerts.messages())
	assert.Equal(t, "5%", f.balancer.Snapshot()[0].CPU)
}

func TestHealthChecker_PartialFailureKeepsRotation(t *testing.T) {
	f, _ := setupHealth(t)
	f.prober.set(backendB, true)

	healthy, err := f.checker.Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, healthy)

	u, err := f.balancer.Next()
	require.NoError(t, err)
	assert.Equal(t, backendA, u)
	assert.False(t, f.recovery.Active(), "fleet never went fully down")
}

func TestHealthChecker_RecoveryAfterTotalOutage(t *testing.T) {
	f, advance := setupHealth(t)
	ctx := context.Background()

	f.prober.set(backendA, true)
	f.prober.set(backendB, true)
	healthy, err := f.checker.Check(ctx)
	require.NoError(t, err)
	assert.Zero(t, healthy)

	f.prober.set(backendA, false)
	healthy, err = f.checker.Check(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, healthy)

	assert.True(t, f.recovery.Active())
	assert.Equal(t, []string{"Recovery Phase Initiated: At least one server recovered."}, f.alerts.messages())
	st, _ := f.admission.Status(ctx)
	assert.Equal(t, 5, st.MaxUsers)

	// segundo ciclo saudável não reinicia a fase
	_, _ = f.checker.Check(ctx)
	assert.Len(t, f.alerts.messages(), 1)

	advance(29 * time.Second)
	assert.True(t, f.recovery.Active())
	advance(time.Second)
	assert.False(t, f.recovery.Active())
}

func TestHealthChecker_CancelledContext(t *testing.T) {
	f, _ := setupHealth(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	healthy, err := f.checker.Check(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, healthy, "state untouched on cancel")
}
