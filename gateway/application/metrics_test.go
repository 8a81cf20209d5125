package application

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"overload-gateway/gateway/clock"
	"overload-gateway/gateway/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMetrics(vc *clock.Virtual, sampler domain.SystemSampler) *Metrics {
	return NewMetrics(sampler, DefaultMetricsConfig(), WithMetricsClock(vc))
}

// tickWith grava n decisões do desfecho o e fecha o período, avançando 1s.
func tickWith(m *Metrics, vc *clock.Virtual, o domain.Outcome, n int) domain.Snapshot {
	for i := 0; i < n; i++ {
		m.Record(o)
	}
	snap := m.Tick(context.Background())
	vc.Advance(time.Second)
	return snap
}

func TestMetrics_TickClosesPeriod(t *testing.T) {
	vc := newVirtual()
	m := NewMetrics(fixedSampler{sample: domain.SystemSample{Load1: 0.5, Memory: 0.4, Cores: 4}},
		DefaultMetricsConfig(), WithMetricsClock(vc), WithBackendCount(func() int { return 3 }))

	m.Record(domain.OutcomeAccepted)
	m.Record(domain.OutcomeQueued)
	m.Record(domain.OutcomeRejected)
	m.Record(domain.OutcomeFailed)

	snap := m.Tick(context.Background())
	assert.Equal(t, 4, snap.Requests)
	assert.Equal(t, 1, snap.Accepted)
	assert.Equal(t, 1, snap.Queued)
	assert.Equal(t, 2, snap.Rejected, "failed dispatches count as rejected")
	assert.Equal(t, 3, snap.Backends)
	assert.Equal(t, 1, snap.InstanceCount)
	assert.InDelta(t, 0.5, snap.CPU, 1e-9)
	assert.Equal(t, 4, m.Cores())
	assert.Equal(t, epoch, snap.At)

	next := m.Tick(context.Background())
	assert.Zero(t, next.Requests, "counters reset every tick")
}

func TestMetrics_WindowIsBounded(t *testing.T) {
	vc := newVirtual()
	m := newMetrics(vc, nil)
	for i := 0; i < 35; i++ {
		tickWith(m, vc, domain.OutcomeAccepted, 1)
	}
	w := m.Window()
	require.Len(t, w, 30)
	assert.Equal(t, epoch.Add(5*time.Second), w[0].At)

	latest, ok := m.Latest()
	require.True(t, ok)
	assert.Equal(t, epoch.Add(34*time.Second), latest.At)
}

func TestMetrics_ProfileSmoothing(t *testing.T) {
	vc := newVirtual()
	m := newMetrics(vc, nil)

	tickWith(m, vc, domain.OutcomeAccepted, 10)
	v, ok := m.Profile(epoch)
	require.True(t, ok)
	assert.InDelta(t, 10, v, 1e-9)

	tickWith(m, vc, domain.OutcomeAccepted, 20)
	v, _ = m.Profile(epoch)
	assert.InDelta(t, 11, v, 1e-9)

	_, ok = m.Profile(epoch.Add(time.Minute))
	assert.False(t, ok)
}

func TestMetrics_TrafficAnomaly(t *testing.T) {
	vc := newVirtual()
	m := newMetrics(vc, nil)

	for i := 0; i < 4; i++ {
		tickWith(m, vc, domain.OutcomeAccepted, 2)
	}
	assert.Empty(t, m.Alerts(0), "fewer than five snapshots")

	tickWith(m, vc, domain.OutcomeAccepted, 40)
	alerts := m.Alerts(0)
	require.Len(t, alerts, 1)
	assert.Equal(t, domain.AlertWarning, alerts[0].Type)
	assert.Equal(t, "Traffic Anomaly: Loading is 50% higher than historical average for this time.", alerts[0].Message)
}

func TestMetrics_SoftOverloadPrediction(t *testing.T) {
	vc := newVirtual()
	m := newMetrics(vc, nil)

	for i := 0; i < 4; i++ {
		tickWith(m, vc, domain.OutcomeAccepted, 20)
	}
	tickWith(m, vc, domain.OutcomeAccepted, 10)

	alerts := m.Alerts(0)
	require.Len(t, alerts, 1)
	assert.Equal(t, "Soft Overload Predicted: Incoming traffic trend is increasing.", alerts[0].Message)

	// mesma mensagem em sequência não duplica
	tickWith(m, vc, domain.OutcomeAccepted, 10)
	assert.Len(t, m.Alerts(0), 1)
}

func TestMetrics_AlertsDedupAndCap(t *testing.T) {
	vc := newVirtual()
	m := newMetrics(vc, nil)

	var delivered []domain.Alert
	m.OnAlert(func(a domain.Alert) { delivered = append(delivered, a) })

	m.AddAlert(domain.AlertInfo, "a")
	m.AddAlert(domain.AlertInfo, "a")
	m.AddAlert(domain.AlertInfo, "b")
	m.AddAlert(domain.AlertInfo, "a")
	assert.Len(t, m.Alerts(0), 3)
	assert.Len(t, delivered, 3)

	for i := 0; i < 25; i++ {
		m.AddAlert(domain.AlertCritical, fmt.Sprintf("alert %d", i))
	}
	all := m.Alerts(0)
	require.Len(t, all, 20)
	assert.Equal(t, "alert 24", all[0].Message)
	assert.Equal(t, "alert 5", all[19].Message)

	top := m.Alerts(5)
	assert.Len(t, top, 5)
	assert.Equal(t, all[:5], top)
}

func TestMetrics_SamplerErrorKeepsLastSample(t *testing.T) {
	vc := newVirtual()
	s := &switchSampler{sample: domain.SystemSample{Load1: 1.5, Memory: 0.2, Cores: 2}}
	m := newMetrics(vc, s)

	m.Tick(context.Background())
	s.err = errors.New("procfs unavailable")
	snap := m.Tick(context.Background())
	assert.InDelta(t, 1.5, snap.CPU, 1e-9)
	assert.Equal(t, 2, m.Cores())
}

type switchSampler struct {
	sample domain.SystemSample
	err    error
}

func (s *switchSampler) Sample(context.Context) (domain.SystemSample, error) {
	if s.err != nil {
		return domain.SystemSample{}, s.err
	}
	return s.sample, nil
}

func TestMetrics_OnTickHook(t *testing.T) {
	vc := newVirtual()
	m := newMetrics(vc, nil)
	var got []int
	m.OnTick(func(s domain.Snapshot) { got = append(got, s.Requests) })

	tickWith(m, vc, domain.OutcomeAccepted, 3)
	tickWith(m, vc, domain.OutcomeQueued, 1)
	assert.Equal(t, []int{3, 1}, got)
}

func TestMetrics_ScaleUpBounded(t *testing.T) {
	m := newMetrics(newVirtual(), nil)
	for want := 2; want <= 5; want++ {
		n, ok := m.ScaleUp(5)
		require.True(t, ok)
		assert.Equal(t, want, n)
	}
	n, ok := m.ScaleUp(5)
	assert.False(t, ok)
	assert.Equal(t, 5, n)
	assert.Equal(t, 5, m.InstanceCount())
}

func TestMetrics_Advise(t *testing.T) {
	vc := newVirtual()
	m := newMetrics(vc, fixedSampler{sample: domain.SystemSample{Cores: 4}})
	m.Tick(context.Background())

	cases := []struct {
		name     string
		reqRate  int
		cpuLoad  float64
		failRate float64
		action   domain.Action
		maxUsers int
	}{
		{"busy", 25, 1, 0, domain.ActionScaleUp, 50},
		{"idle", 3, 1, 0, domain.ActionScaleDown, 50},
		{"steady", 10, 1, 0, domain.ActionMaintain, 50},
		{"some failures", 10, 1, 0.08, domain.ActionMaintain, 30},
		{"failing", 25, 1, 0.15, domain.ActionThrottle, 30},
		{"collapsing", 10, 1, 0.5, domain.ActionThrottle, 10},
		{"cpu", 25, 3.5, 0, domain.ActionThrottle, 25},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			adv := m.Advise(tc.reqRate, tc.cpuLoad, tc.failRate)
			assert.Equal(t, tc.action, adv.Action)
			assert.Equal(t, tc.maxUsers, adv.RecommendedMaxUsers)
		})
	}

	alerts := m.Alerts(0)
	require.NotEmpty(t, alerts)
	assert.Equal(t, domain.AlertCritical, alerts[0].Type)
	assert.Equal(t, "System overloaded: High CPU detected.", alerts[0].Message)
}

func TestRecommendedCapacity(t *testing.T) {
	assert.Equal(t, 50, RecommendedCapacity(0, false))
	assert.Equal(t, 25, RecommendedCapacity(0, true))
	assert.Equal(t, 30, RecommendedCapacity(0.06, false))
	assert.Equal(t, 25, RecommendedCapacity(0.06, true))
	assert.Equal(t, 10, RecommendedCapacity(0.3, true))
	assert.Equal(t, 50, RecommendedCapacity(0.05, false))
}
