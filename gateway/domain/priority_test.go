package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePriority(t *testing.T) {
	cases := map[string]Priority{
		"":       PriorityMedium,
		"high":   PriorityHigh,
		" LOW ":  PriorityLow,
		"Medium": PriorityMedium,
	}
	for in, want := range cases {
		got, err := ParsePriority(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParsePriority("URGENT")
	assert.True(t, errors.Is(err, ErrInvalidPriority))
}

func TestPriority_OrderAndSLA(t *testing.T) {
	assert.True(t, PriorityHigh.Before(PriorityMedium))
	assert.True(t, PriorityMedium.Before(PriorityLow))
	assert.False(t, PriorityLow.Before(PriorityHigh))

	assert.Equal(t, 15*time.Second, PriorityHigh.SLA())
	assert.Equal(t, 30*time.Second, PriorityMedium.SLA())
	assert.Equal(t, 30*time.Second, PriorityLow.SLA())
}

func TestPriority_JSON(t *testing.T) {
	b, err := json.Marshal(struct {
		P Priority `json:"p"`
	}{PriorityLow})
	require.NoError(t, err)
	assert.JSONEq(t, `{"p":"LOW"}`, string(b))

	var out struct {
		P Priority `json:"p"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"p":"high"}`), &out))
	assert.Equal(t, PriorityHigh, out.P)

	assert.Error(t, json.Unmarshal([]byte(`{"p":"nope"}`), &out))
}

func TestFaultConfig_Merge(t *testing.T) {
	on := true
	ms := 250
	base := FaultConfig{LatencyMs: 2000}

	got := base.Merge(FaultUpdate{InjectLatency: &on, LatencyMs: &ms})
	assert.Equal(t, FaultConfig{InjectLatency: true, LatencyMs: 250}, got)

	got = got.Merge(FaultUpdate{})
	assert.Equal(t, FaultConfig{InjectLatency: true, LatencyMs: 250}, got)
}

func TestPriority_ZeroValueIsUnset(t *testing.T) {
	var p Priority
	assert.Equal(t, PriorityUnset, p)
	assert.False(t, p.Valid())
	assert.Equal(t, PriorityMedium, p.OrDefault())
	assert.Equal(t, PriorityHigh, PriorityHigh.OrDefault())

	assert.Equal(t, 0, PriorityHigh.Index())
	assert.Equal(t, 1, PriorityMedium.Index())
	assert.Equal(t, 2, PriorityLow.Index())
}
