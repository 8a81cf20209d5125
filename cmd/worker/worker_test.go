package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedSampler struct {
	u   usage
	err error
}

func (s fixedSampler) Sample(context.Context) (usage, error) { return s.u, s.err }

func TestHealth_ReportsUsage(t *testing.T) {
	cases := []struct {
		name   string
		s      fixedSampler
		cpu    string
		status string
	}{
		{"normal", fixedSampler{u: usage{CPU: 12.34, Memory: 50}}, "12.3%", "NORMAL"},
		{"high", fixedSampler{u: usage{CPU: 85, Memory: 50}}, "85.0%", "HIGH"},
		{"at threshold", fixedSampler{u: usage{CPU: 80}}, "80.0%", "NORMAL"},
		{"sampler error", fixedSampler{err: errors.New("boom")}, "0.0%", "NORMAL"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := &Worker{Port: 4000, Sampler: tc.s}
			rr := httptest.NewRecorder()
			w.Routes().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

			require.Equal(t, http.StatusOK, rr.Code)
			var got healthResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
			assert.Equal(t, tc.cpu, got.CPU)
			assert.Equal(t, tc.status, got.LoadStatus)
		})
	}
}

func TestProcess_Echo(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	w := &Worker{Port: 4002, Now: func() time.Time { return at }}

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/process", strings.NewReader(`{"identity":"alice"}`))
	w.Routes().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var got processResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, 4002, got.Port)
	assert.False(t, got.Degraded)
	assert.Equal(t, "Processed by server 4002", got.Message)
	assert.True(t, at.Equal(got.ReceivedAt))
	assert.JSONEq(t, `{"identity":"alice"}`, string(got.Echo))
}

func TestProcess_Degraded(t *testing.T) {
	w := &Worker{Port: 4001}

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/process", strings.NewReader(`{"identity":"alice"}`))
	req.Header.Set("x-degraded-mode", "true")
	w.Routes().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var got processResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.True(t, got.Degraded)
	assert.Empty(t, got.Echo)
}

func TestProcess_ErrorRate(t *testing.T) {
	w := &Worker{Port: 4000, ErrorRate: 0.5, Rand: func() float64 { return 0.1 }}

	rr := httptest.NewRecorder()
	w.Routes().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/process", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)

	w.Rand = func() float64 { return 0.9 }
	rr = httptest.NewRecorder()
	w.Routes().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/process", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestProcess_LatencyHonoursCancel(t *testing.T) {
	w := &Worker{Port: 4000, Latency: time.Minute}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodPost, "/process", strings.NewReader(`{}`)).WithContext(ctx)
	rr := httptest.NewRecorder()

	start := time.Now()
	w.Routes().ServeHTTP(rr, req)
	assert.Less(t, time.Since(start), 5*time.Second)
}
