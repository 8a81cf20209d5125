package infra

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPBackend_ProbeDecodesReport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		_, _ = io.WriteString(w, `{"cpu":"12%","memory":"40%","loadStatus":"STABLE"}`)
	}))
	defer srv.Close()

	rep, err := NewHTTPBackend().Probe(context.Background(), srv.URL+"/")
	require.NoError(t, err)
	assert.Equal(t, "12%", rep.CPU)
	assert.Equal(t, "40%", rep.Memory)
	assert.Equal(t, "STABLE", rep.LoadStatus)
}

func TestHTTPBackend_ProbeNon2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewHTTPBackend().Probe(context.Background(), srv.URL)
	assert.Error(t, err)
}

func TestHTTPBackend_ProbeTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := NewHTTPBackend(WithProbeTimeout(20*time.Millisecond)).Probe(context.Background(), srv.URL)
	assert.Error(t, err)
}

func TestHTTPBackend_ProcessForwardsBodyAndDegradedHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/process", r.URL.Path)
		assert.Equal(t, "true", r.Header.Get("x-degraded-mode"))
		b, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"echo": string(b)})
	}))
	defer srv.Close()

	resp, err := NewHTTPBackend().Process(context.Background(), srv.URL, []byte(`{"identity":"a"}`), true)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.JSONEq(t, `{"echo":"{\"identity\":\"a\"}"}`, string(resp.Body))
}

func TestHTTPBackend_Process5xxReturnsStatusWithoutError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("x-degraded-mode"))
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, "boom")
	}))
	defer srv.Close()

	resp, err := NewHTTPBackend().Process(context.Background(), srv.URL, nil, false)
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.Status)
	assert.JSONEq(t, `"boom"`, string(resp.Body))
}
