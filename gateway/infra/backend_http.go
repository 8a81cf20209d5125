package infra

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"overload-gateway/gateway/domain"
)

// HTTPBackend fala com os workers: GET /health e POST /process.
type HTTPBackend struct {
	client       *http.Client
	probeTimeout time.Duration
	maxBody      int64
}

type HTTPBackendOption func(*HTTPBackend)

func WithHTTPClient(c *http.Client) HTTPBackendOption {
	return func(b *HTTPBackend) {
		if c != nil {
			b.client = c
		}
	}
}

// WithProbeTimeout limita cada GET /health. 0 usa apenas o ctx do chamador.
func WithProbeTimeout(d time.Duration) HTTPBackendOption {
	return func(b *HTTPBackend) { b.probeTimeout = d }
}

func NewHTTPBackend(opts ...HTTPBackendOption) *HTTPBackend {
	b := &HTTPBackend{
		client: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 32,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		probeTimeout: 1500 * time.Millisecond,
		maxBody:      1 << 20,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

var (
	_ domain.Prober = (*HTTPBackend)(nil)
	_ domain.Caller = (*HTTPBackend)(nil)
)

func (b *HTTPBackend) Probe(ctx context.Context, url string) (domain.HealthReport, error) {
	if b.probeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.probeTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(url, "/")+"/health", nil)
	if err != nil {
		return domain.HealthReport{}, err
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return domain.HealthReport{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, b.maxBody))
		return domain.HealthReport{}, fmt.Errorf("health %s: status %d", url, resp.StatusCode)
	}

	var rep domain.HealthReport
	if err := json.NewDecoder(io.LimitReader(resp.Body, b.maxBody)).Decode(&rep); err != nil && err != io.EOF {
		return domain.HealthReport{}, fmt.Errorf("health %s: decode: %w", url, err)
	}
	return rep, nil
}

func (b *HTTPBackend) Process(ctx context.Context, url string, body []byte, degraded bool) (domain.BackendResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(url, "/")+"/process", bytes.NewReader(body))
	if err != nil {
		return domain.BackendResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if degraded {
		req.Header.Set("x-degraded-mode", "true")
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return domain.BackendResponse{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, b.maxBody))
	if err != nil {
		return domain.BackendResponse{Status: resp.StatusCode}, fmt.Errorf("process %s: read body: %w", url, err)
	}

	out := domain.BackendResponse{Status: resp.StatusCode}
	if json.Valid(raw) {
		out.Body = raw
	} else if len(raw) > 0 {
		// payload não-JSON vira string JSON para não quebrar a resposta do gateway
		quoted, _ := json.Marshal(string(raw))
		out.Body = quoted
	}
	return out, nil
}
