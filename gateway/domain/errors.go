package domain

import "errors"

var (
	// ErrCircuitOpen indica fast-fail do circuit breaker (OPEN ou HALF_OPEN ocupado).
	ErrCircuitOpen = errors.New("circuit open")
	// ErrNoBackend indica lista de backends saudáveis vazia.
	ErrNoBackend = errors.New("no healthy backend available")
	// ErrBackendStatus indica resposta 5xx de um backend.
	ErrBackendStatus = errors.New("backend server error")
	// ErrInjectedFault é o erro produzido pela injeção de falhas.
	ErrInjectedFault = errors.New("simulated failure")

	ErrUnknownBackend       = errors.New("unknown backend")
	ErrDuplicateBackend     = errors.New("backend already registered")
	ErrProvisioningDisabled = errors.New("provisioning disabled")
	ErrInvalidPriority      = errors.New("invalid priority")
)

// ErrInvalidConfig indica parâmetro de tuning fora do domínio (ex: capacidade <= 0).
var ErrInvalidConfig = errors.New("invalid configuration")
