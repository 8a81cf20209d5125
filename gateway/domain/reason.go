package domain

// Outcome é a decisão final devolvida ao cliente de /request.
type Outcome string

const (
	OutcomeAccepted Outcome = "ACCEPTED"
	OutcomeQueued   Outcome = "QUEUED"
	OutcomeRejected Outcome = "REJECTED"
	OutcomeFailed   Outcome = "FAILED"
)

// Reason detalha por que uma requisição não foi aceita.
type Reason string

const (
	ReasonNone                   Reason = ""
	ReasonGlobalLimit            Reason = "GLOBAL_LIMIT"
	ReasonTenantLimit            Reason = "TENANT_LIMIT_EXCEEDED"
	ReasonServerFull             Reason = "SERVER_FULL"
	ReasonUpstreamUnhealthy      Reason = "UPSTREAM_UNHEALTHY"
	ReasonCircuitOpen            Reason = "CIRCUIT_OPEN"
	ReasonApplicationServerError Reason = "APPLICATION_SERVER_ERROR"
	ReasonInternalError          Reason = "INTERNAL_ERROR"
	// ReasonEdgeLimit é a recusa do limiter de borda nas rotas de controle.
	ReasonEdgeLimit Reason = "EDGE_RATE_LIMITED"
)
