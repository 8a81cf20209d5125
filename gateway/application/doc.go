// Package application contém os casos de uso do gateway: rate limit global e
// por tenant, admissão com filas de prioridade e prazos de SLA, circuit breaker,
// balanceamento round-robin com health check, métricas e controle adaptativo.
//
// Ele depende apenas dos pacotes domain e clock e não conhece net/http.
// Ex.: Gateway.Handle(ctx, req) percorre rate limit -> admissão -> dispatch e
// retorna um Result; o adapter HTTP só traduz o Result para status/JSON.
package application
