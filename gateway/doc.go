// Package gateway é o adapter HTTP do gateway de proteção contra sobrecarga.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos do domínio (sem dependência de net/http)
//   - application: casos de uso (rate limit, admissão, breaker, balanceamento, métricas)
//   - infra: implementações concretas (state stores, edge limiter, cliente HTTP dos backends)
//   - gateway (este pacote): roteador chi, handlers JSON e middlewares HTTP
//
// Fluxo de uma requisição em POST /request:
//
//  1. Decodifica identidade e prioridade
//  2. Chama application.Gateway.Handle
//  3. Traduz o Result para status/JSON (200, 429, 503, 500)
//
// As rotas de controle (/system/control/*, /system/servers/add, injeção de falhas)
// passam ainda pelo limiter de borda por cliente.
package gateway
