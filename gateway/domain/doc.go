// Package domain define contratos e tipos de domínio do gateway de proteção
// contra sobrecarga: rate limit, admissão por prioridade, circuit breaker,
// registro de backends e métricas.
//
// Este pacote não depende de net/http nem de implementações concretas.
// A intenção é permitir testes de unidade puros e desacoplar regras de negócio
// de detalhes de infraestrutura (Redis, processos, sistema operacional).
package domain
