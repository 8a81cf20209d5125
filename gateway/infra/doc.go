// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - MemoryStateStore / RedisStateStore: estado compartilhado com update atômico
//   - MsgpackCodec: serialização compacta do estado
//   - EdgeStore: token bucket por cliente usando golang.org/x/time/rate
//   - ChanPool: semáforo simples para limite de concorrência
//   - HTTPBackend, ExecProvisioner, HostSampler: integração com workers e host
//   - Collector, Hub: exportação Prometheus e streaming WebSocket
package infra
