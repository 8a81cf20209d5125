package domain

import "context"

// StateStore é o acesso ao estado compartilhado (buckets, filas).
//
// Em um processo único é um mapa em memória com um lock por chave; em um
// deploy horizontal é um cache consistente externo (ex: Redis).
type StateStore interface {
	// Get retorna nil, nil quando a chave não existe.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	// Update executa um read-modify-write atômico na chave.
	// fn recebe o valor atual (nil se ausente); retornar nil, nil não grava nada.
	Update(ctx context.Context, key string, fn func(current []byte) ([]byte, error)) error
}

// Codec serializa o estado guardado no StateStore.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}
