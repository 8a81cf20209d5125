package application

import (
	"context"

	"overload-gateway/gateway/domain"
)

// mutate faz um read-modify-write tipado sobre uma chave do StateStore.
// fn pode ser chamada mais de uma vez (stores com optimistic locking refazem
// a transação); retornar changed=false descarta a escrita.
func mutate[T any](ctx context.Context, store domain.StateStore, codec domain.Codec, key string, init func() T, fn func(*T) (bool, error)) error {
	return store.Update(ctx, key, func(cur []byte) ([]byte, error) {
		st, err := decode(codec, cur, init)
		if err != nil {
			return nil, err
		}
		changed, err := fn(&st)
		if err != nil || !changed {
			return nil, err
		}
		return codec.Marshal(&st)
	})
}

func read[T any](ctx context.Context, store domain.StateStore, codec domain.Codec, key string, init func() T) (T, error) {
	cur, err := store.Get(ctx, key)
	if err != nil {
		var zero T
		return zero, err
	}
	return decode(codec, cur, init)
}

func decode[T any](codec domain.Codec, cur []byte, init func() T) (T, error) {
	if len(cur) == 0 {
		return init(), nil
	}
	var st T
	if err := codec.Unmarshal(cur, &st); err != nil {
		return st, err
	}
	return st, nil
}
