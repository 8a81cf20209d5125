package infra

import (
	"context"
	"sync"
)

// MemoryStateStore guarda o estado em memória com um lock por chave,
// ou seja, um lock por recurso lógico (bucket, fila).
type MemoryStateStore struct {
	mu    sync.Mutex
	data  map[string][]byte
	locks map[string]*sync.Mutex
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{
		data:  make(map[string][]byte),
		locks: make(map[string]*sync.Mutex),
	}
}

func (s *MemoryStateStore) keyLock(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

func (s *MemoryStateStore) load(key string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out
}

func (s *MemoryStateStore) store(key string, value []byte) {
	cp := make([]byte, len(value))
	copy(cp, value)
	s.mu.Lock()
	s.data[key] = cp
	s.mu.Unlock()
}

func (s *MemoryStateStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.load(key), nil
}

func (s *MemoryStateStore) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l := s.keyLock(key)
	l.Lock()
	defer l.Unlock()
	s.store(key, value)
	return nil
}

func (s *MemoryStateStore) Update(ctx context.Context, key string, fn func([]byte) ([]byte, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l := s.keyLock(key)
	l.Lock()
	defer l.Unlock()

	next, err := fn(s.load(key))
	if err != nil {
		return err
	}
	if next != nil {
		s.store(key, next)
	}
	return nil
}
