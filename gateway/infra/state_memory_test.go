package infra

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStateStore_GetMissingReturnsNil(t *testing.T) {
	s := NewMemoryStateStore()
	v, err := s.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestMemoryStateStore_UpdateNilSkipsWriteAndErrorAborts(t *testing.T) {
	s := NewMemoryStateStore()
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "k", []byte("v1")))

	require.NoError(t, s.Update(ctx, "k", func(cur []byte) ([]byte, error) {
		assert.Equal(t, "v1", string(cur))
		return nil, nil
	}))

	boom := errors.New("boom")
	err := s.Update(ctx, "k", func([]byte) ([]byte, error) { return []byte("v2"), boom })
	assert.ErrorIs(t, err, boom)

	v, _ := s.Get(ctx, "k")
	assert.Equal(t, "v1", string(v))
}

func TestMemoryStateStore_ReturnsCopies(t *testing.T) {
	s := NewMemoryStateStore()
	ctx := context.Background()
	buf := []byte("abc")
	require.NoError(t, s.Set(ctx, "k", buf))
	buf[0] = 'x'

	v, _ := s.Get(ctx, "k")
	v[1] = 'y'
	again, _ := s.Get(ctx, "k")
	assert.Equal(t, "abc", string(again))
}

func TestMemoryStateStore_ConcurrentUpdates(t *testing.T) {
	s := NewMemoryStateStore()
	codec := MsgpackCodec{}
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Update(ctx, "n", func(cur []byte) ([]byte, error) {
				var n int
				if cur != nil {
					_ = codec.Unmarshal(cur, &n)
				}
				return codec.Marshal(n + 1)
			})
		}()
	}
	wg.Wait()

	b, _ := s.Get(ctx, "n")
	var n int
	require.NoError(t, codec.Unmarshal(b, &n))
	assert.Equal(t, 100, n)
}

func TestMemoryStateStore_CanceledContext(t *testing.T) {
	s := NewMemoryStateStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Set(ctx, "k", nil), context.Canceled)
}
