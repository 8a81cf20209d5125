package infra

import (
	"testing"
	"time"

	"overload-gateway/gateway/clock"
	"overload-gateway/gateway/domain"

	"github.com/stretchr/testify/assert"
)

var epoch = time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)

func TestEdgeStore_SameKeySharesBucket(t *testing.T) {
	vc := clock.NewVirtual(epoch)
	s := NewEdgeStore(1, 1, WithEdgeClock(vc))

	assert.True(t, s.Get(domain.Key("k")).Allow())
	assert.False(t, s.Get(domain.Key("k")).Allow(), "burst=1 shared between lookups")
	assert.True(t, s.Get(domain.Key("other")).Allow())
	assert.Equal(t, 2, s.Len())
}

func TestEdgeStore_RefillsWithClock(t *testing.T) {
	vc := clock.NewVirtual(epoch)
	s := NewEdgeStore(2, 1, WithEdgeClock(vc))

	lim := s.Get(domain.Key("k"))
	assert.True(t, lim.Allow())
	assert.False(t, lim.Allow())

	vc.Advance(500 * time.Millisecond)
	assert.True(t, lim.Allow())
}

func TestEdgeStore_CleanupRemovesIdleEntries(t *testing.T) {
	vc := clock.NewVirtual(epoch)
	s := NewEdgeStore(10, 1, WithEdgeClock(vc), WithIdleTTL(time.Minute), WithCleanupEvery(0))

	s.Get(domain.Key("idle"))
	vc.Advance(2 * time.Minute)
	s.Get(domain.Key("fresh"))

	assert.Equal(t, 1, s.Cleanup())
	assert.Equal(t, 1, s.Len())
}
