package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var epoch = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func TestVirtual_AdvanceMovesNowAndSince(t *testing.T) {
	v := NewVirtual(epoch)
	v.Advance(1500 * time.Millisecond)

	assert.Equal(t, epoch.Add(1500*time.Millisecond), v.Now())
	assert.Equal(t, 1500*time.Millisecond, v.Since(epoch))
}

func TestVirtual_AfterFiresOnlyWhenDeadlineReached(t *testing.T) {
	v := NewVirtual(epoch)
	ch := v.After(2 * time.Second)

	v.Advance(time.Second)
	select {
	case <-ch:
		t.Fatalf("fired early")
	default:
	}
	assert.Equal(t, 1, v.Pending())

	v.Advance(time.Second)
	select {
	case got := <-ch:
		assert.Equal(t, epoch.Add(2*time.Second), got)
	default:
		t.Fatalf("expected timer to fire")
	}
	assert.Zero(t, v.Pending())
}

func TestVirtual_AfterNonPositiveFiresImmediately(t *testing.T) {
	v := NewVirtual(epoch)
	select {
	case <-v.After(0):
	default:
		t.Fatalf("expected immediate fire")
	}
}

func TestVirtual_SetBackwardsPanics(t *testing.T) {
	v := NewVirtual(epoch)
	assert.Panics(t, func() { v.Set(epoch.Add(-time.Second)) })
	assert.Panics(t, func() { v.Advance(-time.Second) })
}

func TestOrReal(t *testing.T) {
	assert.IsType(t, Real{}, OrReal(nil))
	v := NewVirtual(epoch)
	assert.Same(t, v, OrReal(v))
}
