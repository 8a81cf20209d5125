package application

import (
	"testing"
	"time"

	"overload-gateway/gateway/domain"
	"overload-gateway/gateway/infra"
)

type fakeLimiter struct {
	allow bool
}

func (f fakeLimiter) Allow() bool { return f.allow }

type fakeStore struct {
	lim domain.Limiter
}

func (s fakeStore) Get(domain.Key) domain.Limiter { return s.lim }

func TestEdgeService_Decide_AllowsWhenNoStore(t *testing.T) {
	dec := EdgeService{}.Decide("k")
	if !dec.Allowed {
		t.Fatalf("expected allowed")
	}
	if dec.RetryAfter != 0 {
		t.Fatalf("expected RetryAfter=0 when allowed, got %s", dec.RetryAfter)
	}
}

func TestEdgeService_Decide_AllowsWhenLimiterAllows(t *testing.T) {
	svc := EdgeService{Store: fakeStore{lim: fakeLimiter{allow: true}}, RetryAfter: 5 * time.Second}
	if dec := svc.Decide("k"); !dec.Allowed {
		t.Fatalf("expected allowed")
	}
}

func TestEdgeService_Decide_BlocksWithRetryAfterDefault(t *testing.T) {
	svc := EdgeService{Store: fakeStore{lim: fakeLimiter{allow: false}}}
	dec := svc.Decide("k")
	if dec.Allowed {
		t.Fatalf("expected blocked")
	}
	if dec.RetryAfter != time.Second {
		t.Fatalf("expected default RetryAfter=1s, got %s", dec.RetryAfter)
	}
}

func TestEdgeService_Decide_BlocksWithConfiguredRetryAfter(t *testing.T) {
	svc := EdgeService{Store: fakeStore{lim: fakeLimiter{allow: false}}, RetryAfter: 2500 * time.Millisecond}
	dec := svc.Decide("k")
	if dec.Allowed {
		t.Fatalf("expected blocked")
	}
	if dec.RetryAfter != 2500*time.Millisecond {
		t.Fatalf("expected RetryAfter=2.5s, got %s", dec.RetryAfter)
	}
}

func TestEdgeService_Decide_DerivesRetryAfterFromRPS(t *testing.T) {
	vc := newVirtual()
	store := infra.NewEdgeStore(0.25, 1, infra.WithEdgeClock(vc))
	svc := EdgeService{Store: store}

	if dec := svc.Decide("1.2.3.4"); !dec.Allowed {
		t.Fatalf("expected burst to allow first call")
	}
	dec := svc.Decide("1.2.3.4")
	if dec.Allowed {
		t.Fatalf("expected second call to be blocked")
	}
	if dec.RetryAfter != 4*time.Second {
		t.Fatalf("expected RetryAfter=4s for 0.25 rps, got %s", dec.RetryAfter)
	}

	vc.Advance(4 * time.Second)
	if dec := svc.Decide("1.2.3.4"); !dec.Allowed {
		t.Fatalf("expected token after 4s")
	}
}
