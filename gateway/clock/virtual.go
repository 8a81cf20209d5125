package clock

import (
	"sync"
	"time"
)

// Virtual é um relógio controlado manualmente, seguro para uso concorrente.
// Os canais de After disparam dentro de Advance/Set quando o prazo é atingido.
type Virtual struct {
	mu      sync.Mutex
	now     time.Time
	pending []timer
}

type timer struct {
	at time.Time
	ch chan time.Time
}

func NewVirtual(start time.Time) *Virtual {
	return &Virtual{now: start}
}

func (v *Virtual) Now() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.now
}

func (v *Virtual) Since(t time.Time) time.Duration {
	return v.Now().Sub(t)
}

func (v *Virtual) After(d time.Duration) <-chan time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()

	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- v.now
		return ch
	}
	v.pending = append(v.pending, timer{at: v.now.Add(d), ch: ch})
	return ch
}

// Advance avança o relógio. Panics se d < 0.
func (v *Virtual) Advance(d time.Duration) {
	if d < 0 {
		panic("clock: negative advance")
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.now = v.now.Add(d)
	v.fire()
}

// Set posiciona o relógio em t. Panics se t estiver no passado.
func (v *Virtual) Set(t time.Time) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if t.Before(v.now) {
		panic("clock: cannot move backwards")
	}
	v.now = t
	v.fire()
}

// Pending retorna quantos canais de After ainda não dispararam.
func (v *Virtual) Pending() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.pending)
}

// fire deve ser chamado com v.mu travado.
func (v *Virtual) fire() {
	keep := v.pending[:0]
	for _, t := range v.pending {
		if t.at.After(v.now) {
			keep = append(keep, t)
			continue
		}
		t.ch <- v.now
	}
	v.pending = keep
}
