// Package clock abstrai o tempo para que buckets, filas e janelas de métricas
// possam ser testados com tempo virtual.
package clock

import "time"

type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
	// After retorna um canal que recebe o horário depois de d.
	After(d time.Duration) <-chan time.Time
}

// Real delega para o pacote time.
type Real struct{}

func (Real) Now() time.Time                         { return time.Now() }
func (Real) Since(t time.Time) time.Duration        { return time.Since(t) }
func (Real) After(d time.Duration) <-chan time.Time { return time.After(d) }

// OrReal retorna c, ou Real quando c é nil.
func OrReal(c Clock) Clock {
	if c == nil {
		return Real{}
	}
	return c
}
