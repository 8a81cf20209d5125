package application

import (
	"context"
	"errors"
	"time"
)

// runEvery chama fn a cada interval até ctx encerrar. Retorna nil no shutdown.
func runEvery(ctx context.Context, interval time.Duration, fn func(context.Context)) error {
	if interval <= 0 {
		return errors.New("interval must be > 0")
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			fn(ctx)
		}
	}
}
