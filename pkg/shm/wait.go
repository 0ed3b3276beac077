package shm

import (
	"context"
	"errors"

	"github.com/cenkalti/backoff/v4"
)

var errNotReady = errors.New("queue not ready")

// waitFor calls attempt until it succeeds, the handle is closed or ctx is
// done. It spins for cfg.SpinLimit attempts before pausing between attempts
// according to cfg.WaitBackoff. Pausing never changes what attempt observes.
func waitFor(ctx context.Context, cfg *Config, closed func() bool, attempt func() bool) error {
	for i := 0; i < cfg.SpinLimit; i++ {
		if attempt() {
			return nil
		}
		if closed() {
			return ErrClosed
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	err := backoff.Retry(func() error {
		if attempt() {
			return nil
		}
		if closed() {
			return backoff.Permanent(ErrClosed)
		}
		return errNotReady
	}, backoff.WithContext(cfg.WaitBackoff(), ctx))
	if errors.Is(err, errNotReady) {
		return ErrWouldBlock
	}
	return err
}
