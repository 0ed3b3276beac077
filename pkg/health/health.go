// Package health provides liveness and readiness checks for shared memory queues.
package health

import (
	"context"
	"fmt"
	"time"

	"github.com/heptiolabs/healthcheck"

	"github.com/tthorn47/shmem-queue/pkg/shm"
)

// maxGoroutines is the liveness threshold used by NewHandler.
const maxGoroutines = 10000

// RegionCheck returns a check that fails once the region called name has
// been unlinked.
func RegionCheck(name string, config *shm.Config) healthcheck.Check {
	return func() error {
		if !shm.Exists(name, config) {
			return fmt.Errorf("region %s is not linked", name)
		}
		return nil
	}
}

// DepthCheck returns a check that fails when the queue called name holds more
// than max unread messages, i.e. when its consumer falls behind. T and config
// must match the queue's participants.
func DepthCheck[T any](name string, config *shm.Config, max int) healthcheck.Check {
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		st, err := shm.Inspect[T](ctx, name, config)
		if err != nil {
			return err
		}
		if st.Len > max {
			return fmt.Errorf("queue %s holds %d unread messages, limit %d", name, st.Len, max)
		}
		return nil
	}
}

// NewHandler returns a handler serving /live and /ready. The queue regions
// named in names are readiness checks.
func NewHandler(config *shm.Config, names ...string) healthcheck.Handler {
	h := healthcheck.NewHandler()
	h.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(maxGoroutines))
	for _, name := range names {
		h.AddReadinessCheck("region-"+name, RegionCheck(name, config))
	}
	return h
}
