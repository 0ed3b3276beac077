package shm

import (
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	internalshm "github.com/tthorn47/shmem-queue/internal/shm"
)

const (
	// DefaultCapacity is the number of slots in a queue, one of which is
	// always kept free.
	DefaultCapacity = 1024

	defaultAttachTimeout = 5 * time.Second
	defaultSpinLimit     = 1024

	// maxCapacity keeps index arithmetic far away from overflow.
	maxCapacity = 1 << 32
)

// Config holds queue and region creation parameters. Every participant of a
// queue must use the same Capacity and message type; nothing in the region
// records them.
type Config struct {
	// Dir is the directory backing named regions (/dev/shm on Linux).
	Dir string
	// Capacity is the number of slots; Capacity-1 messages fit at once.
	Capacity uint64
	// AttachTimeout bounds how long an attacher waits for a concurrent
	// creator to size the region.
	AttachTimeout time.Duration
	// SpinLimit is the number of busy attempts SendContext and RecvContext
	// make before falling back to WaitBackoff.
	SpinLimit int
	// WaitBackoff returns a fresh backoff policy for SendContext and RecvContext.
	WaitBackoff func() backoff.BackOff
	// Registerer receives the package collectors. Nil leaves them unregistered.
	Registerer prometheus.Registerer
	Meter      metric.Meter
	Tracer     trace.Tracer
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Dir:           internalshm.DefaultDir,
		Capacity:      DefaultCapacity,
		AttachTimeout: defaultAttachTimeout,
		SpinLimit:     defaultSpinLimit,
		WaitBackoff:   defaultWaitBackoff,
		Meter:         metricnoop.NewMeterProvider().Meter(instrumentationName),
		Tracer:        tracenoop.NewTracerProvider().Tracer(instrumentationName),
	}
}

// VerifyConfig checks a configuration for values that can never work.
func VerifyConfig(config *Config) error {
	if config == nil {
		return errors.New("nil config")
	}
	if config.Capacity < 2 || config.Capacity > maxCapacity {
		return fmt.Errorf("%w: %d, must be in [2, %d]", ErrInvalidCapacity, config.Capacity, uint64(maxCapacity))
	}
	if config.AttachTimeout < 0 {
		return fmt.Errorf("negative attach timeout %s", config.AttachTimeout)
	}
	if config.SpinLimit < 0 {
		return fmt.Errorf("negative spin limit %d", config.SpinLimit)
	}
	if config.WaitBackoff == nil {
		return errors.New("wait backoff factory is nil")
	}
	return nil
}

// resolveConfig applies defaults to a caller supplied config.
func resolveConfig(config *Config) (*Config, error) {
	if config == nil {
		return DefaultConfig(), nil
	}
	c := *config
	if c.Dir == "" {
		c.Dir = internalshm.DefaultDir
	}
	if c.Meter == nil {
		c.Meter = metricnoop.NewMeterProvider().Meter(instrumentationName)
	}
	if c.Tracer == nil {
		c.Tracer = tracenoop.NewTracerProvider().Tracer(instrumentationName)
	}
	if err := VerifyConfig(&c); err != nil {
		return nil, err
	}
	if c.Registerer != nil {
		if err := RegisterMetrics(c.Registerer); err != nil {
			return nil, err
		}
	}
	return &c, nil
}

// defaultWaitBackoff polls with a capped exponential interval and never gives up.
func defaultWaitBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Microsecond
	b.MaxInterval = time.Millisecond
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	return b
}
