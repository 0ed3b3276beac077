package shm

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	instrumentationName = "github.com/tthorn47/shmem-queue/pkg/shm"
	metricsNamespace    = "shmq"
)

var (
	enqueuedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "enqueued_total",
		Help:      "Messages written to a queue.",
	}, []string{"queue"})
	dequeuedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "dequeued_total",
		Help:      "Messages read from a queue.",
	}, []string{"queue"})
	fullTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "full_total",
		Help:      "Enqueue attempts rejected because the queue was full.",
	}, []string{"queue"})
	emptyTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "empty_total",
		Help:      "Dequeue attempts that found the queue empty.",
	}, []string{"queue"})
	regionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "regions_total",
		Help:      "Shared memory regions mapped, by whether this process created or attached.",
	}, []string{"mode"})
	unlinkFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "unlink_failures_total",
		Help:      "Region unlink calls that failed.",
	})

	collectors = []prometheus.Collector{
		enqueuedTotal,
		dequeuedTotal,
		fullTotal,
		emptyTotal,
		regionsTotal,
		unlinkFailuresTotal,
	}
)

// RegisterMetrics registers the package collectors with reg. Registering the
// same collectors twice with one registerer is not an error.
func RegisterMetrics(reg prometheus.Registerer) error {
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

// queueMetrics caches the per-queue children so the hot path never hashes labels.
type queueMetrics struct {
	enqueued prometheus.Counter
	dequeued prometheus.Counter
	full     prometheus.Counter
	empty    prometheus.Counter
}

func newQueueMetrics(name string) queueMetrics {
	return queueMetrics{
		enqueued: enqueuedTotal.WithLabelValues(name),
		dequeued: dequeuedTotal.WithLabelValues(name),
		full:     fullTotal.WithLabelValues(name),
		empty:    emptyTotal.WithLabelValues(name),
	}
}
