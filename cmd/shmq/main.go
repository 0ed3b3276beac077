// Command shmq drives shared memory queues from the shell: it can feed and
// drain a queue, inspect or remove one, expose queue metrics and health over
// HTTP, and benchmark independent sender/receiver pairs.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tthorn47/shmem-queue/pkg/health"
	"github.com/tthorn47/shmem-queue/pkg/shm"
)

// message is the fixed record exchanged by send, recv and bench.
type message struct {
	Secret uint64
	Seq    uint64
}

const secret = 0xDEADBEEF

var commands = map[string]func(ctx context.Context, args []string) error{
	"send":    runSend,
	"recv":    runRecv,
	"inspect": runInspect,
	"unlink":  runUnlink,
	"serve":   runServe,
	"bench":   runBench,
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: shmq <send|recv|inspect|unlink|serve|bench> [flags]")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	run, ok := commands[os.Args[1]]
	if !ok {
		usage()
		os.Exit(2)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[2:])
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "shmq %s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

// queueFlags are shared by every subcommand.
type queueFlags struct {
	name     string
	dir      string
	capacity uint64
	timeout  time.Duration
}

func newFlagSet(cmd string, q *queueFlags) *flag.FlagSet {
	fs := flag.NewFlagSet("shmq "+cmd, flag.ContinueOnError)
	def := shm.DefaultConfig()
	fs.StringVar(&q.name, "name", "shmq", "queue name")
	fs.StringVar(&q.dir, "dir", def.Dir, "directory backing named regions")
	fs.Uint64Var(&q.capacity, "cap", def.Capacity, "queue capacity in slots, identical for every participant")
	fs.DurationVar(&q.timeout, "attach-timeout", def.AttachTimeout, "how long to wait for a concurrent creator")
	return fs
}

func (q *queueFlags) config() *shm.Config {
	cfg := shm.DefaultConfig()
	cfg.Dir = q.dir
	cfg.Capacity = q.capacity
	cfg.AttachTimeout = q.timeout
	return cfg
}

func runSend(ctx context.Context, args []string) error {
	var q queueFlags
	fs := newFlagSet("send", &q)
	n := fs.Uint64("n", 10240, "number of messages")
	if err := fs.Parse(args); err != nil {
		return err
	}
	tx, err := shm.NewSender[message](ctx, q.name, q.config())
	if err != nil {
		return err
	}
	defer tx.Close()

	start := time.Now()
	for i := uint64(0); i < *n; i++ {
		if err := tx.SendContext(ctx, message{Secret: secret, Seq: i}); err != nil {
			return fmt.Errorf("message %d: %w", i, err)
		}
	}
	fmt.Printf("sent %d messages to %s in %s\n", *n, q.name, time.Since(start))
	return nil
}

func runRecv(ctx context.Context, args []string) error {
	var q queueFlags
	fs := newFlagSet("recv", &q)
	n := fs.Uint64("n", 10240, "number of messages")
	unlink := fs.Bool("unlink", false, "unlink the queue after receiving every message")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg := q.config()
	rx, err := shm.NewReceiver[message](ctx, q.name, cfg)
	if err != nil {
		return err
	}
	defer rx.Close()

	start := time.Now()
	for i := uint64(0); i < *n; i++ {
		m, err := rx.RecvContext(ctx)
		if err != nil {
			return fmt.Errorf("message %d: %w", i, err)
		}
		if m.Secret != secret || m.Seq != i {
			return fmt.Errorf("message %d: got secret %#x seq %d", i, m.Secret, m.Seq)
		}
	}
	fmt.Printf("received %d messages from %s in %s\n", *n, q.name, time.Since(start))
	if *unlink {
		return shm.Unlink(ctx, q.name, cfg)
	}
	return nil
}

func runInspect(ctx context.Context, args []string) error {
	var q queueFlags
	fs := newFlagSet("inspect", &q)
	if err := fs.Parse(args); err != nil {
		return err
	}
	st, err := shm.Inspect[message](ctx, q.name, q.config())
	if err != nil {
		return err
	}
	fmt.Println(st)
	return nil
}

func runUnlink(ctx context.Context, args []string) error {
	var q queueFlags
	fs := newFlagSet("unlink", &q)
	if err := fs.Parse(args); err != nil {
		return err
	}
	return shm.Unlink(ctx, q.name, q.config())
}

func runServe(ctx context.Context, args []string) error {
	var q queueFlags
	fs := newFlagSet("serve", &q)
	addr := fs.String("addr", ":9100", "listen address")
	maxDepth := fs.Int("max-depth", 0, "fail readiness when a queue holds more unread messages, 0 disables")
	if err := fs.Parse(args); err != nil {
		return err
	}
	names := strings.Split(q.name, ",")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	cfg := q.config()
	// Queue counters are per process; depth is read from the regions directly.
	if err := shm.RegisterMetrics(reg); err != nil {
		return err
	}
	for _, name := range names {
		reg.MustRegister(depthGauge(name, cfg))
	}

	checks := health.NewHandler(cfg, names...)
	if *maxDepth > 0 {
		for _, name := range names {
			checks.AddReadinessCheck("depth-"+name, health.DepthCheck[message](name, cfg, *maxDepth))
		}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.HandleFunc("/live", checks.LiveEndpoint)
	mux.HandleFunc("/ready", checks.ReadyEndpoint)
	srv := &http.Server{Addr: *addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	fmt.Printf("serving %s on %s\n", strings.Join(names, ","), *addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdown); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// depthGauge reports the number of unread messages in the named queue, or -1
// while the queue does not exist.
func depthGauge(name string, cfg *shm.Config) prometheus.GaugeFunc {
	return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   "shmq",
		Name:        "depth",
		Help:        "Unread messages in a queue.",
		ConstLabels: prometheus.Labels{"queue": name},
	}, func() float64 {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		st, err := shm.Inspect[message](ctx, name, cfg)
		if err != nil {
			return -1
		}
		return float64(st.Len)
	})
}

func runBench(ctx context.Context, args []string) error {
	var q queueFlags
	fs := newFlagSet("bench", &q)
	pairs := fs.Int("pairs", 4, "independent sender/receiver pairs")
	n := fs.Uint64("n", 1000000, "messages per pair")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *pairs < 1 {
		return fmt.Errorf("pairs must be positive, got %d", *pairs)
	}
	cfg := q.config()

	pool, err := ants.NewPool(2**pairs, ants.WithPreAlloc(true))
	if err != nil {
		return err
	}
	defer pool.Release()

	var (
		wg       sync.WaitGroup
		failures atomic.Int64
		names    = make([]string, 0, *pairs)
	)
	defer func() {
		for _, name := range names {
			if err := shm.Unlink(context.Background(), name, cfg); err != nil {
				fmt.Fprintf(os.Stderr, "unlink %s: %v\n", name, err)
			}
		}
	}()

	type pair struct {
		tx *shm.Sender[message]
		rx *shm.Receiver[message]
	}
	ps := make([]pair, 0, *pairs)
	defer func() {
		for _, p := range ps {
			_ = p.tx.Close()
			_ = p.rx.Close()
		}
	}()
	for i := 0; i < *pairs; i++ {
		name := fmt.Sprintf("%s-bench-%d-%d", q.name, os.Getpid(), i)
		tx, err := shm.NewSender[message](ctx, name, cfg)
		if err != nil {
			return err
		}
		names = append(names, name)
		rx, err := shm.NewReceiver[message](ctx, name, cfg)
		if err != nil {
			_ = tx.Close()
			return err
		}
		ps = append(ps, pair{tx: tx, rx: rx})
	}

	start := time.Now()
	for _, p := range ps {
		p := p
		wg.Add(2)
		if err := pool.Submit(func() {
			defer wg.Done()
			for i := uint64(0); i < *n; i++ {
				if err := p.tx.SendContext(ctx, message{Secret: secret, Seq: i}); err != nil {
					failures.Add(1)
					return
				}
			}
		}); err != nil {
			return err
		}
		if err := pool.Submit(func() {
			defer wg.Done()
			for i := uint64(0); i < *n; i++ {
				m, err := p.rx.RecvContext(ctx)
				if err != nil || m.Secret != secret || m.Seq != i {
					failures.Add(1)
					return
				}
			}
		}); err != nil {
			return err
		}
	}
	wg.Wait()
	elapsed := time.Since(start)

	if f := failures.Load(); f > 0 {
		return fmt.Errorf("%d of %d workers failed", f, 2**pairs)
	}
	total := float64(*n) * float64(*pairs)
	fmt.Printf("pairs:%d messages:%.0f elapsed:%s throughput:%.0f msg/s\n",
		*pairs, total, elapsed, total/elapsed.Seconds())
	return nil
}
