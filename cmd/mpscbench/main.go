// Command mpscbench stress-tests the MPSC ring channel.
//
// It runs N producer goroutines pushing tagged sequential items through
// one channel into a single consumer, verifies per-producer FIFO order
// and exact delivery counts, and reports throughput plus ring counters.
// With --metrics-listen set, the ring's Prometheus collector is served
// on /metrics for the duration of the run.
package main

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/valyala/fastrand"

	mpscring "github.com/seekstar/mpsc-ring-go"
)

type item struct {
	producer int
	seq      uint64
}

func main() {
	var (
		capacity      uint64
		producers     int
		perProducer   uint64
		strategy      string
		jitter        uint32
		metricsListen string
		logLevel      string
	)
	pflag.Uint64Var(&capacity, "capacity", 1024, "ring capacity (power of two)")
	pflag.IntVar(&producers, "producers", runtime.NumCPU(), "producer goroutines")
	pflag.Uint64Var(&perProducer, "items", 100_000, "items per producer")
	pflag.StringVar(&strategy, "strategy", "yield", "wait strategy: spin|yield|sleep")
	pflag.Uint32Var(&jitter, "jitter", 0, "max random producer spin-loop iterations per send")
	pflag.StringVar(&metricsListen, "metrics-listen", "", "serve Prometheus /metrics on this address")
	pflag.StringVar(&logLevel, "log-level", "info", "logrus level")
	pflag.Parse()

	log := logrus.New()
	if lvl, err := logrus.ParseLevel(logLevel); err == nil {
		log.SetLevel(lvl)
	}

	wait, err := parseStrategy(strategy)
	if err != nil {
		log.Fatal(err)
	}

	tx, rx := mpscring.New[item](capacity, mpscring.WithWaitStrategy(wait))

	if metricsListen != "" {
		prometheus.MustRegister(mpscring.NewCollector("mpscbench", rx))
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			srv := &http.Server{
				Addr:              metricsListen,
				Handler:           mux,
				ReadHeaderTimeout: 5 * time.Second,
			}
			log.WithField("listen", metricsListen).Info("metrics server started")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.WithError(err).Error("metrics server exited")
			}
		}()
	}

	log.WithFields(logrus.Fields{
		"capacity":  capacity,
		"producers": producers,
		"items":     perProducer,
		"strategy":  strategy,
	}).Info("starting run")

	start := time.Now()
	for p := 0; p < producers; p++ {
		go func(id int, tx *mpscring.Sender[item]) {
			defer tx.Close()
			for i := uint64(0); i < perProducer; i++ {
				if jitter > 0 {
					for n := fastrand.Uint32n(jitter); n > 0; n-- {
						runtime.Gosched()
					}
				}
				if err := tx.Send(context.Background(), item{producer: id, seq: i}); err != nil {
					log.WithError(err).WithField("producer", id).Error("send failed")
					return
				}
			}
		}(p, tx.Clone())
	}
	tx.Close()

	lastSeen := make([]uint64, producers)
	for i := range lastSeen {
		lastSeen[i] = ^uint64(0)
	}
	var total uint64
	for {
		v, err := rx.Recv(context.Background())
		if err != nil {
			if err == mpscring.ErrDrained {
				break
			}
			log.WithError(err).Fatal("recv failed")
		}
		// lastSeen starts at MaxUint64 so the first expected seq wraps to 0
		if last := lastSeen[v.producer]; v.seq != last+1 {
			log.WithFields(logrus.Fields{
				"producer": v.producer,
				"seq":      v.seq,
				"last":     last,
			}).Fatal("per-producer order violated")
		}
		lastSeen[v.producer] = v.seq
		total++
	}
	elapsed := time.Since(start)

	want := uint64(producers) * perProducer
	if total != want {
		log.WithFields(logrus.Fields{"got": total, "want": want}).Fatal("item count mismatch")
	}

	st := rx.Stats()
	log.WithFields(logrus.Fields{
		"items":            total,
		"elapsed":          elapsed.Round(time.Millisecond).String(),
		"items_per_sec":    fmt.Sprintf("%.0f", float64(total)/elapsed.Seconds()),
		"enqueue_full":     st.EnqueueFull,
		"enqueue_retries":  st.EnqueueRetries,
		"dequeue_empty":    st.DequeueEmpty,
		"dequeue_notready": st.DequeueNotReady,
	}).Info("run complete")
}

func parseStrategy(s string) (mpscring.WaitStrategy, error) {
	switch s {
	case "spin":
		return mpscring.WaitSpin, nil
	case "yield":
		return mpscring.WaitYield, nil
	case "sleep":
		return mpscring.WaitSleep, nil
	}
	return 0, fmt.Errorf("unknown wait strategy %q", s)
}
