package mpscring

import "github.com/prometheus/client_golang/prometheus"

// StatsSource yields ring statistics snapshots. Both *Ring and
// *Receiver satisfy it.
type StatsSource interface {
	Stats() RingStats
}

// Collector exposes a ring's counters as Prometheus metrics. Register
// it with any prometheus.Registerer:
//
//	prometheus.MustRegister(mpscring.NewCollector("myring", rx))
type Collector struct {
	src StatsSource

	enqueueAttempts *prometheus.Desc
	enqueueFull     *prometheus.Desc
	enqueueRetries  *prometheus.Desc
	published       *prometheus.Desc
	aborted         *prometheus.Desc
	dequeueAttempts *prometheus.Desc
	dequeueEmpty    *prometheus.Desc
	dequeueNotReady *prometheus.Desc
	consumed        *prometheus.Desc
}

// NewCollector builds a Collector with metric names prefixed by
// namespace (e.g. "myring_published_total").
func NewCollector(namespace string, src StatsSource) *Collector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, nil, nil)
	}
	return &Collector{
		src:             src,
		enqueueAttempts: desc("enqueue_attempts_total", "producer reserve attempts"),
		enqueueFull:     desc("enqueue_full_total", "reservations refused, ring full"),
		enqueueRetries:  desc("enqueue_retries_total", "reservation CAS retries"),
		published:       desc("published_total", "items published"),
		aborted:         desc("aborted_total", "reservations rolled back"),
		dequeueAttempts: desc("dequeue_attempts_total", "consumer claim attempts"),
		dequeueEmpty:    desc("dequeue_empty_total", "claims on an empty ring"),
		dequeueNotReady: desc("dequeue_not_ready_total", "claims on a mid-write slot"),
		consumed:        desc("consumed_total", "items delivered"),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.enqueueAttempts
	ch <- c.enqueueFull
	ch <- c.enqueueRetries
	ch <- c.published
	ch <- c.aborted
	ch <- c.dequeueAttempts
	ch <- c.dequeueEmpty
	ch <- c.dequeueNotReady
	ch <- c.consumed
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	st := c.src.Stats()
	counter := func(d *prometheus.Desc, v uint64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v))
	}
	counter(c.enqueueAttempts, st.EnqueueAttempts)
	counter(c.enqueueFull, st.EnqueueFull)
	counter(c.enqueueRetries, st.EnqueueRetries)
	counter(c.published, st.Published)
	counter(c.aborted, st.Aborted)
	counter(c.dequeueAttempts, st.DequeueAttempts)
	counter(c.dequeueEmpty, st.DequeueEmpty)
	counter(c.dequeueNotReady, st.DequeueNotReady)
	counter(c.consumed, st.Consumed)
}

var _ prometheus.Collector = (*Collector)(nil)
