// Package metrics exports forkjoin pool statistics to Prometheus.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tahsin716/forkjoin"
)

const namespace = "forkjoin"

// StatsSource is anything that can report pool statistics.
type StatsSource interface {
	Name() string
	Stats() forkjoin.Stats
}

// Collector reads a pool's Stats on every scrape.
type Collector struct {
	source StatsSource

	scheduled   *prometheus.Desc
	completed   *prometheus.Desc
	failed      *prometheus.Desc
	inline      *prometheus.Desc
	stolen      *prometheus.Desc
	parks       *prometheus.Desc
	inFlight    *prometheus.Desc
	workers     *prometheus.Desc
	blocked     *prometheus.Desc
	queueDepth  *prometheus.Desc
	utilization *prometheus.Desc

	workerExecuted   *prometheus.Desc
	workerStolen     *prometheus.Desc
	workerFailed     *prometheus.Desc
	workerParks      *prometheus.Desc
	workerQueueDepth *prometheus.Desc
}

// NewCollector creates a Collector for source. Every series carries a
// constant "pool" label with the pool's name.
func NewCollector(source StatsSource) *Collector {
	labels := prometheus.Labels{"pool": source.Name()}
	desc := func(name, help string, variable ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, variable, labels)
	}

	return &Collector{
		source: source,

		scheduled:   desc("tasks_scheduled_total", "Total number of tasks accepted by Schedule."),
		completed:   desc("tasks_completed_total", "Total number of tasks that finished, including panics."),
		failed:      desc("tasks_failed_total", "Total number of tasks that panicked."),
		inline:      desc("tasks_inline_total", "Total number of tasks run on the scheduling goroutine because a deque was full."),
		stolen:      desc("tasks_stolen_total", "Total number of tasks taken from another worker's deque."),
		parks:       desc("parks_total", "Total number of times a worker went to sleep."),
		inFlight:    desc("tasks_in_flight", "Tasks scheduled but not yet completed."),
		workers:     desc("workers", "Number of workers in the pool."),
		blocked:     desc("workers_blocked", "Number of workers parked or about to park."),
		queueDepth:  desc("queue_depth", "Tasks currently queued across all deques."),
		utilization: desc("queue_utilization_ratio", "Fraction of total deque capacity in use."),

		workerExecuted:   desc("worker_tasks_executed_total", "Tasks executed per worker.", "worker"),
		workerStolen:     desc("worker_tasks_stolen_total", "Tasks stolen per worker.", "worker"),
		workerFailed:     desc("worker_tasks_failed_total", "Tasks that panicked per worker.", "worker"),
		workerParks:      desc("worker_parks_total", "Parks per worker.", "worker"),
		workerQueueDepth: desc("worker_queue_depth", "Tasks queued per worker deque.", "worker"),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.scheduled, c.completed, c.failed, c.inline, c.stolen, c.parks,
		c.inFlight, c.workers, c.blocked, c.queueDepth, c.utilization,
		c.workerExecuted, c.workerStolen, c.workerFailed, c.workerParks, c.workerQueueDepth,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.source.Stats()

	counter := func(d *prometheus.Desc, v uint64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
	}
	gauge := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, labels...)
	}

	counter(c.scheduled, s.Scheduled)
	counter(c.completed, s.Completed)
	counter(c.failed, s.Failed)
	counter(c.inline, s.InlineExecuted)
	counter(c.stolen, s.Stolen)
	counter(c.parks, s.Parks)
	gauge(c.inFlight, float64(s.InFlight))
	gauge(c.workers, float64(s.NumWorkers))
	gauge(c.blocked, float64(s.Blocked))
	gauge(c.queueDepth, float64(s.TotalQueueDepth))
	gauge(c.utilization, s.Utilization/100)

	for _, ws := range s.WorkerStats {
		id := strconv.Itoa(ws.WorkerID)
		counter(c.workerExecuted, ws.TasksExecuted, id)
		counter(c.workerStolen, ws.TasksStolen, id)
		counter(c.workerFailed, ws.TasksFailed, id)
		counter(c.workerParks, ws.Parks, id)
		gauge(c.workerQueueDepth, float64(ws.QueueDepth), id)
	}
}
