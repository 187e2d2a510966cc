package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "shepherd"

// Prometheus is a Collector backed by its own prometheus registry.
type Prometheus struct {
	registry *prometheus.Registry

	state           *prometheus.GaugeVec
	restarts        *prometheus.CounterVec
	crashes         *prometheus.CounterVec
	flaps           *prometheus.CounterVec
	spawnFailures   *prometheus.CounterVec
	shutdownTimeout *prometheus.CounterVec
	memory          *prometheus.GaugeVec
}

func NewPrometheus() *Prometheus {
	p := &Prometheus{
		registry: prometheus.NewRegistry(),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "process_state",
			Help:      "Lifecycle state of a process instance, 1 for the current state.",
		}, []string{"app", "instance", "state"}),
		restarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "restarts_total",
			Help:      "Number of process restarts.",
		}, []string{"app", "reason"}),
		crashes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "crashes_total",
			Help:      "Number of unexpected process exits.",
		}, []string{"app"}),
		flaps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flaps_total",
			Help:      "Number of times an app was given up on after crashing too often.",
		}, []string{"app"}),
		spawnFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "spawn_failures_total",
			Help:      "Number of processes that could not be launched.",
		}, []string{"app"}),
		shutdownTimeout: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shutdown_timeouts_total",
			Help:      "Number of processes killed after their grace period.",
		}, []string{"app"}),
		memory: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "process_resident_memory_bytes",
			Help:      "Last sampled resident memory of a process instance.",
		}, []string{"app", "instance"}),
	}

	p.registry.MustRegister(
		p.state,
		p.restarts,
		p.crashes,
		p.flaps,
		p.spawnFailures,
		p.shutdownTimeout,
		p.memory,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return p
}

// Handler serves the registry in the prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

// Registry returns the underlying registry.
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

func (p *Prometheus) Transition(app string, instance int, from, to string) {
	i := strconv.Itoa(instance)
	p.state.WithLabelValues(app, i, from).Set(0)
	p.state.WithLabelValues(app, i, to).Set(1)
}

func (p *Prometheus) Restart(app string, reason string) {
	p.restarts.WithLabelValues(app, reason).Inc()
}

func (p *Prometheus) Crash(app string) {
	p.crashes.WithLabelValues(app).Inc()
}

func (p *Prometheus) Flap(app string) {
	p.flaps.WithLabelValues(app).Inc()
}

func (p *Prometheus) SpawnFailure(app string) {
	p.spawnFailures.WithLabelValues(app).Inc()
}

func (p *Prometheus) ShutdownTimeout(app string) {
	p.shutdownTimeout.WithLabelValues(app).Inc()
}

func (p *Prometheus) Memory(app string, instance int, rss uint64) {
	p.memory.WithLabelValues(app, strconv.Itoa(instance)).Set(float64(rss))
}

func (p *Prometheus) Forget(app string) {
	labels := prometheus.Labels{"app": app}
	p.state.DeletePartialMatch(labels)
	p.restarts.DeletePartialMatch(labels)
	p.crashes.DeletePartialMatch(labels)
	p.flaps.DeletePartialMatch(labels)
	p.spawnFailures.DeletePartialMatch(labels)
	p.shutdownTimeout.DeletePartialMatch(labels)
	p.memory.DeletePartialMatch(labels)
}
