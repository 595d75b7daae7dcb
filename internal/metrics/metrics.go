// Package metrics exposes runtime counters for the call path in Prometheus
// format on a private registry.
package metrics

import (
	"net/http"

	"callflow-platform/internal/interpreter"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "callflow"

// Collector implements interpreter.Observer and flowstore.CacheObserver.
type Collector struct {
	registry *prometheus.Registry

	invocations   *prometheus.CounterVec
	directives    *prometheus.CounterVec
	menuFallbacks prometheus.Counter
	hopCapHits    prometheus.Counter
	cacheLookups  *prometheus.CounterVec
}

// New builds a Collector. With a nil registry a fresh one is created and the
// Go runtime and process collectors are added to it.
func New(registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	c := &Collector{registry: registry}

	c.invocations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "interpreter",
			Name:      "invocations_total",
			Help:      "Interpreter invocations by outcome",
		},
		[]string{"outcome"},
	)
	c.directives = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "interpreter",
			Name:      "directives_total",
			Help:      "Directives emitted by verb",
		},
		[]string{"verb"},
	)
	c.menuFallbacks = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "interpreter",
		Name:      "menu_fallbacks_total",
		Help:      "Menus that exhausted their retries on unmatched input",
	})
	c.hopCapHits = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "interpreter",
		Name:      "hop_cap_hits_total",
		Help:      "Call legs ended by the hop cap",
	})
	c.cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "flow_cache",
			Name:      "lookups_total",
			Help:      "Flow cache lookups on the call path by result",
		},
		[]string{"result"},
	)

	registry.MustRegister(c.invocations, c.directives, c.menuFallbacks, c.hopCapHits, c.cacheLookups)
	return c
}

func (c *Collector) Observe(r interpreter.Result) {
	c.invocations.WithLabelValues(string(r.Outcome)).Inc()
	for _, d := range r.Directives {
		c.directives.WithLabelValues(string(d.Verb)).Inc()
	}
	if r.MenuFallback {
		c.menuFallbacks.Inc()
	}
	if r.Outcome == interpreter.OutcomeHopCap {
		c.hopCapHits.Inc()
	}
}

func (c *Collector) CacheHit()  { c.cacheLookups.WithLabelValues("hit").Inc() }
func (c *Collector) CacheMiss() { c.cacheLookups.WithLabelValues("miss").Inc() }

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
