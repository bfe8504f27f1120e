package observability

import (
	"context"
	"net/http"
	"strconv"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors fed by the interpreter's hooks.
type Metrics struct {
	NodesCreated     *prometheus.CounterVec
	NodesRevalidated *prometheus.CounterVec
	EffectYields     *prometheus.CounterVec
	Collected        *prometheus.CounterVec
	FreedEffects     *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		NodesCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "weft_nodes_created_total",
				Help: "Cache nodes created, by expression kind",
			},
			[]string{"kind", "superseded"},
		),
		NodesRevalidated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "weft_nodes_revalidated_total",
				Help: "Cache nodes revalidated without a new node, by expression kind",
			},
			[]string{"kind"},
		),
		EffectYields: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "weft_effect_yields_total",
				Help: "Effects yielded to the caller, by effect type and resolution",
			},
			[]string{"type", "resolved"},
		),
		Collected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "weft_gc_collected_nodes_total",
				Help: "Cache nodes removed by garbage collection",
			},
			[]string{"mode"},
		),
		FreedEffects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "weft_gc_freed_effects_total",
				Help: "Effects no longer reachable from any subscription",
			},
			[]string{"mode"},
		),
	}

	for _, c := range []prometheus.Collector{m.NodesCreated, m.NodesRevalidated, m.EffectYields, m.Collected, m.FreedEffects} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Hooks returns lifecycle hooks that record into m.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeCreated: func(_ context.Context, e *domain.NodeEvent) {
			m.NodesCreated.WithLabelValues(e.Kind.String(), strconv.FormatBool(e.Superseded)).Inc()
		},
		OnNodeRevalidated: func(_ context.Context, e *domain.NodeEvent) {
			m.NodesRevalidated.WithLabelValues(e.Kind.String()).Inc()
		},
		OnEffectYield: func(_ context.Context, e *domain.EffectEvent) {
			m.EffectYields.WithLabelValues(e.Effect.Type, strconv.FormatBool(e.Resolved)).Inc()
		},
		OnCollect: func(_ context.Context, e *domain.CollectEvent) {
			mode := "minor"
			if e.Major {
				mode = "major"
			}
			m.Collected.WithLabelValues(mode).Add(float64(e.Collected))
			m.FreedEffects.WithLabelValues(mode).Add(float64(e.Freed))
		},
	}
}

// Handler serves the metrics gathered by g in the Prometheus exposition format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
