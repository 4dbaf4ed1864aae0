package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Manager holds the engine's Prometheus metrics on a private registry.
type Manager struct {
	Registry *prometheus.Registry

	PromotionsTotal        *prometheus.CounterVec
	ViewPackagesTotal      prometheus.Counter
	EffectsAppliedTotal    prometheus.Counter
	ListingsArchivedTotal  prometheus.Counter
	NotificationsTotal     *prometheus.CounterVec
	RollbacksTotal         *prometheus.CounterVec
	SweepRunsTotal         prometheus.Counter
	SweepListingErrors     prometheus.Counter
	SweepDurationSeconds   prometheus.Histogram
}

func NewManager(namespace string) *Manager {
	registry := prometheus.NewRegistry()

	m := &Manager{
		Registry: registry,
		PromotionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "promotions_total",
			Help:      "Total number of promotions applied, by ad type.",
		}, []string{"ad_type"}),
		ViewPackagesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "view_packages_total",
			Help:      "Total number of purchased view packages.",
		}),
		EffectsAppliedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "creative_effect_batches_total",
			Help:      "Total number of creative effect batches applied.",
		}),
		ListingsArchivedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "listings_archived_total",
			Help:      "Total number of listings auto-archived by the sweep.",
		}),
		NotificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Total number of notifications handed to the sink, by kind.",
		}, []string{"kind"}),
		RollbacksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_rollbacks_total",
			Help:      "Total number of compensating refunds after a failed mutation, by operation.",
		}, []string{"operation"}),
		SweepRunsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_runs_total",
			Help:      "Total number of completed expiration sweep runs.",
		}),
		SweepListingErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_listing_errors_total",
			Help:      "Total number of listings that failed processing during a sweep.",
		}),
		SweepDurationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Duration of a full sweep run.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	registry.MustRegister(
		m.PromotionsTotal,
		m.ViewPackagesTotal,
		m.EffectsAppliedTotal,
		m.ListingsArchivedTotal,
		m.NotificationsTotal,
		m.RollbacksTotal,
		m.SweepRunsTotal,
		m.SweepListingErrors,
		m.SweepDurationSeconds,
	)

	return m
}

// Handler serves the registry, mounted by the app on the metrics port.
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
