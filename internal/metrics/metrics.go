package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/penwyp/podscope/internal/data/aggregator"
	"github.com/penwyp/podscope/internal/feed"
	"github.com/penwyp/podscope/internal/stream"
)

const namespace = "podscope"

// Metrics holds the collectors for store, feed, bus and stream activity.
// It implements aggregator.Observer, feed.Observer and stream.Observer.
type Metrics struct {
	registry *prometheus.Registry

	PointsMerged     prometheus.Counter
	PointsDuplicate  prometheus.Counter
	PointsEvicted    prometheus.Counter
	StoreSize        *prometheus.GaugeVec
	Notifications    *prometheus.CounterVec
	Pulls            *prometheus.CounterVec
	SubscriptionEnds *prometheus.CounterVec
	BusMessages      *prometheus.CounterVec
	SessionsActive   *prometheus.GaugeVec
	SessionsEnded    *prometheus.CounterVec
	StreamEvents     *prometheus.CounterVec
}

var (
	_ aggregator.Observer = (*Metrics)(nil)
	_ feed.Observer       = (*Metrics)(nil)
	_ stream.Observer     = (*Metrics)(nil)
)

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		PointsMerged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "points_merged_total",
			Help:      "Points added to the live set",
		}),
		PointsDuplicate: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "points_duplicate_total",
			Help:      "Incoming points dropped as duplicates",
		}),
		PointsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "points_evicted_total",
			Help:      "Oldest points evicted by the retention cap",
		}),
		StoreSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "points",
			Help:      "Points currently held, by set",
		}, []string{"set"}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "notifications_total",
			Help:      "Change notifications received",
		}, []string{"resource"}),
		Pulls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "pulls_total",
			Help:      "Resource fetches after a notification",
		}, []string{"resource", "status"}),
		SubscriptionEnds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "subscription_ends_total",
			Help:      "Subscriptions that ended, by cause",
		}, []string{"resource", "cause"}),
		BusMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "messages_total",
			Help:      "Message bus payloads handled",
		}, []string{"status"}),
		SessionsActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "sessions_active",
			Help:      "Open streaming sessions",
		}, []string{"kind"}),
		SessionsEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "sessions_ended_total",
			Help:      "Streaming sessions that ended, by final state",
		}, []string{"kind", "state"}),
		StreamEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "events_total",
			Help:      "Events delivered to streaming clients",
		}, []string{"kind"}),
	}

	m.registry.MustRegister(
		m.PointsMerged, m.PointsDuplicate, m.PointsEvicted, m.StoreSize,
		m.Notifications, m.Pulls, m.SubscriptionEnds, m.BusMessages,
		m.SessionsActive, m.SessionsEnded, m.StreamEvents,
		collectors.NewGoCollector(),
	)
	return m
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func (m *Metrics) ObserveMerge(r aggregator.MergeResult) {
	m.PointsMerged.Add(float64(len(r.Added)))
	m.PointsDuplicate.Add(float64(r.Duplicates))
	m.PointsEvicted.Add(float64(r.Evicted))
}

func (m *Metrics) ObserveSizes(live, csv int) {
	m.StoreSize.WithLabelValues("live").Set(float64(live))
	m.StoreSize.WithLabelValues("csv").Set(float64(csv))
}

func (m *Metrics) ObserveNotification(resource string) {
	m.Notifications.WithLabelValues(resource).Inc()
}

func (m *Metrics) ObservePull(resource string, err error) {
	m.Pulls.WithLabelValues(resource, status(err)).Inc()
}

func (m *Metrics) ObserveSubscriptionEnd(resource string, cause error) {
	label := "error"
	switch {
	case cause == nil, errors.Is(cause, feed.ErrUnsubscribed):
		label = "unsubscribed"
	case errors.Is(cause, feed.ErrChannelClosed):
		label = "channel_closed"
	}
	m.SubscriptionEnds.WithLabelValues(resource, label).Inc()
}

// ObserveBusMessage counts one handled bus payload.
func (m *Metrics) ObserveBusMessage(err error) {
	m.BusMessages.WithLabelValues(status(err)).Inc()
}

func (m *Metrics) SessionOpened(kind stream.SessionKind) {
	m.SessionsActive.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) SessionEnded(kind stream.SessionKind, state stream.State) {
	m.SessionsActive.WithLabelValues(string(kind)).Dec()
	m.SessionsEnded.WithLabelValues(string(kind), state.String()).Inc()
}

func (m *Metrics) EventEmitted(kind stream.SessionKind) {
	m.StreamEvents.WithLabelValues(string(kind)).Inc()
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
