package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"clashsub/backend/repository/events"
)

const namespace = "clashsub"

// Collector 订阅更新、节点切换与内核启停指标。
type Collector struct {
	registry *prometheus.Registry

	updates        *prometheus.CounterVec
	updateDuration prometheus.Histogram
	proxyCount     prometheus.Gauge
	lastUpdate     prometheus.Gauge
	selections     *prometheus.CounterVec
	coreRunning    prometheus.Gauge
	settingsReload prometheus.Counter
}

// NewCollector 在给定注册表上创建指标；registry 为 nil 时新建一个。
func NewCollector(registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	factory := promauto.With(registry)

	return &Collector{
		registry: registry,

		updates: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "subscription_updates_total",
				Help:      "Subscription updates by result and detected format",
			},
			[]string{"result", "format"},
		),
		updateDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "subscription_update_duration_seconds",
				Help:      "Time spent fetching, merging and persisting a subscription",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
		),
		proxyCount: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "subscription_proxies",
				Help:      "Number of proxies in the last written config",
			},
		),
		lastUpdate: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "subscription_last_success_timestamp_seconds",
				Help:      "Unix time of the last successful subscription update",
			},
		),
		selections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "proxy_selections_total",
				Help:      "Proxy selection attempts by result",
			},
			[]string{"result"},
		),
		coreRunning: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "core_running",
				Help:      "1 when the proxy core was last seen started, 0 after stop",
			},
		),
		settingsReload: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "settings_changes_total",
				Help:      "Settings change notifications",
			},
		),
	}
}

// Registry 指标注册表。
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler /metrics 处理器。
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Attach 订阅事件总线。
func (c *Collector) Attach(bus *events.Bus) {
	if bus == nil {
		return
	}
	bus.SubscribeAll(c.Observe)
}

// Observe 根据事件更新指标。
func (c *Collector) Observe(event events.Event) {
	switch e := event.(type) {
	case events.SubscriptionEvent:
		format := e.Format
		if format == "" {
			format = "none"
		}
		if e.Err != nil {
			c.updates.WithLabelValues("failure", format).Inc()
		} else {
			c.updates.WithLabelValues("success", format).Inc()
			c.proxyCount.Set(float64(e.ProxyCount))
			c.lastUpdate.SetToCurrentTime()
		}
		if e.Duration > 0 {
			c.updateDuration.Observe(e.Duration.Seconds())
		}
	case events.SelectionEvent:
		if e.Err != nil {
			c.selections.WithLabelValues("failure").Inc()
		} else {
			c.selections.WithLabelValues("success").Inc()
		}
	case events.ProcessEvent:
		if e.Err != nil {
			return
		}
		switch e.EventType {
		case events.EventProcessStarted:
			c.coreRunning.Set(1)
		case events.EventProcessStopped:
			c.coreRunning.Set(0)
		}
	case events.SettingsEvent:
		c.settingsReload.Inc()
	}
}
