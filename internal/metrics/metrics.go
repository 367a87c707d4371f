// Package metrics содержит счетчики Prometheus сервиса обменов.
// Все методы безопасно вызывать на nil *Metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics набор метрик приложения
type Metrics struct {
	Registry *prometheus.Registry

	swapTransitions      *prometheus.CounterVec
	swapErrors           *prometheus.CounterVec
	pointsCredited       prometheus.Counter
	pointsTransferred    prometheus.Counter
	notificationsSent    *prometheus.CounterVec
	notificationFailures *prometheus.CounterVec
	notificationsDropped prometheus.Counter
	cacheLookups         *prometheus.CounterVec
}

// New создает метрики в отдельном реестре
func New(namespace string) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		Registry: registry,
		swapTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "swap_transitions_total",
			Help:      "Количество переходов запросов на обмен по целевому статусу.",
		}, []string{"status"}),
		swapErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "swap_errors_total",
			Help:      "Ошибки операций обмена по операции и категории.",
		}, []string{"operation", "kind"}),
		pointsCredited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "points_credited_total",
			Help:      "Баллы, начисленные за завершенные обмены.",
		}),
		pointsTransferred: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "points_transferred_total",
			Help:      "Баллы, переведенные при принятии обменов на баллы.",
		}),
		notificationsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_sent_total",
			Help:      "Доставленные уведомления по каналу.",
		}, []string{"channel"}),
		notificationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_failures_total",
			Help:      "Неудачные уведомления по каналу.",
		}, []string{"channel"}),
		notificationsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_dropped_total",
			Help:      "Уведомления, отброшенные из-за переполнения очереди.",
		}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "item_cache_lookups_total",
			Help:      "Обращения к кэшу вещей по результату.",
		}, []string{"result"}),
	}

	registry.MustRegister(
		m.swapTransitions,
		m.swapErrors,
		m.pointsCredited,
		m.pointsTransferred,
		m.notificationsSent,
		m.notificationFailures,
		m.notificationsDropped,
		m.cacheLookups,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)

	return m
}

// Handler отдает метрики реестра для /metrics
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

func (m *Metrics) SwapTransition(status string) {
	if m == nil {
		return
	}
	m.swapTransitions.WithLabelValues(status).Inc()
}

func (m *Metrics) SwapError(operation, kind string) {
	if m == nil {
		return
	}
	m.swapErrors.WithLabelValues(operation, kind).Inc()
}

func (m *Metrics) PointsCredited(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.pointsCredited.Add(float64(n))
}

func (m *Metrics) PointsTransferred(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.pointsTransferred.Add(float64(n))
}

func (m *Metrics) NotificationSent(channel string) {
	if m == nil {
		return
	}
	m.notificationsSent.WithLabelValues(channel).Inc()
}

func (m *Metrics) NotificationFailed(channel string) {
	if m == nil {
		return
	}
	m.notificationFailures.WithLabelValues(channel).Inc()
}

func (m *Metrics) NotificationDropped() {
	if m == nil {
		return
	}
	m.notificationsDropped.Inc()
}

// CacheLookup учитывает попадание или промах кэша
func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}
