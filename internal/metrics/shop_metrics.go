package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Причины отказа в оформлении заказа (label reason).
const (
	RejectValidation        = "validation"
	RejectNotFound          = "not_found"
	RejectInsufficientStock = "insufficient_stock"
	RejectVersionConflict   = "version_conflict"
	RejectPayment           = "payment_failed"
	RejectInternal          = "internal"
)

// Шаги оформления заказа (label step).
const (
	StepValidate = "validate"
	StepReserve  = "reserve"
	StepPersist  = "persist"
	StepPayment  = "payment"
	StepNotify   = "notify"
)

// ShopMetrics содержит метрики каталога и заказов.
// Все методы безопасны для nil-получателя: сервисы в тестах работают без метрик.
type ShopMetrics struct {
	// Счётчики заказов
	ordersCreated   prometheus.Counter
	ordersRejected  *prometheus.CounterVec
	ordersCancelled prometheus.Counter
	ordersShipped   prometheus.Counter

	// Конфликты версий при резервировании и сохранении
	versionConflicts *prometheus.CounterVec
	paymentFailures  prometheus.Counter
	refunds          prometheus.Counter
	timelineEvents   prometheus.Counter
	publishedEvents  *prometheus.CounterVec

	// Гистограммы времени выполнения
	checkoutDuration prometheus.Histogram
	stepDuration     *prometheus.HistogramVec

	activeCheckouts prometheus.Gauge
}

// NewShopMetrics регистрирует метрики в глобальном реестре Prometheus.
func NewShopMetrics() *ShopMetrics {
	return NewShopMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewShopMetricsWithRegisterer регистрирует метрики в указанном реестре.
func NewShopMetricsWithRegisterer(registerer prometheus.Registerer) *ShopMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &ShopMetrics{
		ordersCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "myshop_orders_created_total",
			Help: "Total number of orders confirmed and persisted",
		}),
		ordersRejected: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "myshop_orders_rejected_total",
			Help: "Total number of order requests rejected, by reason",
		}, []string{"reason"}),
		ordersCancelled: registerCounter(registerer, prometheus.CounterOpts{
			Name: "myshop_orders_cancelled_total",
			Help: "Total number of orders cancelled",
		}),
		ordersShipped: registerCounter(registerer, prometheus.CounterOpts{
			Name: "myshop_orders_shipped_total",
			Help: "Total number of orders marked as shipped",
		}),
		versionConflicts: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "myshop_version_conflicts_total",
			Help: "Total number of optimistic locking conflicts, by entity",
		}, []string{"entity"}),
		paymentFailures: registerCounter(registerer, prometheus.CounterOpts{
			Name: "myshop_payment_failures_total",
			Help: "Total number of failed payment authorizations",
		}),
		refunds: registerCounter(registerer, prometheus.CounterOpts{
			Name: "myshop_refunds_total",
			Help: "Total number of refunds issued on cancellation",
		}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "myshop_timeline_events_total",
			Help: "Total number of order timeline events recorded",
		}),
		publishedEvents: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "myshop_order_events_published_total",
			Help: "Total number of order events sent to the event bus, by result",
		}, []string{"result"}),
		checkoutDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "myshop_checkout_duration_seconds",
			Help:    "Duration of the order creation workflow in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		stepDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "myshop_checkout_step_duration_seconds",
			Help:    "Duration of individual checkout steps in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"step"}),
		activeCheckouts: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "myshop_active_checkouts",
			Help: "Number of order creation workflows in progress",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	return register(registerer, opts.Name, prometheus.NewCounter(opts))
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	return register(registerer, opts.Name, prometheus.NewCounterVec(opts, labels))
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	return register(registerer, opts.Name, prometheus.NewGauge(opts))
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	return register(registerer, opts.Name, prometheus.NewHistogram(opts))
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	return register(registerer, opts.Name, prometheus.NewHistogramVec(opts, labels))
}

// register возвращает уже зарегистрированный коллектор с тем же именем,
// чтобы повторное создание метрик (тесты, перезапуск компонентов) не паниковало.
func register[C prometheus.Collector](registerer prometheus.Registerer, name string, collector C) C {
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(C)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", name))
			}
			return existing
		}
		panic(fmt.Sprintf("register collector %q: %v", name, err))
	}
	return collector
}

// RecordCheckoutStarted увеличивает число активных оформлений.
func (m *ShopMetrics) RecordCheckoutStarted() {
	if m == nil {
		return
	}
	m.activeCheckouts.Inc()
}

// RecordCheckoutFinished уменьшает число активных оформлений и фиксирует длительность.
func (m *ShopMetrics) RecordCheckoutFinished(duration time.Duration) {
	if m == nil {
		return
	}
	m.activeCheckouts.Dec()
	m.checkoutDuration.Observe(duration.Seconds())
}

// RecordStepDuration записывает время выполнения шага оформления.
func (m *ShopMetrics) RecordStepDuration(step string, duration time.Duration) {
	if m == nil {
		return
	}
	m.stepDuration.WithLabelValues(step).Observe(duration.Seconds())
}

// RecordOrderCreated увеличивает счётчик оформленных заказов.
func (m *ShopMetrics) RecordOrderCreated() {
	if m == nil {
		return
	}
	m.ordersCreated.Inc()
}

// RecordOrderRejected увеличивает счётчик отказов с указанной причиной.
func (m *ShopMetrics) RecordOrderRejected(reason string) {
	if m == nil {
		return
	}
	m.ordersRejected.WithLabelValues(reason).Inc()
}

// RecordOrderCancelled увеличивает счётчик отменённых заказов.
func (m *ShopMetrics) RecordOrderCancelled() {
	if m == nil {
		return
	}
	m.ordersCancelled.Inc()
}

// RecordOrderShipped увеличивает счётчик отгруженных заказов.
func (m *ShopMetrics) RecordOrderShipped() {
	if m == nil {
		return
	}
	m.ordersShipped.Inc()
}

// RecordVersionConflict фиксирует конфликт optimistic locking ("product" или "order").
func (m *ShopMetrics) RecordVersionConflict(entity string) {
	if m == nil {
		return
	}
	m.versionConflicts.WithLabelValues(entity).Inc()
}

// RecordPaymentFailure увеличивает счётчик неудачных авторизаций.
func (m *ShopMetrics) RecordPaymentFailure() {
	if m == nil {
		return
	}
	m.paymentFailures.Inc()
}

// RecordRefund увеличивает счётчик возвратов.
func (m *ShopMetrics) RecordRefund() {
	if m == nil {
		return
	}
	m.refunds.Inc()
}

// RecordTimelineEvent увеличивает счётчик событий timeline.
func (m *ShopMetrics) RecordTimelineEvent() {
	if m == nil {
		return
	}
	m.timelineEvents.Inc()
}

// RecordEventPublished фиксирует результат публикации события ("ok" или "error").
func (m *ShopMetrics) RecordEventPublished(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.publishedEvents.WithLabelValues(result).Inc()
}
