// Package metrics - prometheus-метрики движка. До вызова Init все
// функции наблюдения ничего не делают, поэтому тесты сервисов их не
// инициализируют.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "road_hazard_"

	ResultCreated  = "created"
	ResultConflict = "conflict"
	ResultInvalid  = "invalid"
	ResultError    = "error"
	ResultSuccess  = "success"
	ResultFailure  = "failure"
)

var (
	registerOnce sync.Once

	hazardCreations    *prometheus.CounterVec
	hazardMerges       prometheus.Counter
	alertDeliveries    *prometheus.CounterVec
	ticketTransitions  *prometheus.CounterVec
	externalFailures   *prometheus.CounterVec
	overdueTickets     *prometheus.GaugeVec
	httpRequestLatency *prometheus.HistogramVec
)

// Init регистрирует метрики в registry по умолчанию
func Init() {
	registerOnce.Do(func() {
		hazardCreations = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "creations_total",
				Help: "Total hazard create attempts by result",
			},
			[]string{"result"},
		)
		hazardMerges = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "merges_total",
				Help: "Total hazard records absorbed by dedup merges",
			},
		)
		alertDeliveries = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alert_deliveries_total",
				Help: "Alert delivery attempts by channel and result",
			},
			[]string{"channel", "result"},
		)
		ticketTransitions = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ticket_transitions_total",
				Help: "Ticket status transitions by target status",
			},
			[]string{"status"},
		)
		externalFailures = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "external_failures_total",
				Help: "External collaborator failures by collaborator",
			},
			[]string{"collaborator"},
		)
		overdueTickets = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "overdue_tickets",
				Help: "Open tickets breaching SLA at the last overdue scan",
			},
			[]string{"state"},
		)
		httpRequestLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route", "status"},
		)

		prometheus.MustRegister(
			hazardCreations,
			hazardMerges,
			alertDeliveries,
			ticketTransitions,
			externalFailures,
			overdueTickets,
			httpRequestLatency,
		)
	})
}

// IncHazardCreation считает попытку создания опасности
func IncHazardCreation(result string) {
	if hazardCreations != nil {
		hazardCreations.WithLabelValues(result).Inc()
	}
}

// AddMerged увеличивает число поглощенных записей
func AddMerged(count int) {
	if count <= 0 {
		return
	}
	if hazardMerges != nil {
		hazardMerges.Add(float64(count))
	}
}

func IncAlertDelivery(channel, result string) {
	if alertDeliveries != nil {
		alertDeliveries.WithLabelValues(channel, result).Inc()
	}
}

func IncTicketTransition(status string) {
	if ticketTransitions != nil {
		ticketTransitions.WithLabelValues(status).Inc()
	}
}

func IncExternalFailure(collaborator string) {
	if externalFailures != nil {
		externalFailures.WithLabelValues(collaborator).Inc()
	}
}

// SetOverdue выставляет число просроченных заявок по состоянию SLA
func SetOverdue(counts map[string]int) {
	if overdueTickets == nil {
		return
	}
	overdueTickets.Reset()
	for state, n := range counts {
		overdueTickets.WithLabelValues(state).Set(float64(n))
	}
}

// GinMiddleware измеряет время обработки запросов
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if httpRequestLatency == nil {
			return
		}
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpRequestLatency.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
