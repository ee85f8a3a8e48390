package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Исходы обработки доставки.
const (
	OutcomeAck       = "ack"
	OutcomeNack      = "nack_requeue"
	OutcomeMalformed = "malformed"
)

var (
	// ConsumerMessages — доставки, завершённые consumer'ом, по исходу.
	ConsumerMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_consumer_messages_total",
		Help: "Deliveries terminated by the order consumer, by outcome",
	}, []string{"outcome"})

	// TaskWaitSeconds — сколько consumer ждал результат task.
	TaskWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "orders_consumer_task_wait_seconds",
		Help:    "Time the consumer spent waiting for a task result",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
	})

	// Reconnects — перезапуски сессии потребления супервизором.
	Reconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_consumer_reconnects_total",
		Help: "Consumer sessions restarted by the reconnect supervisor",
	})

	// Published — публикации new_order по результату.
	Published = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_publisher_messages_total",
		Help: "new_order publish attempts, by result",
	}, []string{"result"})

	// TaskExecutions — завершённые выполнения task по имени и итоговому статусу попытки.
	TaskExecutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_task_executions_total",
		Help: "Task executions, by task name and resulting state",
	}, []string{"task", "state"})

	// HTTPRequests — HTTP-запросы API по методу и коду ответа.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_api_http_requests_total",
		Help: "Total HTTP requests handled by orders-api",
	}, []string{"method", "status"})
)
