// Package telemetry — логирование, метрики и служебный HTTP.
//
//   - logging.go — slog: JSON или text, уровень из LOG_LEVEL
//   - metrics.go — Prometheus-метрики consumer'а, task backend и API
//   - http.go    — /healthz и /metrics, graceful shutdown
//
// Каждый бинарник поднимает служебный порт с /metrics.
package telemetry
