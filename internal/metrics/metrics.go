// Package metrics объявляет метрики Prometheus сервиса.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestsTotal считает HTTP-запросы по методу, шаблону маршрута и коду ответа.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coinledger_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "route", "status"})

	// HTTPRequestDuration измеряет время обработки HTTP-запросов.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "coinledger_http_request_duration_seconds",
		Help:    "Request latency",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"method", "route"})

	// WithdrawalTransitions считает применённые переходы статусов вывода.
	WithdrawalTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coinledger_withdrawal_transitions_total",
		Help: "Applied withdrawal status transitions",
	}, []string{"from", "to"})

	// WithdrawalCompensations считает компенсирующие начисления.
	WithdrawalCompensations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coinledger_withdrawal_compensations_total",
		Help: "Compensating credits issued for rejected or failed withdrawals",
	})

	// NotifierEvents считает события уведомлений по результату: delivered, failed, dropped.
	NotifierEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coinledger_notifier_events_total",
		Help: "Notifier events by outcome",
	}, []string{"topic", "result"})
)
