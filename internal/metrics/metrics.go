// Package metrics owns the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "paydesk"

var (
	// Updates counts inbound Telegram updates by kind (command, callback, text, photo).
	Updates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "updates_total",
			Help:      "Telegram updates handled.",
		},
		[]string{"kind"},
	)

	// Deposits counts deposit lifecycle transitions by resulting status.
	Deposits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deposit_transitions_total",
			Help:      "Deposit request transitions by target status.",
		},
		[]string{"status"},
	)

	// Withdrawals counts withdrawal lifecycle transitions by resulting status.
	Withdrawals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "withdrawal_transitions_total",
			Help:      "Withdrawal request transitions by target status.",
		},
		[]string{"status"},
	)

	// DuplicateReferences counts rejected reused payment references.
	DuplicateReferences = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "duplicate_references_total",
		Help:      "Deposit submissions rejected for a reused reference.",
	})

	// Reminders counts escalation reminders sent for pending deposits.
	Reminders = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "deposit_reminders_total",
		Help:      "Reminders sent for pending deposits.",
	})

	// Sweeps counts sweeper cycles by result (ok, error).
	Sweeps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweeps_total",
			Help:      "Escalation sweeper cycles.",
		},
		[]string{"result"},
	)

	// StoreErrors counts failed store calls by operation.
	StoreErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_errors_total",
			Help:      "Store calls that failed.",
		},
		[]string{"op"},
	)

	// HTTPRequests counts health server requests by route pattern and status code.
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served.",
		},
		[]string{"route", "status"},
	)

	registry = prometheus.NewRegistry()
	once     sync.Once
)

func register() {
	once.Do(func() {
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			Updates,
			Deposits,
			Withdrawals,
			DuplicateReferences,
			Reminders,
			Sweeps,
			StoreErrors,
			HTTPRequests,
		)
	})
}

// RegisterDeliveryFailures exposes a failed-send counter owned elsewhere,
// e.g. the outbound Telegram dispatcher.
func RegisterDeliveryFailures(read func() float64) error {
	register()
	return registry.Register(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "delivery_failures_total",
		Help:      "Outbound Telegram sends that failed after retries.",
	}, read))
}

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	register()
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
