// Package metrics registers the Prometheus counters exposed on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	BirthdaysCreated prometheus.Counter
	BirthdaysDeleted prometheus.Counter
	RemindersSent    prometheus.Counter
	PushSendFailures prometheus.Counter
}

// New creates and registers all metrics on the default registerer.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers all metrics on the given registerer. Tests pass a fresh
// registry to avoid duplicate registration.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		BirthdaysCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "jubilee_birthdays_created_total",
			Help: "Total number of birthday records created",
		}),
		BirthdaysDeleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "jubilee_birthdays_deleted_total",
			Help: "Total number of birthday records deleted",
		}),
		RemindersSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "jubilee_reminders_sent_total",
			Help: "Total number of birthday reminders delivered to at least one subscription",
		}),
		PushSendFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "jubilee_push_send_failures_total",
			Help: "Total number of failed push deliveries after retries",
		}),
	}
}
