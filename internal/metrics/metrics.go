// Package metrics exposes the Prometheus instruments shared by the API
// and the worker.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// Scans counts handled scans by result: accepted, rejected, failed.
	Scans = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "catholink_scans_total",
		Help: "QR attendance scans by result.",
	}, []string{"result"})

	// Notifications counts delivery attempts by channel and outcome:
	// sent, failed, skipped.
	Notifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "catholink_notifications_total",
		Help: "Parent notification attempts by channel and outcome.",
	}, []string{"channel", "outcome"})
)

func init() {
	prometheus.MustRegister(Scans, Notifications)
}
