// Package metrics Prometheus 指标
package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	registrationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaign_registrations_total",
			Help: "Registration calls by result (ok/bad_address/error).",
		},
		[]string{"result"},
	)

	notificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaign_notifications_total",
			Help: "Admin notifications by channel and status (sent/failed/skipped/dropped).",
		},
		[]string{"channel", "status"},
	)

	countdownUpdatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaign_countdown_updates_total",
			Help: "Countdown override changes by action (set/clear/rejected).",
		},
		[]string{"action"},
	)

	storeFallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaign_store_fallbacks_total",
			Help: "Collection loads that fell back to an empty default.",
		},
		[]string{"collection"},
	)

	reconciledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaign_reconciled_records_total",
			Help: "Records whose cached referral codes were patched by the admin listing.",
		},
		[]string{"collection"},
	)
)

// MustRegister 向默认 registry 注册全部指标（幂等）
func MustRegister() {
	once.Do(func() {
		prometheus.MustRegister(
			registrationsTotal, notificationsTotal, countdownUpdatesTotal,
			storeFallbacksTotal, reconciledTotal,
		)
	})
}

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func IncRegistration(result string) {
	registrationsTotal.WithLabelValues(norm(result)).Inc()
}

func IncNotification(channel, status string) {
	notificationsTotal.WithLabelValues(norm(channel), norm(status)).Inc()
}

func IncCountdownUpdate(action string) {
	countdownUpdatesTotal.WithLabelValues(norm(action)).Inc()
}

func IncStoreFallback(collection string) {
	storeFallbacksTotal.WithLabelValues(collection).Inc()
}

func AddReconciled(collection string, n int) {
	if n <= 0 {
		return
	}
	reconciledTotal.WithLabelValues(collection).Add(float64(n))
}
