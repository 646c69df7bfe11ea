package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PastesPosted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pbin_pastes_posted_total",
			Help: "no. of pastes posted, by session",
		},
		[]string{"session"},
	)
	PastesFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pbin_pastes_fetched_total",
			Help: "no. of raw paste fetches, by result",
		},
		[]string{"result"},
	)
	LoginAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pbin_login_attempts_total",
			Help: "no. of login requests sent to the paste host, by result",
		},
		[]string{"result"},
	)
	UpstreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pbin_upstream_request_duration_seconds",
			Help:    "paste host request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op", "status"},
	)
	InvalidOptions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pbin_invalid_options_total",
			Help: "no. of posts rejected for an invalid option",
		},
		[]string{"option"},
	)
	HistoryWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pbin_history_writes_total",
			Help: "no. of paste history writes, by result",
		},
		[]string{"result"},
	)
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pbin_request_duration_seconds",
			Help:    "bridge HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)
)

// ObserveUpstream matches the pastebin client's observer signature.
func ObserveUpstream(op string, status int, err error, elapsed time.Duration) {
	code := "error"
	if status > 0 {
		code = strconv.Itoa(status)
	}
	UpstreamDuration.WithLabelValues(op, code).Observe(elapsed.Seconds())
	if op == "login" {
		result := "failure"
		if err == nil && status == 200 {
			result = "success"
		}
		LoginAttempts.WithLabelValues(result).Inc()
	}
}
