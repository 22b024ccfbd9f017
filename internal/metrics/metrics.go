package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal *prometheus.CounterVec
	votesTotal        *prometheus.CounterVec
	tallyAppliesTotal *prometheus.CounterVec
	pollSubscribers   prometheus.Gauge
	registerOnce      sync.Once
)

// Register initializes Prometheus metrics on the default registry.
func Register() {
	registerOnce.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pollstream",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests processed by the API.",
		}, []string{"method", "path", "status"})

		votesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pollstream",
			Name:      "votes_total",
			Help:      "Vote casts by outcome (registered, updated, duplicate).",
		}, []string{"result"})

		tallyAppliesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pollstream",
			Name:      "tally_applies_total",
			Help:      "Counter-store delta applications by outcome.",
		}, []string{"outcome"})

		pollSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "pollstream",
			Name:      "poll_subscribers",
			Help:      "Live result-feed subscriptions across all polls.",
		})
	})
}

// IncRequest increments the http_requests_total counter with the given labels.
func IncRequest(method, path string, status int) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
}

func IncVote(result string) {
	if votesTotal == nil {
		return
	}
	votesTotal.WithLabelValues(result).Inc()
}

func IncTallyApply(outcome string) {
	if tallyAppliesTotal == nil {
		return
	}
	tallyAppliesTotal.WithLabelValues(outcome).Inc()
}

func SubscriberAdded() {
	if pollSubscribers == nil {
		return
	}
	pollSubscribers.Inc()
}

func SubscriberRemoved() {
	if pollSubscribers == nil {
		return
	}
	pollSubscribers.Dec()
}
