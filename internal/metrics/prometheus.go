package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type prometheusObserver struct {
	payoutCounter    *prometheus.CounterVec
	dispatchCounter  *prometheus.CounterVec
	webhookCounter   *prometheus.CounterVec
	rateLimitCounter *prometheus.CounterVec
}

var (
	payoutCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payflow_payouts_created_total",
		Help: "Payout creation results by initial status",
	}, []string{"status"})
	dispatchCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payflow_provider_dispatch_total",
		Help: "Provider dispatch attempts by outcome",
	}, []string{"outcome"})
	webhookCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payflow_webhooks_total",
		Help: "Inbound webhook reconciliation results",
	}, []string{"result"})
	rateLimitCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payflow_rate_limit_rejections_total",
		Help: "Requests rejected by the sliding-window limiter, by class",
	}, []string{"class"})
)

func NewPrometheusObserver() PayoutObserver {
	return &prometheusObserver{
		payoutCounter:    payoutCounter,
		dispatchCounter:  dispatchCounter,
		webhookCounter:   webhookCounter,
		rateLimitCounter: rateLimitCounter,
	}
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func (p *prometheusObserver) RecordPayoutCreated(status string) {
	p.payoutCounter.WithLabelValues(status).Inc()
}

func (p *prometheusObserver) RecordDispatchAttempt(outcome string) {
	p.dispatchCounter.WithLabelValues(outcome).Inc()
}

func (p *prometheusObserver) RecordWebhook(result string) {
	p.webhookCounter.WithLabelValues(result).Inc()
}

func (p *prometheusObserver) RecordRateLimitRejection(class string) {
	p.rateLimitCounter.WithLabelValues(class).Inc()
}
