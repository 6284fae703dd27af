package metrics

import (
	"testing"
)

func TestPrometheusObserver(t *testing.T) {
	obs := NewPrometheusObserver()

	// Just call methods to ensure no panic
	obs.RecordPayoutCreated("processing")
	obs.RecordDispatchAttempt("success")
	obs.RecordWebhook("applied")
	obs.RecordRateLimitRejection("payout-create")
}
