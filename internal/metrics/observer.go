package metrics

type PayoutObserver interface {
	RecordPayoutCreated(status string)
	RecordDispatchAttempt(outcome string)
	RecordWebhook(result string)
	RecordRateLimitRejection(class string)
}

// NopObserver satisfies PayoutObserver for tests.
type NopObserver struct{}

func (NopObserver) RecordPayoutCreated(string)      {}
func (NopObserver) RecordDispatchAttempt(string)    {}
func (NopObserver) RecordWebhook(string)            {}
func (NopObserver) RecordRateLimitRejection(string) {}
