package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"payflow/internal/metrics"
	"payflow/internal/model"
	"payflow/internal/provider"
)

func settleEvent(id, reference string) provider.WebhookEvent {
	return provider.WebhookEvent{
		EventID:           id,
		Reference:         reference,
		ProviderReference: "mock_ref_settled0000",
		Status:            "succeeded",
		Timestamp:         time.Now().Unix(),
	}
}

func TestProcess_LifecycleWithRedelivery(t *testing.T) {
	repo := newFakePayoutRepo()
	audits := &fakeAuditRepo{}
	payoutSvc := newTestService(repo, audits, newFakeProvider(), nil)
	webhookSvc := NewWebhookService(repo, audits, metrics.NopObserver{})

	payout, _, err := payoutSvc.Create(context.Background(), testInput("key-wh"))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if payout.Status != model.StatusProcessing {
		t.Fatalf("precondition: status = %s", payout.Status)
	}

	result, err := webhookSvc.Process(context.Background(), settleEvent("evt_1", payout.Reference))
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}
	if !result.Processed || result.Duplicate {
		t.Errorf("result = %+v, want processed and not duplicate", result)
	}
	if result.Status != model.StatusSucceeded {
		t.Errorf("status = %s, want succeeded", result.Status)
	}

	settled, _ := repo.GetByID(context.Background(), payout.ID)
	if settled.Status != model.StatusSucceeded {
		t.Fatalf("row status = %s, want succeeded", settled.Status)
	}
	if settled.LastWebhookEventID != "evt_1" {
		t.Errorf("last event id = %q", settled.LastWebhookEventID)
	}
	if settled.WebhookReceivedAt == nil {
		t.Error("webhook received at not set")
	}

	// Redelivery of the same event must change nothing.
	redelivered, err := webhookSvc.Process(context.Background(), settleEvent("evt_1", payout.Reference))
	if err != nil {
		t.Fatalf("redelivery failed: %v", err)
	}
	if !redelivered.Processed || !redelivered.Duplicate {
		t.Errorf("redelivery result = %+v, want processed duplicate", redelivered)
	}

	after, _ := repo.GetByID(context.Background(), payout.ID)
	if !after.UpdatedAt.Equal(settled.UpdatedAt) {
		t.Errorf("row touched by duplicate: %s vs %s", after.UpdatedAt, settled.UpdatedAt)
	}
}

func TestProcess_ConcurrentRedelivery(t *testing.T) {
	repo := newFakePayoutRepo()
	audits := &fakeAuditRepo{}
	payoutSvc := newTestService(repo, audits, newFakeProvider(), nil)
	webhookSvc := NewWebhookService(repo, audits, metrics.NopObserver{})

	payout, _, err := payoutSvc.Create(context.Background(), testInput("key-wh-race"))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	// The provider redelivers the same event on parallel connections.
	// Exactly one delivery applies; the rest observe the duplicate.
	const deliveries = 10
	var wg sync.WaitGroup
	results := make([]WebhookResult, deliveries)
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := webhookSvc.Process(context.Background(), settleEvent("evt_race", payout.Reference))
			if err != nil {
				t.Errorf("delivery %d: %v", i, err)
				return
			}
			results[i] = result
		}(i)
	}
	wg.Wait()

	applied := 0
	for i, result := range results {
		if !result.Processed {
			t.Errorf("delivery %d not processed: %+v", i, result)
		}
		if !result.Duplicate {
			applied++
		}
	}
	if applied != 1 {
		t.Errorf("applied deliveries = %d, want exactly 1", applied)
	}

	row, _ := repo.GetByID(context.Background(), payout.ID)
	if row.Status != model.StatusSucceeded {
		t.Errorf("status = %s, want succeeded", row.Status)
	}

	trail, _ := audits.ListByPayout(context.Background(), payout.ID)
	transitions := 0
	for _, entry := range trail {
		if entry.Actor == "webhook" {
			transitions++
		}
	}
	if transitions != 1 {
		t.Errorf("webhook audit entries = %d, want exactly 1", transitions)
	}
}

func TestProcess_UnknownReference(t *testing.T) {
	repo := newFakePayoutRepo()
	webhookSvc := NewWebhookService(repo, &fakeAuditRepo{}, metrics.NopObserver{})

	result, err := webhookSvc.Process(context.Background(), settleEvent("evt_x", "PAY_DOESNOTEXIST"))
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}
	if result.Processed {
		t.Errorf("result = %+v, want not processed", result)
	}
}

func TestProcess_StaleEventAfterTerminal(t *testing.T) {
	repo := newFakePayoutRepo()
	audits := &fakeAuditRepo{}
	payoutSvc := newTestService(repo, audits, newFakeProvider(), nil)
	webhookSvc := NewWebhookService(repo, audits, metrics.NopObserver{})

	payout, _, err := payoutSvc.Create(context.Background(), testInput("key-stale"))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if _, err := webhookSvc.Process(context.Background(), settleEvent("evt_first", payout.Reference)); err != nil {
		t.Fatalf("settle failed: %v", err)
	}

	// A different, later event must not overwrite the terminal state.
	stale := settleEvent("evt_second", payout.Reference)
	stale.Status = "failed"
	stale.ErrorCode = "provider_error"
	result, err := webhookSvc.Process(context.Background(), stale)
	if err != nil {
		t.Fatalf("stale process failed: %v", err)
	}
	if !result.Processed || !result.Duplicate {
		t.Errorf("result = %+v, want processed duplicate", result)
	}

	row, _ := repo.GetByID(context.Background(), payout.ID)
	if row.Status != model.StatusSucceeded {
		t.Errorf("status = %s, terminal state was overwritten", row.Status)
	}
}

func TestProcess_UnknownStatusMapsToPending(t *testing.T) {
	repo := newFakePayoutRepo()
	payoutSvc := newTestService(repo, &fakeAuditRepo{}, newFakeProvider(), nil)
	webhookSvc := NewWebhookService(repo, &fakeAuditRepo{}, metrics.NopObserver{})

	payout, _, err := payoutSvc.Create(context.Background(), testInput("key-odd"))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	odd := settleEvent("evt_odd", payout.Reference)
	odd.Status = "reviewing"
	result, err := webhookSvc.Process(context.Background(), odd)
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}
	if result.Status != model.StatusPending {
		t.Errorf("status = %s, want pending for unrecognized provider status", result.Status)
	}
}

func TestProcess_FailureEventRecordsError(t *testing.T) {
	repo := newFakePayoutRepo()
	payoutSvc := newTestService(repo, &fakeAuditRepo{}, newFakeProvider(), nil)
	webhookSvc := NewWebhookService(repo, &fakeAuditRepo{}, metrics.NopObserver{})

	payout, _, err := payoutSvc.Create(context.Background(), testInput("key-fail"))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	event := settleEvent("evt_f", payout.Reference)
	event.Status = "failed"
	event.ErrorCode = "insufficient_funds"
	event.ErrorMessage = "account balance too low"

	if _, err := webhookSvc.Process(context.Background(), event); err != nil {
		t.Fatalf("process failed: %v", err)
	}

	row, _ := repo.GetByID(context.Background(), payout.ID)
	if row.Status != model.StatusFailed {
		t.Errorf("status = %s, want failed", row.Status)
	}
	if row.ErrorCode != "insufficient_funds" {
		t.Errorf("error code = %q", row.ErrorCode)
	}
}

func TestSweeper_SettlesStuckPayout(t *testing.T) {
	repo := newFakePayoutRepo()
	client := newFakeProvider()
	payoutSvc := newTestService(repo, &fakeAuditRepo{}, client, nil)

	payout, _, err := payoutSvc.Create(context.Background(), testInput("key-stuck"))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	repo.touch(payout.ID, time.Now().Add(-time.Hour))

	client.status = "succeeded"
	sweeper := NewStatusSweeper(repo, client, time.Minute, 5*time.Minute)
	sweeper.sweep(context.Background())

	row, _ := repo.GetByID(context.Background(), payout.ID)
	if row.Status != model.StatusSucceeded {
		t.Errorf("status = %s, want succeeded after sweep", row.Status)
	}
	if len(client.queried) != 1 {
		t.Errorf("provider queries = %d, want 1", len(client.queried))
	}
}

func TestSweeper_LeavesNonTerminalAlone(t *testing.T) {
	repo := newFakePayoutRepo()
	client := newFakeProvider()
	payoutSvc := newTestService(repo, &fakeAuditRepo{}, client, nil)

	payout, _, err := payoutSvc.Create(context.Background(), testInput("key-wait"))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	repo.touch(payout.ID, time.Now().Add(-time.Hour))

	client.status = "processing"
	sweeper := NewStatusSweeper(repo, client, time.Minute, 5*time.Minute)
	sweeper.sweep(context.Background())

	row, _ := repo.GetByID(context.Background(), payout.ID)
	if row.Status != model.StatusProcessing {
		t.Errorf("status = %s, want processing untouched", row.Status)
	}
}
