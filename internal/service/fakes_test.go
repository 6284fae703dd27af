package service

import (
	"context"
	"sync"
	"time"

	"payflow/internal/model"
	"payflow/internal/provider"
	"payflow/internal/repository"
)

// fakePayoutRepo mimics the MySQL repository in memory, including the
// unique indexes and the conditional webhook update.
type fakePayoutRepo struct {
	mu    sync.Mutex
	byID  map[string]*model.Payout
	byKey map[string]string
	byRef map[string]string
}

func newFakePayoutRepo() *fakePayoutRepo {
	return &fakePayoutRepo{
		byID:  make(map[string]*model.Payout),
		byKey: make(map[string]string),
		byRef: make(map[string]string),
	}
}

func clonePayout(p *model.Payout) *model.Payout {
	cp := *p
	return &cp
}

func (f *fakePayoutRepo) Create(_ context.Context, payout *model.Payout) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, dup := f.byKey[payout.IdempotencyKey]; dup {
		return repository.ErrDuplicateKey
	}
	if _, dup := f.byRef[payout.Reference]; dup {
		return repository.ErrDuplicateKey
	}

	now := time.Now()
	payout.CreatedAt = now
	payout.UpdatedAt = now
	f.byID[payout.ID] = clonePayout(payout)
	f.byKey[payout.IdempotencyKey] = payout.ID
	f.byRef[payout.Reference] = payout.ID
	return nil
}

func (f *fakePayoutRepo) GetByID(_ context.Context, id string) (*model.Payout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.byID[id]; ok {
		return clonePayout(p), nil
	}
	return nil, nil
}

func (f *fakePayoutRepo) GetByIdempotencyKey(_ context.Context, key string) (*model.Payout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id, ok := f.byKey[key]; ok {
		return clonePayout(f.byID[id]), nil
	}
	return nil, nil
}

func (f *fakePayoutRepo) GetByReference(_ context.Context, ref string) (*model.Payout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id, ok := f.byRef[ref]; ok {
		return clonePayout(f.byID[id]), nil
	}
	return nil, nil
}

func (f *fakePayoutRepo) ListByUser(_ context.Context, userID string, offset, limit int) ([]model.Payout, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var all []model.Payout
	for _, p := range f.byID {
		if p.UserID == userID {
			all = append(all, *p)
		}
	}
	total := int64(len(all))
	if offset >= len(all) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

func (f *fakePayoutRepo) MarkProcessing(_ context.Context, id string, attemptAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.byID[id]
	if !ok || p.Status != model.StatusPending {
		return nil
	}
	p.Status = model.StatusProcessing
	p.LastAttemptAt = &attemptAt
	p.UpdatedAt = time.Now()
	return nil
}

func (f *fakePayoutRepo) SetProviderAck(_ context.Context, id, providerRef, providerStatus string, retryCount int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.byID[id]
	if !ok {
		return nil
	}
	p.ProviderReference = providerRef
	p.ProviderStatus = providerStatus
	p.RetryCount = retryCount
	p.UpdatedAt = time.Now()
	return nil
}

func (f *fakePayoutRepo) MarkFailed(_ context.Context, id, errorCode, errorMessage string, retryCount int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.byID[id]
	if !ok || p.Status.Terminal() {
		return nil
	}
	p.Status = model.StatusFailed
	p.ErrorCode = errorCode
	p.ErrorMessage = errorMessage
	p.RetryCount = retryCount
	p.UpdatedAt = time.Now()
	return nil
}

func (f *fakePayoutRepo) ApplyWebhook(_ context.Context, u repository.WebhookUpdate) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.byID[u.PayoutID]
	if !ok {
		return false, nil
	}
	if p.LastWebhookEventID == u.EventID || p.Status.Terminal() {
		return false, nil
	}
	p.Status = u.Status
	p.ProviderStatus = u.ProviderStatus
	p.LastWebhookEventID = u.EventID
	received := u.ReceivedAt
	p.WebhookReceivedAt = &received
	if u.ProviderReference != "" {
		p.ProviderReference = u.ProviderReference
	}
	if u.CorrelationID != "" {
		p.CorrelationID = u.CorrelationID
	}
	if u.Status == model.StatusFailed {
		p.ErrorCode = u.ErrorCode
		p.ErrorMessage = u.ErrorMessage
	}
	p.UpdatedAt = time.Now()
	return true, nil
}

func (f *fakePayoutRepo) ListStuckProcessing(_ context.Context, olderThan time.Time, limit int) ([]model.Payout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var stuck []model.Payout
	for _, p := range f.byID {
		if p.Status == model.StatusProcessing && p.ProviderReference != "" && p.UpdatedAt.Before(olderThan) {
			stuck = append(stuck, *p)
			if len(stuck) >= limit {
				break
			}
		}
	}
	return stuck, nil
}

func (f *fakePayoutRepo) PingContext(context.Context) error { return nil }

// touch backdates UpdatedAt so sweeper tests can mark a payout stuck.
func (f *fakePayoutRepo) touch(id string, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.byID[id]; ok {
		p.UpdatedAt = at
	}
}

type fakeAuditRepo struct {
	mu      sync.Mutex
	entries []model.PayoutAudit
}

func (f *fakeAuditRepo) Create(_ context.Context, audit *model.PayoutAudit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	audit.CreatedAt = time.Now()
	f.entries = append(f.entries, *audit)
	return nil
}

func (f *fakeAuditRepo) ListByPayout(_ context.Context, payoutID string) ([]model.PayoutAudit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.PayoutAudit
	for _, e := range f.entries {
		if e.PayoutID == payoutID {
			out = append(out, e)
		}
	}
	return out, nil
}

// fakeProvider serves scripted errors first, then acknowledges.
type fakeProvider struct {
	mu      sync.Mutex
	errs    []error
	calls   int
	status  string
	ack     provider.Ack
	queried []string
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		ack: provider.Ack{ProviderReference: "mock_ref_test0000000", ProviderStatus: "processing"},
	}
}

func (f *fakeProvider) CreatePayout(_ context.Context, _ provider.CreateRequest) (provider.Ack, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return provider.Ack{}, err
	}
	return f.ack, nil
}

func (f *fakeProvider) GetPayoutStatus(_ context.Context, payoutID, providerReference string) (provider.StatusResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queried = append(f.queried, payoutID)
	status := f.status
	if status == "" {
		status = "processing"
	}
	return provider.StatusResult{
		PayoutID:          payoutID,
		ProviderReference: providerReference,
		Status:            status,
		CheckedAt:         time.Now(),
	}, nil
}
