package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"payflow/pkg/logger"
)

func init() {
	logger.InitLogger("test")
}

// payoutServer fakes the API: first call per key creates, replays return
// the original row, and an optional 429 budget is spent first.
type payoutServer struct {
	mu        sync.Mutex
	byKey     map[string]Payout
	rejects   int
	getStatus map[string][]string // payout id -> status sequence for GETs
}

func newPayoutServer() *payoutServer {
	return &payoutServer{
		byKey:     make(map[string]Payout),
		getStatus: make(map[string][]string),
	}
}

func (s *payoutServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/payouts", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()

		if s.rejects > 0 {
			s.rejects--
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]any{"error": "Too Many Requests"})
			return
		}

		key := r.Header.Get("Idempotency-Key")
		if key == "" {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]any{"error": "Idempotency-Key header is required"})
			return
		}

		if existing, ok := s.byKey[key]; ok {
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(existing)
			return
		}

		payout := Payout{
			ID:        "payout-" + key,
			Reference: "PAY_TEST" + key,
			Status:    "processing",
		}
		s.byKey[key] = payout
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(payout)
	})
	mux.HandleFunc("/v1/payouts/", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()

		id := r.URL.Path[len("/v1/payouts/"):]
		statuses := s.getStatus[id]
		status := "processing"
		if len(statuses) > 0 {
			status = statuses[0]
			if len(statuses) > 1 {
				s.getStatus[id] = statuses[1:]
			}
		}
		json.NewEncoder(w).Encode(Payout{ID: id, Status: status})
	})
	return mux
}

func TestCreatePayout_GeneratesIdempotencyKey(t *testing.T) {
	srv := newPayoutServer()
	ts := httptest.NewServer(srv.handler())
	defer ts.Close()

	c := NewPayflowClient(ts.URL)
	payout, err := c.CreatePayout(context.Background(), CreatePayoutParams{Amount: "10.00", Currency: "USD"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if payout.Status != "processing" {
		t.Errorf("status = %q", payout.Status)
	}
	if len(srv.byKey) != 1 {
		t.Errorf("server rows = %d, want 1", len(srv.byKey))
	}
}

func TestCreatePayout_ReplaySameKey(t *testing.T) {
	srv := newPayoutServer()
	ts := httptest.NewServer(srv.handler())
	defer ts.Close()

	c := NewPayflowClient(ts.URL)
	params := CreatePayoutParams{Amount: "10.00", Currency: "USD", IdempotencyKey: "fixed-key"}

	first, err := c.CreatePayout(context.Background(), params)
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	second, err := c.CreatePayout(context.Background(), params)
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("replay id = %s, want %s", second.ID, first.ID)
	}
}

func TestCreatePayout_RetriesAfter429(t *testing.T) {
	srv := newPayoutServer()
	srv.rejects = 1
	ts := httptest.NewServer(srv.handler())
	defer ts.Close()

	c := NewPayflowClient(ts.URL)
	payout, err := c.CreatePayout(context.Background(), CreatePayoutParams{
		Amount: "10.00", Currency: "USD", IdempotencyKey: "rl-key",
	})
	if err != nil {
		t.Fatalf("create failed after 429: %v", err)
	}
	if payout.ID == "" {
		t.Error("empty payout after retry")
	}
}

func TestWaitForSettlement(t *testing.T) {
	srv := newPayoutServer()
	srv.getStatus["payout-1"] = []string{"processing", "processing", "succeeded"}
	ts := httptest.NewServer(srv.handler())
	defer ts.Close()

	c := NewPayflowClient(ts.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	payout, err := c.WaitForSettlement(ctx, "payout-1", 10*time.Millisecond)
	if err != nil {
		t.Fatalf("wait failed: %v", err)
	}
	if payout.Status != "succeeded" {
		t.Errorf("status = %q, want succeeded", payout.Status)
	}
}
