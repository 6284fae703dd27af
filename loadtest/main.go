package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Configuration
var (
	targetURL = flag.String("url", "http://localhost:8080/v1/payouts", "Payout creation URL")
	totalVUs  = flag.Int("c", 50, "Concurrent workers")
	duration  = flag.Duration("d", 30*time.Second, "Test duration")
	keySpace  = flag.Int("keys", 10, "Distinct idempotency keys shared by all workers")
)

// Metrics
var (
	created    int64
	replayed   int64
	rateLtd    int64
	reqErrors  int64
	mismatches int64
)

// keyOwners records the first payout id seen per idempotency key; every
// later response for the same key must agree.
var keyOwners sync.Map

type payoutResp struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func main() {
	flag.Parse()

	fmt.Printf("🚀 Starting Idempotency Load Test\n")
	fmt.Printf("   Target: %s\n", *targetURL)
	fmt.Printf("   Workers: %d | Keys: %d | Duration: %v\n", *totalVUs, *keySpace, *duration)

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	keys := make([]string, *keySpace)
	for i := range keys {
		keys[i] = fmt.Sprintf("loadtest-key-%d-%d", time.Now().UnixNano(), i)
	}

	// Metric Reporter
	go func() {
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Printf("[%s] Created: %d | Replayed: %d | 429: %d | Errors: %d | ID mismatches: %d\n",
					time.Now().Format("15:04:05"),
					atomic.LoadInt64(&created),
					atomic.LoadInt64(&replayed),
					atomic.LoadInt64(&rateLtd),
					atomic.LoadInt64(&reqErrors),
					atomic.LoadInt64(&mismatches))
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < *totalVUs; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			runWorker(ctx, keys)
		}(i)
	}
	wg.Wait()

	fmt.Println("✅ Done.")
	fmt.Printf("   Created: %d (want exactly %d)\n", atomic.LoadInt64(&created), *keySpace)
	fmt.Printf("   Replayed: %d | 429: %d | Errors: %d | ID mismatches: %d (want 0)\n",
		atomic.LoadInt64(&replayed),
		atomic.LoadInt64(&rateLtd),
		atomic.LoadInt64(&reqErrors),
		atomic.LoadInt64(&mismatches))
}

func runWorker(ctx context.Context, keys []string) {
	client := &http.Client{Timeout: 30 * time.Second}
	body, _ := json.Marshal(map[string]any{
		"amount":   "100.50",
		"currency": "USD",
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		key := keys[rand.Intn(len(keys))]
		req, err := http.NewRequestWithContext(ctx, "POST", *targetURL, bytes.NewReader(body))
		if err != nil {
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Idempotency-Key", key)
		// Dev bypass: the server injects a mock operator outside prod.
		req.Header.Set("X-Dev-Pass", "true")

		resp, err := client.Do(req)
		if err != nil {
			if ctx.Err() == nil {
				atomic.AddInt64(&reqErrors, 1)
			}
			continue
		}

		switch resp.StatusCode {
		case http.StatusCreated, http.StatusOK:
			var payout payoutResp
			if err := json.NewDecoder(resp.Body).Decode(&payout); err == nil {
				if resp.StatusCode == http.StatusCreated {
					atomic.AddInt64(&created, 1)
				} else {
					atomic.AddInt64(&replayed, 1)
				}
				if prev, loaded := keyOwners.LoadOrStore(key, payout.ID); loaded && prev != payout.ID {
					atomic.AddInt64(&mismatches, 1)
				}
			} else {
				atomic.AddInt64(&reqErrors, 1)
			}
		case http.StatusTooManyRequests:
			atomic.AddInt64(&rateLtd, 1)
			time.Sleep(200 * time.Millisecond)
		default:
			atomic.AddInt64(&reqErrors, 1)
		}
		resp.Body.Close()
	}
}
