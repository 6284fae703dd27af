package provider

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"payflow/pkg/logger"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Notifier delivers provider webhooks: it signs the payload with the
// shared secret and POSTs it to the configured endpoint after a delay.
// Delivery is best effort; the reconciler is the authority on state, not
// this sender.
type Notifier struct {
	url     string
	secret  string
	client  *http.Client
	limiter *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc
}

func NewNotifier(url, secret string, perSecond float64) *Notifier {
	if perSecond <= 0 {
		perSecond = 20
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Notifier{
		url:     url,
		secret:  secret,
		client:  &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(perSecond), int(perSecond)),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Close stops pending deliveries.
func (n *Notifier) Close() {
	n.cancel()
}

// Schedule queues a webhook for delivery after delay.
func (n *Notifier) Schedule(event WebhookEvent, delay time.Duration) {
	go func() {
		select {
		case <-time.After(delay):
		case <-n.ctx.Done():
			return
		}
		if err := n.deliver(event); err != nil {
			logger.Error("webhook delivery failed",
				zap.String("event_id", event.EventID),
				zap.String("reference", event.Reference),
				zap.Error(err))
		}
	}()
}

func (n *Notifier) deliver(event WebhookEvent) error {
	// Pace outbound deliveries so a burst of settlements does not hammer
	// the receiving endpoint.
	if err := n.limiter.Wait(n.ctx); err != nil {
		return err
	}

	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(n.ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Signature", Sign(body, n.secret))
	req.Header.Set("X-Signature-Type", "hmac_sha256")
	req.Header.Set("X-Timestamp", strconv.FormatInt(time.Now().Unix(), 10))
	if event.CorrelationID != "" {
		req.Header.Set("X-Correlation-ID", event.CorrelationID)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook endpoint returned %d", resp.StatusCode)
	}

	logger.Info("webhook delivered",
		zap.String("event_id", event.EventID),
		zap.String("reference", event.Reference),
		zap.String("status", event.Status))
	return nil
}

// Sign computes the sha256-prefixed hex HMAC the webhook endpoint expects.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
