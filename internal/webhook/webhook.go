// Package webhook notifies external systems when a config snapshot is
// published. Delivery is asynchronous and best-effort: a slow or broken
// endpoint must never slow down or fail a publish.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
)

// EventConfigPublished is emitted after a snapshot publish succeeds.
const EventConfigPublished = "config.published"

const (
	queueSize        = 1000
	deliveryTimeout  = 10 * time.Second
	maxDeliveryTries = 3
)

// Event is the webhook payload.
type Event struct {
	Type        string    `json:"event"`
	Timestamp   time.Time `json:"timestamp"`
	Environment string    `json:"environment"`
	Version     int       `json:"version"`
	Experiments int       `json:"experiments"`
}

// Dispatcher delivers events to a fixed set of endpoint URLs from a
// single background worker.
type Dispatcher struct {
	urls   []string
	secret string
	client *http.Client
	log    zerolog.Logger

	queue chan Event
	done  chan struct{}

	// mu guards closed and every send into queue, so Close cannot close
	// the channel while a Dispatch is mid-send.
	mu     sync.RWMutex
	closed bool
}

// NewDispatcher creates a dispatcher for the given endpoints. Secret, when
// non-empty, signs every delivery. Call Start before dispatching and Close
// on shutdown.
func NewDispatcher(urls []string, secret string, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		urls:   urls,
		secret: secret,
		client: &http.Client{Timeout: deliveryTimeout},
		log:    log,
		queue:  make(chan Event, queueSize),
		done:   make(chan struct{}),
	}
}

// Start begins processing queued events.
func (d *Dispatcher) Start() {
	go d.worker()
}

// Close drains the queue and stops the worker. Safe to call twice.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	<-d.done
	return nil
}

// Dispatch queues an event without blocking. When the queue is full the
// event is dropped and logged.
func (d *Dispatcher) Dispatch(event Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}
	select {
	case d.queue <- event:
	default:
		d.log.Warn().
			Str("event", event.Type).
			Str("environment", event.Environment).
			Msg("webhook queue full, dropping event")
	}
}

func (d *Dispatcher) worker() {
	defer close(d.done)
	for event := range d.queue {
		body, err := json.Marshal(event)
		if err != nil {
			d.log.Error().Err(err).Msg("encode webhook event")
			continue
		}
		for _, url := range d.urls {
			if err := d.deliverWithRetry(url, body); err != nil {
				d.log.Warn().Err(err).
					Str("url", url).
					Str("environment", event.Environment).
					Int("version", event.Version).
					Msg("webhook delivery failed")
			}
		}
	}
}

func (d *Dispatcher) deliverWithRetry(url string, body []byte) error {
	_, err := backoff.Retry(context.Background(), func() (struct{}, error) {
		return struct{}{}, d.deliver(url, body)
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(maxDeliveryTries))
	return err
}

func (d *Dispatcher) deliver(url string, body []byte) error {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if d.secret != "" {
		req.Header.Set("X-Signature", Sign(body, d.secret))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("endpoint returned %d", resp.StatusCode)
	}
	return nil
}

// Sign computes the HMAC-SHA256 signature header value for a payload.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a received signature against the payload.
// Receivers use it to authenticate deliveries.
func VerifySignature(payload []byte, signature, secret string) bool {
	return hmac.Equal([]byte(signature), []byte(Sign(payload, secret)))
}
