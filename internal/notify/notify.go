// Package notify delivers signed indexing lifecycle events to
// operator-configured callback endpoints.
package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Dispatcher fans events out to callback URLs from a background
// goroutine. Notify never blocks the caller; a full queue drops the
// event with a warning.
type Dispatcher struct {
	urls       []string
	secret     string
	httpClient *http.Client
	logger     *slog.Logger
	deliveries chan delivery
}

type delivery struct {
	url     string
	event   string
	payload []byte
	id      uuid.UUID
}

// envelope is the wire shape of one notification.
type envelope struct {
	ID        uuid.UUID   `json:"id"`
	Event     string      `json:"event"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

func NewDispatcher(callbackURLs []string, secret string, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		urls:       callbackURLs,
		secret:     secret,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
		deliveries: make(chan delivery, 1000),
	}
	go d.processLoop()
	return d
}

// Notify enqueues one event for every configured endpoint.
func (d *Dispatcher) Notify(_ context.Context, event string, payload interface{}) {
	if len(d.urls) == 0 {
		return
	}

	id := uuid.New()
	body, err := json.Marshal(envelope{
		ID:        id,
		Event:     event,
		Timestamp: time.Now().UTC(),
		Data:      payload,
	})
	if err != nil {
		d.logger.Error("marshal notification", "event", event, "error", err)
		return
	}

	for _, url := range d.urls {
		select {
		case d.deliveries <- delivery{url: url, event: event, payload: body, id: id}:
		default:
			d.logger.Warn("notification queue full, dropping", "event", event, "url", url)
		}
	}
}

// Close stops the delivery loop after draining queued events.
func (d *Dispatcher) Close() {
	close(d.deliveries)
}

func (d *Dispatcher) processLoop() {
	for req := range d.deliveries {
		d.deliver(req)
	}
}

func (d *Dispatcher) deliver(req delivery) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.url, bytes.NewReader(req.payload))
	if err != nil {
		d.logger.Error("notification request creation failed", "url", req.url, "error", err)
		return
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Kiff-Event", req.event)
	httpReq.Header.Set("X-Kiff-Delivery", req.id.String())
	if d.secret != "" {
		httpReq.Header.Set("X-Kiff-Signature", Sign(req.payload, d.secret))
	}

	resp, err := d.httpClient.Do(httpReq)
	if err != nil {
		d.logger.Error("notification delivery failed", "url", req.url, "event", req.event, "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		d.logger.Warn("notification endpoint returned non-success",
			"url", req.url, "event", req.event, "status", resp.StatusCode)
	}
}

// Sign computes the HMAC-SHA256 signature receivers verify payloads
// against.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return fmt.Sprintf("sha256=%s", hex.EncodeToString(mac.Sum(nil)))
}
