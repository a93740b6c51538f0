package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dunamismax/photoflow/internal/id"
)

const (
	EventJobCompleted = "job.completed"
	EventJobFailed    = "job.failed"
)

const (
	HeaderSignature = "X-Photoflow-Signature"
	HeaderTimestamp = "X-Photoflow-Timestamp"
	HeaderEvent     = "X-Photoflow-Event"
	HeaderDelivery  = "X-Photoflow-Delivery"
)

var (
	// ErrRejected means the receiver answered with a client error that a
	// retry would not fix.
	ErrRejected = errors.New("webhook rejected by receiver")

	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrStaleTimestamp   = errors.New("webhook timestamp outside tolerance")
)

// Envelope is the JSON body of every delivery. Data carries the
// event-specific payload.
type Envelope struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
	Data      any       `json:"data"`
}

type Config struct {
	SigningSecret  string
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

type Client struct {
	httpClient     *http.Client
	signingSecret  string
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	now            func() time.Time
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	initialBackoff := cfg.InitialBackoff
	if initialBackoff <= 0 {
		initialBackoff = time.Second
	}

	return &Client{
		httpClient:     &http.Client{Timeout: timeout},
		signingSecret:  cfg.SigningSecret,
		maxAttempts:    max(cfg.MaxAttempts, 1),
		initialBackoff: initialBackoff,
		maxBackoff:     max(cfg.MaxBackoff, initialBackoff),
		now:            time.Now,
	}
}

// Send delivers one event to endpoint, retrying transport errors, 408, 429
// and 5xx responses with exponential backoff. Every attempt carries the
// same delivery id and signature so receivers can deduplicate. An empty
// endpoint is a no-op.
func (c *Client) Send(ctx context.Context, endpoint, event string, data any) error {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil
	}

	now := c.now().UTC()
	envelope := Envelope{
		ID:        id.New(),
		Type:      event,
		CreatedAt: now,
		Data:      data,
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	timestamp := strconv.FormatInt(now.Unix(), 10)
	signature := Sign(c.signingSecret, timestamp, body)

	backoff := c.initialBackoff
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("build webhook request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(HeaderTimestamp, timestamp)
		req.Header.Set(HeaderSignature, signature)
		req.Header.Set(HeaderEvent, event)
		req.Header.Set(HeaderDelivery, envelope.ID)

		wait, err := c.deliver(req)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrRejected) {
			return fmt.Errorf("delivery %s: %w", envelope.ID, err)
		}
		lastErr = err
		if attempt == c.maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(max(backoff, min(wait, c.maxBackoff))):
		}
		backoff = min(backoff*2, c.maxBackoff)
	}

	return fmt.Errorf("webhook delivery %s failed after %d attempts: %w", envelope.ID, c.maxAttempts, lastErr)
}

// deliver performs one attempt. The returned duration is the receiver's
// Retry-After hint, if any.
func (c *Client) deliver(req *http.Request) (time.Duration, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()

	switch code := resp.StatusCode; {
	case code >= 200 && code < 300:
		return 0, nil
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests, code >= 500:
		return retryAfter(resp.Header.Get("Retry-After")), fmt.Errorf("webhook returned status=%d", code)
	default:
		return 0, fmt.Errorf("%w: status=%d", ErrRejected, code)
	}
}

func retryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// Sign returns the signature header value for body sent at timestamp.
func Sign(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a received delivery. A positive tolerance also rejects
// timestamps further than tolerance from now.
func Verify(secret, timestamp string, body []byte, signature string, tolerance time.Duration, now time.Time) error {
	if !hmac.Equal([]byte(Sign(secret, timestamp, body)), []byte(signature)) {
		return ErrInvalidSignature
	}
	if tolerance <= 0 {
		return nil
	}
	secs, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrStaleTimestamp, timestamp)
	}
	if skew := now.Sub(time.Unix(secs, 0)).Abs(); skew > tolerance {
		return fmt.Errorf("%w: skew %s", ErrStaleTimestamp, skew)
	}
	return nil
}
