package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestSendSignsEnvelope(t *testing.T) {
	var (
		header  http.Header
		gotBody []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header = r.Header.Clone()
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewClient(Config{
		SigningSecret:  "test-secret",
		Timeout:        2 * time.Second,
		MaxAttempts:    1,
		InitialBackoff: 10 * time.Millisecond,
		MaxBackoff:     20 * time.Millisecond,
	})
	fixed := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	client.now = func() time.Time { return fixed }

	err := client.Send(context.Background(), srv.URL, EventJobCompleted, map[string]any{"job_id": "job-1"})
	if err != nil {
		t.Fatalf("send returned error: %v", err)
	}

	ts := header.Get(HeaderTimestamp)
	if ts != strconv.FormatInt(fixed.Unix(), 10) {
		t.Fatalf("unexpected timestamp header %q", ts)
	}
	sig := header.Get(HeaderSignature)
	if err := Verify("test-secret", ts, gotBody, sig, time.Minute, fixed.Add(30*time.Second)); err != nil {
		t.Fatalf("signature %q does not verify: %v", sig, err)
	}
	if err := Verify("other-secret", ts, gotBody, sig, 0, fixed); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature with the wrong secret, got %v", err)
	}
	if err := Verify("test-secret", ts, gotBody, sig, time.Minute, fixed.Add(5*time.Minute)); !errors.Is(err, ErrStaleTimestamp) {
		t.Fatalf("expected ErrStaleTimestamp, got %v", err)
	}
	if got := header.Get(HeaderEvent); got != EventJobCompleted {
		t.Fatalf("expected event header %s, got %q", EventJobCompleted, got)
	}

	var envelope struct {
		ID   string         `json:"id"`
		Type string         `json:"type"`
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal(gotBody, &envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if envelope.ID == "" || envelope.ID != header.Get(HeaderDelivery) {
		t.Fatalf("delivery header %q must match envelope id %q", header.Get(HeaderDelivery), envelope.ID)
	}
	if envelope.Type != EventJobCompleted || envelope.Data["job_id"] != "job-1" {
		t.Fatalf("unexpected envelope %+v", envelope)
	}
}

func TestSendRetriesWithStableDeliveryID(t *testing.T) {
	var (
		mu  sync.Mutex
		ids []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		ids = append(ids, r.Header.Get(HeaderDelivery))
		n := len(ids)
		mu.Unlock()
		if n < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := NewClient(Config{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	})

	if err := client.Send(context.Background(), srv.URL, EventJobFailed, map[string]any{"job_id": "job-2"}); err != nil {
		t.Fatalf("send returned error: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(ids) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(ids))
	}
	if ids[0] == "" || ids[0] != ids[1] || ids[1] != ids[2] {
		t.Fatalf("retries must reuse one delivery id, got %v", ids)
	}
}

func TestSendGivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(Config{
		MaxAttempts:    2,
		InitialBackoff: time.Millisecond,
	})

	if err := client.Send(context.Background(), srv.URL, EventJobFailed, nil); err == nil {
		t.Fatal("expected delivery error")
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("expected 2 attempts, got %d", got)
	}
}

func TestSendStopsOnClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusGone)
	}))
	defer srv.Close()

	client := NewClient(Config{
		MaxAttempts:    5,
		InitialBackoff: time.Millisecond,
	})

	err := client.Send(context.Background(), srv.URL, EventJobCompleted, nil)
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected a single attempt, got %d", got)
	}
}

func TestSendSkipsEmptyEndpoint(t *testing.T) {
	client := NewClient(Config{})
	if err := client.Send(context.Background(), "  ", EventJobCompleted, nil); err != nil {
		t.Fatalf("expected nil error for empty endpoint, got %v", err)
	}
}

func TestRetryAfter(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
	}{
		{in: "", want: 0},
		{in: "3", want: 3 * time.Second},
		{in: " 1 ", want: time.Second},
		{in: "-2", want: 0},
		{in: "Wed, 21 Oct 2015 07:28:00 GMT", want: 0},
	}
	for _, tc := range cases {
		if got := retryAfter(tc.in); got != tc.want {
			t.Fatalf("retryAfter(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}
