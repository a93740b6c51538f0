package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/redis/go-redis/v9"
)

func TestLocalTokenBucketRejectsAfterCapacity(t *testing.T) {
	limiter, err := NewLocalTokenBucket(3, time.Minute)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	fixed := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return fixed }

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		decision, err := limiter.Allow(ctx, "user-1")
		if err != nil {
			t.Fatalf("allow %d: %v", i, err)
		}
		if !decision.Allowed {
			t.Fatalf("request %d should be allowed", i)
		}
		if decision.Limit != 3 {
			t.Fatalf("request %d: expected limit 3, got %d", i, decision.Limit)
		}
		if want := int64(2 - i); decision.Remaining != want {
			t.Fatalf("request %d: expected remaining %d, got %d", i, want, decision.Remaining)
		}
	}

	decision, err := limiter.Allow(ctx, "user-1")
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if decision.Allowed {
		t.Fatal("fourth request should be rejected")
	}
	if decision.RetryAfter <= 0 || decision.RetryAfter > 21*time.Second {
		t.Fatalf("expected retry-after within one refill interval, got %s", decision.RetryAfter)
	}

	other, err := limiter.Allow(ctx, "user-2")
	if err != nil {
		t.Fatalf("allow other subject: %v", err)
	}
	if !other.Allowed {
		t.Fatal("subjects must not share a bucket")
	}
}

func TestLocalTokenBucketRefills(t *testing.T) {
	limiter, err := NewLocalTokenBucket(1, time.Second)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	ctx := context.Background()
	if d, _ := limiter.Allow(ctx, ""); !d.Allowed {
		t.Fatal("first request should be allowed")
	}
	if d, _ := limiter.Allow(ctx, ""); d.Allowed {
		t.Fatal("second request inside the window should be rejected")
	}

	now = now.Add(time.Second)
	if d, _ := limiter.Allow(ctx, ""); !d.Allowed {
		t.Fatal("request after a full window should be allowed")
	}
}

func TestNewLocalTokenBucketValidates(t *testing.T) {
	if _, err := NewLocalTokenBucket(0, time.Second); err == nil {
		t.Fatal("expected error for zero capacity")
	}
	if _, err := NewLocalTokenBucket(1, 0); err == nil {
		t.Fatal("expected error for zero window")
	}
}

// scriptReply answers EVALSHA/EVAL for the bucket script without a server
// and records the keys and arguments it was called with.
type scriptReply struct {
	reply []any
	err   error
	calls [][]any
}

func (h *scriptReply) DialHook(next redis.DialHook) redis.DialHook { return next }

func (h *scriptReply) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		switch cmd.Name() {
		case "evalsha", "eval":
			h.calls = append(h.calls, cmd.Args())
			c := cmd.(*redis.Cmd)
			if h.err != nil {
				c.SetErr(h.err)
				return h.err
			}
			c.SetVal(h.reply)
			return nil
		}
		return next(ctx, cmd)
	}
}

func (h *scriptReply) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func newScriptedBucket(t *testing.T, hook *scriptReply) *RedisTokenBucket {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	t.Cleanup(func() { client.Close() })
	client.AddHook(hook)

	limiter, err := NewRedisTokenBucket(client, 5, 10*time.Second, "test")
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	return limiter
}

func TestRedisTokenBucketMapsScriptReply(t *testing.T) {
	cases := []struct {
		name  string
		reply []any
		want  Decision
	}{
		{
			name:  "allowed",
			reply: []any{int64(1), int64(4), int64(0)},
			want:  Decision{Allowed: true, Limit: 5, Remaining: 4},
		},
		{
			name:  "rejected",
			reply: []any{int64(0), int64(0), int64(1500)},
			want:  Decision{Allowed: false, Limit: 5, RetryAfter: 1500 * time.Millisecond},
		},
	}
	for _, tc := range cases {
		hook := &scriptReply{reply: tc.reply}
		limiter := newScriptedBucket(t, hook)

		got, err := limiter.Allow(context.Background(), "user:9")
		if err != nil {
			t.Fatalf("%s: allow: %v", tc.name, err)
		}
		if diff := cmp.Diff(tc.want, got); diff != "" {
			t.Fatalf("%s: decision mismatch (-want +got):\n%s", tc.name, diff)
		}
		if len(hook.calls) != 1 {
			t.Fatalf("%s: expected one script call, got %d", tc.name, len(hook.calls))
		}
		args := hook.calls[0]
		// EVALSHA sha numkeys key capacity refill ttl
		if len(args) != 7 || args[3] != "test:{user:9}" {
			t.Fatalf("%s: unexpected script args %v", tc.name, args)
		}
	}
}

func TestRedisTokenBucketReportsScriptErrors(t *testing.T) {
	limiter := newScriptedBucket(t, &scriptReply{err: errors.New("LOADING redis is loading")})
	if _, err := limiter.Allow(context.Background(), "user:9"); err == nil {
		t.Fatal("expected script error to surface")
	}

	short := newScriptedBucket(t, &scriptReply{reply: []any{int64(1)}})
	if _, err := short.Allow(context.Background(), "user:9"); err == nil {
		t.Fatal("expected error for a malformed reply")
	}
}

func TestRedisTokenBucketKeyUsesHashTag(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()

	limiter, err := NewRedisTokenBucket(client, 10, time.Minute, "")
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	if got, want := limiter.key(" user:7 "), DefaultKeyPrefix+":{user:7}"; got != want {
		t.Fatalf("expected key %q, got %q", want, got)
	}
	if got, want := limiter.key(""), DefaultKeyPrefix+":{anonymous}"; got != want {
		t.Fatalf("expected key %q, got %q", want, got)
	}
}

func TestNewRedisTokenBucketValidates(t *testing.T) {
	if _, err := NewRedisTokenBucket(nil, 1, time.Second, ""); err == nil {
		t.Fatal("expected error for nil client")
	}
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()
	if _, err := NewRedisTokenBucket(client, 0, time.Second, ""); err == nil {
		t.Fatal("expected error for zero capacity")
	}
}
