package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
)

// fakeScripter is a minimal in-memory redis.Scripter good enough to drive
// checkAndIncrScript's semantics without a real Redis instance.
type fakeScripter struct {
	mu       sync.Mutex
	counters map[string]int
	fail     bool
}

func newFakeScripter() *fakeScripter {
	return &fakeScripter{counters: make(map[string]int)}
}

func (f *fakeScripter) EvalSha(ctx context.Context, sha1 string, keys []string, args ...interface{}) *redis.Cmd {
	cmd := redis.NewCmd(ctx)
	cmd.SetErr(errors.New("NOSCRIPT no such script"))
	return cmd
}

func (f *fakeScripter) ScriptExists(ctx context.Context, hashes ...string) *redis.BoolSliceCmd {
	cmd := redis.NewBoolSliceCmd(ctx)
	cmd.SetVal([]bool{false})
	return cmd
}

func (f *fakeScripter) ScriptLoad(ctx context.Context, script string) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx)
	cmd.SetVal("fakehash")
	return cmd
}

func (f *fakeScripter) Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	cmd := redis.NewCmd(ctx)
	if f.fail {
		cmd.SetErr(errors.New("connection refused"))
		return cmd
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counters[keys[0]]++
	cmd.SetVal(int64(f.counters[keys[0]]))
	return cmd
}

func TestLimiter_MonotonicCounter(t *testing.T) {
	fake := newFakeScripter()
	limiter := New(fake, true)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	for i := 1; i <= 50; i++ {
		res, err := limiter.CheckAndIncrement(context.Background(), ScopeMiner, "HK1", 50, now)
		if err != nil {
			t.Fatalf("request %d: unexpected error: %v", i, err)
		}
		if !res.OK {
			t.Fatalf("request %d: expected ok, got rejected", i)
		}
	}

	res, err := limiter.CheckAndIncrement(context.Background(), ScopeMiner, "HK1", 50, now)
	if err != nil {
		t.Fatalf("51st request: unexpected error: %v", err)
	}
	if res.OK {
		t.Fatalf("51st request: expected rejection at limit 50, got ok")
	}
	if res.ResetAt.Hour() != 0 || res.ResetAt.Day() != 2 {
		t.Fatalf("expected reset at next UTC midnight, got %v", res.ResetAt)
	}
}

func TestLimiter_FailOpenWhenDisabled(t *testing.T) {
	fake := newFakeScripter()
	fake.fail = true
	limiter := New(fake, false)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	res, err := limiter.CheckAndIncrement(context.Background(), ScopeGlobal, "", 100, now)
	if err != nil {
		t.Fatalf("expected fail-open with no error, got: %v", err)
	}
	if !res.OK {
		t.Fatalf("expected fail-open to report ok, got rejected")
	}
}

func TestLimiter_FailClosedWhenEnabled(t *testing.T) {
	fake := newFakeScripter()
	fake.fail = true
	limiter := New(fake, true)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	_, err := limiter.CheckAndIncrement(context.Background(), ScopeGlobal, "", 100, now)
	if err == nil {
		t.Fatalf("expected fail-closed error when rate limiting is enabled and store is down")
	}
}

func TestLimiter_NilClient_FailOpenWhenDisabled(t *testing.T) {
	limiter := New(nil, false)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	res, err := limiter.CheckAndIncrement(context.Background(), ScopeGlobal, "", 100, now)
	if err != nil {
		t.Fatalf("expected fail-open with no error, got: %v", err)
	}
	if !res.OK {
		t.Fatalf("expected fail-open to report ok, got rejected")
	}
}

func TestLimiter_NilClient_FailClosedWhenEnabled(t *testing.T) {
	limiter := New(nil, true)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	_, err := limiter.CheckAndIncrement(context.Background(), ScopeGlobal, "", 100, now)
	if err == nil {
		t.Fatalf("expected fail-closed error when rate limiting is enabled with no store configured")
	}
}
