// Package ratelimit implements C3: per-key and global daily counters
// against a shared fast store, atomic check-and-increment with UTC-midnight
// reset. Redis is used as the backing store — go-redis is the only
// Redis client anywhere in the retrieved example corpus (listed in
// filecoin-project-lily's go.mod) — grounded on its standard idiom of a
// single shared *redis.Client plus a Lua script for atomicity, since no
// example repo's own source exercises go-redis directly.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/resi-labs-ai/resi-labs-api/internal/errs"
)

// checkAndIncrScript atomically increments a daily counter and returns its
// new value, setting a TTL only on first creation so concurrent
// incrementers never race on the expiry.
const checkAndIncrScript = `
local v = redis.call("INCR", KEYS[1])
if v == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return v
`

type Scope string

const (
	ScopeMiner     Scope = "miner"
	ScopeValidator Scope = "validator"
	ScopeGlobal    Scope = "global"
	ScopeIP        Scope = "ip"
)

type Result struct {
	OK        bool
	Remaining int
	ResetAt   time.Time
}

type Limiter struct {
	client  redis.Scripter
	script  *redis.Script
	enabled bool
	// enabled=false (ENABLE_RATE_LIMITING=false) means an unavailable store
	// fails open; otherwise it fails closed.
}

// New accepts a redis.Scripter (which *redis.Client satisfies) rather than a
// concrete client so tests can substitute a fake store.
func New(client redis.Scripter, enabled bool) *Limiter {
	return &Limiter{client: client, script: redis.NewScript(checkAndIncrScript), enabled: enabled}
}

func key(scope Scope, id, date string) string {
	if id == "" {
		return fmt.Sprintf("daily:%s:%s", scope, date)
	}
	return fmt.Sprintf("daily:%s:%s:%s", scope, id, date)
}

func todayUTC(now time.Time) string {
	return now.UTC().Format("2006-01-02")
}

func nextUTCMidnight(now time.Time) time.Time {
	u := now.UTC()
	return time.Date(u.Year(), u.Month(), u.Day()+1, 0, 0, 0, 0, time.UTC)
}

// CheckAndIncrement performs the atomic check-and-increment for one scope
// against `now`. `limit <= 0` means unlimited (always ok).
func (l *Limiter) CheckAndIncrement(ctx context.Context, scope Scope, id string, limit int, now time.Time) (Result, error) {
	resetAt := nextUTCMidnight(now)
	if limit <= 0 {
		return Result{OK: true, Remaining: -1, ResetAt: resetAt}, nil
	}
	if l.client == nil {
		if !l.enabled {
			// ENABLE_RATE_LIMITING=false: no backing store needed at all.
			return Result{OK: true, Remaining: limit, ResetAt: resetAt}, nil
		}
		return Result{}, errs.New(errs.DependencyUnavailable, "rate limit store unavailable")
	}

	k := key(scope, id, todayUTC(now))
	ttlSeconds := int(resetAt.Sub(now).Seconds()) + int((36 * time.Hour).Seconds())

	count, err := l.script.Run(ctx, l.client, []string{k}, ttlSeconds).Int()
	if err != nil {
		if !l.enabled {
			// ENABLE_RATE_LIMITING=false: fail open when the store is down.
			return Result{OK: true, Remaining: limit, ResetAt: resetAt}, nil
		}
		return Result{}, errs.Wrap(errs.DependencyUnavailable, "rate limit store unavailable", err)
	}

	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return Result{OK: count <= limit, Remaining: remaining, ResetAt: resetAt}, nil
}

// CheckAll runs CheckAndIncrement for every (scope, id, limit) tuple given,
// short-circuiting — and not incrementing later scopes — on the first
// rejection, since a per-key reject should not also consume global budget.
type Check struct {
	Scope Scope
	ID    string
	Limit int
}

func (l *Limiter) CheckAll(ctx context.Context, checks []Check, now time.Time) (Result, error) {
	var last Result
	for _, c := range checks {
		res, err := l.CheckAndIncrement(ctx, c.Scope, c.ID, c.Limit, now)
		if err != nil {
			return Result{}, err
		}
		if !res.OK {
			return res, nil
		}
		last = res
	}
	return last, nil
}
