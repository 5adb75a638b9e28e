package chain

import (
	"context"
	"testing"
	"time"
)

func freshView(maxStale time.Duration, fallback bool) *View {
	v := NewView(1, NewNodeManager(nil, time.Minute), NewStateStore(""), time.Minute, maxStale, fallback)
	return v
}

func TestView_Lookup_FreshSnapshot(t *testing.T) {
	v := freshView(time.Hour, false)
	v.snapshot.Store(&Snapshot{
		NetUID:   1,
		Keys:     map[string]KeyInfo{"hotkey-a": {Index: 0, Validator: true, Stake: 5000}},
		SyncedAt: time.Now(),
	})

	info, err := v.Lookup(context.Background(), "hotkey-a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !info.Validator || info.Stake != 5000 {
		t.Fatalf("unexpected info: %+v", info)
	}
}

func TestView_Lookup_UnknownHotkey(t *testing.T) {
	v := freshView(time.Hour, false)
	v.snapshot.Store(&Snapshot{NetUID: 1, Keys: map[string]KeyInfo{}, SyncedAt: time.Now()})

	if _, err := v.Lookup(context.Background(), "nobody"); err == nil {
		t.Fatal("expected an error for an unregistered hotkey")
	}
}

func TestView_Lookup_StaleWithoutFallback(t *testing.T) {
	v := freshView(time.Millisecond, false)
	v.snapshot.Store(&Snapshot{
		NetUID:   1,
		Keys:     map[string]KeyInfo{"hotkey-a": {Validator: true}},
		SyncedAt: time.Now().Add(-time.Hour),
	})

	if _, err := v.Lookup(context.Background(), "hotkey-a"); err == nil {
		t.Fatal("expected a stale-snapshot error when fallback is disabled")
	}
}

func TestView_Lookup_StaleWithFallbackAndNoNodes(t *testing.T) {
	v := freshView(time.Millisecond, true)
	v.snapshot.Store(&Snapshot{
		NetUID:   1,
		Keys:     map[string]KeyInfo{"hotkey-a": {Validator: true}},
		SyncedAt: time.Now().Add(-time.Hour),
	})

	// Fallback is enabled but there is no node to query directly against,
	// so the lookup still has to fail rather than serve the stale answer.
	if _, err := v.Lookup(context.Background(), "hotkey-a"); err == nil {
		t.Fatal("expected an error when the fallback path has no node available")
	}
}

func TestSnapshot_HotkeysCount(t *testing.T) {
	var nilSnap *Snapshot
	if nilSnap.HotkeysCount() != 0 {
		t.Fatal("nil snapshot should report zero hotkeys")
	}

	snap := &Snapshot{Keys: map[string]KeyInfo{"a": {}, "b": {}}}
	if snap.HotkeysCount() != 2 {
		t.Fatalf("expected 2 hotkeys, got %d", snap.HotkeysCount())
	}
}
