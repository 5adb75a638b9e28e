package selfstats

import "testing"

func TestStats_RatesComputedOnlyWhenRequestsSeen(t *testing.T) {
	m := New()
	if s := m.Stats(); s.TotalRequests != 0 || s.ErrorRate != 0 {
		t.Fatalf("expected zero stats before any request, got %+v", s)
	}

	m.Count(false, false)
	m.Count(true, false)
	m.Count(true, true)

	s := m.Stats()
	if s.TotalRequests != 3 || s.TotalErrors != 2 || s.TotalTimeouts != 1 {
		t.Fatalf("unexpected counts: %+v", s)
	}
	if s.ErrorRate != 2.0/3.0 {
		t.Fatalf("expected error rate 2/3, got %v", s.ErrorRate)
	}
	if s.TimeoutRate != 1.0/3.0 {
		t.Fatalf("expected timeout rate 1/3, got %v", s.TimeoutRate)
	}
}
