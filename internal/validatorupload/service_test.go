package validatorupload

import (
	"testing"

	"github.com/resi-labs-ai/resi-labs-api/internal/zipcodestore"
)

func TestUploadPrefix_IsRootedPerHotkeyAndEpoch(t *testing.T) {
	got := uploadPrefix("5F3sa2TJ", "2026-03-01-16:00")
	want := "validators/5F3sa2TJ/epoch=2026-03-01-16:00/"
	if got != want {
		t.Fatalf("uploadPrefix = %q, want %q", got, want)
	}
}

func TestEpochConcluded(t *testing.T) {
	cases := []struct {
		status zipcodestore.EpochStatus
		want   bool
	}{
		{zipcodestore.StatusPending, false},
		{zipcodestore.StatusActive, false},
		{zipcodestore.StatusCompleted, true},
		{zipcodestore.StatusArchived, true},
	}
	for _, c := range cases {
		if got := epochConcluded(c.status); got != c.want {
			t.Fatalf("epochConcluded(%s) = %v, want %v", c.status, got, c.want)
		}
	}
}
