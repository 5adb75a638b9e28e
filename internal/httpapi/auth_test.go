package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/resi-labs-ai/resi-labs-api/internal/commitment"
)

func TestRawReconstruction_MatchesCommitmentParsers(t *testing.T) {
	if _, ok := commitment.ParseDataAccess(rawDataAccess("cold1", "hot1", 1700000000)); !ok {
		t.Error("rawDataAccess output did not parse as a data-access commitment")
	}
	if _, ok := commitment.ParseValidatorAccess(rawValidatorAccess(1700000000)); !ok {
		t.Error("rawValidatorAccess output did not parse as a validator-access commitment")
	}
	if _, ok := commitment.ParseValidatorUpload(rawValidatorUpload(1700000000)); !ok {
		t.Error("rawValidatorUpload output did not parse as a validator-upload commitment")
	}
	if _, ok := commitment.ParseAssignmentCurrent(rawAssignmentCurrent(1700000000)); !ok {
		t.Error("rawAssignmentCurrent output did not parse as an assignment-current commitment")
	}
	if _, ok := commitment.ParseValidation(rawValidation("2026-08-06-00:00", 1700000000)); !ok {
		t.Error("rawValidation output did not parse as a validation commitment")
	}
}

func TestExtractHeaderAuth_HappyPath(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/zipcode-assignments/current", nil)
	req.Header.Set("Authorization", "Bearer aabbcc")
	req.Header.Set("X-Timestamp", "1700000000")
	req.Header.Set("X-Hotkey", "hot1")

	a, err := extractHeaderAuth(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Hotkey != "hot1" || a.Timestamp != 1700000000 || len(a.Signature) != 3 {
		t.Fatalf("unexpected auth: %+v", a)
	}
}

func TestExtractHeaderAuth_MissingBearerPrefix(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/zipcode-assignments/current", nil)
	req.Header.Set("Authorization", "aabbcc")
	req.Header.Set("X-Timestamp", "1700000000")
	req.Header.Set("X-Hotkey", "hot1")

	if _, err := extractHeaderAuth(req); err == nil {
		t.Fatal("expected an error when Authorization lacks the Bearer prefix")
	}
}

func TestExtractHeaderAuth_MissingTimestamp(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/zipcode-assignments/current", nil)
	req.Header.Set("Authorization", "Bearer aabbcc")
	req.Header.Set("X-Hotkey", "hot1")

	if _, err := extractHeaderAuth(req); err == nil {
		t.Fatal("expected an error when X-Timestamp is missing")
	}
}

func TestClientIP_StripsPort(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.5:54321"
	if ip := clientIP(req); ip != "203.0.113.5" {
		t.Fatalf("expected stripped IP, got %q", ip)
	}
}
