package httpapi

import (
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/resi-labs-ai/resi-labs-api/internal/errs"
)

// headerAuth is the alternate, header-borne form of request authentication
// §6 documents alongside the legacy body form: "Authorization: Bearer
// <sig>", "X-Timestamp", "X-Hotkey".
type headerAuth struct {
	Timestamp int64
	Hotkey    string
	Signature []byte
}

func extractHeaderAuth(r *http.Request) (headerAuth, error) {
	var a headerAuth

	bearer := r.Header.Get("Authorization")
	if !strings.HasPrefix(bearer, "Bearer ") {
		return a, errs.New(errs.AuthMalformed, "missing Authorization bearer signature")
	}
	sigHex := strings.TrimPrefix(bearer, "Bearer ")
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return a, errs.New(errs.AuthMalformed, "signature is not valid hex")
	}
	a.Signature = sig

	tsStr := r.Header.Get("X-Timestamp")
	ts, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return a, errs.New(errs.AuthMalformed, "missing or malformed X-Timestamp header")
	}
	a.Timestamp = ts

	a.Hotkey = r.Header.Get("X-Hotkey")
	if a.Hotkey == "" {
		return a, errs.New(errs.AuthMalformed, "missing X-Hotkey header")
	}
	return a, nil
}

func decodeSignature(sig string) ([]byte, error) {
	b, err := hex.DecodeString(sig)
	if err != nil {
		return nil, errs.New(errs.AuthMalformed, "signature is not valid hex")
	}
	return b, nil
}

// rawDataAccess reconstructs the exact wire string ParseDataAccess expects.
func rawDataAccess(coldkey, hotkey string, ts int64) string {
	return fmt.Sprintf("s3:data:access:%s:%s:%d", coldkey, hotkey, ts)
}

func rawValidatorAccess(ts int64) string {
	return fmt.Sprintf("s3:validator:access:%d", ts)
}

func rawValidatorUpload(ts int64) string {
	return fmt.Sprintf("s3:validator:upload:%d", ts)
}

func rawAssignmentCurrent(ts int64) string {
	return fmt.Sprintf("zipcode:assignment:current:%d", ts)
}

func rawValidation(epochID string, ts int64) string {
	return fmt.Sprintf("zipcode:validation:%s:%d", epochID, ts)
}

// clientIP strips the port from RemoteAddr for use as the ip rate-limit
// scope key.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
