// Package commitment implements C4: parsing and validating the
// signed commitment strings peers present with every request.
package commitment

import (
	"strconv"
	"strings"
)

type Role string

const (
	RoleMiner     Role = "miner"
	RoleValidator Role = "validator"
)

type Purpose string

const (
	PurposeDataAccess       Purpose = "s3:data:access"
	PurposeValidatorAccess  Purpose = "s3:validator:access"
	PurposeValidatorUpload  Purpose = "s3:validator:upload"
	PurposeAssignmentCurrent Purpose = "zipcode:assignment:current"
	PurposeValidation       Purpose = "zipcode:validation"
)

// Commitment is the parsed form of a signed commitment string: a tuple of
// (role, purpose, timestamp, signer hotkey, optional coldkey).
type Commitment struct {
	Raw          string
	Purpose      Purpose
	Role         Role
	Timestamp    int64
	SignerHotkey string
	Coldkey      string
	EpochID      string
}

// ParseDataAccess parses "s3:data:access:{coldkey}:{hotkey}:{ts}".
func ParseDataAccess(raw string) (Commitment, bool) {
	parts := strings.Split(raw, ":")
	if len(parts) != 6 || parts[0]+":"+parts[1]+":"+parts[2] != string(PurposeDataAccess) {
		return Commitment{}, false
	}
	ts, err := strconv.ParseInt(parts[5], 10, 64)
	if err != nil {
		return Commitment{}, false
	}
	if parts[3] == "" || parts[4] == "" {
		return Commitment{}, false
	}
	return Commitment{
		Raw: raw, Purpose: PurposeDataAccess, Role: RoleMiner,
		Coldkey: parts[3], SignerHotkey: parts[4], Timestamp: ts,
	}, true
}

// ParseValidatorAccess parses "s3:validator:access:{ts}".
func ParseValidatorAccess(raw string) (Commitment, bool) {
	return parseTimestampOnly(raw, PurposeValidatorAccess, RoleValidator)
}

// ParseValidatorUpload parses "s3:validator:upload:{ts}".
func ParseValidatorUpload(raw string) (Commitment, bool) {
	return parseTimestampOnly(raw, PurposeValidatorUpload, RoleValidator)
}

// ParseAssignmentCurrent parses "zipcode:assignment:current:{ts}".
func ParseAssignmentCurrent(raw string) (Commitment, bool) {
	parts := strings.Split(raw, ":")
	if len(parts) != 4 {
		return Commitment{}, false
	}
	if strings.Join(parts[:3], ":") != string(PurposeAssignmentCurrent) {
		return Commitment{}, false
	}
	ts, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil {
		return Commitment{}, false
	}
	return Commitment{Raw: raw, Purpose: PurposeAssignmentCurrent, Role: RoleMiner, Timestamp: ts}, true
}

// ParseValidation parses "zipcode:validation:{epoch_id}:{ts}". EpochID
// itself contains a colon ("YYYY-MM-DD-HH:MM"), so the timestamp is taken
// from the last segment and the epoch id is everything between the fixed
// prefix and that final segment.
func ParseValidation(raw string) (Commitment, bool) {
	const prefix = "zipcode:validation:"
	if !strings.HasPrefix(raw, prefix) {
		return Commitment{}, false
	}
	rest := strings.TrimPrefix(raw, prefix)
	idx := strings.LastIndex(rest, ":")
	if idx <= 0 || idx == len(rest)-1 {
		return Commitment{}, false
	}
	epochID := rest[:idx]
	tsStr := rest[idx+1:]
	ts, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return Commitment{}, false
	}
	if epochID == "" {
		return Commitment{}, false
	}
	return Commitment{Raw: raw, Purpose: PurposeValidation, Role: RoleValidator, EpochID: epochID, Timestamp: ts}, true
}

func parseTimestampOnly(raw string, purpose Purpose, role Role) (Commitment, bool) {
	prefix := string(purpose) + ":"
	if !strings.HasPrefix(raw, prefix) {
		return Commitment{}, false
	}
	tsStr := strings.TrimPrefix(raw, prefix)
	if strings.Contains(tsStr, ":") {
		return Commitment{}, false
	}
	ts, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return Commitment{}, false
	}
	return Commitment{Raw: raw, Purpose: purpose, Role: role, Timestamp: ts}, true
}
