// Package validatorupload implements C11: a thin specialization of C5
// producing a write-scoped credential rooted at a validator-specific
// prefix, gated on the target epoch having actually concluded. No direct
// teacher analogue — the teacher has no credential-issuance surface at
// all — so this is grounded purely on the surrounding domain packages
// (credentials, zipcodestore) it composes rather than on a teacher file.
package validatorupload

import (
	"context"
	"fmt"
	"time"

	"github.com/resi-labs-ai/resi-labs-api/internal/credentials"
	"github.com/resi-labs-ai/resi-labs-api/internal/errs"
	"github.com/resi-labs-ai/resi-labs-api/internal/zipcodestore"
)

type Service struct {
	store     *zipcodestore.Store
	minter    *credentials.Minter
	uploadTTL time.Duration
}

func NewService(store *zipcodestore.Store, minter *credentials.Minter, uploadTTL time.Duration) *Service {
	return &Service{store: store, minter: minter, uploadTTL: uploadTTL}
}

// MintUploadAccess confirms epochID has actually concluded (completed or
// archived — never pending or active, so a validator cannot upload results
// for a slot that hasn't finished, or whose assignment is still unrevealed),
// mints an upload policy rooted at validators/{hotkey}/epoch={epochID}/,
// and records an audit row.
func (s *Service) MintUploadAccess(ctx context.Context, hotkey, epochID string, now time.Time) (credentials.UploadPolicy, error) {
	epoch, _, err := s.store.Epoch(ctx, epochID, now)
	if err != nil {
		return credentials.UploadPolicy{}, err
	}
	if epoch == nil {
		return credentials.UploadPolicy{}, errs.New(errs.EpochNotFound, "epoch id unknown")
	}
	if !epochConcluded(epoch.Status) {
		return credentials.UploadPolicy{}, errs.New(errs.EpochNotFound, "epoch has not concluded")
	}

	prefix := uploadPrefix(hotkey, epochID)
	policy, err := s.minter.MintUploadPolicy(prefix, now, s.uploadTTL, nil)
	if err != nil {
		return credentials.UploadPolicy{}, err
	}

	audit := &zipcodestore.ValidatorResult{
		EpochID:         epochID,
		ValidatorHotkey: hotkey,
		ValidationTS:    now,
		UploadPath:      prefix,
		Status:          "credential_issued",
	}
	if err := s.store.RecordValidatorUpload(ctx, audit); err != nil {
		return credentials.UploadPolicy{}, err
	}

	return policy, nil
}

// uploadPrefix builds the validator-specific write scope per §4.10.
func uploadPrefix(hotkey, epochID string) string {
	return fmt.Sprintf("validators/%s/epoch=%s/", hotkey, epochID)
}

// epochConcluded reports whether status represents a finished epoch —
// the gate MintUploadAccess enforces before minting any credential.
func epochConcluded(status zipcodestore.EpochStatus) bool {
	return status == zipcodestore.StatusCompleted || status == zipcodestore.StatusArchived
}
