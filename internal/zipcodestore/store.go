package zipcodestore

import (
	"context"
	"time"

	"github.com/go-pg/pg/v10"

	"github.com/resi-labs-ai/resi-labs-api/internal/errs"
	"github.com/resi-labs-ai/resi-labs-api/internal/selector"
)

// epochWriterLockKey is an arbitrary, fixed advisory-lock key: every
// scheduler replica contends for the same integer, so pg_advisory_xact_lock
// guarantees at most one of them is inside InsertEpoch at a time (§4.6).
const epochWriterLockKey = 874512001

type Store struct {
	db *pg.DB
}

func Connect(url string) (*Store, error) {
	opts, err := pg.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &Store{db: pg.Connect(opts)}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// UpsertZipcodes writes or refreshes a batch of master zipcode rows.
func (s *Store) UpsertZipcodes(ctx context.Context, batch []*Zipcode) error {
	if len(batch) == 0 {
		return nil
	}
	_, err := s.db.ModelContext(ctx, &batch).
		OnConflict("(zipcode) DO UPDATE").
		Set("state = EXCLUDED.state, city = EXCLUDED.city, county = EXCLUDED.county, " +
			"expected_listings = EXCLUDED.expected_listings, market_tier = EXCLUDED.market_tier, " +
			"data_updated_at = EXCLUDED.data_updated_at, updated_at = EXCLUDED.updated_at").
		Insert()
	if err != nil {
		return errs.Wrap(errs.DependencyUnavailable, "upsert zipcodes failed", err)
	}
	return nil
}

// GetEligible loads the subset of the master table that could plausibly be
// selected: active, within the listings band, and not honeypot-only. The
// query does not look at cooldown or data age; the scheduler applies
// selector.Filter (§4.8) to the returned rows before selection.
func (s *Store) GetEligible(ctx context.Context, now time.Time, minListings, maxListings int) ([]selector.Row, error) {
	var rows []*Zipcode
	err := s.db.ModelContext(ctx, &rows).
		Where("is_active = ?", true).
		Where("is_honeypot = ?", false).
		Where("expected_listings BETWEEN ? AND ?", minListings, maxListings).
		Select()
	if err != nil {
		return nil, errs.Wrap(errs.DependencyUnavailable, "load eligible zipcodes failed", err)
	}
	return toSelectorRows(rows), nil
}

// GetHoneypotPool loads the disjoint low-activity pool honeypots are drawn
// from: rows below the listings floor, flagged is_honeypot.
func (s *Store) GetHoneypotPool(ctx context.Context, threshold int) ([]selector.Row, error) {
	var rows []*Zipcode
	err := s.db.ModelContext(ctx, &rows).
		Where("is_honeypot = ?", true).
		Where("expected_listings < ?", threshold).
		Select()
	if err != nil {
		return nil, errs.Wrap(errs.DependencyUnavailable, "load honeypot pool failed", err)
	}
	return toSelectorRows(rows), nil
}

func toSelectorRows(rows []*Zipcode) []selector.Row {
	out := make([]selector.Row, 0, len(rows))
	for _, r := range rows {
		out = append(out, selector.Row{
			Zipcode:          r.Zipcode,
			State:            r.State,
			City:             r.City,
			County:           r.County,
			ExpectedListings: r.ExpectedListings,
			MarketTier:       string(r.MarketTier),
			BaseWeight:       r.BaseSelectionWeight,
			LastAssigned:     r.LastAssigned,
			DataUpdatedAt:    r.DataUpdatedAt,
		})
	}
	return out
}

// InsertEpoch atomically persists a pending epoch, its assignments, and the
// last_assigned_ts bump on every non-honeypot zipcode it touched, inside a
// single transaction guarded by an advisory lock — no two scheduler
// replicas can publish the same epoch concurrently (§4.6, §5).
func (s *Store) InsertEpoch(ctx context.Context, epoch *Epoch, assignments []*EpochAssignment) error {
	return s.db.RunInTransaction(ctx, func(tx *pg.Tx) error {
		if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(?)", epochWriterLockKey); err != nil {
			return errs.Wrap(errs.DependencyUnavailable, "acquire epoch writer lock", err)
		}

		if _, err := tx.ModelContext(ctx, epoch).Insert(); err != nil {
			return errs.Wrap(errs.Internal, "insert epoch", err)
		}
		if len(assignments) > 0 {
			if _, err := tx.ModelContext(ctx, &assignments).Insert(); err != nil {
				return errs.Wrap(errs.Internal, "insert epoch assignments", err)
			}
		}

		for _, a := range assignments {
			if a.IsHoneypot {
				continue
			}
			if _, err := tx.ModelContext(ctx, (*Zipcode)(nil)).
				Table("zipcodes").
				Set("last_assigned = ?, assignment_count = assignment_count + 1, updated_at = ?", epoch.StartTime, epoch.StartTime).
				Where("zipcode = ?", a.Zipcode).
				Update(); err != nil {
				return errs.Wrap(errs.Internal, "update last_assigned", err)
			}
		}
		return nil
	})
}

// ActiveEpoch returns the epoch whose [start, end) window contains now and
// whose status is active, or nil if none exists — the scheduler's
// pre-generated pending rows are deliberately invisible here (§4.7
// anti-gaming: "enforcement is by comparing now >= start at read time").
func (s *Store) ActiveEpoch(ctx context.Context, now time.Time) (*Epoch, []*EpochAssignment, error) {
	var epoch Epoch
	err := s.db.ModelContext(ctx, &epoch).
		Where("status = ?", StatusActive).
		Where("start_time <= ? AND end_time > ?", now, now).
		Select()
	if err == pg.ErrNoRows {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, errs.Wrap(errs.DependencyUnavailable, "load active epoch", err)
	}

	assignments, err := s.Assignments(ctx, epoch.ID)
	if err != nil {
		return nil, nil, err
	}
	return &epoch, assignments, nil
}

// Epoch loads a historical epoch by id regardless of status, as long as its
// start has already passed — pre-reveal protection applies here too.
func (s *Store) Epoch(ctx context.Context, id string, now time.Time) (*Epoch, []*EpochAssignment, error) {
	var epoch Epoch
	err := s.db.ModelContext(ctx, &epoch).Where("id = ?", id).Select()
	if err == pg.ErrNoRows {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, errs.Wrap(errs.DependencyUnavailable, "load epoch", err)
	}
	if now.Before(epoch.StartTime) {
		// Pre-generated, not yet started: behave as not found to the caller.
		return nil, nil, nil
	}

	assignments, err := s.Assignments(ctx, epoch.ID)
	if err != nil {
		return nil, nil, err
	}
	return &epoch, assignments, nil
}

func (s *Store) Assignments(ctx context.Context, epochID string) ([]*EpochAssignment, error) {
	var assignments []*EpochAssignment
	err := s.db.ModelContext(ctx, &assignments).Where("epoch_id = ?", epochID).Select()
	if err != nil {
		return nil, errs.Wrap(errs.DependencyUnavailable, "load epoch assignments", err)
	}
	return assignments, nil
}

// PromotePending promotes the given pending epoch to active and any
// currently-active epoch to completed, in one transaction — the API never
// observes two active epochs (§4.7).
func (s *Store) PromotePending(ctx context.Context, pendingID string) error {
	return s.db.RunInTransaction(ctx, func(tx *pg.Tx) error {
		if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(?)", epochWriterLockKey); err != nil {
			return errs.Wrap(errs.DependencyUnavailable, "acquire epoch writer lock", err)
		}
		if _, err := tx.ExecContext(ctx, "UPDATE epochs SET status = ? WHERE status = ?", StatusCompleted, StatusActive); err != nil {
			return errs.Wrap(errs.Internal, "complete previous active epoch", err)
		}
		if _, err := tx.ExecContext(ctx, "UPDATE epochs SET status = ? WHERE id = ? AND status = ?", StatusActive, pendingID, StatusPending); err != nil {
			return errs.Wrap(errs.Internal, "promote pending epoch", err)
		}
		return nil
	})
}

// ArchiveBefore marks completed epochs older than cutoff as archived —
// deletion is archival-only, rows are never removed.
func (s *Store) ArchiveBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, "UPDATE epochs SET status = ? WHERE status = ? AND end_time < ?", StatusArchived, StatusCompleted, cutoff)
	if err != nil {
		return 0, errs.Wrap(errs.Internal, "archive old epochs", err)
	}
	return res.RowsAffected(), nil
}

// RecordValidatorUpload is the audit row C11 writes on every verified
// validator upload credential issuance.
func (s *Store) RecordValidatorUpload(ctx context.Context, r *ValidatorResult) error {
	_, err := s.db.ModelContext(ctx, r).OnConflict("do nothing").Insert()
	if err != nil {
		return errs.Wrap(errs.Internal, "record validator upload audit row", err)
	}
	return nil
}

// Counts is the set of aggregate figures backing the stats endpoint and
// the scheduler's own counters.
type Counts struct {
	PendingEpochs    int
	ActiveEpochs     int
	CompletedEpochs  int
	ArchivedEpochs   int
	TotalAssignments int
}

func (s *Store) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	var err error

	c.PendingEpochs, err = s.db.ModelContext(ctx, (*Epoch)(nil)).Where("status = ?", StatusPending).Count()
	if err != nil {
		return c, errs.Wrap(errs.DependencyUnavailable, "count pending epochs", err)
	}
	c.ActiveEpochs, err = s.db.ModelContext(ctx, (*Epoch)(nil)).Where("status = ?", StatusActive).Count()
	if err != nil {
		return c, errs.Wrap(errs.DependencyUnavailable, "count active epochs", err)
	}
	c.CompletedEpochs, err = s.db.ModelContext(ctx, (*Epoch)(nil)).Where("status = ?", StatusCompleted).Count()
	if err != nil {
		return c, errs.Wrap(errs.DependencyUnavailable, "count completed epochs", err)
	}
	c.ArchivedEpochs, err = s.db.ModelContext(ctx, (*Epoch)(nil)).Where("status = ?", StatusArchived).Count()
	if err != nil {
		return c, errs.Wrap(errs.DependencyUnavailable, "count archived epochs", err)
	}
	c.TotalAssignments, err = s.db.ModelContext(ctx, (*EpochAssignment)(nil)).Count()
	if err != nil {
		return c, errs.Wrap(errs.DependencyUnavailable, "count assignments", err)
	}
	return c, nil
}
