// Package zipcodestore implements C6: persistence for the zipcode master
// table, epochs, and epoch assignments. Model shape and the
// tx.ModelContext(...).Insert() idiom are grounded on
// filecoin-project-lily's model/actors/power package, the corpus's only
// direct example of go-pg/pg/v10 usage.
package zipcodestore

import "time"

type EpochStatus string

const (
	StatusPending   EpochStatus = "pending"
	StatusActive    EpochStatus = "active"
	StatusCompleted EpochStatus = "completed"
	StatusArchived  EpochStatus = "archived"
)

type MarketTier string

const (
	TierPremium  MarketTier = "premium"
	TierStandard MarketTier = "standard"
	TierEmerging MarketTier = "emerging"
)

// Epoch is the 4-hour UTC-aligned scheduling interval, keyed by
// "YYYY-MM-DD-HH:MM".
type Epoch struct {
	tableName struct{} `pg:"epochs"`

	ID               string      `pg:",pk"`
	StartTime        time.Time   `pg:",notnull"`
	EndTime          time.Time   `pg:",notnull"`
	Nonce            string      `pg:",notnull,unique"`
	TargetListings   int         `pg:",notnull"`
	TolerancePercent int         `pg:",notnull,use_zero"`
	Status           EpochStatus `pg:",notnull"`
	CreatedAt        time.Time   `pg:",notnull"`
	SelectionSeed    int64       `pg:",use_zero"`
	AlgorithmVersion string      `pg:",notnull"`
}

// EpochAssignment is one zipcode assigned to an epoch — primary key
// (EpochID, Zipcode).
type EpochAssignment struct {
	tableName struct{} `pg:"epoch_assignments"`

	EpochID          string     `pg:",pk"`
	Zipcode          string     `pg:",pk"`
	ExpectedListings int        `pg:",notnull"`
	State            string     `pg:",notnull"`
	City             string     `pg:",notnull"`
	County           string
	MarketTier       MarketTier `pg:",notnull"`
	SelectionWeight  float64
	IsHoneypot       bool `pg:",use_zero"`
}

// Zipcode is the master data row for one zipcode, carrying its own
// selection history so the selector can enforce cooldown without a join.
type Zipcode struct {
	tableName struct{} `pg:"zipcodes"`

	Zipcode            string     `pg:",pk"`
	State              string     `pg:",notnull"`
	City               string     `pg:",notnull"`
	County             string
	Population         int
	MedianHomeValue    int
	ExpectedListings   int        `pg:",notnull"`
	MarketTier         MarketTier `pg:",notnull"`
	LastAssigned       *time.Time
	AssignmentCount    int     `pg:",use_zero"`
	BaseSelectionWeight float64 `pg:",use_zero"`
	DataUpdatedAt      time.Time
	DataSource         string
	IsActive           bool `pg:",use_zero"`
	IsHoneypot         bool `pg:",use_zero"`
	CreatedAt          time.Time `pg:",notnull"`
	UpdatedAt          time.Time `pg:",notnull"`
}

// ValidatorResult is the optional audit persistence for validator uploads
// (§3's ValidatorResult entity, written by C11).
type ValidatorResult struct {
	tableName struct{} `pg:"validator_results"`

	EpochID        string    `pg:",pk"`
	ValidatorHotkey string   `pg:",pk"`
	ValidationTS   time.Time `pg:",notnull"`
	UploadPath     string    `pg:",notnull"`
	Status         string    `pg:",notnull"`
}
