package migrations

import (
	"github.com/go-pg/migrations/v8"
)

// Schema version 1: zipcodes master table, epochs, epoch_assignments, and
// validator_results.

func init() {
	up := batch(`
CREATE TYPE epoch_status_enum AS ENUM ('pending', 'active', 'completed', 'archived');
CREATE TYPE market_tier_enum AS ENUM ('premium', 'standard', 'emerging');

CREATE TABLE zipcodes (
    zipcode               text PRIMARY KEY,
    state                 text NOT NULL,
    city                  text NOT NULL,
    county                text,
    population            integer,
    median_home_value     integer,
    expected_listings     integer NOT NULL,
    market_tier           market_tier_enum NOT NULL,
    last_assigned         timestamptz,
    assignment_count      integer NOT NULL DEFAULT 0,
    base_selection_weight double precision NOT NULL DEFAULT 1.0,
    data_updated_at       timestamptz,
    data_source           text,
    is_active             boolean NOT NULL DEFAULT true,
    is_honeypot           boolean NOT NULL DEFAULT false,
    created_at            timestamptz NOT NULL,
    updated_at            timestamptz NOT NULL
);

CREATE INDEX zipcodes_state_index ON zipcodes USING btree (state);
CREATE INDEX zipcodes_last_assigned_index ON zipcodes USING btree (last_assigned);
CREATE INDEX zipcodes_eligibility_index ON zipcodes USING btree (is_active, is_honeypot, expected_listings);

CREATE TABLE epochs (
    id                text PRIMARY KEY,
    start_time        timestamptz NOT NULL,
    end_time          timestamptz NOT NULL,
    nonce             text NOT NULL,
    target_listings   integer NOT NULL,
    tolerance_percent integer NOT NULL,
    status            epoch_status_enum NOT NULL,
    created_at        timestamptz NOT NULL,
    selection_seed    bigint NOT NULL DEFAULT 0,
    algorithm_version text NOT NULL
);

CREATE UNIQUE INDEX epochs_nonce_uindex ON epochs USING btree (nonce);
CREATE INDEX epochs_status_window_index ON epochs USING btree (status, start_time, end_time);

CREATE TABLE epoch_assignments (
    epoch_id          text NOT NULL REFERENCES epochs(id),
    zipcode           text NOT NULL REFERENCES zipcodes(zipcode),
    expected_listings integer NOT NULL,
    state             text NOT NULL,
    city              text NOT NULL,
    county            text,
    market_tier       market_tier_enum NOT NULL,
    selection_weight  double precision,
    is_honeypot       boolean NOT NULL DEFAULT false,
    PRIMARY KEY (epoch_id, zipcode)
);

CREATE INDEX epoch_assignments_epoch_id_index ON epoch_assignments USING btree (epoch_id);

CREATE TABLE validator_results (
    epoch_id         text NOT NULL REFERENCES epochs(id),
    validator_hotkey text NOT NULL,
    validation_ts    timestamptz NOT NULL,
    upload_path      text NOT NULL,
    status           text NOT NULL,
    PRIMARY KEY (epoch_id, validator_hotkey)
);
`)

	down := batch(`
DROP TABLE IF EXISTS validator_results;
DROP TABLE IF EXISTS epoch_assignments;
DROP TABLE IF EXISTS epochs;
DROP TABLE IF EXISTS zipcodes;
DROP TYPE IF EXISTS market_tier_enum;
DROP TYPE IF EXISTS epoch_status_enum;
`)
	migrations.MustRegisterTx(up, down)
}
