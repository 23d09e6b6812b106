package db_fetcher

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/golang/glog"
	"github.com/lib/pq"
	"github.com/prebid/prebid-headertag/stored_profiles"
)

// NewFetcher returns a Fetcher reading overrides from postgres. query must select
// (partner_id, config) rows and take the partner id array as $1.
func NewFetcher(db *sql.DB, query string) stored_profiles.Fetcher {
	if db == nil {
		glog.Fatalf("The Postgres Stored Profile Fetcher requires a database connection. Please report this as a bug.")
	}
	if query == "" {
		glog.Fatalf("The Postgres Stored Profile Fetcher requires a query. Please report this as a bug.")
	}
	return &dbFetcher{
		db:    db,
		query: query,
	}
}

type dbFetcher struct {
	db    *sql.DB
	query string
}

func (fetcher *dbFetcher) FetchProfiles(ctx context.Context, partnerIDs []string) (map[string]json.RawMessage, []error) {
	if len(partnerIDs) < 1 {
		return nil, nil
	}

	rows, err := fetcher.db.QueryContext(ctx, fetcher.query, pq.Array(partnerIDs))
	if err != nil {
		if err != context.DeadlineExceeded && !isBadInput(err) {
			glog.Errorf("Error reading from Stored Profile DB: %s", err.Error())
			return nil, appendErrors(partnerIDs, nil, nil)
		}
		return nil, []error{err}
	}
	defer func() {
		if err := rows.Close(); err != nil {
			glog.Errorf("error closing DB connection: %v", err)
		}
	}()

	overrides := make(map[string]json.RawMessage, len(partnerIDs))
	for rows.Next() {
		var id string
		var data []byte
		if err := rows.Scan(&id, &data); err != nil {
			return nil, []error{err}
		}
		if !json.Valid(data) {
			glog.Errorf("Postgres stored profile for partner %s is not valid JSON. This will be ignored.", id)
			continue
		}
		overrides[id] = data
	}
	if rows.Err() != nil {
		return nil, []error{rows.Err()}
	}

	return overrides, appendErrors(partnerIDs, overrides, nil)
}

func appendErrors(ids []string, data map[string]json.RawMessage, errs []error) []error {
	for _, id := range ids {
		if _, ok := data[id]; !ok {
			errs = append(errs, stored_profiles.NotFoundError{ID: id})
		}
	}
	return errs
}

// Returns true if the Postgres error signifies some sort of bad user input, and false otherwise.
//
// These errors are documented here: https://www.postgresql.org/docs/9.3/static/errcodes-appendix.html
func isBadInput(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok && string(pqErr.Code) == "22P02" {
		return true
	}
	return false
}
