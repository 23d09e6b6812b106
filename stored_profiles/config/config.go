package config

import (
	"database/sql"

	"github.com/golang/glog"
	_ "github.com/lib/pq"
	"github.com/prebid/prebid-headertag/config"
	"github.com/prebid/prebid-headertag/metrics"
	"github.com/prebid/prebid-headertag/stored_profiles"
	"github.com/prebid/prebid-headertag/stored_profiles/backends/db_fetcher"
	"github.com/prebid/prebid-headertag/stored_profiles/backends/empty_fetcher"
	"github.com/prebid/prebid-headertag/stored_profiles/caches/memory"
)

// NewStoredProfiles returns a Fetcher for partner profile overrides and a function which should be
// called on shutdown for graceful cleanups.
//
// Without a postgres database the Fetcher finds nothing. If the database can't be reached, the
// program will exit with an error message.
func NewStoredProfiles(cfg *config.StoredProfiles, metricsEngine metrics.MetricsEngine) (fetcher stored_profiles.Fetcher, shutdown func()) {
	if cfg.Postgres.ConnectionInfo.Database == "" {
		return empty_fetcher.EmptyFetcher{}, func() {}
	}

	glog.Infof("Connecting to Postgres for Stored Profiles. DB=%s, host=%s, port=%d, user=%s",
		cfg.Postgres.ConnectionInfo.Database,
		cfg.Postgres.ConnectionInfo.Host,
		cfg.Postgres.ConnectionInfo.Port,
		cfg.Postgres.ConnectionInfo.Username)
	db := newPostgresDB(cfg.Postgres.ConnectionInfo)

	fetcher = db_fetcher.NewFetcher(db, cfg.Postgres.QueryTemplate)
	if cfg.CacheSize > 0 {
		fetcher = stored_profiles.WithCache(fetcher, memory.NewCache(cfg.CacheSize, cfg.TTLSeconds), metricsEngine)
	}

	shutdown = func() {
		if err := db.Close(); err != nil {
			glog.Errorf("Error closing DB connection: %v", err)
		}
	}
	return
}

func newPostgresDB(cfg config.PostgresConnection) *sql.DB {
	db, err := sql.Open("postgres", cfg.ConnString())
	if err != nil {
		glog.Fatalf("Failed to open postgres connection for stored profiles: %v", err)
	}

	if err := db.Ping(); err != nil {
		glog.Fatalf("Failed to ping postgres for stored profiles: %v", err)
	}

	return db
}
