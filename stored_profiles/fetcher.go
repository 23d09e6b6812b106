package stored_profiles

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/prebid/prebid-headertag/metrics"
)

// Fetcher knows how to fetch partner profile overrides by partner id.
//
// Implementations must be safe for concurrent access by multiple goroutines.
type Fetcher interface {
	// FetchProfiles returns the override of every partner id it knows about. The overrides are
	// JSON merge patches over the partner profile. Unknown ids produce a NotFoundError.
	//
	// The returned objects can only be read from. They may not be written to.
	FetchProfiles(ctx context.Context, partnerIDs []string) (overrides map[string]json.RawMessage, errs []error)
}

// NotFoundError flags that no override exists for a partner id.
type NotFoundError struct {
	ID string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf(`Stored profile with partner ID="%s" not found.`, e.ID)
}

// Cache is an intermediate layer which can be put in front of a Fetcher with WithCache.
// Implementations must be safe for concurrent access by multiple goroutines.
type Cache interface {
	// Get returns the cached overrides of ids. The returned map misses the ids which are not
	// cached, and it may be written to. Actionable errors are logged rather than returned.
	Get(ctx context.Context, ids []string) map[string]json.RawMessage

	// Invalidate removes ids until new values are saved.
	Invalidate(ctx context.Context, ids []string)

	// Save adds or overwrites the data at the given keys.
	Save(ctx context.Context, data map[string]json.RawMessage)
}

type fetcherWithCache struct {
	fetcher       Fetcher
	cache         Cache
	metricsEngine metrics.MetricsEngine
}

// WithCache returns a Fetcher which uses the cache before delegating to fetcher.
func WithCache(fetcher Fetcher, cache Cache, metricsEngine metrics.MetricsEngine) Fetcher {
	return &fetcherWithCache{
		fetcher:       fetcher,
		cache:         cache,
		metricsEngine: metricsEngine,
	}
}

func (f *fetcherWithCache) FetchProfiles(ctx context.Context, partnerIDs []string) (overrides map[string]json.RawMessage, errs []error) {
	overrides = f.cache.Get(ctx, partnerIDs)
	leftovers := findLeftovers(partnerIDs, overrides)

	f.metricsEngine.RecordStoredProfileCacheResult(metrics.CacheHit, len(partnerIDs)-len(leftovers))
	f.metricsEngine.RecordStoredProfileCacheResult(metrics.CacheMiss, len(leftovers))

	if len(leftovers) > 0 {
		fetched, fetcherErrs := f.fetcher.FetchProfiles(ctx, leftovers)
		errs = fetcherErrs
		f.cache.Save(ctx, fetched)
		overrides = mergeData(overrides, fetched)
	}
	return
}

func findLeftovers(ids []string, data map[string]json.RawMessage) []string {
	leftovers := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := data[id]; !ok {
			leftovers = append(leftovers, id)
		}
	}
	return leftovers
}

func mergeData(cached, fetched map[string]json.RawMessage) map[string]json.RawMessage {
	if cached == nil {
		cached = make(map[string]json.RawMessage, len(fetched))
	}
	for id, data := range fetched {
		cached[id] = data
	}
	return cached
}

// IsNotFound reports whether every error in errs is a NotFoundError.
func IsNotFound(errs []error) bool {
	for _, err := range errs {
		if _, ok := err.(NotFoundError); !ok {
			return false
		}
	}
	return true
}
