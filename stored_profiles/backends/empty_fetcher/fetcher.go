package empty_fetcher

import (
	"context"
	"encoding/json"

	"github.com/prebid/prebid-headertag/stored_profiles"
)

// EmptyFetcher is a nil-object which has no stored profiles.
// If the server is configured to use this, the partner profiles come from the app config only.
type EmptyFetcher struct{}

func (fetcher EmptyFetcher) FetchProfiles(ctx context.Context, partnerIDs []string) (map[string]json.RawMessage, []error) {
	errs := make([]error, 0, len(partnerIDs))
	for _, id := range partnerIDs {
		errs = append(errs, stored_profiles.NotFoundError{ID: id})
	}
	return nil, errs
}
