package exchange

import (
	"context"
	"fmt"
	"time"

	"github.com/golang/glog"
	"github.com/prebid/prebid-headertag/config"
	"github.com/prebid/prebid-headertag/errortypes"
	"github.com/prebid/prebid-headertag/stored_profiles"
	"github.com/prebid/prebid-headertag/util/task"
)

const profileFetchTimeout = 5 * time.Second

// ProfileReloader re-applies the stored profile overrides to the running partners.
// Overrides always apply on top of the base profile from the app config, so removing an
// override restores the base profile on the next run.
type ProfileReloader struct {
	base     map[string]config.Partner
	partners map[string]AdaptedPartner
	fetcher  stored_profiles.Fetcher
}

func NewProfileReloader(base map[string]config.Partner, adapted map[string]AdaptedPartner, fetcher stored_profiles.Fetcher) *ProfileReloader {
	return &ProfileReloader{
		base:     base,
		partners: adapted,
		fetcher:  fetcher,
	}
}

// Run implements task.Runner. Partners whose override fails keep running with their
// current profile.
func (r *ProfileReloader) Run() error {
	names := make([]string, 0, len(r.partners))
	ids := make([]string, 0, len(r.partners))
	for _, name := range sortedProfileNames(r.base) {
		if _, ok := r.partners[name]; ok {
			names = append(names, name)
			ids = append(ids, r.base[name].PartnerID)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), profileFetchTimeout)
	defer cancel()
	overrides, errs := r.fetcher.FetchProfiles(ctx, ids)
	if !stored_profiles.IsNotFound(errs) {
		return fmt.Errorf("failed to fetch stored profiles: %v", errs)
	}

	var failed []error
	for _, name := range names {
		base := r.base[name]
		profile, err := config.ApplyPartnerOverride(base, overrides[base.PartnerID])
		if err != nil {
			failed = append(failed, err)
			continue
		}
		if err := r.partners[name].Reload(profile); err != nil {
			failed = append(failed, fmt.Errorf("%s: %v", name, err))
		}
	}
	if len(failed) > 0 {
		return &errortypes.Warning{
			WarningCode: errortypes.StoredProfileWarningCode,
			Message:     fmt.Sprintf("%d stored profiles were not applied: %v", len(failed), failed),
		}
	}
	return nil
}

// StartProfileReloader applies the overrides once and then every refreshRate. A refreshRate
// of zero applies them once only. The returned task must be stopped on shutdown.
func StartProfileReloader(reloader *ProfileReloader, refreshRate time.Duration) *task.TickerTask {
	t := task.NewTickerTaskWithOptions(task.Options{
		Name:     "stored profile reload",
		Interval: refreshRate,
		Runner:   reloader,
	})
	t.Start()
	glog.Infof("Stored profiles are reloaded every %v", refreshRate)
	return t
}
