package exchange

import (
	"fmt"
	"sort"

	"github.com/prebid/prebid-headertag/config"
	"github.com/prebid/prebid-headertag/partners"
)

// BuildPartners adapts every configured partner profile, keyed by profile name.
func BuildPartners(cfg *config.Configuration, deps PartnerDeps) (map[string]AdaptedPartner, []error) {
	return buildPartners(cfg.Partners, newPartnerBuilders(), deps)
}

func buildPartners(profiles map[string]config.Partner, builders map[string]partners.Builder, deps PartnerDeps) (map[string]AdaptedPartner, []error) {
	adapted := make(map[string]AdaptedPartner, len(profiles))
	var errs []error

	for _, name := range sortedProfileNames(profiles) {
		profile := profiles[name]
		adapterName := profile.Adapter
		if adapterName == "" {
			adapterName = name
		}
		builder, ok := builders[adapterName]
		if !ok {
			errs = append(errs, fmt.Errorf("%s: unknown partner adapter %q", name, adapterName))
			continue
		}
		if _, err := partners.ParseVersion(profile); err != nil {
			errs = append(errs, fmt.Errorf("%s: %v", name, err))
			continue
		}
		partner, err := AdaptPartner(builder, profile, deps)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %v", name, err))
			continue
		}
		adapted[name] = partner
	}
	return adapted, errs
}

// PartnerIDs lists the partner ids used as metric labels.
func PartnerIDs(profiles map[string]config.Partner) []string {
	ids := make([]string, 0, len(profiles))
	for _, name := range sortedProfileNames(profiles) {
		ids = append(ids, profiles[name].PartnerID)
	}
	return ids
}

func sortedProfileNames(profiles map[string]config.Partner) []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
