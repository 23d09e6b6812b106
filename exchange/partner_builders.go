package exchange

import (
	"github.com/prebid/prebid-headertag/partners"
	"github.com/prebid/prebid-headertag/partners/genericortb"
	"github.com/prebid/prebid-headertag/partners/grapeshot"
)

// The builders, keyed by the adapter name a profile refers to.
func newPartnerBuilders() map[string]partners.Builder {
	return map[string]partners.Builder{
		"genericortb": genericortb.Builder,
		"grapeshot":   grapeshot.Builder,
	}
}
