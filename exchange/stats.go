package exchange

import (
	"github.com/prebid/prebid-headertag/analytics"
	"github.com/prebid/prebid-headertag/config"
	"github.com/prebid/prebid-headertag/parcel"
	"github.com/prebid/prebid-headertag/partners"
)

type statsOutcome int

const (
	statsRequest statsOutcome = iota
	statsError
	statsTimeout
)

// statsEmitter reports request timing stats. There is one variant per targeting type, plus
// one for partners with request time analytics turned off.
type statsEmitter interface {
	// begin prepares the stats of one request. It is called before the request is sent.
	begin(sessionID string, req *partners.RequestData) requestStats
}

type requestStats interface {
	emit(outcome statsOutcome)
}

func newStatsEmitter(profile config.Partner, targetingType parcel.TargetingType, bus analytics.Bus) statsEmitter {
	if !profile.EnabledAnalytics.RequestTime {
		return nilStats{}
	}
	if targetingType == parcel.TargetingSlot {
		return &slotStats{bus: bus, statsID: profile.StatsID}
	}
	return &pageStats{bus: bus, statsID: profile.StatsID}
}

type nilStats struct{}

func (nilStats) begin(string, *partners.RequestData) requestStats { return nilStats{} }
func (nilStats) emit(statsOutcome) {}

// slotStats attribute each outcome to the xSlots of the request, grouped by htSlot name.
type slotStats struct {
	bus     analytics.Bus
	statsID string
}

var slotTopics = map[statsOutcome]analytics.Topic{
	statsRequest: analytics.TopicSlotRequest,
	statsError:   analytics.TopicSlotError,
	statsTimeout: analytics.TopicSlotTimeout,
}

func (s *slotStats) begin(sessionID string, req *partners.RequestData) requestStats {
	names := make(map[string][]string)
	for _, slot := range req.Slots {
		htSlotName := slot.HTSlotName()
		if slot.XSlotName == "" || containsString(names[htSlotName], slot.XSlotName) {
			continue
		}
		names[htSlotName] = append(names[htSlotName], slot.XSlotName)
	}
	return &slotRequestStats{
		slotStats: s,
		payload: analytics.SlotStatsEvent{
			SessionID:  sessionID,
			StatsID:    s.statsID,
			XSlotNames: map[string]map[string][]string{req.CallbackID: names},
		},
	}
}

type slotRequestStats struct {
	*slotStats
	payload analytics.SlotStatsEvent
}

func (s *slotRequestStats) emit(outcome statsOutcome) {
	s.bus.Emit(slotTopics[outcome], s.payload)
}

// pageStats attribute each outcome to the request id.
type pageStats struct {
	bus     analytics.Bus
	statsID string
}

var pageTopics = map[statsOutcome]analytics.Topic{
	statsRequest: analytics.TopicPageRequest,
	statsError:   analytics.TopicPageError,
	statsTimeout: analytics.TopicPageTimeout,
}

func (s *pageStats) begin(sessionID string, req *partners.RequestData) requestStats {
	return &pageRequestStats{
		pageStats: s,
		payload: analytics.PageStatsEvent{
			SessionID: sessionID,
			StatsID:   s.statsID,
			RequestID: req.CallbackID,
		},
	}
}

type pageRequestStats struct {
	*pageStats
	payload analytics.PageStatsEvent
}

func (s *pageRequestStats) emit(outcome statsOutcome) {
	s.bus.Emit(pageTopics[outcome], s.payload)
}

func containsString(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}
