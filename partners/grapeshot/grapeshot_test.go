package grapeshot

import (
	"strconv"
	"testing"

	"github.com/prebid/prebid-headertag/config"
	"github.com/prebid/prebid-headertag/errortypes"
	"github.com/prebid/prebid-headertag/parcel"
	"github.com/prebid/prebid-headertag/partners"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGenerator struct {
	next int
}

func (g *fakeGenerator) Generate() (string, error) {
	g.next++
	return "id-" + strconv.Itoa(g.next), nil
}

func testProfile() config.Partner {
	return config.Partner{
		PartnerID:     "GrapeshotNob",
		StatsID:       "GRAPE",
		Version:       "2.0.0",
		Endpoint:      "http://grapeshot.example.com/channels",
		TargetingType: "page",
	}
}

func buildAdapter(t *testing.T, profile config.Partner) partners.Partner {
	t.Helper()
	p, err := Builder(profile, partners.Deps{IDGenerator: &fakeGenerator{}})
	require.NoError(t, err)
	return p
}

func testSlots() []*parcel.SlotDescriptor {
	return []*parcel.SlotDescriptor{
		{HTSlot: parcel.NewHTSlot("header-1", "h1")},
		{HTSlot: parcel.NewHTSlot("footer-1", "f1")},
	}
}

func TestBuilderValidation(t *testing.T) {
	profile := testProfile()
	profile.TargetingType = "slot"
	_, err := Builder(profile, partners.Deps{IDGenerator: &fakeGenerator{}})
	assert.EqualError(t, err, "partner GrapeshotNob only supports page targeting")
}

func TestMakeRequests(t *testing.T) {
	p := buildAdapter(t, testProfile())
	slots := testSlots()

	requests, errs := p.MakeRequests(slots, &partners.ExtraRequestInfo{PageURL: "http://news.example.com/story"})

	assert.Empty(t, errs)
	require.Len(t, requests, 1)
	assert.Equal(t, "GET", requests[0].Method)
	assert.Equal(t, "http://grapeshot.example.com/channels", requests[0].URL)
	assert.Equal(t, "_id-1", requests[0].CallbackID)
	assert.Equal(t, map[string]interface{}{"url": "http://news.example.com/story", "cb": "_id-1"}, requests[0].Data)
	assert.Equal(t, slots, requests[0].Slots)
}

func TestMakeRequestsFreshCallbackIDs(t *testing.T) {
	p := buildAdapter(t, testProfile())
	info := &partners.ExtraRequestInfo{PageURL: "http://news.example.com/story"}

	first, _ := p.MakeRequests(testSlots(), info)
	second, _ := p.MakeRequests(testSlots(), info)

	assert.NotEqual(t, first[0].CallbackID, second[0].CallbackID)
}

func TestMakeRequestsFailures(t *testing.T) {
	p := buildAdapter(t, testProfile())

	requests, errs := p.MakeRequests(nil, &partners.ExtraRequestInfo{PageURL: "http://news.example.com"})
	assert.Empty(t, requests)
	require.Len(t, errs, 1)
	assert.IsType(t, &errortypes.FailedToRequestBids{}, errs[0])

	requests, errs = p.MakeRequests(testSlots(), &partners.ExtraRequestInfo{})
	assert.Empty(t, requests)
	require.Len(t, errs, 1)
	assert.IsType(t, &errortypes.FailedToRequestBids{}, errs[0])
}

func TestParseResponse(t *testing.T) {
	testCases := []struct {
		description string
		payload     string
		targeting   map[string][]string
		expectErr   bool
	}{
		{
			description: "channels",
			payload:     `{"status":"ok","channels":[{"name":"gs_tech","score":12.5},{"name":"gs_business","score":3}]}`,
			targeting:   map[string][]string{"gs_cat": {"gs_tech", "gs_business"}},
		},
		{
			description: "no channels",
			payload:     `{"status":"ok","channels":[]}`,
		},
		{
			description: "channels missing",
			payload:     `{"status":"ok"}`,
		},
		{
			description: "not json",
			payload:     `not json`,
			expectErr:   true,
		},
		{
			description: "error status",
			payload:     `{"status":"queued"}`,
			expectErr:   true,
		},
		{
			description: "channel without name",
			payload:     `{"status":"ok","channels":[{"score":1}]}`,
			expectErr:   true,
		},
	}

	for _, test := range testCases {
		p := buildAdapter(t, testProfile())
		acc := parcel.NewAccumulator(parcel.TargetingPage)

		err := p.ParseResponse("session-1", &partners.RequestData{CallbackID: "_id-1"}, []byte(test.payload), acc)

		if test.expectErr {
			assert.IsType(t, &errortypes.BadServerResponse{}, err, test.description)
			assert.Zero(t, len(acc.Parcels()), test.description)
			continue
		}
		require.NoError(t, err, test.description)
		if test.targeting == nil {
			assert.Zero(t, len(acc.Parcels()), test.description)
			continue
		}
		parcels := acc.Parcels()
		require.Len(t, parcels, 1, test.description)
		assert.Equal(t, "GrapeshotNob", parcels[0].PartnerID)
		assert.Equal(t, "GRAPE", parcels[0].PartnerStatsID)
		assert.Equal(t, parcel.TargetingPage, parcels[0].TargetingType)
		assert.Equal(t, test.targeting, parcels[0].Targeting, test.description)
	}
}

func TestParseResponseCustomKey(t *testing.T) {
	profile := testProfile()
	profile.TargetingKeys = map[string]string{"cat": "grape_channels"}
	p := buildAdapter(t, profile)
	acc := parcel.NewAccumulator(parcel.TargetingPage)

	require.NoError(t, p.ParseResponse("s", &partners.RequestData{}, []byte(`{"status":"ok","channels":[{"name":"gs_sport"}]}`), acc))

	assert.Equal(t, map[string][]string{"grape_channels": {"gs_sport"}}, acc.Parcels()[0].Targeting)
}
