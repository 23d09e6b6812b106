package genericortb

import (
	"encoding/json"
	"strconv"
	"testing"

	"github.com/mxmCherry/openrtb"
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

func testProfile(architecture string) config.Partner {
	return config.Partner{
		PartnerID:     "GenericOrtb",
		StatsID:       "ORTB",
		Version:       "1.0.0",
		Endpoint:      "http://ortb.example.com/bid",
		TargetingType: "slot",
		Architecture:  architecture,
		TimeoutMS:     200,
		XSlots: map[string]map[string]interface{}{
			"x1": {"tag_id": "top", "sizes": []interface{}{[]interface{}{300, 250}, []interface{}{300, 600}}, "bid_floor": 0.5},
			"x2": {"tag_id": "bottom", "sizes": []interface{}{[]interface{}{728, 90}}},
		},
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
		{HTSlot: parcel.NewHTSlot("header-1", "h1"), XSlotName: "x1", Ref: "gpt-top", XSlotRef: map[string]interface{}{"tag_id": "top"}},
		{HTSlot: parcel.NewHTSlot("footer-1", "f1"), XSlotName: "x2", Ref: "gpt-bottom"},
	}
}

func TestBuilderValidation(t *testing.T) {
	profile := testProfile("")
	profile.TargetingType = "page"
	_, err := Builder(profile, partners.Deps{})
	assert.EqualError(t, err, "partner GenericOrtb only supports slot targeting")

	profile = testProfile("")
	profile.XSlots["x3"] = map[string]interface{}{"tag_id": "nosize"}
	_, err = Builder(profile, partners.Deps{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "partner GenericOrtb xSlot x3: ")
	assert.Contains(t, err.Error(), "sizes")
}

func TestBuilderRejectsXSlotParamsAgainstSchema(t *testing.T) {
	testCases := []struct {
		description string
		params      map[string]interface{}
		field       string
	}{
		{
			description: "Empty sizes",
			params:      map[string]interface{}{"sizes": []interface{}{}},
			field:       "sizes",
		},
		{
			description: "Size without height",
			params:      map[string]interface{}{"sizes": []interface{}{[]interface{}{300}}},
			field:       "sizes.0",
		},
		{
			description: "Fractional width",
			params:      map[string]interface{}{"sizes": []interface{}{[]interface{}{300.5, 250}}},
			field:       "sizes.0.0",
		},
		{
			description: "Numeric tag id",
			params:      map[string]interface{}{"tag_id": 7, "sizes": []interface{}{[]interface{}{300, 250}}},
			field:       "tag_id",
		},
		{
			description: "Negative floor",
			params:      map[string]interface{}{"bid_floor": -1, "sizes": []interface{}{[]interface{}{300, 250}}},
			field:       "bid_floor",
		},
	}

	for _, test := range testCases {
		profile := testProfile("")
		profile.XSlots["x3"] = test.params
		_, err := Builder(profile, partners.Deps{})
		if assert.Error(t, err, test.description) {
			assert.Contains(t, err.Error(), test.field, test.description)
		}
	}
}

func TestXSlotSchemaAcceptsConfiguredSlots(t *testing.T) {
	for name, params := range testProfile("").XSlots {
		assert.NoError(t, validateXSlotParams(params), name)
	}
}

func TestMakeRequestsSRA(t *testing.T) {
	p := buildAdapter(t, testProfile(config.ArchitectureSRA))

	requests, errs := p.MakeRequests(testSlots(), &partners.ExtraRequestInfo{PageURL: "http://news.example.com", UserAgent: "ua", IP: "1.2.3.4"})

	assert.Empty(t, errs)
	require.Len(t, requests, 1)
	request := requests[0]
	assert.Equal(t, "POST", request.Method)
	assert.Equal(t, "_id-1", request.CallbackID)
	assert.Equal(t, "application/json;charset=utf-8", request.Headers.Get("Content-Type"))
	assert.Len(t, request.Slots, 2)

	var bidRequest openrtb.BidRequest
	require.NoError(t, json.Unmarshal(request.Body, &bidRequest))
	assert.Equal(t, "_id-1", bidRequest.ID)
	assert.Equal(t, int64(200), bidRequest.TMax)
	assert.Equal(t, "http://news.example.com", bidRequest.Site.Page)
	assert.Equal(t, "ua", bidRequest.Device.UA)
	require.Len(t, bidRequest.Imp, 2)
	assert.Equal(t, "1", bidRequest.Imp[0].ID)
	assert.Equal(t, "top", bidRequest.Imp[0].TagID)
	assert.Equal(t, 0.5, bidRequest.Imp[0].BidFloor)
	assert.Equal(t, uint64(300), *bidRequest.Imp[0].Banner.W)
	assert.Equal(t, uint64(250), *bidRequest.Imp[0].Banner.H)
	assert.Len(t, bidRequest.Imp[0].Banner.Format, 2)
	assert.Equal(t, "2", bidRequest.Imp[1].ID)
	assert.Equal(t, "bottom", bidRequest.Imp[1].TagID)
}

func TestMakeRequestsMRA(t *testing.T) {
	p := buildAdapter(t, testProfile(config.ArchitectureMRA))

	requests, errs := p.MakeRequests(testSlots(), &partners.ExtraRequestInfo{})

	assert.Empty(t, errs)
	require.Len(t, requests, 2)
	assert.Equal(t, "_id-1", requests[0].CallbackID)
	assert.Equal(t, "_id-2", requests[1].CallbackID)
	assert.Equal(t, "x1", requests[0].Slots[0].XSlotName)
	assert.Equal(t, "x2", requests[1].Slots[0].XSlotName)
}

func TestMakeRequestsSkipsUnknownSlots(t *testing.T) {
	p := buildAdapter(t, testProfile(config.ArchitectureSRA))
	slots := append(testSlots(), &parcel.SlotDescriptor{HTSlot: parcel.NewHTSlot("side", "s"), XSlotName: "missing"})

	requests, errs := p.MakeRequests(slots, nil)

	require.Len(t, requests, 1)
	assert.Len(t, requests[0].Slots, 2)
	require.Len(t, errs, 1)
	assert.IsType(t, &errortypes.BadInput{}, errs[0])
}

func TestMakeRequestsNoValidSlot(t *testing.T) {
	p := buildAdapter(t, testProfile(config.ArchitectureSRA))

	requests, errs := p.MakeRequests([]*parcel.SlotDescriptor{{HTSlot: parcel.NewHTSlot("side", "s")}}, nil)

	assert.Empty(t, requests)
	require.Len(t, errs, 2)
	assert.IsType(t, &errortypes.FailedToRequestBids{}, errs[1])
}

func TestParseResponse(t *testing.T) {
	p := buildAdapter(t, testProfile(config.ArchitectureSRA))
	requests, _ := p.MakeRequests(testSlots(), nil)
	request := requests[0]
	payload := []byte(`{
		"id": "_id-1",
		"seatbid": [{"bid": [
			{"id": "b1", "impid": "1", "price": 2.5, "w": 300, "h": 250},
			{"id": "b2", "impid": "2", "price": 1.234, "dealid": "deal-9"},
			{"id": "b3", "impid": "2", "price": 0}
		]}]
	}`)
	acc := parcel.NewAccumulator(parcel.TargetingSlot)

	require.NoError(t, p.ParseResponse("session-1", request, payload, acc))

	parcels := acc.Parcels()
	require.Len(t, parcels, 2)

	assert.Equal(t, "header-1", parcels[0].HTSlotName())
	assert.Equal(t, "x1", parcels[0].XSlotName)
	assert.Equal(t, "gpt-top", parcels[0].Ref)
	assert.Equal(t, map[string]interface{}{"tag_id": "top"}, parcels[0].XSlotRef)
	assert.Equal(t, map[string][]string{
		"ix_ortb_id":  {"b1"},
		"ix_ortb_cpm": {"300x250_250"},
	}, parcels[0].Targeting)

	assert.Equal(t, "footer-1", parcels[1].HTSlotName())
	assert.Equal(t, "728x90", parcels[1].Size)
	assert.Equal(t, "deal-9", parcels[1].DealID)
	assert.Equal(t, map[string][]string{
		"ix_ortb_id":     {"b2"},
		"ix_ortb_cpm":    {"728x90_123"},
		"ix_ortb_dealid": {"728x90_deal-9"},
	}, parcels[1].Targeting)
}

func TestParseResponseErrors(t *testing.T) {
	p := buildAdapter(t, testProfile(config.ArchitectureSRA))
	requests, _ := p.MakeRequests(testSlots(), nil)

	testCases := []struct {
		description string
		payload     string
		parcels     int
	}{
		{"not json", `not json`, 0},
		{"other request", `{"id":"_other"}`, 0},
		{"unknown imp after a good bid", `{"seatbid":[{"bid":[{"id":"b1","impid":"1","price":1},{"id":"b2","impid":"9","price":1}]}]}`, 1},
	}

	for _, test := range testCases {
		acc := parcel.NewAccumulator(parcel.TargetingSlot)
		err := p.ParseResponse("s", requests[0], []byte(test.payload), acc)
		assert.IsType(t, &errortypes.BadServerResponse{}, err, test.description)
		assert.Equal(t, test.parcels, len(acc.Parcels()), test.description)
	}
}

func TestParseResponseNoBids(t *testing.T) {
	p := buildAdapter(t, testProfile(config.ArchitectureSRA))
	requests, _ := p.MakeRequests(testSlots(), nil)
	acc := parcel.NewAccumulator(parcel.TargetingSlot)

	require.NoError(t, p.ParseResponse("s", requests[0], []byte(`{"bids":[]}`), acc))
	assert.Zero(t, len(acc.Parcels()))
}

func TestCustomTargetingKeys(t *testing.T) {
	profile := testProfile(config.ArchitectureSRA)
	profile.TargetingKeys = map[string]string{"id": "ix_grape_id", "om": "ix_grape_cpm"}
	p := buildAdapter(t, profile)
	requests, _ := p.MakeRequests(testSlots()[:1], nil)
	acc := parcel.NewAccumulator(parcel.TargetingSlot)

	require.NoError(t, p.ParseResponse("s", requests[0], []byte(`{"seatbid":[{"bid":[{"id":"b1","impid":"1","price":1,"w":300,"h":600}]}]}`), acc))

	assert.Equal(t, map[string][]string{"ix_grape_id": {"b1"}, "ix_grape_cpm": {"300x600_100"}}, acc.Parcels()[0].Targeting)
}
