package genericortb

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/mxmCherry/openrtb"
	"github.com/prebid/prebid-headertag/config"
	"github.com/prebid/prebid-headertag/errortypes"
	"github.com/prebid/prebid-headertag/parcel"
	"github.com/prebid/prebid-headertag/partners"
	"github.com/prebid/prebid-headertag/util/uuidutil"
	"github.com/xeipuuv/gojsonschema"
	"github.com/xorcare/pointer"
)

//go:embed xslot_params.json
var xSlotSchemaJSON string

var xSlotSchema = mustLoadSchema(xSlotSchemaJSON)

func mustLoadSchema(raw string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(raw))
	if err != nil {
		panic(fmt.Sprintf("genericortb: bad xSlot schema: %v", err))
	}
	return schema
}

// Default targeting keys, by key role.
var defaultTargetingKeys = map[string]string{
	"id":   "ix_ortb_id",
	"om":   "ix_ortb_cpm",
	"pm":   "ix_ortb_cpm",
	"pmid": "ix_ortb_dealid",
}

type adapter struct {
	profile     config.Partner
	idGenerator uuidutil.Generator
	sra         bool
}

// xSlotParams are the OpenRTB settings of one xSlot.
type xSlotParams struct {
	TagID    string      `json:"tag_id"`
	Sizes    [][2]uint64 `json:"sizes"`
	BidFloor float64     `json:"bid_floor"`
}

type impExt struct {
	Bidder map[string]interface{} `json:"bidder"`
}

// Builder builds a new instance of the generic OpenRTB 2.5 slot partner.
func Builder(profile config.Partner, deps partners.Deps) (partners.Partner, error) {
	if profile.TargetingType != string(parcel.TargetingSlot) {
		return nil, fmt.Errorf("partner %s only supports slot targeting", profile.PartnerID)
	}
	for name, params := range profile.XSlots {
		if err := validateXSlotParams(params); err != nil {
			return nil, fmt.Errorf("partner %s xSlot %s: %v", profile.PartnerID, name, err)
		}
	}
	return &adapter{
		profile:     profile,
		idGenerator: deps.IDGenerator,
		sra:         profile.Architecture != config.ArchitectureMRA,
	}, nil
}

func validateXSlotParams(raw map[string]interface{}) error {
	result, err := xSlotSchema.Validate(gojsonschema.NewGoLoader(raw))
	if err != nil {
		return err
	}
	if !result.Valid() {
		errBuilder := bytes.NewBuffer(make([]byte, 0, 300))
		for i, err := range result.Errors() {
			if i > 0 {
				errBuilder.WriteString("; ")
			}
			errBuilder.WriteString(err.String())
		}
		return errors.New(errBuilder.String())
	}
	return nil
}

func parseXSlotParams(raw map[string]interface{}) (xSlotParams, error) {
	var params xSlotParams
	b, err := json.Marshal(raw)
	if err != nil {
		return params, err
	}
	err = json.Unmarshal(b, &params)
	return params, err
}

// MakeRequests builds one request for all slots (SRA) or one per slot (MRA).
func (a *adapter) MakeRequests(slots []*parcel.SlotDescriptor, reqInfo *partners.ExtraRequestInfo) ([]*partners.RequestData, []error) {
	var errs []error
	valid := make([]*parcel.SlotDescriptor, 0, len(slots))
	for _, slot := range slots {
		if slot == nil || slot.HTSlot == nil || slot.XSlotName == "" {
			errs = append(errs, &errortypes.BadInput{Message: "slot descriptor without htSlot or xSlot"})
			continue
		}
		if _, ok := a.profile.XSlotParams(slot.XSlotName); !ok {
			errs = append(errs, &errortypes.BadInput{Message: fmt.Sprintf("xSlot %s is not configured", slot.XSlotName)})
			continue
		}
		valid = append(valid, slot)
	}
	if len(valid) == 0 {
		return nil, append(errs, &errortypes.FailedToRequestBids{Message: "no slot could be requested"})
	}

	var groups [][]*parcel.SlotDescriptor
	if a.sra {
		groups = [][]*parcel.SlotDescriptor{valid}
	} else {
		for _, slot := range valid {
			groups = append(groups, []*parcel.SlotDescriptor{slot})
		}
	}

	requests := make([]*partners.RequestData, 0, len(groups))
	for _, group := range groups {
		request, err := a.makeRequest(group, reqInfo)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		requests = append(requests, request)
	}
	if len(requests) == 0 {
		errs = append(errs, &errortypes.FailedToRequestBids{Message: "no request could be built"})
	}
	return requests, errs
}

func (a *adapter) makeRequest(slots []*parcel.SlotDescriptor, reqInfo *partners.ExtraRequestInfo) (*partners.RequestData, error) {
	callbackID, err := partners.NewCallbackID(a.idGenerator)
	if err != nil {
		return nil, &errortypes.FailedToRequestBids{Message: err.Error()}
	}

	bidRequest := openrtb.BidRequest{
		ID:  callbackID,
		Imp: make([]openrtb.Imp, 0, len(slots)),
		Cur: []string{"USD"},
	}
	if a.profile.TimeoutMS > 0 {
		bidRequest.TMax = int64(a.profile.TimeoutMS)
	}
	if reqInfo != nil {
		if reqInfo.PageURL != "" {
			bidRequest.Site = &openrtb.Site{Page: reqInfo.PageURL}
		}
		if reqInfo.UserAgent != "" || reqInfo.IP != "" {
			bidRequest.Device = &openrtb.Device{UA: reqInfo.UserAgent, IP: reqInfo.IP}
		}
	}

	for i, slot := range slots {
		raw, _ := a.profile.XSlotParams(slot.XSlotName)
		params, err := parseXSlotParams(raw)
		if err != nil {
			return nil, &errortypes.BadInput{Message: fmt.Sprintf("xSlot %s: %v", slot.XSlotName, err)}
		}
		ext, err := json.Marshal(impExt{Bidder: raw})
		if err != nil {
			return nil, &errortypes.BadInput{Message: fmt.Sprintf("xSlot %s: %v", slot.XSlotName, err)}
		}
		bidRequest.Imp = append(bidRequest.Imp, openrtb.Imp{
			ID:       impID(i),
			TagID:    params.TagID,
			BidFloor: params.BidFloor,
			Banner:   makeBanner(params.Sizes),
			Ext:      ext,
		})
	}

	body, err := json.Marshal(bidRequest)
	if err != nil {
		return nil, &errortypes.FailedToRequestBids{Message: err.Error()}
	}

	headers := http.Header{}
	headers.Add("Content-Type", "application/json;charset=utf-8")
	headers.Add("Accept", "application/json")
	headers.Add("x-openrtb-version", "2.5")

	method := a.profile.Method
	if method == "" || method == http.MethodGet {
		method = http.MethodPost
	}

	return &partners.RequestData{
		Method:     method,
		URL:        a.profile.Endpoint,
		Body:       body,
		Headers:    headers,
		CallbackID: callbackID,
		Slots:      slots,
	}, nil
}

func impID(index int) string {
	return strconv.Itoa(index + 1)
}

func makeBanner(sizes [][2]uint64) *openrtb.Banner {
	formats := make([]openrtb.Format, 0, len(sizes))
	for _, size := range sizes {
		formats = append(formats, openrtb.Format{W: size[0], H: size[1]})
	}
	return &openrtb.Banner{
		Format: formats,
		W:      pointer.Uint64(sizes[0][0]),
		H:      pointer.Uint64(sizes[0][1]),
	}
}

// ParseResponse turns every bid into a slot parcel for the slot its imp was built from.
func (a *adapter) ParseResponse(sessionID string, request *partners.RequestData, payload []byte, acc *parcel.Accumulator) error {
	var bidResponse openrtb.BidResponse
	if err := json.Unmarshal(payload, &bidResponse); err != nil {
		return &errortypes.BadServerResponse{Message: fmt.Sprintf("bad server response: %v", err)}
	}
	if bidResponse.ID != "" && bidResponse.ID != request.CallbackID {
		return &errortypes.BadServerResponse{Message: fmt.Sprintf("response id %s does not match request %s", bidResponse.ID, request.CallbackID)}
	}

	slotsByImp := make(map[string]*parcel.SlotDescriptor, len(request.Slots))
	for i, slot := range request.Slots {
		slotsByImp[impID(i)] = slot
	}

	for _, seatBid := range bidResponse.SeatBid {
		for i := range seatBid.Bid {
			bid := &seatBid.Bid[i]
			slot, ok := slotsByImp[bid.ImpID]
			if !ok {
				return &errortypes.BadServerResponse{Message: fmt.Sprintf("bid %s references unknown imp %s", bid.ID, bid.ImpID)}
			}
			if bid.Price <= 0 {
				continue
			}
			if err := acc.Append(a.makeParcel(slot, bid)); err != nil {
				return &errortypes.BadServerResponse{Message: err.Error()}
			}
		}
	}
	return nil
}

func (a *adapter) makeParcel(slot *parcel.SlotDescriptor, bid *openrtb.Bid) *parcel.Parcel {
	size := fmt.Sprintf("%dx%d", bid.W, bid.H)
	if bid.W == 0 || bid.H == 0 {
		if raw, ok := a.profile.XSlotParams(slot.XSlotName); ok {
			if params, err := parseXSlotParams(raw); err == nil {
				size = fmt.Sprintf("%dx%d", params.Sizes[0][0], params.Sizes[0][1])
			}
		}
	}
	price := strconv.FormatInt(int64(math.Round(bid.Price*100)), 10)

	targeting := map[string][]string{
		a.key("id"): {bid.ID},
	}
	if bid.DealID == "" {
		targeting[a.key("om")] = []string{size + "_" + price}
	} else {
		targeting[a.key("pm")] = []string{size + "_" + price}
		targeting[a.key("pmid")] = []string{size + "_" + bid.DealID}
	}

	return &parcel.Parcel{
		PartnerID:      a.profile.PartnerID,
		PartnerStatsID: a.profile.StatsID,
		TargetingType:  parcel.TargetingSlot,
		Targeting:      targeting,
		HTSlot:         slot.HTSlot,
		XSlotName:      slot.XSlotName,
		XSlotRef:       slot.XSlotRef,
		Ref:            slot.Ref,
		Price:          bid.Price,
		Size:           size,
		DealID:         bid.DealID,
	}
}

func (a *adapter) key(role string) string {
	return a.profile.TargetingKey(role, defaultTargetingKeys[role])
}
