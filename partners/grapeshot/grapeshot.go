package grapeshot

import (
	"fmt"
	"net/http"

	"github.com/buger/jsonparser"
	"github.com/prebid/prebid-headertag/config"
	"github.com/prebid/prebid-headertag/errortypes"
	"github.com/prebid/prebid-headertag/parcel"
	"github.com/prebid/prebid-headertag/partners"
	"github.com/prebid/prebid-headertag/util/uuidutil"
)

const defaultCategoryKey = "gs_cat"

type adapter struct {
	profile     config.Partner
	idGenerator uuidutil.Generator
	categoryKey string
}

// Builder builds a new instance of the Grapeshot page classification partner.
func Builder(profile config.Partner, deps partners.Deps) (partners.Partner, error) {
	if profile.TargetingType != string(parcel.TargetingPage) {
		return nil, fmt.Errorf("partner %s only supports page targeting", profile.PartnerID)
	}
	return &adapter{
		profile:     profile,
		idGenerator: deps.IDGenerator,
		categoryKey: profile.TargetingKey("cat", defaultCategoryKey),
	}, nil
}

// MakeRequests asks for the channels of the page. The slots do not change the request: the
// classification applies to the whole page.
func (a *adapter) MakeRequests(slots []*parcel.SlotDescriptor, reqInfo *partners.ExtraRequestInfo) ([]*partners.RequestData, []error) {
	if len(slots) == 0 {
		return nil, []error{&errortypes.FailedToRequestBids{Message: "no slots to classify"}}
	}
	if reqInfo == nil || reqInfo.PageURL == "" {
		return nil, []error{&errortypes.FailedToRequestBids{Message: "grapeshot needs the page url"}}
	}

	callbackID, err := partners.NewCallbackID(a.idGenerator)
	if err != nil {
		return nil, []error{&errortypes.FailedToRequestBids{Message: err.Error()}}
	}

	method := a.profile.Method
	if method == "" {
		method = http.MethodGet
	}

	return []*partners.RequestData{{
		Method: method,
		URL:    a.profile.Endpoint,
		Data: map[string]interface{}{
			"url": reqInfo.PageURL,
			"cb":  callbackID,
		},
		CallbackID: callbackID,
		Slots:      slots,
	}}, nil
}

// ParseResponse reads {"status":"ok","channels":[{"name":..,"score":..}]} into one page parcel.
func (a *adapter) ParseResponse(sessionID string, request *partners.RequestData, payload []byte, acc *parcel.Accumulator) error {
	status, err := jsonparser.GetString(payload, "status")
	if err != nil {
		return &errortypes.BadServerResponse{Message: fmt.Sprintf("unexpected grapeshot response: %v", err)}
	}
	if status != "ok" {
		return &errortypes.BadServerResponse{Message: fmt.Sprintf("grapeshot returned status %q", status)}
	}

	var channels []string
	var channelErr error
	_, err = jsonparser.ArrayEach(payload, func(value []byte, dataType jsonparser.ValueType, offset int, err error) {
		if channelErr != nil {
			return
		}
		if dataType != jsonparser.Object {
			channelErr = fmt.Errorf("channel at offset %d is not an object", offset)
			return
		}
		name, nameErr := jsonparser.GetString(value, "name")
		if nameErr != nil {
			channelErr = fmt.Errorf("channel at offset %d has no name", offset)
			return
		}
		if name != "" {
			channels = append(channels, name)
		}
	}, "channels")
	if err != nil && err != jsonparser.KeyPathNotFoundError {
		return &errortypes.BadServerResponse{Message: fmt.Sprintf("unexpected grapeshot channels: %v", err)}
	}
	if channelErr != nil {
		return &errortypes.BadServerResponse{Message: channelErr.Error()}
	}
	if len(channels) == 0 {
		return nil
	}

	return acc.Append(&parcel.Parcel{
		PartnerID:      a.profile.PartnerID,
		PartnerStatsID: a.profile.StatsID,
		TargetingType:  parcel.TargetingPage,
		Targeting: map[string][]string{
			a.categoryKey: channels,
		},
	})
}
