package partners

import (
	"fmt"
	"net/http"

	"github.com/blang/semver"
	"github.com/prebid/prebid-headertag/config"
	"github.com/prebid/prebid-headertag/parcel"
	"github.com/prebid/prebid-headertag/util/uuidutil"
)

// Partner is the vendor specific half of a header tag partner. The exchange owns the request
// lifecycle around it.
type Partner interface {
	// MakeRequests turns the slots of one retrieval cycle into the requests to send.
	//
	// Each request carries a new CallbackID. The errors describe slots which could not be
	// requested. If no request can be built, return no requests and at least one
	// *errortypes.FailedToRequestBids.
	MakeRequests(slots []*parcel.SlotDescriptor, reqInfo *ExtraRequestInfo) ([]*RequestData, []error)

	// ParseResponse reads a successful response and appends the resulting parcels to acc.
	//
	// Parcels appended before an error are kept. A malformed response must be reported as an
	// *errortypes.BadServerResponse.
	ParseResponse(sessionID string, request *RequestData, payload []byte, acc *parcel.Accumulator) error
}

// RequestData describes one outbound partner call. It is never modified once MakeRequests
// returns it.
type RequestData struct {
	Method string
	URL    string
	// Data is query encoded for GET requests and sent as JSON otherwise, unless Body is set.
	Data    map[string]interface{}
	Body    []byte
	Headers http.Header
	// CallbackID correlates the request with its outcome and analytics.
	CallbackID string
	// Slots are the descriptors this request asks demand for.
	Slots []*parcel.SlotDescriptor
}

// ExtraRequestInfo carries what the wrapper knows about the page.
type ExtraRequestInfo struct {
	SessionID string
	PageURL   string
	UserAgent string
	IP        string
	Cookies   []*http.Cookie
}

// Deps are the shared services a partner is built with.
type Deps struct {
	IDGenerator uuidutil.Generator
}

// Builder builds a partner from its profile.
type Builder func(profile config.Partner, deps Deps) (Partner, error)

// NewCallbackID returns an id for a new request. It has the same "_" prefix as wrapper
// request ids.
func NewCallbackID(gen uuidutil.Generator) (string, error) {
	id, err := gen.Generate()
	if err != nil {
		return "", fmt.Errorf("failed to generate callback id: %v", err)
	}
	return "_" + id, nil
}

// ParseVersion validates the semantic version of a partner profile.
func ParseVersion(profile config.Partner) (semver.Version, error) {
	if profile.Version == "" {
		return semver.Version{}, fmt.Errorf("partner %s has no version", profile.PartnerID)
	}
	version, err := semver.Parse(profile.Version)
	if err != nil {
		return semver.Version{}, fmt.Errorf("partner %s has an invalid version %q: %v", profile.PartnerID, profile.Version, err)
	}
	return version, nil
}
