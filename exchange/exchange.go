package exchange

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"
	"sort"
	"sync"

	"github.com/golang/glog"
	"github.com/prebid/prebid-headertag/config"
	"github.com/prebid/prebid-headertag/errortypes"
	"github.com/prebid/prebid-headertag/parcel"
	"github.com/prebid/prebid-headertag/partners"
	"github.com/prebid/prebid-headertag/util/uuidutil"
)

// SlotRequest is one wrapper slot of a retrieval call.
type SlotRequest struct {
	HTSlot parcel.HTSlot
	Ref    interface{}
}

// RetrievalRequest is what the wrapper knows about one retrieval call.
type RetrievalRequest struct {
	PageURL   string
	UserAgent string
	IP        string
	Cookies   []*http.Cookie
	Slots     []SlotRequest
}

// Session is one retrieval cycle across every partner. It is discarded once Parcels are
// handed to the caller.
type Session struct {
	ID       string
	Requests []*partners.RequestData
	Parcels  []*parcel.Parcel
}

// Exchange fans a retrieval call out to every enabled partner and gathers their demand.
type Exchange struct {
	partners    map[string]AdaptedPartner
	names       []string
	idGenerator uuidutil.Generator
}

func NewExchange(adapted map[string]AdaptedPartner, gen uuidutil.Generator) *Exchange {
	names := make([]string, 0, len(adapted))
	for name := range adapted {
		names = append(names, name)
	}
	sort.Strings(names)
	if gen == nil {
		gen = uuidutil.RandomGenerator{}
	}
	return &Exchange{
		partners:    adapted,
		names:       names,
		idGenerator: gen,
	}
}

// Partners returns the adapted partners by profile name.
func (e *Exchange) Partners() map[string]AdaptedPartner {
	return e.partners
}

// Retrieve runs one session. It returns once every dispatched request settled, or once ctx
// ends. The errors never prevent demand from other partners.
func (e *Exchange) Retrieve(ctx context.Context, req *RetrievalRequest) (*Session, []error) {
	if len(req.Slots) == 0 {
		return nil, []error{&errortypes.BadInput{Message: "no slots to retrieve demand for"}}
	}
	sessionID, err := e.idGenerator.Generate()
	if err != nil {
		return nil, []error{fmt.Errorf("failed to generate a session id: %v", err)}
	}
	session := &Session{ID: sessionID}
	reqInfo := &partners.ExtraRequestInfo{
		SessionID: sessionID,
		PageURL:   req.PageURL,
		UserAgent: req.UserAgent,
		IP:        req.IP,
		Cookies:   req.Cookies,
	}

	type partnerResult struct {
		demands []*Demand
		errs    []error
	}
	results := make([]partnerResult, len(e.names))
	var warnings []error
	var wg sync.WaitGroup
	for i, name := range e.names {
		partner := e.partners[name]
		profile := partner.Profile()
		if profile.Disabled {
			continue
		}
		slots, unmapped := expandSlots(req.Slots, profile)
		warnings = append(warnings, unmapped...)
		if len(slots) == 0 {
			continue
		}
		wg.Add(1)
		go func(i int, name string, partner AdaptedPartner) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					glog.Errorf("Retrieval recovered panic from partner %s: %v. Stack trace is: %v", name, r, string(debug.Stack()))
					results[i].errs = append(results[i].errs, fmt.Errorf("partner %s failed to build requests", name))
				}
			}()
			results[i].demands, results[i].errs = partner.Retrieve(ctx, sessionID, slots, reqInfo)
		}(i, name, partner)
	}
	wg.Wait()

	var demands []*Demand
	errs := warnings
	for _, result := range results {
		demands = append(demands, result.demands...)
		errs = append(errs, result.errs...)
	}
	for _, d := range demands {
		session.Requests = append(session.Requests, d.Request())
	}
	session.Parcels = Collect(ctx, demands)
	return session, errs
}

// expandSlots turns wrapper slots into the descriptors a partner is given. Slot partners get
// one descriptor per mapped xSlot and skip unmapped slots with a warning. Page partners get
// every slot.
func expandSlots(slots []SlotRequest, profile config.Partner) ([]*parcel.SlotDescriptor, []error) {
	descriptors := make([]*parcel.SlotDescriptor, 0, len(slots))
	var warnings []error
	for _, slot := range slots {
		if slot.HTSlot == nil {
			continue
		}
		if profile.TargetingType == string(parcel.TargetingPage) {
			descriptors = append(descriptors, &parcel.SlotDescriptor{HTSlot: slot.HTSlot, Ref: slot.Ref})
			continue
		}
		xSlotNames := profile.XSlotsFor(slot.HTSlot.Name())
		if len(xSlotNames) == 0 {
			warnings = append(warnings, &errortypes.Warning{
				WarningCode: errortypes.UnmappedSlotWarningCode,
				Message:     fmt.Sprintf("partner %s has no xSlot mapped to htSlot %s", profile.PartnerID, slot.HTSlot.Name()),
			})
			continue
		}
		for _, xSlotName := range xSlotNames {
			params, _ := profile.XSlotParams(xSlotName)
			descriptors = append(descriptors, &parcel.SlotDescriptor{
				HTSlot:    slot.HTSlot,
				Ref:       slot.Ref,
				XSlotName: xSlotName,
				XSlotRef:  params,
			})
		}
	}
	return descriptors, warnings
}
