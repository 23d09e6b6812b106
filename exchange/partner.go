package exchange

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/glog"
	"github.com/prebid/prebid-headertag/analytics"
	"github.com/prebid/prebid-headertag/config"
	"github.com/prebid/prebid-headertag/errortypes"
	"github.com/prebid/prebid-headertag/metrics"
	metricsConf "github.com/prebid/prebid-headertag/metrics/config"
	"github.com/prebid/prebid-headertag/network"
	"github.com/prebid/prebid-headertag/parcel"
	"github.com/prebid/prebid-headertag/partners"
	"github.com/prebid/prebid-headertag/util/uuidutil"
	"github.com/xorcare/pointer"
)

// AdaptedPartner runs the request lifecycle around a partners.Partner.
//
// Each request is dispatched in its own goroutine and reports, in order, partner_request_sent,
// the request stats, partner_request_complete and the outcome stats before its Demand settles.
type AdaptedPartner interface {
	// Retrieve builds the requests for slots and dispatches all of them concurrently.
	// The errors explain slots, or whole cycles, for which no request was made.
	Retrieve(ctx context.Context, sessionID string, slots []*parcel.SlotDescriptor, reqInfo *partners.ExtraRequestInfo) ([]*Demand, []error)
	// Dispatch sends one request and returns its pending demand.
	Dispatch(ctx context.Context, sessionID string, req *partners.RequestData, reqInfo *partners.ExtraRequestInfo) *Demand
	// Profile is the profile the partner currently runs with.
	Profile() config.Partner
	// Reload rebuilds the partner with a new profile. The old profile stays in use on error.
	Reload(profile config.Partner) error
}

// PartnerDeps are the services shared by every adapted partner.
type PartnerDeps struct {
	Transport   network.Transport
	Bus         analytics.Bus
	Metrics     metrics.MetricsEngine
	Clock       clock.Clock
	IDGenerator uuidutil.Generator
	// DefaultTimeout applies to profiles without timeout_ms.
	DefaultTimeout time.Duration
	// Debug adds the request and the parcels to the partner request events.
	Debug bool
}

// partnerState is everything derived from one profile. It is replaced as a whole on reload.
type partnerState struct {
	profile       config.Partner
	partner       partners.Partner
	targetingType parcel.TargetingType
	stats         statsEmitter
	timeout       time.Duration
	expiry        time.Duration
	limiter       *slotLimiter
}

type adaptedPartner struct {
	builder partners.Builder
	deps    PartnerDeps
	state   atomic.Pointer[partnerState]
}

// AdaptPartner builds the partner from its profile and wraps it in the request lifecycle.
func AdaptPartner(builder partners.Builder, profile config.Partner, deps PartnerDeps) (AdaptedPartner, error) {
	if deps.Transport == nil {
		return nil, fmt.Errorf("partner %s: no transport", profile.PartnerID)
	}
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.Bus == nil {
		deps.Bus = analytics.NewEventBus(deps.Clock)
	}
	if deps.Metrics == nil {
		deps.Metrics = &metricsConf.NilMetricsEngine{}
	}
	if deps.IDGenerator == nil {
		deps.IDGenerator = uuidutil.RandomGenerator{}
	}
	p := &adaptedPartner{
		builder: builder,
		deps:    deps,
	}
	if err := p.Reload(profile); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *adaptedPartner) Profile() config.Partner {
	return p.state.Load().profile
}

func (p *adaptedPartner) Reload(profile config.Partner) error {
	targetingType, err := parcel.ParseTargetingType(profile.TargetingType)
	if err != nil {
		return fmt.Errorf("partner %s: %v", profile.PartnerID, err)
	}
	if err := profile.ValidateEndpoint(); err != nil {
		return fmt.Errorf("partner %s: %v", profile.PartnerID, err)
	}
	partner, err := p.builder(profile, partners.Deps{IDGenerator: p.deps.IDGenerator})
	if err != nil {
		return err
	}

	state := &partnerState{
		profile:       profile,
		partner:       partner,
		targetingType: targetingType,
		stats:         newStatsEmitter(profile, targetingType, p.deps.Bus),
		timeout:       p.deps.DefaultTimeout,
		expiry:        profile.Features.DemandExpiry.Duration(),
	}
	if profile.TimeoutMS > 0 {
		state.timeout = time.Duration(profile.TimeoutMS) * time.Millisecond
	}
	if interval := profile.Features.RateLimiting.Duration(); interval > 0 {
		state.limiter = newSlotLimiter(interval, p.deps.Clock)
		if old := p.state.Load(); old != nil && old.limiter != nil && old.limiter.interval == interval {
			state.limiter = old.limiter
		}
	}
	p.state.Store(state)
	return nil
}

func (p *adaptedPartner) Retrieve(ctx context.Context, sessionID string, slots []*parcel.SlotDescriptor, reqInfo *partners.ExtraRequestInfo) ([]*Demand, []error) {
	state := p.state.Load()
	if state.profile.Disabled {
		return nil, []error{&errortypes.PartnerDisabled{Message: fmt.Sprintf("partner %s is disabled", state.profile.PartnerID)}}
	}

	if state.limiter != nil {
		var throttled int
		slots, throttled = state.limiter.filter(slots)
		if throttled > 0 {
			p.deps.Metrics.RecordSlotsThrottled(state.profile.PartnerID, throttled)
		}
		if len(slots) == 0 {
			return nil, []error{&errortypes.Warning{
				WarningCode: errortypes.SlotRateLimitedWarningCode,
				Message:     fmt.Sprintf("partner %s: every slot is rate limited", state.profile.PartnerID),
			}}
		}
	}

	requests, errs := state.partner.MakeRequests(slots, reqInfo)
	demands := make([]*Demand, 0, len(requests))
	for _, req := range requests {
		demands = append(demands, p.dispatch(ctx, state, sessionID, req, reqInfo))
	}
	return demands, errs
}

func (p *adaptedPartner) Dispatch(ctx context.Context, sessionID string, req *partners.RequestData, reqInfo *partners.ExtraRequestInfo) *Demand {
	return p.dispatch(ctx, p.state.Load(), sessionID, req, reqInfo)
}

func (p *adaptedPartner) dispatch(ctx context.Context, state *partnerState, sessionID string, req *partners.RequestData, reqInfo *partners.ExtraRequestInfo) *Demand {
	demand := newDemand(req)
	stats := state.stats.begin(sessionID, req)

	p.deps.Bus.Emit(analytics.TopicPartnerRequestSent, p.requestEvent(state, "", req, nil))
	stats.emit(statsRequest)

	go p.await(ctx, state, sessionID, req, reqInfo, stats, demand)
	return demand
}

// await runs PENDING to RESOLVED for one request.
func (p *adaptedPartner) await(ctx context.Context, state *partnerState, sessionID string, req *partners.RequestData, reqInfo *partners.ExtraRequestInfo, stats requestStats, demand *Demand) {
	start := p.deps.Clock.Now()
	result := p.deps.Transport.Send(ctx, p.networkRequest(ctx, state, sessionID, req, reqInfo))

	labels := metrics.PartnerLabels{
		Partner:       state.profile.PartnerID,
		TargetingType: metrics.TargetingType(state.targetingType),
	}

	var parcels []*parcel.Parcel
	switch result.Outcome {
	case network.OutcomeSuccess:
		acc := parcel.NewAccumulator(state.targetingType)
		stack, err := p.parse(state, sessionID, req, result.Body, acc)
		parcels = acc.Parcels()
		p.applyExpiry(state, parcels)
		if err != nil {
			glog.Warningf("%s failed to parse the response to %s: %v", state.profile.PartnerID, req.CallbackID, err)
			p.deps.Bus.Emit(analytics.TopicInternalError, analytics.InternalErrorEvent{
				Message: fmt.Sprintf("%s error parsing demand: %v", state.profile.PartnerID, err),
				Stack:   stack,
			})
			stats.emit(statsError)
			p.deps.Bus.Emit(analytics.TopicPartnerRequestComplete, p.requestEvent(state, analytics.StatusError, req, parcels))
			p.deps.Metrics.RecordParseError(state.profile.PartnerID)
			labels.Outcome = metrics.OutcomeParseError
		} else {
			p.deps.Bus.Emit(analytics.TopicPartnerRequestComplete, p.requestEvent(state, analytics.StatusSuccess, req, parcels))
			labels.Outcome = metrics.OutcomeSuccess
		}

	case network.OutcomeTimeout:
		p.deps.Bus.Emit(analytics.TopicPartnerRequestComplete, p.requestEvent(state, analytics.StatusTimeout, req, nil))
		stats.emit(statsTimeout)
		labels.Outcome = metrics.OutcomeTimeout

	default:
		glog.Warningf("%s request %s failed: %v", state.profile.PartnerID, req.CallbackID, result.Err)
		p.deps.Bus.Emit(analytics.TopicPartnerRequestComplete, p.requestEvent(state, analytics.StatusError, req, nil))
		stats.emit(statsError)
		labels.Outcome = metrics.OutcomeError
	}

	p.deps.Metrics.RecordPartnerRequest(labels)
	p.deps.Metrics.RecordPartnerTime(labels, p.deps.Clock.Since(start))
	p.deps.Metrics.RecordParcels(labels, len(parcels))
	demand.resolve(parcels)
}

// parse runs the partner parser. A panicking parser is reported like a malformed response.
func (p *adaptedPartner) parse(state *partnerState, sessionID string, req *partners.RequestData, payload []byte, acc *parcel.Accumulator) (stack string, err error) {
	defer func() {
		if r := recover(); r != nil {
			stack = string(debug.Stack())
			err = &errortypes.BadServerResponse{Message: fmt.Sprintf("parser panicked: %v", r)}
		}
	}()
	return "", state.partner.ParseResponse(sessionID, req, payload, acc)
}

func (p *adaptedPartner) applyExpiry(state *partnerState, parcels []*parcel.Parcel) {
	if state.expiry <= 0 {
		return
	}
	expiresAt := p.deps.Clock.Now().Add(state.expiry)
	for _, pcl := range parcels {
		pcl.ExpiresAt = pointer.Time(expiresAt)
	}
}

// networkRequest bounds the partner timeout by the caller deadline.
func (p *adaptedPartner) networkRequest(ctx context.Context, state *partnerState, sessionID string, req *partners.RequestData, reqInfo *partners.ExtraRequestInfo) *network.Request {
	timeout := state.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := deadline.Sub(p.deps.Clock.Now()); remaining < timeout || timeout <= 0 {
			timeout = remaining
		}
	}

	netReq := &network.Request{
		PartnerID:       state.profile.PartnerID,
		URL:             req.URL,
		Method:          req.Method,
		Data:            req.Data,
		Body:            req.Body,
		Headers:         req.Headers,
		Timeout:         timeout,
		CorrelationID:   req.CallbackID,
		SessionID:       sessionID,
		WithCredentials: state.profile.WithCredentials,
	}
	if reqInfo != nil && state.profile.WithCredentials {
		netReq.Cookies = reqInfo.Cookies
	}
	return netReq
}

type debugRequest struct {
	CallbackID string                 `json:"callbackId"`
	Method     string                 `json:"method"`
	URL        string                 `json:"url"`
	Data       map[string]interface{} `json:"data,omitempty"`
	Body       string                 `json:"body,omitempty"`
	XSlots     []string               `json:"xSlots,omitempty"`
}

func (p *adaptedPartner) requestEvent(state *partnerState, status string, req *partners.RequestData, parcels []*parcel.Parcel) analytics.PartnerRequestEvent {
	event := analytics.PartnerRequestEvent{
		Partner: state.profile.PartnerID,
		Status:  status,
	}
	if !p.deps.Debug {
		return event
	}

	dbg := debugRequest{
		CallbackID: req.CallbackID,
		Method:     req.Method,
		URL:        req.URL,
		Data:       req.Data,
		Body:       string(req.Body),
	}
	for _, slot := range req.Slots {
		if slot.XSlotName != "" {
			dbg.XSlots = append(dbg.XSlots, slot.XSlotName)
		}
	}
	event.Request = dbg
	if parcels == nil {
		parcels = []*parcel.Parcel{}
	}
	event.Parcels = parcels
	return event
}
