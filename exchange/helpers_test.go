package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prebid/prebid-headertag/analytics"
	"github.com/prebid/prebid-headertag/config"
	"github.com/prebid/prebid-headertag/errortypes"
	"github.com/prebid/prebid-headertag/network"
	"github.com/prebid/prebid-headertag/parcel"
	"github.com/prebid/prebid-headertag/partners"
	"github.com/prebid/prebid-headertag/util/uuidutil"
	"github.com/stretchr/testify/require"
)

// sequenceGenerator hands out "id-1", "id-2", ...
type sequenceGenerator struct {
	next int64
}

func (g *sequenceGenerator) Generate() (string, error) {
	return fmt.Sprintf("id-%d", atomic.AddInt64(&g.next, 1)), nil
}

// fakePartner sends one request for all slots and parses {"bids":[{"slot":"<xSlot>","price":1.5}]}.
type fakePartner struct {
	profile config.Partner
	gen     uuidutil.Generator
	// parse replaces the default parser when set.
	parse func(request *partners.RequestData, payload []byte, acc *parcel.Accumulator) error
}

func fakeBuilder(parse func(*partners.RequestData, []byte, *parcel.Accumulator) error) partners.Builder {
	return func(profile config.Partner, deps partners.Deps) (partners.Partner, error) {
		return &fakePartner{profile: profile, gen: deps.IDGenerator, parse: parse}, nil
	}
}

func (p *fakePartner) MakeRequests(slots []*parcel.SlotDescriptor, reqInfo *partners.ExtraRequestInfo) ([]*partners.RequestData, []error) {
	if len(slots) == 0 {
		return nil, []error{&errortypes.FailedToRequestBids{Message: "no slots"}}
	}
	id, err := partners.NewCallbackID(p.gen)
	if err != nil {
		return nil, []error{err}
	}
	return []*partners.RequestData{{
		Method:     "GET",
		URL:        p.profile.Endpoint,
		Data:       map[string]interface{}{"cb": id},
		CallbackID: id,
		Slots:      slots,
	}}, nil
}

func (p *fakePartner) ParseResponse(sessionID string, request *partners.RequestData, payload []byte, acc *parcel.Accumulator) error {
	if p.parse != nil {
		return p.parse(request, payload, acc)
	}
	var resp struct {
		Bids []struct {
			Slot  string  `json:"slot"`
			Price float64 `json:"price"`
		} `json:"bids"`
	}
	if err := json.Unmarshal(payload, &resp); err != nil {
		return &errortypes.BadServerResponse{Message: err.Error()}
	}
	for _, bid := range resp.Bids {
		for _, slot := range request.Slots {
			if slot.XSlotName != bid.Slot {
				continue
			}
			if err := acc.Append(&parcel.Parcel{
				PartnerID:      p.profile.PartnerID,
				PartnerStatsID: p.profile.StatsID,
				TargetingType:  acc.TargetingType(),
				Targeting:      map[string][]string{"price": {fmt.Sprint(bid.Price)}},
				HTSlot:         slot.HTSlot,
				XSlotName:      slot.XSlotName,
				Ref:            slot.Ref,
				Price:          bid.Price,
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

func slotProfile() config.Partner {
	return config.Partner{
		PartnerID:        "FakeSlot",
		StatsID:          "FKS",
		Version:          "1.0.0",
		Endpoint:         "https://fake.example.com/bid",
		TargetingType:    "slot",
		EnabledAnalytics: config.EnabledAnalytics{RequestTime: true},
		TimeoutMS:        500,
		XSlots: map[string]map[string]interface{}{
			"x1": {"placement": "1"},
			"x2": {"placement": "2"},
		},
		Mapping: map[string][]string{
			"header-1": {"x1", "x2"},
			"footer-1": {"x2"},
		},
	}
}

func pageProfile() config.Partner {
	return config.Partner{
		PartnerID:        "FakePage",
		StatsID:          "FKP",
		Version:          "1.0.0",
		Endpoint:         "https://page.example.com/seg",
		TargetingType:    "page",
		EnabledAnalytics: config.EnabledAnalytics{RequestTime: true},
		TimeoutMS:        500,
	}
}

func respond(body string) network.Transport {
	return network.TransportFunc(func(ctx context.Context, req *network.Request) network.Result {
		return network.Result{Outcome: network.OutcomeSuccess, Body: []byte(body), StatusCode: 200}
	})
}

func timeoutTransport() network.Transport {
	return network.TransportFunc(func(ctx context.Context, req *network.Request) network.Result {
		return network.Result{Outcome: network.OutcomeTimeout, Err: &errortypes.Timeout{Message: "timed out"}}
	})
}

func failingTransport() network.Transport {
	return network.TransportFunc(func(ctx context.Context, req *network.Request) network.Result {
		return network.Result{Outcome: network.OutcomeFailure, Err: &errortypes.TransportFailure{Message: "connection refused"}}
	})
}

// capturingTransport records the requests it is given before delegating.
type capturingTransport struct {
	mu       sync.Mutex
	requests []*network.Request
	next     network.Transport
}

func (c *capturingTransport) Send(ctx context.Context, req *network.Request) network.Result {
	c.mu.Lock()
	c.requests = append(c.requests, req)
	c.mu.Unlock()
	return c.next.Send(ctx, req)
}

func (c *capturingTransport) sent() []*network.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*network.Request(nil), c.requests...)
}

func newTestPartner(t *testing.T, profile config.Partner, transport network.Transport, recorder *analytics.Recorder) AdaptedPartner {
	t.Helper()
	p, err := AdaptPartner(fakeBuilder(nil), profile, PartnerDeps{
		Transport:   transport,
		Bus:         recorder,
		IDGenerator: &sequenceGenerator{},
	})
	require.NoError(t, err)
	return p
}

func slotDescriptors(profile config.Partner, names ...string) []*parcel.SlotDescriptor {
	requests := make([]SlotRequest, 0, len(names))
	for _, name := range names {
		requests = append(requests, SlotRequest{HTSlot: parcel.NewHTSlot(name, "gpt-"+name), Ref: name})
	}
	descriptors, _ := expandSlots(requests, profile)
	return descriptors
}

// settle waits for a demand so the tests never hang on a broken lifecycle.
func settle(t *testing.T, d *Demand) []*parcel.Parcel {
	t.Helper()
	select {
	case <-d.Done():
		return d.Parcels()
	case <-time.After(5 * time.Second):
		t.Fatal("demand never settled")
		return nil
	}
}
