package retrieve

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/glog"
	"github.com/julienschmidt/httprouter"
	"github.com/mssola/user_agent"
	"github.com/prebid/prebid-headertag/errortypes"
	"github.com/prebid/prebid-headertag/exchange"
	"github.com/prebid/prebid-headertag/metrics"
	"github.com/prebid/prebid-headertag/parcel"
)

const maxRequestSize = 512 * 1024

// Retriever runs one retrieval session. *exchange.Exchange implements it.
type Retriever interface {
	Retrieve(ctx context.Context, req *exchange.RetrievalRequest) (*exchange.Session, []error)
}

// NewEndpoint implements POST /partners/retrieve.
func NewEndpoint(ex Retriever, metricsEngine metrics.MetricsEngine, c clock.Clock) httprouter.Handle {
	if c == nil {
		c = clock.New()
	}
	e := &endpoint{
		ex:            ex,
		metricsEngine: metricsEngine,
		clock:         c,
	}
	return e.handle
}

type endpoint struct {
	ex            Retriever
	metricsEngine metrics.MetricsEngine
	clock         clock.Clock
}

// Request is the body of a retrieval call. TimeoutMS bounds the whole session when set.
type Request struct {
	Page      string        `json:"page"`
	Slots     []SlotRequest `json:"slots"`
	TimeoutMS int           `json:"timeout,omitempty"`
}

type SlotRequest struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// Response carries the parcels of every partner in partner order.
type Response struct {
	SessionID string           `json:"sessionId"`
	Parcels   []responseParcel `json:"parcels"`
}

type responseParcel struct {
	*parcel.Parcel
	HTSlotName string `json:"htSlotName,omitempty"`
	HTSlotID   string `json:"htSlotId,omitempty"`
}

func (e *endpoint) handle(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	start := e.clock.Now()
	labels := metrics.Labels{
		Browser:       browser(r.Header.Get("User-Agent")),
		RequestStatus: metrics.RequestStatusOK,
	}
	numSlots := 0
	defer func() {
		e.metricsEngine.RecordSession(labels)
		e.metricsEngine.RecordSlots(labels, numSlots)
		e.metricsEngine.RecordSessionTime(labels, e.clock.Since(start))
	}()

	req, err := parseRequest(w, r)
	if err != nil {
		labels.RequestStatus = metrics.RequestStatusBadInput
		writeError(w, http.StatusBadRequest, err)
		return
	}
	numSlots = len(req.Slots)

	ctx := r.Context()
	if req.TimeoutMS > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(req.TimeoutMS)*time.Millisecond)
		defer cancel()
	}

	session, errs := e.ex.Retrieve(ctx, retrievalRequest(r, req))
	if session == nil {
		status := http.StatusInternalServerError
		labels.RequestStatus = metrics.RequestStatusErr
		if containsBadInput(errs) {
			status = http.StatusBadRequest
			labels.RequestStatus = metrics.RequestStatusBadInput
		}
		err := errortypes.NewAggregateError("retrieval failed", errs)
		if err == nil {
			err = fmt.Errorf("retrieval failed")
		}
		writeError(w, status, err)
		return
	}
	if glog.V(2) {
		for _, err := range errs {
			glog.Infof("session %s: %v", session.ID, err)
		}
	}

	resp := Response{
		SessionID: session.ID,
		Parcels:   make([]responseParcel, 0, len(session.Parcels)),
	}
	for _, p := range session.Parcels {
		rp := responseParcel{Parcel: p}
		if p.HTSlot != nil {
			rp.HTSlotName = p.HTSlot.Name()
			rp.HTSlotID = p.HTSlot.ID()
		}
		resp.Parcels = append(resp.Parcels, rp)
	}

	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(&resp); err != nil {
		labels.RequestStatus = metrics.RequestStatusErr
		glog.Errorf("/partners/retrieve failed to send response for session %s: %v", session.ID, err)
	}
}

func parseRequest(w http.ResponseWriter, r *http.Request) (*Request, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestSize))
	if err != nil {
		return nil, &errortypes.BadInput{Message: fmt.Sprintf("failed to read the request body: %v", err)}
	}
	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, &errortypes.BadInput{Message: fmt.Sprintf("malformed request: %v", err)}
	}
	if len(req.Slots) == 0 {
		return nil, &errortypes.BadInput{Message: "request.slots must contain at least one slot"}
	}
	for i, slot := range req.Slots {
		if slot.Name == "" {
			return nil, &errortypes.BadInput{Message: fmt.Sprintf("request.slots[%d] has no name", i)}
		}
	}
	if req.TimeoutMS < 0 {
		return nil, &errortypes.BadInput{Message: "request.timeout must not be negative"}
	}
	if req.Page == "" {
		req.Page = r.Referer()
	}
	return &req, nil
}

func retrievalRequest(r *http.Request, req *Request) *exchange.RetrievalRequest {
	retrieval := &exchange.RetrievalRequest{
		PageURL:   req.Page,
		UserAgent: r.Header.Get("User-Agent"),
		IP:        clientIP(r),
		Cookies:   r.Cookies(),
		Slots:     make([]exchange.SlotRequest, 0, len(req.Slots)),
	}
	for _, slot := range req.Slots {
		retrieval.Slots = append(retrieval.Slots, exchange.SlotRequest{
			HTSlot: parcel.NewHTSlot(slot.Name, slot.ID),
			Ref:    slot.ID,
		})
	}
	return retrieval
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func browser(userAgent string) metrics.Browser {
	if userAgent == "" {
		return metrics.BrowserOther
	}
	name, _ := user_agent.New(userAgent).Browser()
	switch name {
	case "Safari":
		return metrics.BrowserSafari
	case "Chrome":
		return metrics.BrowserChrome
	case "Firefox":
		return metrics.BrowserFirefox
	}
	return metrics.BrowserOther
}

func containsBadInput(errs []error) bool {
	for _, err := range errs {
		if errortypes.ReadCode(err) == errortypes.BadInputErrorCode {
			return true
		}
	}
	return false
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprintf(w, "Invalid request: %s\n", err.Error())
}
