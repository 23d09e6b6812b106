package metrics

import (
	"time"
)

// Labels defines the labels that can be attached to the session metrics.
type Labels struct {
	Browser       Browser
	RequestStatus RequestStatus
}

// PartnerLabels defines the labels that can be attached to the partner request metrics.
type PartnerLabels struct {
	Partner       string
	TargetingType TargetingType
	Outcome       Outcome
}

// Browser type enumeration
type Browser string

// RequestStatus : The retrieval request return status
type RequestStatus string

// TargetingType : page or slot
type TargetingType string

// Outcome : How a partner request settled
type Outcome string

// CacheResult : Cache hit/miss
type CacheResult string

// ConnectionError names the listener operation that failed.
type ConnectionError string

const (
	ConnectionAcceptError ConnectionError = "accept"
	ConnectionCloseError  ConnectionError = "close"
)

func ConnectionErrors() []ConnectionError {
	return []ConnectionError{
		ConnectionAcceptError,
		ConnectionCloseError,
	}
}

const (
	BrowserSafari  Browser = "safari"
	BrowserChrome  Browser = "chrome"
	BrowserFirefox Browser = "firefox"
	BrowserOther   Browser = "other"
)

func BrowserTypes() []Browser {
	return []Browser{
		BrowserSafari,
		BrowserChrome,
		BrowserFirefox,
		BrowserOther,
	}
}

// Request/return status
const (
	RequestStatusOK       RequestStatus = "ok"
	RequestStatusBadInput RequestStatus = "badinput"
	RequestStatusErr      RequestStatus = "err"
)

func RequestStatuses() []RequestStatus {
	return []RequestStatus{
		RequestStatusOK,
		RequestStatusBadInput,
		RequestStatusErr,
	}
}

const (
	TargetingPage TargetingType = "page"
	TargetingSlot TargetingType = "slot"
)

func TargetingTypes() []TargetingType {
	return []TargetingType{
		TargetingPage,
		TargetingSlot,
	}
}

// Partner request outcomes. OutcomeParseError is a transport success whose payload could not be read.
const (
	OutcomeSuccess    Outcome = "success"
	OutcomeTimeout    Outcome = "timeout"
	OutcomeError      Outcome = "error"
	OutcomeParseError Outcome = "parse_error"
)

func Outcomes() []Outcome {
	return []Outcome{
		OutcomeSuccess,
		OutcomeTimeout,
		OutcomeError,
		OutcomeParseError,
	}
}

const (
	CacheHit  CacheResult = "hit"
	CacheMiss CacheResult = "miss"
)

func CacheResults() []CacheResult {
	return []CacheResult{
		CacheHit,
		CacheMiss,
	}
}

// MetricsEngine is a generic interface to record metrics into the desired backend
// The connection metrics fire off per client connection. The session metrics fire off once per
// incoming request, so total metrics will equal the total number of incoming requests. The
// remaining fire off per partner request.
type MetricsEngine interface {
	RecordConnectionAccept(success bool)
	RecordConnectionClose(success bool)
	RecordSession(labels Labels)
	RecordSessionTime(labels Labels, length time.Duration)
	RecordSlots(labels Labels, numSlots int)
	RecordPartnerRequest(labels PartnerLabels)
	// RecordPartnerTime records the time from dispatch to settlement of one partner request.
	RecordPartnerTime(labels PartnerLabels, length time.Duration)
	RecordParcels(labels PartnerLabels, numParcels int)
	RecordParseError(partner string)
	RecordConnectionReuse(partner string, reused bool, connWait time.Duration)
	RecordSlotsThrottled(partner string, numSlots int)
	RecordStoredProfileCacheResult(cacheResult CacheResult, inc int)
}
