package analytics

import (
	"time"
)

// Topic names a lifecycle or analytics notification.
type Topic string

const (
	// Partner request lifecycle.
	TopicPartnerRequestSent     Topic = "partner_request_sent"
	TopicPartnerRequestComplete Topic = "partner_request_complete"
	TopicInternalError          Topic = "internal_error"

	// Request timing stats for slot targeting partners.
	TopicSlotRequest Topic = "hs_slot_request"
	TopicSlotError   Topic = "hs_slot_error"
	TopicSlotTimeout Topic = "hs_slot_timeout"

	// Request timing stats for page targeting partners.
	TopicPageRequest Topic = "hs_page_request"
	TopicPageError   Topic = "hs_page_error"
	TopicPageTimeout Topic = "hs_page_timeout"
)

// Statuses carried by partner_request_complete.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusTimeout = "timeout"
)

// Event is one emitted notification as seen by subscribers and analytics modules.
type Event struct {
	Topic     Topic       `json:"topic"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// PartnerRequestEvent is the payload of partner_request_sent and partner_request_complete.
// Request and Parcels are only set for debug builds.
type PartnerRequestEvent struct {
	Partner string      `json:"partner"`
	Status  string      `json:"status,omitempty"`
	Request interface{} `json:"request,omitempty"`
	Parcels interface{} `json:"parcels,omitempty"`
}

// InternalErrorEvent is the payload of internal_error.
type InternalErrorEvent struct {
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

// SlotStatsEvent is the payload of the hs_slot_* topics. XSlotNames maps a request id to the
// xSlot names requested for each htSlot name.
type SlotStatsEvent struct {
	SessionID  string                         `json:"sessionId"`
	StatsID    string                         `json:"statsId"`
	XSlotNames map[string]map[string][]string `json:"xSlotNames"`
}

// PageStatsEvent is the payload of the hs_page_* topics.
type PageStatsEvent struct {
	SessionID string `json:"sessionId"`
	StatsID   string `json:"statsId"`
	RequestID string `json:"requestId"`
}

// Bus is the fire-and-forget event channel the request lifecycle reports to.
type Bus interface {
	Emit(topic Topic, payload interface{})
}

// Module must be implemented by analytics modules. LogEvent must not block for long: the
// bus calls modules on the emitting goroutine.
type Module interface {
	LogEvent(event *Event)
	Shutdown()
}
