package parcel

import (
	"fmt"
	"time"
)

// TargetingType says whether a partner's demand applies to individual slots or to the whole page.
type TargetingType string

const (
	TargetingPage TargetingType = "page"
	TargetingSlot TargetingType = "slot"
)

// ParseTargetingType maps a configured value onto the closed set of targeting types.
func ParseTargetingType(value string) (TargetingType, error) {
	switch TargetingType(value) {
	case TargetingPage:
		return TargetingPage, nil
	case TargetingSlot:
		return TargetingSlot, nil
	}
	return "", fmt.Errorf("unknown targeting type %q, expected %q or %q", value, TargetingPage, TargetingSlot)
}

// Parcel is a normalized unit of demand or targeting output handed to the rendering layer.
//
// The slot fields (HTSlot, XSlotName, XSlotRef, Ref) are only set when TargetingType is TargetingSlot.
type Parcel struct {
	PartnerID      string              `json:"partnerId"`
	PartnerStatsID string              `json:"partnerStatsId"`
	TargetingType  TargetingType       `json:"targetingType"`
	Targeting      map[string][]string `json:"targeting"`

	HTSlot    HTSlot                 `json:"-"`
	XSlotName string                 `json:"xSlotName,omitempty"`
	XSlotRef  map[string]interface{} `json:"xSlotRef,omitempty"`
	Ref       interface{}            `json:"-"`

	// Price is in CPM, Size is "WxH". Both are informational for slot demand.
	Price  float64 `json:"price,omitempty"`
	Size   string  `json:"size,omitempty"`
	DealID string  `json:"dealId,omitempty"`

	// ExpiresAt is set when the partner has demand expiry enabled.
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// HTSlotName returns the name of the slot this parcel is attached to, if any.
func (p *Parcel) HTSlotName() string {
	if p.HTSlot == nil {
		return ""
	}
	return p.HTSlot.Name()
}

// Expired reports whether the parcel had an expiry and it has passed at now.
func (p *Parcel) Expired(now time.Time) bool {
	return p.ExpiresAt != nil && !now.Before(*p.ExpiresAt)
}
