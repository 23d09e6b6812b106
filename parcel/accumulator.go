package parcel

import (
	"fmt"
)

// Accumulator collects the parcels produced for one partner request.
//
// A parser appends to it as it reads a response, so parcels appended before a parse error
// are kept. It is owned by a single request lifecycle and is not safe for concurrent use.
type Accumulator struct {
	targetingType TargetingType
	parcels       []*Parcel
	pageParcel    bool
}

// NewAccumulator returns an empty accumulator for a partner with the given targeting type.
func NewAccumulator(targetingType TargetingType) *Accumulator {
	return &Accumulator{targetingType: targetingType}
}

// TargetingType is the targeting type every appended parcel must have.
func (a *Accumulator) TargetingType() TargetingType {
	return a.targetingType
}

// Append adds a parcel. Page partners may append at most one parcel per request and slot
// partners must name the HTSlot the parcel belongs to.
func (a *Accumulator) Append(p *Parcel) error {
	if p == nil {
		return fmt.Errorf("nil parcel")
	}
	if p.TargetingType != a.targetingType {
		return fmt.Errorf("parcel targeting type %q does not match partner targeting type %q", p.TargetingType, a.targetingType)
	}
	switch a.targetingType {
	case TargetingPage:
		if a.pageParcel {
			return fmt.Errorf("a page partner may only produce one parcel per request")
		}
		a.pageParcel = true
	case TargetingSlot:
		if p.HTSlot == nil || p.XSlotName == "" {
			return fmt.Errorf("slot parcels must name an htSlot and an xSlot")
		}
	}
	a.parcels = append(a.parcels, p)
	return nil
}

// Parcels returns a copy of the appended parcels.
func (a *Accumulator) Parcels() []*Parcel {
	parcels := make([]*Parcel, len(a.parcels))
	copy(parcels, a.parcels)
	return parcels
}
