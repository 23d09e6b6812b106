package parcel

// HTSlot is the wrapper-managed header tag slot. Partners may only read its identity.
type HTSlot interface {
	// Name is the wrapper slot name, as used by the partner mapping configuration.
	Name() string
	// ID is the wrapper-assigned handle for the slot.
	ID() string
}

// NewHTSlot returns an HTSlot with a fixed name and id.
func NewHTSlot(name, id string) HTSlot {
	return htSlot{name: name, id: id}
}

type htSlot struct {
	name string
	id   string
}

func (s htSlot) Name() string { return s.name }
func (s htSlot) ID() string   { return s.id }

// SlotDescriptor is one unit of input to a partner for a single retrieval cycle.
//
// The wrapper expands each HTSlot into one descriptor per xSlot mapped to it, so a partner sees
// the xSlot it must request demand for alongside the HTSlot it will attribute demand to.
type SlotDescriptor struct {
	HTSlot HTSlot
	// Ref is an opaque caller value (usually the ad server slot). It is carried through to
	// slot parcels and never inspected.
	Ref interface{}
	// XSlotName is the partner-specific slot name from the partner mapping.
	XSlotName string
	// XSlotRef holds the partner-specific slot parameters from the partner configuration.
	XSlotRef map[string]interface{}
}

// HTSlotName returns the HTSlot name or "" for a descriptor without a slot.
func (s *SlotDescriptor) HTSlotName() string {
	if s == nil || s.HTSlot == nil {
		return ""
	}
	return s.HTSlot.Name()
}
