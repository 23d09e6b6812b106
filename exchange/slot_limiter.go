package exchange

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prebid/prebid-headertag/parcel"
	"golang.org/x/time/rate"
)

// slotLimiter stops a partner from requesting the same htSlot more than once per interval.
type slotLimiter struct {
	interval time.Duration
	clock    clock.Clock

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newSlotLimiter(interval time.Duration, c clock.Clock) *slotLimiter {
	return &slotLimiter{
		interval: interval,
		clock:    c,
		limiters: make(map[string]*rate.Limiter),
	}
}

// filter returns the descriptors whose htSlot may be requested now, and the number of
// htSlots throttled. All the descriptors of an allowed htSlot are kept.
func (l *slotLimiter) filter(slots []*parcel.SlotDescriptor) ([]*parcel.SlotDescriptor, int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	allowed := make(map[string]bool)
	kept := make([]*parcel.SlotDescriptor, 0, len(slots))
	throttled := 0
	for _, slot := range slots {
		name := slot.HTSlotName()
		ok, seen := allowed[name]
		if !seen {
			ok = l.limiter(name).AllowN(now, 1)
			allowed[name] = ok
			if !ok {
				throttled++
			}
		}
		if ok {
			kept = append(kept, slot)
		}
	}
	return kept, throttled
}

func (l *slotLimiter) limiter(name string) *rate.Limiter {
	limiter, ok := l.limiters[name]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(l.interval), 1)
		l.limiters[name] = limiter
	}
	return limiter
}
