package exchange

import (
	"context"
	"sync"

	"github.com/prebid/prebid-headertag/parcel"
	"github.com/prebid/prebid-headertag/partners"
)

// Demand is the pending result of one partner request. It settles exactly once, always with a
// (possibly empty) slice of parcels. It never fails: timeouts, transport failures and parse
// errors all settle it with whatever parcels were produced.
type Demand struct {
	request *partners.RequestData
	done    chan struct{}
	once    sync.Once
	parcels []*parcel.Parcel
}

func newDemand(request *partners.RequestData) *Demand {
	return &Demand{
		request: request,
		done:    make(chan struct{}),
	}
}

// resolve settles the demand. Only the first call has an effect.
func (d *Demand) resolve(parcels []*parcel.Parcel) bool {
	settled := false
	d.once.Do(func() {
		if parcels == nil {
			parcels = []*parcel.Parcel{}
		}
		d.parcels = parcels
		settled = true
		close(d.done)
	})
	return settled
}

// Request is the request this demand is waiting on.
func (d *Demand) Request() *partners.RequestData {
	return d.request
}

// Done is closed once the demand settles.
func (d *Demand) Done() <-chan struct{} {
	return d.done
}

// Parcels blocks until the demand settles and returns its parcels.
func (d *Demand) Parcels() []*parcel.Parcel {
	<-d.done
	return d.parcels
}

// Collect waits for every demand and returns their parcels in demand order. If ctx ends first,
// the parcels of the demands settled so far are returned.
func Collect(ctx context.Context, demands []*Demand) []*parcel.Parcel {
	parcels := make([]*parcel.Parcel, 0, len(demands))
	for _, d := range demands {
		select {
		case <-d.Done():
		case <-ctx.Done():
			return append(parcels, settled(demands)...)
		}
	}
	for _, d := range demands {
		parcels = append(parcels, d.parcels...)
	}
	return parcels
}

func settled(demands []*Demand) []*parcel.Parcel {
	var parcels []*parcel.Parcel
	for _, d := range demands {
		select {
		case <-d.Done():
			parcels = append(parcels, d.parcels...)
		default:
		}
	}
	return parcels
}
