package metrics

import (
	"fmt"
	"time"

	"github.com/golang/glog"
	"github.com/prebid/prebid-headertag/config"
	"github.com/rcrowley/go-metrics"
	influxdb "github.com/vrischmann/go-metrics-influxdb"
)

// Metrics is the go-metrics implementation of MetricsEngine.
type Metrics struct {
	MetricsRegistry     metrics.Registry
	ConnectionCounter   metrics.Counter
	ConnectionErrors    map[ConnectionError]metrics.Meter
	SlotMeter           metrics.Meter
	SessionTimer        metrics.Timer
	SessionStatuses     map[RequestStatus]metrics.Meter
	BrowserMeters       map[Browser]metrics.Meter
	StoredProfileCache  map[CacheResult]metrics.Meter
	PartnerMetrics      map[string]*PartnerMetrics
	unknownPartner      *PartnerMetrics
	connectionMetricsOn bool
}

// PartnerMetrics houses the metrics for a particular partner
type PartnerMetrics struct {
	RequestMeter    metrics.Meter
	OutcomeMeters   map[Outcome]metrics.Meter
	RequestTimer    metrics.Timer
	ParcelsMeter    metrics.Meter
	ParseErrorMeter metrics.Meter
	ThrottledMeter  metrics.Meter
	ConnCreated     metrics.Counter
	ConnReused      metrics.Counter
	ConnWaitTime    metrics.Timer
	TargetingMeters map[TargetingType]metrics.Meter
}

const unknownPartner = "unknown"

// NewBlankMetrics creates a new Metrics object with all blank metrics object. This may also be useful for
// testing routines to ensure that no metrics are written anywhere.
func NewBlankMetrics(registry metrics.Registry, partners []string, disabled config.DisabledMetrics) *Metrics {
	blankMeter := &metrics.NilMeter{}
	newMetrics := &Metrics{
		MetricsRegistry:     registry,
		ConnectionCounter:   metrics.NilCounter{},
		ConnectionErrors:    make(map[ConnectionError]metrics.Meter),
		SlotMeter:           blankMeter,
		SessionTimer:        &metrics.NilTimer{},
		SessionStatuses:     make(map[RequestStatus]metrics.Meter),
		BrowserMeters:       make(map[Browser]metrics.Meter),
		StoredProfileCache:  make(map[CacheResult]metrics.Meter),
		PartnerMetrics:      make(map[string]*PartnerMetrics, len(partners)),
		unknownPartner:      makeBlankPartnerMetrics(),
		connectionMetricsOn: !disabled.PartnerConnectionMetrics,
	}
	for _, c := range ConnectionErrors() {
		newMetrics.ConnectionErrors[c] = blankMeter
	}
	for _, s := range RequestStatuses() {
		newMetrics.SessionStatuses[s] = blankMeter
	}
	for _, b := range BrowserTypes() {
		newMetrics.BrowserMeters[b] = blankMeter
	}
	for _, c := range CacheResults() {
		newMetrics.StoredProfileCache[c] = blankMeter
	}
	for _, p := range partners {
		newMetrics.PartnerMetrics[p] = makeBlankPartnerMetrics()
	}
	return newMetrics
}

// NewMetrics creates a new Metrics object with needed metrics defined. Partners that are not in
// the list are recorded under "partner.unknown".
func NewMetrics(registry metrics.Registry, partners []string, disabled config.DisabledMetrics) *Metrics {
	newMetrics := NewBlankMetrics(registry, partners, disabled)
	newMetrics.ConnectionCounter = metrics.GetOrRegisterCounter("active_connections", registry)
	for c := range newMetrics.ConnectionErrors {
		newMetrics.ConnectionErrors[c] = metrics.GetOrRegisterMeter("connection_"+string(c)+"_errors", registry)
	}
	newMetrics.SlotMeter = metrics.GetOrRegisterMeter("slots_requested", registry)
	newMetrics.SessionTimer = metrics.GetOrRegisterTimer("session_time", registry)
	for s := range newMetrics.SessionStatuses {
		newMetrics.SessionStatuses[s] = metrics.GetOrRegisterMeter("sessions."+string(s), registry)
	}
	for b := range newMetrics.BrowserMeters {
		newMetrics.BrowserMeters[b] = metrics.GetOrRegisterMeter(string(b)+"_requests", registry)
	}
	for c := range newMetrics.StoredProfileCache {
		newMetrics.StoredProfileCache[c] = metrics.GetOrRegisterMeter("stored_profile_cache_"+string(c), registry)
	}
	for p, pm := range newMetrics.PartnerMetrics {
		registerPartnerMetrics(registry, p, pm)
	}
	registerPartnerMetrics(registry, unknownPartner, newMetrics.unknownPartner)
	return newMetrics
}

func makeBlankPartnerMetrics() *PartnerMetrics {
	blankMeter := &metrics.NilMeter{}
	pm := &PartnerMetrics{
		RequestMeter:    blankMeter,
		OutcomeMeters:   make(map[Outcome]metrics.Meter),
		RequestTimer:    &metrics.NilTimer{},
		ParcelsMeter:    blankMeter,
		ParseErrorMeter: blankMeter,
		ThrottledMeter:  blankMeter,
		ConnCreated:     metrics.NilCounter{},
		ConnReused:      metrics.NilCounter{},
		ConnWaitTime:    &metrics.NilTimer{},
		TargetingMeters: make(map[TargetingType]metrics.Meter),
	}
	for _, o := range Outcomes() {
		pm.OutcomeMeters[o] = blankMeter
	}
	for _, t := range TargetingTypes() {
		pm.TargetingMeters[t] = blankMeter
	}
	return pm
}

func registerPartnerMetrics(registry metrics.Registry, partner string, pm *PartnerMetrics) {
	prefix := fmt.Sprintf("partner.%s.", partner)
	pm.RequestMeter = metrics.GetOrRegisterMeter(prefix+"requests", registry)
	pm.RequestTimer = metrics.GetOrRegisterTimer(prefix+"request_time", registry)
	pm.ParcelsMeter = metrics.GetOrRegisterMeter(prefix+"parcels", registry)
	pm.ParseErrorMeter = metrics.GetOrRegisterMeter(prefix+"parse_errors", registry)
	pm.ThrottledMeter = metrics.GetOrRegisterMeter(prefix+"throttled_slots", registry)
	pm.ConnCreated = metrics.GetOrRegisterCounter(prefix+"connections_created", registry)
	pm.ConnReused = metrics.GetOrRegisterCounter(prefix+"connections_reused", registry)
	pm.ConnWaitTime = metrics.GetOrRegisterTimer(prefix+"connection_wait_time", registry)
	for o := range pm.OutcomeMeters {
		pm.OutcomeMeters[o] = metrics.GetOrRegisterMeter(prefix+"requests."+string(o), registry)
	}
	for t := range pm.TargetingMeters {
		pm.TargetingMeters[t] = metrics.GetOrRegisterMeter(prefix+"parcels."+string(t), registry)
	}
}

func (me *Metrics) getPartnerMetrics(partner string) *PartnerMetrics {
	if pm, ok := me.PartnerMetrics[partner]; ok {
		return pm
	}
	glog.Errorf("Trying to run partner metrics on %s: partner metrics not found", partner)
	return me.unknownPartner
}

// Export begins exporting all the metrics to InfluxDB. This blocks indefinitely, so it should
// be run inside a goroutine.
func (me *Metrics) Export(cfg config.InfluxMetrics) {
	interval := time.Duration(cfg.MeasurementInterval) * time.Second
	if interval <= 0 {
		interval = 10 * time.Second
	}
	influxdb.InfluxDB(
		me.MetricsRegistry, // metrics registry
		interval,           // interval
		cfg.Host,           // the InfluxDB url
		cfg.Database,       // your InfluxDB database
		cfg.Username,       // your InfluxDB user
		cfg.Password,       // your InfluxDB password
	)
}

func (me *Metrics) RecordConnectionAccept(success bool) {
	if success {
		me.ConnectionCounter.Inc(1)
	} else {
		me.ConnectionErrors[ConnectionAcceptError].Mark(1)
	}
}

func (me *Metrics) RecordConnectionClose(success bool) {
	if success {
		me.ConnectionCounter.Dec(1)
	} else {
		me.ConnectionErrors[ConnectionCloseError].Mark(1)
	}
}

// RecordSession implements a part of the MetricsEngine interface
func (me *Metrics) RecordSession(labels Labels) {
	if meter, ok := me.SessionStatuses[labels.RequestStatus]; ok {
		meter.Mark(1)
	}
	if meter, ok := me.BrowserMeters[labels.Browser]; ok {
		meter.Mark(1)
	}
}

// RecordSessionTime implements a part of the MetricsEngine interface. Only successful sessions are timed.
func (me *Metrics) RecordSessionTime(labels Labels, length time.Duration) {
	if labels.RequestStatus == RequestStatusOK {
		me.SessionTimer.Update(length)
	}
}

func (me *Metrics) RecordSlots(labels Labels, numSlots int) {
	me.SlotMeter.Mark(int64(numSlots))
}

// RecordPartnerRequest implements a part of the MetricsEngine interface
func (me *Metrics) RecordPartnerRequest(labels PartnerLabels) {
	pm := me.getPartnerMetrics(labels.Partner)
	pm.RequestMeter.Mark(1)
	if meter, ok := pm.OutcomeMeters[labels.Outcome]; ok {
		meter.Mark(1)
	}
}

func (me *Metrics) RecordPartnerTime(labels PartnerLabels, length time.Duration) {
	me.getPartnerMetrics(labels.Partner).RequestTimer.Update(length)
}

func (me *Metrics) RecordParcels(labels PartnerLabels, numParcels int) {
	pm := me.getPartnerMetrics(labels.Partner)
	pm.ParcelsMeter.Mark(int64(numParcels))
	if meter, ok := pm.TargetingMeters[labels.TargetingType]; ok {
		meter.Mark(int64(numParcels))
	}
}

func (me *Metrics) RecordParseError(partner string) {
	me.getPartnerMetrics(partner).ParseErrorMeter.Mark(1)
}

// RecordConnectionReuse implements a part of the MetricsEngine interface. It is a no-op when
// partner connection metrics are disabled.
func (me *Metrics) RecordConnectionReuse(partner string, reused bool, connWait time.Duration) {
	if !me.connectionMetricsOn {
		return
	}
	pm := me.getPartnerMetrics(partner)
	if reused {
		pm.ConnReused.Inc(1)
	} else {
		pm.ConnCreated.Inc(1)
	}
	pm.ConnWaitTime.Update(connWait)
}

func (me *Metrics) RecordSlotsThrottled(partner string, numSlots int) {
	me.getPartnerMetrics(partner).ThrottledMeter.Mark(int64(numSlots))
}

func (me *Metrics) RecordStoredProfileCacheResult(cacheResult CacheResult, inc int) {
	if meter, ok := me.StoredProfileCache[cacheResult]; ok {
		meter.Mark(int64(inc))
	}
}
