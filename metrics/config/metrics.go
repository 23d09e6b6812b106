package config

import (
	"time"

	"github.com/golang/glog"
	mainConfig "github.com/prebid/prebid-headertag/config"
	"github.com/prebid/prebid-headertag/metrics"
	prometheusmetrics "github.com/prebid/prebid-headertag/metrics/prometheus"
	gometrics "github.com/rcrowley/go-metrics"
)

// NewMetricsEngine reads the configuration and returns the appropriate metrics engine
// for this instance.
func NewMetricsEngine(cfg *mainConfig.Configuration, partnerList []string) *DetailedMetricsEngine {
	// Create a list of metrics engines to use.
	// Capacity of 2, as unlikely to have more than 2 metrics backends, and in the case
	// of 1 we won't use the list so it will be garbage collected.
	engineList := make(MultiMetricsEngine, 0, 2)
	returnEngine := DetailedMetricsEngine{}

	if cfg.Metrics.Influxdb.Host != "" {
		returnEngine.GoMetrics = metrics.NewMetrics(gometrics.NewPrefixedRegistry("headertag."), partnerList, cfg.Metrics.Disabled)
		engineList = append(engineList, returnEngine.GoMetrics)
		glog.Infof("Exporting metrics to InfluxDB at %s", cfg.Metrics.Influxdb.Host)
		go returnEngine.GoMetrics.Export(cfg.Metrics.Influxdb)
	}
	if cfg.Metrics.Prometheus.Port != 0 {
		returnEngine.PrometheusMetrics = prometheusmetrics.NewMetrics(cfg.Metrics.Prometheus, cfg.Metrics.Disabled)
		engineList = append(engineList, returnEngine.PrometheusMetrics)
	}

	// Now return the proper metrics engine
	if len(engineList) > 1 {
		returnEngine.MetricsEngine = &engineList
	} else if len(engineList) == 1 {
		returnEngine.MetricsEngine = engineList[0]
	} else {
		returnEngine.MetricsEngine = &NilMetricsEngine{}
	}

	return &returnEngine
}

// DetailedMetricsEngine is a MultiMetricsEngine that preserves links to underlying metrics engines.
type DetailedMetricsEngine struct {
	metrics.MetricsEngine
	GoMetrics         *metrics.Metrics
	PrometheusMetrics *prometheusmetrics.Metrics
}

// MultiMetricsEngine logs metrics to multiple metrics databases The can be useful in transitioning
// an instance from one engine to another, you can run both in parallel to verify stats match up.
type MultiMetricsEngine []metrics.MetricsEngine

// RecordSession across all engines
func (me *MultiMetricsEngine) RecordConnectionAccept(success bool) {
	for _, thisME := range *me {
		thisME.RecordConnectionAccept(success)
	}
}

func (me *MultiMetricsEngine) RecordConnectionClose(success bool) {
	for _, thisME := range *me {
		thisME.RecordConnectionClose(success)
	}
}

func (me *MultiMetricsEngine) RecordSession(labels metrics.Labels) {
	for _, thisME := range *me {
		thisME.RecordSession(labels)
	}
}

// RecordSessionTime across all engines
func (me *MultiMetricsEngine) RecordSessionTime(labels metrics.Labels, length time.Duration) {
	for _, thisME := range *me {
		thisME.RecordSessionTime(labels, length)
	}
}

// RecordSlots across all engines
func (me *MultiMetricsEngine) RecordSlots(labels metrics.Labels, numSlots int) {
	for _, thisME := range *me {
		thisME.RecordSlots(labels, numSlots)
	}
}

// RecordPartnerRequest across all engines
func (me *MultiMetricsEngine) RecordPartnerRequest(labels metrics.PartnerLabels) {
	for _, thisME := range *me {
		thisME.RecordPartnerRequest(labels)
	}
}

// RecordPartnerTime across all engines
func (me *MultiMetricsEngine) RecordPartnerTime(labels metrics.PartnerLabels, length time.Duration) {
	for _, thisME := range *me {
		thisME.RecordPartnerTime(labels, length)
	}
}

// RecordParcels across all engines
func (me *MultiMetricsEngine) RecordParcels(labels metrics.PartnerLabels, numParcels int) {
	for _, thisME := range *me {
		thisME.RecordParcels(labels, numParcels)
	}
}

// RecordParseError across all engines
func (me *MultiMetricsEngine) RecordParseError(partner string) {
	for _, thisME := range *me {
		thisME.RecordParseError(partner)
	}
}

// RecordConnectionReuse across all engines
func (me *MultiMetricsEngine) RecordConnectionReuse(partner string, reused bool, connWait time.Duration) {
	for _, thisME := range *me {
		thisME.RecordConnectionReuse(partner, reused, connWait)
	}
}

// RecordSlotsThrottled across all engines
func (me *MultiMetricsEngine) RecordSlotsThrottled(partner string, numSlots int) {
	for _, thisME := range *me {
		thisME.RecordSlotsThrottled(partner, numSlots)
	}
}

// RecordStoredProfileCacheResult across all engines
func (me *MultiMetricsEngine) RecordStoredProfileCacheResult(cacheResult metrics.CacheResult, inc int) {
	for _, thisME := range *me {
		thisME.RecordStoredProfileCacheResult(cacheResult, inc)
	}
}

// NilMetricsEngine implements the MetricsEngine interface where no metrics are desired.
type NilMetricsEngine struct{}

func (me *NilMetricsEngine) RecordConnectionAccept(success bool) {}

func (me *NilMetricsEngine) RecordConnectionClose(success bool) {}

func (me *NilMetricsEngine) RecordSession(labels metrics.Labels) {}

func (me *NilMetricsEngine) RecordSessionTime(labels metrics.Labels, length time.Duration) {}

func (me *NilMetricsEngine) RecordSlots(labels metrics.Labels, numSlots int) {}

func (me *NilMetricsEngine) RecordPartnerRequest(labels metrics.PartnerLabels) {}

func (me *NilMetricsEngine) RecordPartnerTime(labels metrics.PartnerLabels, length time.Duration) {}

func (me *NilMetricsEngine) RecordParcels(labels metrics.PartnerLabels, numParcels int) {}

func (me *NilMetricsEngine) RecordParseError(partner string) {}

func (me *NilMetricsEngine) RecordConnectionReuse(partner string, reused bool, connWait time.Duration) {
}

func (me *NilMetricsEngine) RecordSlotsThrottled(partner string, numSlots int) {}

func (me *NilMetricsEngine) RecordStoredProfileCacheResult(cacheResult metrics.CacheResult, inc int) {
}
