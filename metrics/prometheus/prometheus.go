package prometheusmetrics

import (
	"strconv"
	"time"

	"github.com/prebid/prebid-headertag/config"
	"github.com/prebid/prebid-headertag/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics defines the Prometheus metrics backing the MetricsEngine implementation.
type Metrics struct {
	Registry *prometheus.Registry

	connectionsClosed  prometheus.Counter
	connectionsError   *prometheus.CounterVec
	connectionsOpened  prometheus.Counter
	sessions           *prometheus.CounterVec
	sessionTimer       *prometheus.HistogramVec
	slots              prometheus.Counter
	partnerRequests    *prometheus.CounterVec
	partnerTimer       *prometheus.HistogramVec
	parcels            *prometheus.CounterVec
	parseErrors        *prometheus.CounterVec
	partnerConnections *prometheus.CounterVec
	partnerConnWait    *prometheus.HistogramVec
	throttledSlots     *prometheus.CounterVec
	storedProfileCache *prometheus.CounterVec

	connectionMetricsOn bool
}

const (
	browserLabel       = "browser"
	requestStatusLabel = "request_status"
	partnerLabel       = "partner"
	targetingTypeLabel = "targeting_type"
	outcomeLabel       = "outcome"
	reusedLabel        = "reused"
	cacheResultLabel   = "cache_result"
	connectionLabel    = "connection_error"
)

// NewMetrics initializes a new Prometheus metrics instance with its own registry.
func NewMetrics(cfg config.PrometheusMetrics, disabled config.DisabledMetrics) *Metrics {
	timerBuckets := prometheus.LinearBuckets(0.05, 0.05, 20)
	timerBuckets = append(timerBuckets, []float64{1.5, 2.0, 3.0, 5.0, 10.0, 50.0}...)

	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry:            reg,
		connectionMetricsOn: !disabled.PartnerConnectionMetrics,
	}

	m.connectionsClosed = newCounterWithoutLabels(cfg, reg,
		"connections_closed",
		"Count of successful connections closed to the server.")

	m.connectionsError = newCounter(cfg, reg,
		"connections_error",
		"Count of errors for connection open and close attempts to the server.",
		[]string{connectionLabel})

	m.connectionsOpened = newCounterWithoutLabels(cfg, reg,
		"connections_opened",
		"Count of successful connections opened to the server.")

	m.sessions = newCounter(cfg, reg,
		"sessions",
		"Count of retrieval sessions by status and browser.",
		[]string{requestStatusLabel, browserLabel})

	m.sessionTimer = newHistogram(cfg, reg,
		"session_time_seconds",
		"Seconds to resolve each retrieval session.",
		[]string{requestStatusLabel},
		timerBuckets)

	m.slots = newCounterWithoutLabels(cfg, reg,
		"slots_requested",
		"Count of htSlots requested across all sessions.")

	m.partnerRequests = newCounter(cfg, reg,
		"partner_requests",
		"Count of partner requests by how they settled.",
		[]string{partnerLabel, targetingTypeLabel, outcomeLabel})

	m.partnerTimer = newHistogram(cfg, reg,
		"partner_request_time_seconds",
		"Seconds from dispatch to settlement of each partner request.",
		[]string{partnerLabel, outcomeLabel},
		timerBuckets)

	m.parcels = newCounter(cfg, reg,
		"partner_parcels",
		"Count of parcels produced by each partner.",
		[]string{partnerLabel, targetingTypeLabel})

	m.parseErrors = newCounter(cfg, reg,
		"partner_parse_errors",
		"Count of partner responses which could not be parsed.",
		[]string{partnerLabel})

	m.partnerConnections = newCounter(cfg, reg,
		"partner_connections",
		"Count of partner connections by whether they were reused.",
		[]string{partnerLabel, reusedLabel})

	m.partnerConnWait = newHistogram(cfg, reg,
		"partner_connection_wait_seconds",
		"Seconds waited to obtain a partner connection.",
		[]string{partnerLabel},
		[]float64{0.01, 0.05, 0.1, 0.5, 1})

	m.throttledSlots = newCounter(cfg, reg,
		"partner_throttled_slots",
		"Count of htSlots dropped by partner rate limiting.",
		[]string{partnerLabel})

	m.storedProfileCache = newCounter(cfg, reg,
		"stored_profile_cache_performance",
		"Count of stored profile cache hits and misses.",
		[]string{cacheResultLabel})

	return m
}

func newCounter(cfg config.PrometheusMetrics, registry *prometheus.Registry, name, help string, labels []string) *prometheus.CounterVec {
	opts := prometheus.CounterOpts{
		Namespace: cfg.Namespace,
		Subsystem: cfg.Subsystem,
		Name:      name,
		Help:      help,
	}
	counter := prometheus.NewCounterVec(opts, labels)
	registry.MustRegister(counter)
	return counter
}

func newCounterWithoutLabels(cfg config.PrometheusMetrics, registry *prometheus.Registry, name, help string) prometheus.Counter {
	opts := prometheus.CounterOpts{
		Namespace: cfg.Namespace,
		Subsystem: cfg.Subsystem,
		Name:      name,
		Help:      help,
	}
	counter := prometheus.NewCounter(opts)
	registry.MustRegister(counter)
	return counter
}

func newHistogram(cfg config.PrometheusMetrics, registry *prometheus.Registry, name, help string, labels []string, buckets []float64) *prometheus.HistogramVec {
	opts := prometheus.HistogramOpts{
		Namespace: cfg.Namespace,
		Subsystem: cfg.Subsystem,
		Name:      name,
		Help:      help,
		Buckets:   buckets,
	}
	histogram := prometheus.NewHistogramVec(opts, labels)
	registry.MustRegister(histogram)
	return histogram
}

func (m *Metrics) RecordConnectionAccept(success bool) {
	if success {
		m.connectionsOpened.Inc()
	} else {
		m.connectionsError.With(prometheus.Labels{
			connectionLabel: string(metrics.ConnectionAcceptError),
		}).Inc()
	}
}

func (m *Metrics) RecordConnectionClose(success bool) {
	if success {
		m.connectionsClosed.Inc()
	} else {
		m.connectionsError.With(prometheus.Labels{
			connectionLabel: string(metrics.ConnectionCloseError),
		}).Inc()
	}
}

func (m *Metrics) RecordSession(labels metrics.Labels) {
	m.sessions.With(prometheus.Labels{
		requestStatusLabel: string(labels.RequestStatus),
		browserLabel:       string(labels.Browser),
	}).Inc()
}

func (m *Metrics) RecordSessionTime(labels metrics.Labels, length time.Duration) {
	m.sessionTimer.With(prometheus.Labels{
		requestStatusLabel: string(labels.RequestStatus),
	}).Observe(length.Seconds())
}

func (m *Metrics) RecordSlots(labels metrics.Labels, numSlots int) {
	m.slots.Add(float64(numSlots))
}

func (m *Metrics) RecordPartnerRequest(labels metrics.PartnerLabels) {
	m.partnerRequests.With(prometheus.Labels{
		partnerLabel:       labels.Partner,
		targetingTypeLabel: string(labels.TargetingType),
		outcomeLabel:       string(labels.Outcome),
	}).Inc()
}

func (m *Metrics) RecordPartnerTime(labels metrics.PartnerLabels, length time.Duration) {
	m.partnerTimer.With(prometheus.Labels{
		partnerLabel: labels.Partner,
		outcomeLabel: string(labels.Outcome),
	}).Observe(length.Seconds())
}

func (m *Metrics) RecordParcels(labels metrics.PartnerLabels, numParcels int) {
	m.parcels.With(prometheus.Labels{
		partnerLabel:       labels.Partner,
		targetingTypeLabel: string(labels.TargetingType),
	}).Add(float64(numParcels))
}

func (m *Metrics) RecordParseError(partner string) {
	m.parseErrors.With(prometheus.Labels{
		partnerLabel: partner,
	}).Inc()
}

func (m *Metrics) RecordConnectionReuse(partner string, reused bool, connWait time.Duration) {
	if !m.connectionMetricsOn {
		return
	}
	m.partnerConnections.With(prometheus.Labels{
		partnerLabel: partner,
		reusedLabel:  strconv.FormatBool(reused),
	}).Inc()
	m.partnerConnWait.With(prometheus.Labels{
		partnerLabel: partner,
	}).Observe(connWait.Seconds())
}

func (m *Metrics) RecordSlotsThrottled(partner string, numSlots int) {
	m.throttledSlots.With(prometheus.Labels{
		partnerLabel: partner,
	}).Add(float64(numSlots))
}

func (m *Metrics) RecordStoredProfileCacheResult(cacheResult metrics.CacheResult, inc int) {
	m.storedProfileCache.With(prometheus.Labels{
		cacheResultLabel: string(cacheResult),
	}).Add(float64(inc))
}
