package metrics

import (
	"time"

	"github.com/stretchr/testify/mock"
)

// MetricsEngineMock is mock for the MetricsEngine interface
type MetricsEngineMock struct {
	mock.Mock
}

// RecordSession mock
func (me *MetricsEngineMock) RecordSession(labels Labels) {
	me.Called(labels)
}

// RecordSessionTime mock
func (me *MetricsEngineMock) RecordSessionTime(labels Labels, length time.Duration) {
	me.Called(labels, length)
}

// RecordSlots mock
func (me *MetricsEngineMock) RecordSlots(labels Labels, numSlots int) {
	me.Called(labels, numSlots)
}

// RecordPartnerRequest mock
func (me *MetricsEngineMock) RecordPartnerRequest(labels PartnerLabels) {
	me.Called(labels)
}

// RecordPartnerTime mock
func (me *MetricsEngineMock) RecordPartnerTime(labels PartnerLabels, length time.Duration) {
	me.Called(labels, length)
}

// RecordParcels mock
func (me *MetricsEngineMock) RecordParcels(labels PartnerLabels, numParcels int) {
	me.Called(labels, numParcels)
}

// RecordParseError mock
func (me *MetricsEngineMock) RecordParseError(partner string) {
	me.Called(partner)
}

// RecordConnectionReuse mock
func (me *MetricsEngineMock) RecordConnectionReuse(partner string, reused bool, connWait time.Duration) {
	me.Called(partner, reused, connWait)
}

// RecordSlotsThrottled mock
func (me *MetricsEngineMock) RecordSlotsThrottled(partner string, numSlots int) {
	me.Called(partner, numSlots)
}

// RecordStoredProfileCacheResult mock
func (me *MetricsEngineMock) RecordConnectionAccept(success bool) {
	me.Called(success)
}

func (me *MetricsEngineMock) RecordConnectionClose(success bool) {
	me.Called(success)
}

func (me *MetricsEngineMock) RecordStoredProfileCacheResult(cacheResult CacheResult, inc int) {
	me.Called(cacheResult, inc)
}
