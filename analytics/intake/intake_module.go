package intake

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/docker/go-units"
	"github.com/golang/glog"
	"github.com/prebid/prebid-headertag/analytics"
	"github.com/prebid/prebid-headertag/analytics/eventchannel"
	"github.com/prebid/prebid-headertag/config"
)

const route = "events"

// Module ships filtered events as newline separated JSON in gzipped batches.
type Module struct {
	channel *eventchannel.EventChannel
	filter  eventFilter
}

// NewModule builds the module from the analytics.http config.
func NewModule(client *http.Client, cfg config.HTTPAnalytics, c clock.Clock) (analytics.Module, error) {
	limit, err := bufferLimit(cfg.Buffer)
	if err != nil {
		return nil, err
	}
	filter, err := createFilter(cfg.Filter, cfg.SampleRate, rand.Float64)
	if err != nil {
		return nil, fmt.Errorf("analytics.http.filter: %v", err)
	}
	sender, err := eventchannel.BuildEndpointSender(client, cfg.Endpoint, route, cfg.Scope)
	if err != nil {
		return nil, fmt.Errorf("analytics.http.endpoint: %v", err)
	}
	glog.Infof("[intake] shipping events to %s every %s or %d events", cfg.Endpoint, limit.MaxTime, limit.MaxEventCount)

	return &Module{
		channel: eventchannel.NewEventChannel(sender, c, limit),
		filter:  filter,
	}, nil
}

func bufferLimit(cfg config.EventBuffer) (eventchannel.Limit, error) {
	size, err := units.FromHumanSize(cfg.BufferSize)
	if err != nil {
		return eventchannel.Limit{}, fmt.Errorf("analytics.http.buffers.size: %v", err)
	}
	timeout, err := time.ParseDuration(cfg.Timeout)
	if err != nil {
		return eventchannel.Limit{}, fmt.Errorf("analytics.http.buffers.timeout: %v", err)
	}
	if cfg.EventCount <= 0 {
		return eventchannel.Limit{}, fmt.Errorf("analytics.http.buffers.count must be positive. Got %d", cfg.EventCount)
	}
	return eventchannel.Limit{
		MaxByteSize:   size,
		MaxEventCount: int64(cfg.EventCount),
		MaxTime:       timeout,
	}, nil
}

// LogEvent implements analytics.Module.
func (m *Module) LogEvent(event *analytics.Event) {
	if !m.filter(event) {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		glog.Warningf("[intake] cannot serialize %s event: %v", event.Topic, err)
		return
	}
	m.channel.Push(append(payload, '\n'))
}

// Shutdown implements analytics.Module.
func (m *Module) Shutdown() {
	m.channel.Close()
}
