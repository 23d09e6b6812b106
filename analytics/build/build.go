package build

import (
	"context"
	"net/http"

	"github.com/benbjohnson/clock"
	"github.com/golang/glog"
	"github.com/prebid/prebid-headertag/analytics"
	"github.com/prebid/prebid-headertag/analytics/filesystem"
	"github.com/prebid/prebid-headertag/analytics/intake"
	"github.com/prebid/prebid-headertag/analytics/redis"
	"github.com/prebid/prebid-headertag/config"
)

// New returns an event bus wired to every analytics module the config enables. A module
// that fails to initialize is logged and left out.
func New(ctx context.Context, cfg *config.Analytics, client *http.Client, c clock.Clock) *analytics.EventBus {
	if c == nil {
		c = clock.New()
	}
	var modules []analytics.Module

	if cfg.File.Filename != "" {
		if module, err := filesystem.NewFileLogger(cfg.File.Filename); err == nil {
			modules = append(modules, module)
		} else {
			glog.Errorf("Could not initialize file analytics module: %v", err)
		}
	}

	if cfg.HTTP.Enabled {
		if client == nil {
			client = http.DefaultClient
		}
		if module, err := intake.NewModule(client, cfg.HTTP, c); err == nil {
			modules = append(modules, module)
		} else {
			glog.Errorf("Could not initialize http analytics module: %v", err)
		}
	}

	if cfg.Redis.Enabled {
		if module, err := redis.NewPublisher(ctx, cfg.Redis); err == nil {
			modules = append(modules, module)
		} else {
			glog.Errorf("Could not initialize redis analytics module: %v", err)
		}
	}

	glog.Infof("analytics: %d module(s) enabled", len(modules))
	return analytics.NewEventBus(c, modules...)
}
