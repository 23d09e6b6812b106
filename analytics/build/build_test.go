package build

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/benbjohnson/clock"
	"github.com/prebid/prebid-headertag/analytics"
	"github.com/prebid/prebid-headertag/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithoutModules(t *testing.T) {
	bus := New(context.Background(), &config.Analytics{}, nil, clock.NewMock())
	require.NotNil(t, bus)
	assert.NotPanics(t, func() {
		bus.Emit(analytics.TopicPartnerRequestSent, analytics.PartnerRequestEvent{Partner: "p"})
		bus.Shutdown()
	})
}

func TestNewSkipsBrokenModules(t *testing.T) {
	mr := miniredis.RunT(t)
	filename := filepath.Join(t.TempDir(), "events.log")
	cfg := &config.Analytics{
		File: config.FileLogs{Filename: filename},
		HTTP: config.HTTPAnalytics{
			Enabled:  true,
			Endpoint: "http://localhost",
			Buffer:   config.EventBuffer{BufferSize: "not a size", EventCount: 1, Timeout: "1s"},
		},
		Redis: config.RedisEvents{Enabled: true, Addr: mr.Addr(), Channel: "events"},
	}

	bus := New(context.Background(), cfg, nil, clock.NewMock())
	bus.Emit(analytics.TopicInternalError, analytics.InternalErrorEvent{Message: "boom"})
	bus.Shutdown()

	files, err := filepath.Glob(filename + "*")
	require.NoError(t, err)
	require.NotEmpty(t, files)
	content, err := os.ReadFile(files[0])
	require.NoError(t, err)
	assert.Contains(t, string(content), "internal_error")
}
