package filesystem

import (
	"encoding/json"
	"fmt"

	"github.com/chasex/glog"
	"github.com/prebid/prebid-headertag/analytics"
)

// FileLogger writes every event as one JSON line to a daily rotated file.
type FileLogger struct {
	Logger *glog.Logger
}

// LogEvent implements analytics.Module.
func (f *FileLogger) LogEvent(event *analytics.Event) {
	if event == nil {
		return
	}
	f.Logger.Debug(jsonifyEvent(event))
	f.Logger.Flush()
}

// Shutdown implements analytics.Module.
func (f *FileLogger) Shutdown() {
	f.Logger.Flush()
}

func jsonifyEvent(event *analytics.Event) string {
	b, err := json.Marshal(event)
	if err != nil {
		return fmt.Sprintf("Transactional Logs Error: %s event badly formed %v", event.Topic, err)
	}
	return string(b)
}

// NewFileLogger initializes the module.
func NewFileLogger(filename string) (analytics.Module, error) {
	options := glog.LogOptions{
		File:  filename,
		Flag:  glog.LstdFlags,
		Level: glog.Ldebug,
		Mode:  glog.R_Day,
	}
	logger, err := glog.New(options)
	if err != nil {
		return nil, fmt.Errorf("error creating file logger: %v", err)
	}
	return &FileLogger{Logger: logger}, nil
}
