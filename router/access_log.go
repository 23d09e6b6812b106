package router

import (
	"net/http"
	"time"

	"github.com/prebid/prebid-headertag/config"
	"github.com/sirupsen/logrus"
)

// statusRecorder remembers the status code written by the wrapped handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

// AccessLog wraps a handler and writes one entry per request to the logger.
type AccessLog struct {
	Handler http.Handler
	Logger  *logrus.Logger
}

func (a AccessLog) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w}
	a.Handler.ServeHTTP(rec, r)

	status := rec.status
	if status == 0 {
		status = http.StatusOK
	}
	entry := a.Logger.WithFields(logrus.Fields{
		"method":   r.Method,
		"path":     r.URL.Path,
		"status":   status,
		"bytes":    rec.bytes,
		"duration": time.Since(start).String(),
		"referer":  r.Referer(),
	})
	if status >= http.StatusInternalServerError {
		entry.Warn("request failed")
		return
	}
	entry.Info("request served")
}

// WithAccessLog wraps the handler if the access log is enabled.
func WithAccessLog(cfg config.AccessLog, handler http.Handler) http.Handler {
	if !cfg.Enabled {
		return handler
	}
	return AccessLog{Handler: handler, Logger: newAccessLogger(cfg.Level)}
}

func newAccessLogger(level string) *logrus.Logger {
	l := logrus.New()
	l.Formatter = &logrus.JSONFormatter{}
	if lvl, err := logrus.ParseLevel(level); err == nil {
		l.SetLevel(lvl)
	}
	return l
}
