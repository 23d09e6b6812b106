package task

import (
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/glog"
)

type Runner interface {
	Run() error
}

// TickerTask runs a Runner on a fixed interval until stopped.
type TickerTask struct {
	name           string
	interval       time.Duration
	runner         Runner
	clock          clock.Clock
	skipInitialRun bool
	done           chan struct{}
}

type Options struct {
	// Name is used in log lines when a run fails.
	Name           string
	Interval       time.Duration
	Runner         Runner
	SkipInitialRun bool
	// Clock defaults to the wall clock.
	Clock clock.Clock
}

func NewTickerTask(interval time.Duration, runner Runner) *TickerTask {
	return NewTickerTaskWithOptions(Options{
		Interval: interval,
		Runner:   runner,
	})
}

func NewTickerTaskWithOptions(opt Options) *TickerTask {
	c := opt.Clock
	if c == nil {
		c = clock.New()
	}
	return &TickerTask{
		name:           opt.Name,
		interval:       opt.Interval,
		runner:         opt.Runner,
		clock:          c,
		skipInitialRun: opt.SkipInitialRun,
		done:           make(chan struct{}),
	}
}

// Start runs the task immediately and then schedules the task to run periodically
// if a positive interval has been specified.
func (t *TickerTask) Start() {
	if !t.skipInitialRun {
		t.run()
	}

	if t.interval > 0 {
		go t.runRecurring(t.clock.Ticker(t.interval))
	}
}

// Stop stops the periodic task but the task runner maintains state
func (t *TickerTask) Stop() {
	close(t.done)
}

// Done exports readonly done channel
func (t *TickerTask) Done() <-chan struct{} {
	return t.done
}

func (t *TickerTask) run() {
	if err := t.runner.Run(); err != nil {
		glog.Warningf("task %s failed: %v", t.name, err)
	}
}

// The ticker is created by Start so a mock clock sees it before the caller advances time.
func (t *TickerTask) runRecurring(ticker *clock.Ticker) {
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.run()
		case <-t.done:
			return
		}
	}
}
