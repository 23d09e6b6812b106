package eventchannel

import (
	"bytes"
	"compress/gzip"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/glog"
)

// Limit bounds a batch. A batch is flushed as soon as one of the limits is reached.
type Limit struct {
	MaxByteSize   int64
	MaxEventCount int64
	MaxTime       time.Duration
}

type batchStats struct {
	byteSize   int64
	eventCount int64
}

// EventChannel gzips pushed events into batches and hands each batch to a Sender.
type EventChannel struct {
	gz   *gzip.Writer
	buff *bytes.Buffer

	ch      chan []byte
	endCh   chan struct{}
	endOnce sync.Once
	wg      sync.WaitGroup

	mu    sync.Mutex
	stats batchStats
	send  Sender
	limit Limit
	clock clock.Clock
}

func NewEventChannel(sender Sender, c clock.Clock, limit Limit) *EventChannel {
	if c == nil {
		c = clock.New()
	}
	b := &bytes.Buffer{}
	channel := &EventChannel{
		gz:    gzip.NewWriter(b),
		buff:  b,
		ch:    make(chan []byte),
		endCh: make(chan struct{}),
		send:  sender,
		limit: limit,
		clock: c,
	}

	ticker := c.Ticker(limit.MaxTime)
	channel.wg.Add(1)
	go channel.start(ticker)
	return channel
}

// Push queues one event. Events should be newline terminated so the intake can split a batch.
// Events pushed after Close are dropped.
func (c *EventChannel) Push(event []byte) {
	select {
	case c.ch <- event:
	case <-c.endCh:
		glog.Warningf("event channel: closed, dropping event")
	}
}

// Close flushes the pending batch and waits for the senders in flight. It is safe to call
// more than once.
func (c *EventChannel) Close() {
	c.endOnce.Do(func() {
		close(c.endCh)
	})
	c.wg.Wait()
}

func (c *EventChannel) buffer(event []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.gz.Write(event); err != nil {
		glog.Warningf("event channel: fail to compress, skipping the event: %v", err)
		return
	}
	c.stats.eventCount++
	c.stats.byteSize += int64(len(event))
}

func (c *EventChannel) isBufferFull() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats.eventCount >= c.limit.MaxEventCount || c.stats.byteSize >= c.limit.MaxByteSize
}

func (c *EventChannel) reset() {
	c.buff.Reset()
	c.gz.Reset(c.buff)
	c.stats = batchStats{}
}

func (c *EventChannel) flush() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stats.eventCount == 0 {
		return
	}
	defer c.reset()

	if err := c.gz.Close(); err != nil {
		glog.Warningf("event channel: fail to close gzipped buffer: %v", err)
		return
	}

	payload := make([]byte, c.buff.Len())
	copy(payload, c.buff.Bytes())

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.send(payload); err != nil {
			glog.Warningf("event channel: fail to send batch: %v", err)
		}
	}()
}

func (c *EventChannel) start(ticker *clock.Ticker) {
	defer c.wg.Done()
	defer ticker.Stop()

	for {
		select {
		case <-c.endCh:
			c.flush()
			return

		case event := <-c.ch:
			c.buffer(event)
			if c.isBufferFull() {
				c.flush()
			}

		case <-ticker.C:
			c.flush()
		}
	}
}
