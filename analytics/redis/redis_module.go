package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/prebid/prebid-headertag/analytics"
	"github.com/prebid/prebid-headertag/config"
	redis "github.com/redis/go-redis/v9"
)

const (
	queueSize      = 1024
	publishTimeout = 200 * time.Millisecond
)

// Publisher publishes every event on a redis channel so other services can follow the
// partner request lifecycle live. Events are dropped when the queue is full.
type Publisher struct {
	client  *redis.Client
	channel string
	done    sync.WaitGroup
	once    sync.Once

	mu     sync.RWMutex
	closed bool
	queue  chan []byte
}

// NewPublisher connects to redis. It returns an error if the server cannot be reached.
func NewPublisher(ctx context.Context, cfg config.RedisEvents) (*Publisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		WriteTimeout: time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping to %s failed: %w", cfg.Addr, err)
	}
	return newPublisher(client, cfg.Channel), nil
}

func newPublisher(client *redis.Client, channel string) *Publisher {
	p := &Publisher{
		client:  client,
		channel: channel,
		queue:   make(chan []byte, queueSize),
	}
	p.done.Add(1)
	go p.run()
	return p
}

func (p *Publisher) run() {
	defer p.done.Done()
	for message := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		if err := p.client.Publish(ctx, p.channel, message).Err(); err != nil {
			glog.Warningf("[redis] publish on %s failed: %v", p.channel, err)
		}
		cancel()
	}
}

// LogEvent implements analytics.Module.
func (p *Publisher) LogEvent(event *analytics.Event) {
	if event == nil {
		return
	}
	message, err := json.Marshal(event)
	if err != nil {
		glog.Warningf("[redis] cannot serialize %s event: %v", event.Topic, err)
		return
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		glog.Warningf("[redis] publisher shut down, dropping %s event", event.Topic)
		return
	}
	select {
	case p.queue <- message:
	default:
		glog.Warningf("[redis] queue full, dropping %s event", event.Topic)
	}
}

// Shutdown drains the queue and closes the connection.
func (p *Publisher) Shutdown() {
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.queue)
		p.mu.Unlock()

		p.done.Wait()
		if err := p.client.Close(); err != nil {
			glog.Warningf("[redis] close failed: %v", err)
		}
	})
}
