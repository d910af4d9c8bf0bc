// Package collector buffers analytics events off the request path. Each
// event is recorded locally and batched to Kafka when a publisher is set.
package collector

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/textsearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/textsearch/pkg/metrics"
)

type Publisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

type Recorder interface {
	Record(event any)
}

// Options tunes buffering; zero values take defaults.
type Options struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
	Metrics       *metrics.Metrics
}

type Collector struct {
	publisher     Publisher
	recorder      Recorder
	events        chan any
	batchSize     int
	flushInterval time.Duration
	metrics       *metrics.Metrics
	logger        *slog.Logger

	mu      sync.RWMutex
	closed  bool
	started bool
	done    chan struct{}
}

// New creates a collector. Either publisher or recorder may be nil.
func New(publisher Publisher, recorder Recorder, opts Options) *Collector {
	if opts.BufferSize <= 0 {
		opts.BufferSize = 10000
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 2 * time.Second
	}
	return &Collector{
		publisher:     publisher,
		recorder:      recorder,
		events:        make(chan any, opts.BufferSize),
		batchSize:     opts.BatchSize,
		flushInterval: opts.FlushInterval,
		metrics:       opts.Metrics,
		logger:        slog.Default().With("component", "analytics-collector"),
		done:          make(chan struct{}),
	}
}

// Start launches the processing loop. It stops when ctx is cancelled or
// Close is called, flushing whatever is buffered.
func (c *Collector) Start(ctx context.Context) {
	c.mu.Lock()
	c.started = true
	c.mu.Unlock()
	go c.loop(ctx)
	c.logger.Info("analytics collector started",
		"buffer_size", cap(c.events),
		"batch_size", c.batchSize,
		"publish", c.publisher != nil,
	)
}

// Track enqueues event without blocking. It reports false when the event
// was dropped because the buffer is full or the collector is closed.
func (c *Collector) Track(event any) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.events <- event:
		return true
	default:
		c.metrics.AnalyticsEventDropped()
		c.logger.Warn("analytics event dropped (buffer full)")
		return false
	}
}

// Close stops accepting events and waits for the loop to flush.
func (c *Collector) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.events)
	started := c.started
	c.mu.Unlock()
	if started {
		<-c.done
	}
}

func (c *Collector) loop(ctx context.Context) {
	defer close(c.done)
	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()
	batch := make([]kafka.Event, 0, c.batchSize)
	for {
		select {
		case event, ok := <-c.events:
			if !ok {
				c.final(batch)
				return
			}
			batch = c.add(ctx, batch, event)
		case <-ticker.C:
			batch = c.flush(ctx, batch)
		case <-ctx.Done():
			c.drain(batch)
			return
		}
	}
}

func (c *Collector) add(ctx context.Context, batch []kafka.Event, event any) []kafka.Event {
	if c.recorder != nil {
		c.recorder.Record(event)
	}
	if c.publisher == nil {
		return batch
	}
	batch = append(batch, kafka.Event{Key: eventKey(event), Value: event})
	if len(batch) >= c.batchSize {
		batch = c.flush(ctx, batch)
	}
	return batch
}

// flush publishes batch. On failure the events are kept for the next
// attempt, up to three batches' worth; older ones beyond that are dropped.
func (c *Collector) flush(ctx context.Context, batch []kafka.Event) []kafka.Event {
	if len(batch) == 0 || c.publisher == nil {
		return batch
	}
	if err := c.publisher.PublishBatch(ctx, batch); err != nil {
		c.logger.Error("analytics flush failed", "events", len(batch), "error", err)
		if limit := c.batchSize * 3; len(batch) > limit {
			dropped := len(batch) - limit
			for i := 0; i < dropped; i++ {
				c.metrics.AnalyticsEventDropped()
			}
			batch = append(batch[:0], batch[dropped:]...)
		}
		return batch
	}
	return batch[:0]
}

func (c *Collector) drain(batch []kafka.Event) {
	for {
		select {
		case event, ok := <-c.events:
			if !ok {
				c.final(batch)
				return
			}
			batch = c.add(context.Background(), batch, event)
		default:
			c.final(batch)
			return
		}
	}
}

func (c *Collector) final(batch []kafka.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if rest := c.flush(ctx, batch); len(rest) > 0 {
		c.logger.Warn("analytics events lost on shutdown", "events", len(rest))
	}
}

func eventKey(event any) string {
	if k, ok := event.(interface{ EventKey() string }); ok {
		return k.EventKey()
	}
	return "analytics"
}
