// Package decisionlog records evaluation outcomes asynchronously. Events are
// buffered in a ring and flushed to the configured writer in the background,
// so logging never blocks the decision path; under sustained overload the
// oldest events are dropped and counted.
package decisionlog

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Logger logs decision events
type Logger interface {
	// Log enqueues a decision event (non-blocking)
	Log(event *Event)

	// Flush flushes pending events
	Flush() error

	// Dropped reports how many events were discarded because the buffer
	// was full
	Dropped() uint64

	// Close closes the logger and flushes remaining events
	Close() error
}

// Config for the decision logger
type Config struct {
	// Enabled enables decision logging
	Enabled bool

	// Output type: stdout, file
	Type string

	// For file output
	FilePath       string
	FileMaxSize    int // MB
	FileMaxAge     int // Days
	FileMaxBackups int

	// Performance tuning
	BufferSize    int           // Ring buffer size (default: 1000)
	FlushInterval time.Duration // Batch interval (default: 100ms)
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		Enabled:        true,
		Type:           "stdout",
		BufferSize:     1000,
		FlushInterval:  100 * time.Millisecond,
		FileMaxSize:    100, // 100MB
		FileMaxAge:     30,  // 30 days
		FileMaxBackups: 10,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.Type == "" {
		return fmt.Errorf("decision log type is required")
	}

	if c.Type != "stdout" && c.Type != "file" {
		return fmt.Errorf("invalid decision log type: %s (must be stdout or file)", c.Type)
	}

	if c.Type == "file" && c.FilePath == "" {
		return fmt.Errorf("file path is required for file output")
	}

	if c.BufferSize <= 0 {
		c.BufferSize = 1000
	}

	if c.FlushInterval <= 0 {
		c.FlushInterval = 100 * time.Millisecond
	}

	return nil
}

// New creates a decision logger for the given configuration. A disabled
// config yields a no-op logger.
func New(cfg Config) (Logger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if !cfg.Enabled {
		return &nopLogger{}, nil
	}

	var writer Writer
	var err error

	switch cfg.Type {
	case "stdout":
		writer = NewStdoutWriter()
	case "file":
		writer, err = NewFileWriter(cfg.FilePath, cfg.FileMaxSize, cfg.FileMaxAge, cfg.FileMaxBackups)
		if err != nil {
			return nil, fmt.Errorf("create file writer: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported decision log type: %s", cfg.Type)
	}

	return newAsyncLogger(writer, cfg), nil
}

// NewNop returns a logger that discards every event.
func NewNop() Logger {
	return &nopLogger{}
}

// nopLogger is used when decision logging is disabled
type nopLogger struct{}

func (n *nopLogger) Log(event *Event) {}
func (n *nopLogger) Flush() error     { return nil }
func (n *nopLogger) Dropped() uint64  { return 0 }
func (n *nopLogger) Close() error     { return nil }

// asyncLogger buffers events in a ring and flushes them in the background
type asyncLogger struct {
	writer Writer

	// Ring buffer
	buffer []*Event
	size   int
	head   int
	tail   int
	closed bool
	mu     sync.Mutex

	dropped atomic.Uint64

	// Background writer
	flushCh  chan struct{}
	doneCh   chan struct{}
	stopped  chan struct{}
	interval time.Duration
}

func newAsyncLogger(writer Writer, cfg Config) *asyncLogger {
	l := &asyncLogger{
		writer:   writer,
		buffer:   make([]*Event, cfg.BufferSize),
		size:     cfg.BufferSize,
		flushCh:  make(chan struct{}, 1),
		doneCh:   make(chan struct{}),
		stopped:  make(chan struct{}),
		interval: cfg.FlushInterval,
	}

	go l.run()

	return l
}

// Log enqueues a decision event. Missing identity fields are filled in.
func (l *asyncLogger) Log(event *Event) {
	if event == nil {
		return
	}
	if event.EventID == "" {
		event.EventID = generateEventID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	l.enqueue(event)
}

// enqueue adds an event to the ring buffer (non-blocking)
func (l *asyncLogger) enqueue(event *Event) {
	l.mu.Lock()

	if l.closed {
		l.mu.Unlock()
		return
	}

	l.buffer[l.tail] = event
	l.tail = (l.tail + 1) % l.size

	// Drop oldest if buffer full (overflow protection)
	if l.tail == l.head {
		l.head = (l.head + 1) % l.size
		l.dropped.Add(1)
	}

	l.mu.Unlock()

	// Trigger flush (non-blocking)
	select {
	case l.flushCh <- struct{}{}:
	default:
	}
}

// run is the background goroutine that flushes events periodically
func (l *asyncLogger) run() {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = l.flush()
		case <-l.flushCh:
			_ = l.flush()
		case <-l.doneCh:
			_ = l.flush() // Final flush on shutdown
			close(l.stopped)
			return
		}
	}
}

// Flush flushes pending events (can be called externally)
func (l *asyncLogger) Flush() error {
	return l.flush()
}

// flush writes all buffered events to the writer
func (l *asyncLogger) flush() error {
	l.mu.Lock()
	events := l.copyEvents()
	l.mu.Unlock()

	if len(events) == 0 {
		return nil
	}

	// Write events (outside of lock)
	var lastErr error
	for _, event := range events {
		if err := l.writer.Write(event); err != nil {
			lastErr = err
			// Continue writing other events even if one fails
		}
	}

	return lastErr
}

// copyEvents copies events from ring buffer and clears it
func (l *asyncLogger) copyEvents() []*Event {
	if l.head == l.tail {
		return nil
	}

	var events []*Event
	i := l.head
	for i != l.tail {
		events = append(events, l.buffer[i])
		i = (i + 1) % l.size
	}

	// Clear buffer
	l.head = l.tail

	return events
}

// Dropped reports how many events were discarded due to buffer overflow
func (l *asyncLogger) Dropped() uint64 {
	return l.dropped.Load()
}

// Close stops the background flusher, waits for the final flush and closes
// the writer. Safe to call more than once.
func (l *asyncLogger) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	close(l.doneCh)
	<-l.stopped
	return l.writer.Close()
}
