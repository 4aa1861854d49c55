package processing

import (
	"errors"
	"fmt"
	"sync"
	"time"

	customlog "github.com/open-legged/controller/pkg/log"
)

// Constants for priority levels
const (
	PriorityHigh     = "HIGH"
	PriorityStandard = "STANDARD"
)

var (
	ErrUnknownTopic   = errors.New("topic is not registered")
	ErrWrongDirection = errors.New("topic is not an inbound topic")
)

// GetCurrentTimestamp gets the current timestamp in nanoseconds
func GetCurrentTimestamp() int64 {
	return time.Now().UnixNano()
}

// MessageDirector validates inbound messages against the topic registry and
// routes them to the pool lane their topic's priority selects.
type MessageDirector struct {
	logger        customlog.Logger
	pool          *ProcessingPool
	topicRegistry *TopicRegistry
	running       bool
	mu            sync.RWMutex
}

// DirectorOptions holds configuration options for the MessageDirector
type DirectorOptions struct {
	HighQueueSize     int
	StandardQueueSize int
}

// NewMessageDirector creates a new message director and its pool
func NewMessageDirector(logger customlog.Logger, topicRegistry *TopicRegistry, options *DirectorOptions) *MessageDirector {
	if options == nil {
		options = &DirectorOptions{HighQueueSize: 1, StandardQueueSize: 64}
	}

	d := &MessageDirector{
		logger:        logger,
		topicRegistry: topicRegistry,
		pool:          NewProcessingPool("inbound", options.HighQueueSize, options.StandardQueueSize, logger),
	}
	d.logger.Infof("Message Director initialized with lanes: HIGH(%d), STANDARD(%d)",
		options.HighQueueSize, options.StandardQueueSize)
	return d
}

// SetProcessor sets the function the inbound worker calls per message
func (d *MessageDirector) SetProcessor(processor MessageProcessor) {
	d.pool.SetProcessor(processor)
}

// SetDiscardHandler sets the function called for messages discarded at Stop
func (d *MessageDirector) SetDiscardHandler(handler DiscardHandler) {
	d.pool.SetDiscardHandler(handler)
}

// RouteMessage routes a message to the lane of its topic's priority
func (d *MessageDirector) RouteMessage(msg *Message) error {
	d.mu.RLock()
	running := d.running
	d.mu.RUnlock()

	if !running {
		return ErrPoolStopped
	}

	info, exists := d.topicRegistry.GetTopicInfo(msg.Topic)
	if !exists {
		return fmt.Errorf("%w: '%s'", ErrUnknownTopic, msg.Topic)
	}
	if info.Direction != DirectionInbound {
		d.topicRegistry.RecordReject(msg.Topic)
		return fmt.Errorf("%w: '%s'", ErrWrongDirection, msg.Topic)
	}
	if msg.Timestamp == 0 {
		msg.Timestamp = GetCurrentTimestamp()
	}
	d.topicRegistry.UpdateTopicStats(msg.Topic, msg.Timestamp)

	d.logger.Debugf("Routing message for topic '%s' to %s lane", msg.Topic, info.Priority)
	if err := d.pool.ProcessMessage(info.Priority, msg); err != nil {
		d.topicRegistry.RecordReject(msg.Topic)
		return fmt.Errorf("failed to enqueue message for topic '%s' (priority: %s): %w", msg.Topic, info.Priority, err)
	}
	return nil
}

// Start starts the inbound worker
func (d *MessageDirector) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return
	}
	d.running = true
	d.logger.Infof("Starting Message Director")
	d.pool.Start()
}

// Stop stops accepting messages, discards queued ones and joins the worker
func (d *MessageDirector) Stop() {
	d.mu.Lock()
	running := d.running
	d.running = false
	d.mu.Unlock()

	if !running {
		return
	}

	d.logger.Infof("Stopping Message Director")
	d.pool.Stop()
	d.logger.Infof("Message Director stopped")
}

// GetPoolMetrics returns metrics for each lane
func (d *MessageDirector) GetPoolMetrics() map[string]PoolMetrics {
	return d.pool.GetMetrics()
}

// TopicRegistry exposes the registry the director validates against
func (d *MessageDirector) TopicRegistry() *TopicRegistry {
	return d.topicRegistry
}
