package processing

import (
	"errors"
	"sync"
	"time"

	customlog "github.com/open-legged/controller/pkg/log"
)

var (
	ErrPoolStopped = errors.New("processing pool is not running")
	ErrQueueFull   = errors.New("processing queue is full")
)

// Message is a unit of inbound work. Transport messages carry raw bytes in
// Data; in-process requests carry a typed value in Payload.
type Message struct {
	Topic     string
	Data      []byte
	Payload   interface{}
	Timestamp int64
}

// MessageProcessor handles one message on the pool's worker
type MessageProcessor func(msg *Message) error

// DiscardHandler is called for each message dropped at shutdown
type DiscardHandler func(msg *Message)

// ProcessingPool is a single-worker queue with a HIGH and a STANDARD lane.
// The worker always drains HIGH before taking STANDARD work, and handles
// one message at a time so handlers never run concurrently.
type ProcessingPool struct {
	name      string
	logger    customlog.Logger
	lanes     map[string]chan *Message
	order     []string
	running   bool
	stop      chan struct{}
	wg        sync.WaitGroup
	mu        sync.RWMutex
	processor MessageProcessor
	discard   DiscardHandler
	metrics   map[string]*PoolMetrics
}

// PoolMetrics tracks metrics for a single lane
type PoolMetrics struct {
	ProcessedCount    int64 `json:"processed"`
	ErrorCount        int64 `json:"errors"`
	QueuedCount       int64 `json:"queued"`
	DroppedCount      int64 `json:"dropped"`
	DiscardedCount    int64 `json:"discarded"`
	LastProcessedTime int64 `json:"last_processed_ns"`
	ProcessingTimeAvg int64 `json:"processing_time_avg_us"`
	ProcessingTimeMax int64 `json:"processing_time_max_us"`
	QueueLength       int   `json:"queue_length"`
	QueueCapacity     int   `json:"queue_capacity"`
	mu                sync.Mutex
}

// NewProcessingPool creates a pool whose HIGH lane holds highSize messages and
// STANDARD lane holds standardSize.
func NewProcessingPool(name string, highSize, standardSize int, logger customlog.Logger) *ProcessingPool {
	return &ProcessingPool{
		name:   name,
		logger: logger,
		lanes: map[string]chan *Message{
			PriorityHigh:     make(chan *Message, highSize),
			PriorityStandard: make(chan *Message, standardSize),
		},
		order: []string{PriorityHigh, PriorityStandard},
		metrics: map[string]*PoolMetrics{
			PriorityHigh:     {},
			PriorityStandard: {},
		},
	}
}

// SetProcessor sets the message processor function
func (p *ProcessingPool) SetProcessor(processor MessageProcessor) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.processor = processor
}

// SetDiscardHandler sets the function told about messages dropped by Stop
func (p *ProcessingPool) SetDiscardHandler(handler DiscardHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.discard = handler
}

// ProcessMessage queues msg on the given lane without blocking
func (p *ProcessingPool) ProcessMessage(priority string, msg *Message) error {
	// Hold the read lock across the send so Stop cannot drain in between
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.running {
		return ErrPoolStopped
	}
	lane, ok := p.lanes[priority]
	if !ok {
		lane = p.lanes[PriorityStandard]
		priority = PriorityStandard
	}
	m := p.metrics[priority]

	select {
	case lane <- msg:
		m.mu.Lock()
		m.QueuedCount++
		m.mu.Unlock()
		return nil
	default:
		m.mu.Lock()
		m.DroppedCount++
		m.mu.Unlock()
		p.logger.Warnf("%s pool %s lane is full, dropping message for topic '%s'", p.name, priority, msg.Topic)
		return ErrQueueFull
	}
}

// Start starts the worker
func (p *ProcessingPool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return
	}

	p.running = true
	p.stop = make(chan struct{})
	p.logger.Infof("Starting %s pool", p.name)

	p.wg.Add(1)
	go p.worker(p.stop)
}

// Stop rejects new work, discards anything still queued and joins the worker.
func (p *ProcessingPool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stop)
	p.mu.Unlock()

	p.logger.Infof("Stopping %s pool", p.name)

	discarded := p.drain()
	p.wg.Wait()
	// The worker may have been between lanes when stop closed
	discarded += p.drain()

	p.logger.Infof("%s pool stopped, discarded %d queued messages", p.name, discarded)
	p.logMetrics()
}

func (p *ProcessingPool) drain() int {
	p.mu.RLock()
	discard := p.discard
	p.mu.RUnlock()

	count := 0
	for _, priority := range p.order {
		lane := p.lanes[priority]
		for {
			select {
			case msg := <-lane:
				count++
				m := p.metrics[priority]
				m.mu.Lock()
				m.DiscardedCount++
				m.mu.Unlock()
				if discard != nil {
					discard(msg)
				}
				continue
			default:
			}
			break
		}
	}
	return count
}

// next blocks for the next message, preferring the HIGH lane.
func (p *ProcessingPool) next(stop <-chan struct{}) (*Message, string, bool) {
	high, standard := p.lanes[PriorityHigh], p.lanes[PriorityStandard]

	select {
	case <-stop:
		return nil, "", false
	default:
	}
	select {
	case msg := <-high:
		return msg, PriorityHigh, true
	default:
	}

	select {
	case <-stop:
		return nil, "", false
	case msg := <-high:
		return msg, PriorityHigh, true
	case msg := <-standard:
		return msg, PriorityStandard, true
	}
}

func (p *ProcessingPool) worker(stop <-chan struct{}) {
	defer p.wg.Done()

	p.logger.Debugf("%s pool worker started", p.name)

	for {
		msg, priority, ok := p.next(stop)
		if !ok {
			break
		}

		p.mu.RLock()
		processor := p.processor
		p.mu.RUnlock()

		if processor == nil {
			p.logger.Errorf("No message processor set for %s pool", p.name)
			continue
		}

		startTime := time.Now()
		err := processor(msg)
		processingTime := time.Since(startTime).Microseconds()

		m := p.metrics[priority]
		m.mu.Lock()
		m.ProcessedCount++
		m.LastProcessedTime = time.Now().UnixNano()
		if m.ProcessingTimeAvg == 0 {
			m.ProcessingTimeAvg = processingTime
		} else {
			// Simple moving average
			m.ProcessingTimeAvg = (m.ProcessingTimeAvg + processingTime) / 2
		}
		if processingTime > m.ProcessingTimeMax {
			m.ProcessingTimeMax = processingTime
		}
		if err != nil {
			m.ErrorCount++
		}
		m.mu.Unlock()

		if err != nil {
			p.logger.Errorf("Error processing message for topic '%s' in %s pool: %v", msg.Topic, p.name, err)
		}
	}

	p.logger.Debugf("%s pool worker stopped", p.name)
}

// GetMetrics returns a copy of the metrics of every lane
func (p *ProcessingPool) GetMetrics() map[string]PoolMetrics {
	out := make(map[string]PoolMetrics, len(p.metrics))
	for priority, m := range p.metrics {
		m.mu.Lock()
		out[priority] = PoolMetrics{
			ProcessedCount:    m.ProcessedCount,
			ErrorCount:        m.ErrorCount,
			QueuedCount:       m.QueuedCount,
			DroppedCount:      m.DroppedCount,
			DiscardedCount:    m.DiscardedCount,
			LastProcessedTime: m.LastProcessedTime,
			ProcessingTimeAvg: m.ProcessingTimeAvg,
			ProcessingTimeMax: m.ProcessingTimeMax,
			QueueLength:       len(p.lanes[priority]),
			QueueCapacity:     cap(p.lanes[priority]),
		}
		m.mu.Unlock()
	}
	return out
}

func (p *ProcessingPool) logMetrics() {
	for priority, m := range p.GetMetrics() {
		p.logger.Infof("%s pool %s lane metrics: processed=%d, errors=%d, dropped=%d, discarded=%d, avg_time=%dµs, max_time=%dµs",
			p.name, priority, m.ProcessedCount, m.ErrorCount, m.DroppedCount, m.DiscardedCount,
			m.ProcessingTimeAvg, m.ProcessingTimeMax)
	}
}

// GetName returns the pool name
func (p *ProcessingPool) GetName() string {
	return p.name
}

// IsRunning reports whether the pool accepts work
func (p *ProcessingPool) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}
