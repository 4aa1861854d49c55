package diagnostic

import (
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gofiber/fiber/v2"
)

// LoopMetrics summarizes the control loops
type LoopMetrics struct {
	Ticks            int64     `json:"ticks"`
	Published        int64     `json:"published"`
	Skipped          int64     `json:"skipped_not_ready"`
	PublishErrors    int64     `json:"publish_errors"`
	ControlErrors    int64     `json:"control_errors"`
	Overruns         int64     `json:"overruns"`
	DampedInversions int64     `json:"damped_inversions"`
	LastTickMicros   int64     `json:"last_tick_us"`
	MaxTickMicros    int64     `json:"max_tick_us"`
	StateAccepted    int64     `json:"state_accepted"`
	StateRejected    int64     `json:"state_rejected"`
	Transitions      int64     `json:"transitions"`
	LastTransition   string    `json:"last_transition"`
	LastTransitionAt time.Time `json:"last_transition_at"`
	Timestamp        time.Time `json:"timestamp"`
}

// SourceFunc reports extra diagnostics, e.g. queue or topic statistics
type SourceFunc func() interface{}

// DiagnosticService collects loop metrics and serves them over HTTP
type DiagnosticService struct {
	mu      sync.RWMutex
	clock   clock.Clock
	metrics LoopMetrics
	sources map[string]SourceFunc
}

// NewDiagnosticService creates a new diagnostic service instance
func NewDiagnosticService(clk clock.Clock) *DiagnosticService {
	return &DiagnosticService{
		clock:   clk,
		metrics: LoopMetrics{Timestamp: clk.Now()},
		sources: make(map[string]SourceFunc),
	}
}

// AddSource registers a named diagnostics provider shown next to the loop metrics
func (s *DiagnosticService) AddSource(name string, fn SourceFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources[name] = fn
}

// RecordTick records one outbound tick that ran the control law. Work longer
// than period counts as an overrun; missed ticks are not made up.
func (s *DiagnosticService) RecordTick(took, period time.Duration, published bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := &s.metrics
	m.Ticks++
	if published {
		m.Published++
	}
	m.LastTickMicros = took.Microseconds()
	if m.LastTickMicros > m.MaxTickMicros {
		m.MaxTickMicros = m.LastTickMicros
	}
	if took > period {
		m.Overruns++
	}
	m.Timestamp = s.clock.Now()
}

func (s *DiagnosticService) RecordSkip() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.Ticks++
	s.metrics.Skipped++
}

func (s *DiagnosticService) RecordPublishError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.PublishErrors++
}

func (s *DiagnosticService) RecordControlError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.ControlErrors++
}

func (s *DiagnosticService) RecordDampedInversion() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.DampedInversions++
}

// RecordState counts an inbound state update
func (s *DiagnosticService) RecordState(accepted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if accepted {
		s.metrics.StateAccepted++
	} else {
		s.metrics.StateRejected++
	}
}

// RecordTransition counts a completed mode transition
func (s *DiagnosticService) RecordTransition(mode string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.Transitions++
	s.metrics.LastTransition = mode
	s.metrics.LastTransitionAt = s.clock.Now()
}

// GetMetrics returns the current loop metrics
func (s *DiagnosticService) GetMetrics() LoopMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.metrics
}

// Snapshot returns loop metrics plus every registered source
func (s *DiagnosticService) Snapshot() map[string]interface{} {
	s.mu.RLock()
	names := make([]string, 0, len(s.sources))
	for name := range s.sources {
		names = append(names, name)
	}
	sources := make(map[string]SourceFunc, len(s.sources))
	for k, v := range s.sources {
		sources[k] = v
	}
	out := map[string]interface{}{"loop": s.metrics}
	s.mu.RUnlock()

	// Sources may take their own locks
	sort.Strings(names)
	for _, name := range names {
		out[name] = sources[name]()
	}
	return out
}

// GetMetricsHandler handles API requests for diagnostics
func (s *DiagnosticService) GetMetricsHandler(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "success",
		"metrics": s.Snapshot(),
	})
}
