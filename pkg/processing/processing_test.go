package processing

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/open-legged/controller/pkg/config"
	customlog "github.com/open-legged/controller/pkg/log"
)

var testChannels = (&config.Config{RobotID: "anymal"}).Channels()

// gatedDirector returns a running director whose processor blocks on the
// first message until gate is closed.
func gatedDirector(t *testing.T, high, standard int) (*MessageDirector, chan struct{}, func() []string) {
	t.Helper()
	logger := customlog.NewWriterLogger("error", io.Discard)
	registry := NewTopicRegistry(logger)
	registry.LoadFromChannels(testChannels)
	director := NewMessageDirector(logger, registry, &DirectorOptions{HighQueueSize: high, StandardQueueSize: standard})

	gate := make(chan struct{})
	started := make(chan struct{})
	var mu sync.Mutex
	var order []string
	first := true

	director.SetProcessor(func(msg *Message) error {
		mu.Lock()
		order = append(order, string(msg.Data))
		isFirst := first
		first = false
		mu.Unlock()
		if isFirst {
			close(started)
			<-gate
		}
		return nil
	})
	director.Start()

	if err := director.RouteMessage(&Message{Topic: testChannels.GenCoord, Data: []byte("first")}); err != nil {
		t.Fatalf("RouteMessage failed: %v", err)
	}
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatalf("Worker never picked up the first message")
	}

	return director, gate, func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), order...)
	}
}

func TestRouteMessageValidatesTopics(t *testing.T) {
	logger := customlog.NewWriterLogger("error", io.Discard)
	registry := NewTopicRegistry(logger)
	registry.LoadFromChannels(testChannels)
	director := NewMessageDirector(logger, registry, nil)
	director.SetProcessor(func(*Message) error { return nil })

	if err := director.RouteMessage(&Message{Topic: testChannels.GenCoord}); !errors.Is(err, ErrPoolStopped) {
		t.Errorf("Expected ErrPoolStopped before Start, got %v", err)
	}

	director.Start()
	defer director.Stop()

	if err := director.RouteMessage(&Message{Topic: "/other/gen_coord"}); !errors.Is(err, ErrUnknownTopic) {
		t.Errorf("Expected ErrUnknownTopic, got %v", err)
	}
	if err := director.RouteMessage(&Message{Topic: testChannels.JointCmd}); !errors.Is(err, ErrWrongDirection) {
		t.Errorf("Expected ErrWrongDirection, got %v", err)
	}
	if err := director.RouteMessage(&Message{Topic: testChannels.GenVel}); err != nil {
		t.Errorf("Expected gen_vel to route, got %v", err)
	}

	info, ok := registry.GetTopicInfo(testChannels.GenVel)
	if !ok || info.StatCount != 1 {
		t.Errorf("Expected one counted gen_vel message, got %+v", info)
	}
	info, _ = registry.GetTopicInfo(testChannels.JointCmd)
	if info.RejectCount != 1 {
		t.Errorf("Expected one rejected q_j_cmd message, got %d", info.RejectCount)
	}
}

func TestHighLaneIsServedFirst(t *testing.T) {
	director, gate, order := gatedDirector(t, 1, 8)

	for _, name := range []string{"state-1", "state-2"} {
		if err := director.RouteMessage(&Message{Topic: testChannels.GenCoord, Data: []byte(name)}); err != nil {
			t.Fatalf("RouteMessage failed: %v", err)
		}
	}
	if err := director.RouteMessage(&Message{Topic: testChannels.Standup, Data: []byte("mode")}); err != nil {
		t.Fatalf("RouteMessage failed: %v", err)
	}

	close(gate)
	deadline := time.Now().Add(2 * time.Second)
	for len(order()) < 4 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	director.Stop()

	got := order()
	want := []string{"first", "mode", "state-1", "state-2"}
	if len(got) != len(want) {
		t.Fatalf("Expected order %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Expected order %v, got %v", want, got)
			break
		}
	}
}

func TestHighLaneHoldsOneRequest(t *testing.T) {
	director, gate, _ := gatedDirector(t, 1, 8)
	defer func() {
		close(gate)
		director.Stop()
	}()

	if err := director.RouteMessage(&Message{Topic: testChannels.Standup}); err != nil {
		t.Fatalf("First mode request should queue, got %v", err)
	}
	if err := director.RouteMessage(&Message{Topic: testChannels.Standup}); !errors.Is(err, ErrQueueFull) {
		t.Errorf("Expected ErrQueueFull for second mode request, got %v", err)
	}

	metrics := director.GetPoolMetrics()
	if metrics[PriorityHigh].DroppedCount != 1 {
		t.Errorf("Expected 1 dropped HIGH message, got %d", metrics[PriorityHigh].DroppedCount)
	}
	if metrics[PriorityHigh].QueueCapacity != 1 {
		t.Errorf("Expected HIGH capacity 1, got %d", metrics[PriorityHigh].QueueCapacity)
	}
}

func TestStopDiscardsQueuedWork(t *testing.T) {
	director, gate, order := gatedDirector(t, 1, 8)

	discarded := make(chan *Message, 8)
	director.SetDiscardHandler(func(msg *Message) { discarded <- msg })

	for i := 0; i < 3; i++ {
		if err := director.RouteMessage(&Message{Topic: testChannels.GenVel}); err != nil {
			t.Fatalf("RouteMessage failed: %v", err)
		}
	}

	stopped := make(chan struct{})
	go func() {
		director.Stop()
		close(stopped)
	}()

	for i := 0; i < 3; i++ {
		select {
		case <-discarded:
		case <-time.After(2 * time.Second):
			t.Fatalf("Expected 3 discarded messages, got %d", i)
		}
	}

	// Stop still waits for the in-flight message
	select {
	case <-stopped:
		t.Fatalf("Stop returned before the worker finished")
	default:
	}
	close(gate)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatalf("Stop did not return")
	}

	if got := order(); len(got) != 1 {
		t.Errorf("Expected only the in-flight message processed, got %v", got)
	}
	if err := director.RouteMessage(&Message{Topic: testChannels.GenCoord}); !errors.Is(err, ErrPoolStopped) {
		t.Errorf("Expected ErrPoolStopped after Stop, got %v", err)
	}
}

func TestTopicRegistryStats(t *testing.T) {
	registry := NewTopicRegistry(customlog.NewWriterLogger("error", io.Discard))
	registry.LoadFromChannels(testChannels)

	if topics := registry.GetAllTopics(); len(topics) != 5 {
		t.Fatalf("Expected 5 topics, got %v", topics)
	}
	if p, _ := registry.GetTopicPriority(testChannels.Standup); p != PriorityHigh {
		t.Errorf("Expected standup on HIGH, got %s", p)
	}
	if kind, _ := registry.GetMessageType(testChannels.GenVel); kind != KindGenVel {
		t.Errorf("Expected %s, got %s", KindGenVel, kind)
	}

	registry.UpdateTopicStats(testChannels.JointCmd, 42)
	registry.UpdateTopicStats("/unknown", 43)
	stats := registry.GetTopicStats()
	if stats[testChannels.JointCmd]["count"].(int64) != 1 {
		t.Errorf("Expected q_j_cmd count 1, got %v", stats[testChannels.JointCmd]["count"])
	}
	if _, ok := stats["/unknown"]; ok {
		t.Errorf("Unknown topics must not be registered implicitly")
	}
}
