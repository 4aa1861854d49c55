package processing

import (
	"sort"
	"sync"

	"github.com/open-legged/controller/pkg/config"
	customlog "github.com/open-legged/controller/pkg/log"
)

// Message kinds carried on registered topics
const (
	KindGenCoord    = "GEN_COORD"
	KindGenVel      = "GEN_VEL"
	KindModeRequest = "MODE_REQUEST"
	KindJointCmd    = "JOINT_CMD"
	KindJointVelCmd = "JOINT_VEL_CMD"
)

// Topic directions
const (
	DirectionInbound  = "INBOUND"
	DirectionOutbound = "OUTBOUND"
)

// TopicInfo holds metadata for a topic
type TopicInfo struct {
	Topic        string
	MessageType  string
	Priority     string
	Direction    string
	StatCount    int64
	RejectCount  int64
	LastReceived int64
}

// TopicRegistry maintains information about topics
type TopicRegistry struct {
	logger customlog.Logger
	topics map[string]*TopicInfo
	mu     sync.RWMutex
}

// NewTopicRegistry creates a new topic registry
func NewTopicRegistry(logger customlog.Logger) *TopicRegistry {
	return &TopicRegistry{
		logger: logger,
		topics: make(map[string]*TopicInfo),
	}
}

// LoadFromChannels registers the controller's channels. Mode requests ride
// the HIGH lane so a queued burst of state updates cannot delay them.
func (r *TopicRegistry) LoadFromChannels(ch config.Channels) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.topics = map[string]*TopicInfo{
		ch.GenCoord:  {Topic: ch.GenCoord, MessageType: KindGenCoord, Priority: PriorityStandard, Direction: DirectionInbound},
		ch.GenVel:    {Topic: ch.GenVel, MessageType: KindGenVel, Priority: PriorityStandard, Direction: DirectionInbound},
		ch.Standup:   {Topic: ch.Standup, MessageType: KindModeRequest, Priority: PriorityHigh, Direction: DirectionInbound},
		ch.JointCmd:  {Topic: ch.JointCmd, MessageType: KindJointCmd, Priority: PriorityStandard, Direction: DirectionOutbound},
		ch.JointVCmd: {Topic: ch.JointVCmd, MessageType: KindJointVelCmd, Priority: PriorityStandard, Direction: DirectionOutbound},
	}

	r.logger.Infof("Loaded %d topics into registry", len(r.topics))
}

// GetTopicInfo gets a copy of the information for a topic
func (r *TopicRegistry) GetTopicInfo(topic string) (*TopicInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info, exists := r.topics[topic]
	if !exists {
		return nil, false
	}
	infoCopy := *info
	return &infoCopy, true
}

// GetTopicPriority gets the priority for a topic
func (r *TopicRegistry) GetTopicPriority(topic string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info, exists := r.topics[topic]
	if !exists {
		return "", false
	}
	return info.Priority, true
}

// GetMessageType gets the message kind for a topic
func (r *TopicRegistry) GetMessageType(topic string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info, exists := r.topics[topic]
	if !exists {
		return "", false
	}
	return info.MessageType, true
}

// UpdateTopicStats counts a message seen on a registered topic. Unknown
// topics are ignored.
func (r *TopicRegistry) UpdateTopicStats(topic string, timestamp int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if info, exists := r.topics[topic]; exists {
		info.StatCount++
		info.LastReceived = timestamp
	}
}

// RecordReject counts a message on topic that failed validation or queueing
func (r *TopicRegistry) RecordReject(topic string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if info, exists := r.topics[topic]; exists {
		info.RejectCount++
	}
}

// GetAllTopics returns the registered topics in sorted order
func (r *TopicRegistry) GetAllTopics() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	topics := make([]string, 0, len(r.topics))
	for topic := range r.topics {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics
}

// GetTopicStats returns a map of topic statistics
func (r *TopicRegistry) GetTopicStats() map[string]map[string]interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := make(map[string]map[string]interface{})
	for topic, info := range r.topics {
		stats[topic] = map[string]interface{}{
			"count":         info.StatCount,
			"rejected":      info.RejectCount,
			"last_received": info.LastReceived,
			"type":          info.MessageType,
			"priority":      info.Priority,
			"direction":     info.Direction,
		}
	}
	return stats
}
