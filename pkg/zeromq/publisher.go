package zeromq

import (
	"github.com/open-legged/controller/domain/controller"
	"github.com/open-legged/controller/pkg/config"
	"github.com/open-legged/controller/pkg/processing"
	"github.com/open-legged/controller/pkg/wire"
	"go.uber.org/multierr"
)

// Publisher is the outbound socket as seen by CommandPublisher
type Publisher interface {
	PublishMessage(topic string, payload []byte) error
}

// CommandPublisher sends each command pair as two Float64Array messages,
// positions first.
type CommandPublisher struct {
	publisher Publisher
	channels  config.Channels
	registry  *processing.TopicRegistry
}

var _ controller.CommandPublisher = (*CommandPublisher)(nil)

// NewCommandPublisher creates a publisher; registry may be nil
func NewCommandPublisher(publisher Publisher, channels config.Channels, registry *processing.TopicRegistry) *CommandPublisher {
	return &CommandPublisher{
		publisher: publisher,
		channels:  channels,
		registry:  registry,
	}
}

// PublishCommands publishes q_j_cmd then q_j_dot_cmd. Both are attempted
// even when the first fails.
func (p *CommandPublisher) PublishCommands(cmd controller.CommandPair) error {
	stamp := processing.GetCurrentTimestamp()

	var err error
	err = multierr.Append(err, p.publish(p.channels.JointCmd, cmd.Position, stamp))
	err = multierr.Append(err, p.publish(p.channels.JointVCmd, cmd.Velocity, stamp))
	return err
}

func (p *CommandPublisher) publish(topic string, data []float64, stamp int64) error {
	if err := p.publisher.PublishMessage(topic, wire.Encode(topic, data, stamp)); err != nil {
		if p.registry != nil {
			p.registry.RecordReject(topic)
		}
		return err
	}
	if p.registry != nil {
		p.registry.UpdateTopicStats(topic, stamp)
	}
	return nil
}
