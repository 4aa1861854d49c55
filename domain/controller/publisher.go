package controller

import "go.uber.org/multierr"

// CommandPublisher sends a command pair to the joint drivers.
type CommandPublisher interface {
	PublishCommands(cmd CommandPair) error
}

// MultiPublisher fans a command pair out to several publishers. Every
// publisher is tried; errors are combined.
type MultiPublisher []CommandPublisher

func (m MultiPublisher) PublishCommands(cmd CommandPair) error {
	var err error
	for _, p := range m {
		err = multierr.Append(err, p.PublishCommands(cmd))
	}
	return err
}
