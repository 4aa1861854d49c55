package zeromq

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/open-legged/controller/pkg/config"
	customlog "github.com/open-legged/controller/pkg/log"
	"github.com/open-legged/controller/pkg/processing"
	"github.com/pebbe/zmq4"
	"go.uber.org/atomic"
)

// Router accepts inbound messages for the processing queue
type Router interface {
	RouteMessage(msg *processing.Message) error
}

// StateSubscriber receives [topic, payload] state messages from the robot
// and hands them to the router. Payloads are decoded by the consumer.
type StateSubscriber struct {
	socket      *zmq4.Socket
	poller      *zmq4.Poller
	router      Router
	pollTimeout time.Duration
	logger      customlog.Logger
	running     atomic.Bool
	wg          sync.WaitGroup
}

func newStateSubscriber(ctx *zmq4.Context, zcfg config.ZeroMQBootstrap, router Router, topics []string, logger customlog.Logger) (*StateSubscriber, error) {
	socket, err := ctx.NewSocket(zmq4.SUB)
	if err != nil {
		return nil, fmt.Errorf("failed to create SUB socket: %w", err)
	}
	if err := configureSocket(socket, zcfg); err != nil {
		socket.Close()
		return nil, err
	}
	for _, topic := range topics {
		if err := socket.SetSubscribe(topic); err != nil {
			socket.Close()
			return nil, fmt.Errorf("failed to subscribe to %s: %w", topic, err)
		}
	}
	if err := socket.Connect(zcfg.StateConnectAddress); err != nil {
		socket.Close()
		return nil, fmt.Errorf("failed to connect to %s: %w", zcfg.StateConnectAddress, err)
	}

	poller := zmq4.NewPoller()
	poller.Add(socket, zmq4.POLLIN)

	logger.Infof("State subscriber connected to %s (%d topics)", zcfg.StateConnectAddress, len(topics))
	return &StateSubscriber{
		socket:      socket,
		poller:      poller,
		router:      router,
		pollTimeout: zcfg.PollTimeout(),
		logger:      logger,
	}, nil
}

// Start begins the receive loop
func (l *StateSubscriber) Start() {
	if !l.running.CompareAndSwap(false, true) {
		return
	}
	l.wg.Add(1)
	go l.receiveLoop()
}

// Stop ends the receive loop and waits for it
func (l *StateSubscriber) Stop() {
	if l.running.CompareAndSwap(true, false) {
		l.wg.Wait()
	}
}

// Close stops the loop and closes the socket
func (l *StateSubscriber) Close() error {
	l.Stop()
	if l.socket == nil {
		return nil
	}
	err := l.socket.Close()
	l.socket = nil
	return err
}

func (l *StateSubscriber) receiveLoop() {
	defer l.wg.Done()

	for l.running.Load() {
		polled, err := l.poller.Poll(l.pollTimeout)
		if err != nil {
			if l.running.Load() {
				l.logger.Warnf("Error polling state socket: %v", err)
				time.Sleep(l.pollTimeout)
			}
			continue
		}
		if len(polled) == 0 {
			continue
		}

		parts, err := l.socket.RecvMessageBytes(0)
		if err != nil {
			l.logger.Warnf("Error receiving state: %v", err)
			continue
		}
		if len(parts) != 2 {
			l.logger.Errorf("Rejected state message with %d frames, want 2", len(parts))
			continue
		}

		topic := string(parts[0])
		err = l.router.RouteMessage(&processing.Message{Topic: topic, Data: parts[1]})
		switch {
		case err == nil:
		case errors.Is(err, processing.ErrQueueFull):
			l.logger.Debugf("State update on %s dropped: %v", topic, err)
		default:
			l.logger.Errorf("Rejected state update on %s: %v", topic, err)
		}
	}
}
