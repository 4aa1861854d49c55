package zeromq

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/open-legged/controller/pkg/config"
	customlog "github.com/open-legged/controller/pkg/log"
	"github.com/pebbe/zmq4"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
)

// Common errors
var (
	ErrServiceClosed      = errors.New("zeromq service is closed")
	ErrInvalidMessage     = errors.New("invalid message format")
	ErrUnknownMessageType = errors.New("unknown message type")
)

// Message types
const (
	MsgTypeStandupRequest = "STANDUP_REQUEST"
	MsgTypeModeRequest    = "MODE_REQUEST"
	MsgTypeAck            = "ACK"
	MsgTypeError          = "ERROR"
)

// ZeroMQMessage is the JSON envelope used on the request socket
type ZeroMQMessage struct {
	Type      string          `json:"type"`
	Timestamp float64         `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// ErrorResponse is the data of an ERROR reply
type ErrorResponse struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// MessageHandler processes one request type and returns the reply bytes
type MessageHandler interface {
	HandleMessage(msg *ZeroMQMessage) ([]byte, error)
}

// HandlerFunc is a function type that implements MessageHandler
type HandlerFunc func(msg *ZeroMQMessage) ([]byte, error)

// HandleMessage calls the function
func (f HandlerFunc) HandleMessage(msg *ZeroMQMessage) ([]byte, error) {
	return f(msg)
}

// ErrorCoder maps handler errors to reply codes
type ErrorCoder func(err error) int

func newEnvelope(msgType string, data interface{}) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(ZeroMQMessage{
		Type:      msgType,
		Timestamp: float64(time.Now().UnixNano()) / 1e9,
		Data:      raw,
	})
}

// MessageReceiver serves the REP socket. The socket is only touched by the
// receive goroutine and is closed after that goroutine exits.
type MessageReceiver struct {
	socket      *zmq4.Socket
	poller      *zmq4.Poller
	dispatcher  *MessageDispatcher
	coder       ErrorCoder
	pollTimeout time.Duration
	logger      customlog.Logger
	running     atomic.Bool
	wg          sync.WaitGroup
}

func newMessageReceiver(ctx *zmq4.Context, zcfg config.ZeroMQBootstrap, dispatcher *MessageDispatcher, coder ErrorCoder, logger customlog.Logger) (*MessageReceiver, error) {
	socket, err := ctx.NewSocket(zmq4.REP)
	if err != nil {
		return nil, fmt.Errorf("failed to create REP socket: %w", err)
	}
	if err := configureSocket(socket, zcfg); err != nil {
		socket.Close()
		return nil, err
	}
	// Replies must not block shutdown if the requester has gone away
	if err := socket.SetSndtimeo(time.Second); err != nil {
		socket.Close()
		return nil, fmt.Errorf("failed to set send timeout: %w", err)
	}
	if err := socket.Bind(zcfg.RequestBindAddress); err != nil {
		socket.Close()
		return nil, fmt.Errorf("failed to bind to %s: %w", zcfg.RequestBindAddress, err)
	}

	poller := zmq4.NewPoller()
	poller.Add(socket, zmq4.POLLIN)

	logger.Infof("MessageReceiver initialized on %s", zcfg.RequestBindAddress)
	return &MessageReceiver{
		socket:      socket,
		poller:      poller,
		dispatcher:  dispatcher,
		coder:       coder,
		pollTimeout: zcfg.PollTimeout(),
		logger:      logger,
	}, nil
}

// Start begins the request loop
func (r *MessageReceiver) Start() {
	if !r.running.CompareAndSwap(false, true) {
		return
	}
	r.wg.Add(1)
	go r.loop()
}

func (r *MessageReceiver) loop() {
	defer r.wg.Done()
	r.logger.Infof("MessageReceiver started")

	for r.running.Load() {
		polled, err := r.poller.Poll(r.pollTimeout)
		if err != nil {
			if r.running.Load() {
				r.logger.Warnf("Error polling request socket: %v", err)
				time.Sleep(r.pollTimeout)
			}
			continue
		}
		if len(polled) == 0 {
			continue
		}

		msg, err := r.socket.RecvBytes(0)
		if err != nil {
			r.logger.Warnf("Error receiving request: %v", err)
			continue
		}
		r.logger.Debugf("Received request (%d bytes)", len(msg))

		reply, err := r.dispatcher.Dispatch(msg)
		if err != nil {
			r.logger.Warnf("Request failed: %v", err)
			reply = r.errorReply(err)
		}
		if _, err := r.socket.SendBytes(reply, 0); err != nil {
			r.logger.Errorf("Error sending reply: %v", err)
		}
	}
}

func (r *MessageReceiver) errorReply(err error) []byte {
	code := 500
	switch {
	case errors.Is(err, ErrInvalidMessage), errors.Is(err, ErrUnknownMessageType):
		code = 400
	case r.coder != nil:
		code = r.coder(err)
	}
	reply, merr := newEnvelope(MsgTypeError, ErrorResponse{Message: err.Error(), Code: code})
	if merr != nil {
		return []byte(`{"type":"ERROR","data":{"message":"internal error","code":500}}`)
	}
	return reply
}

// Stop ends the request loop and waits for it
func (r *MessageReceiver) Stop() {
	if r.running.CompareAndSwap(true, false) {
		r.wg.Wait()
		r.logger.Infof("MessageReceiver stopped")
	}
}

// Close stops the loop and closes the socket
func (r *MessageReceiver) Close() error {
	r.Stop()
	if r.socket == nil {
		return nil
	}
	err := r.socket.Close()
	r.socket = nil
	return err
}

// MessageSender publishes on the PUB socket
type MessageSender struct {
	socket  *zmq4.Socket
	logger  customlog.Logger
	running bool
	mu      sync.Mutex
}

func newMessageSender(ctx *zmq4.Context, zcfg config.ZeroMQBootstrap, logger customlog.Logger) (*MessageSender, error) {
	socket, err := ctx.NewSocket(zmq4.PUB)
	if err != nil {
		return nil, fmt.Errorf("failed to create PUB socket: %w", err)
	}
	if err := configureSocket(socket, zcfg); err != nil {
		socket.Close()
		return nil, err
	}
	if err := socket.Bind(zcfg.CommandBindAddress); err != nil {
		socket.Close()
		return nil, fmt.Errorf("failed to bind to %s: %w", zcfg.CommandBindAddress, err)
	}

	logger.Infof("MessageSender initialized on %s", zcfg.CommandBindAddress)
	return &MessageSender{
		socket:  socket,
		logger:  logger,
		running: true,
	}, nil
}

// PublishMessage sends [topic, payload] as one multipart message
func (s *MessageSender) PublishMessage(topic string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return ErrServiceClosed
	}
	if _, err := s.socket.SendMessage(topic, payload); err != nil {
		return fmt.Errorf("failed to publish on %s: %w", topic, err)
	}
	return nil
}

// Close closes the socket; later publishes fail with ErrServiceClosed
func (s *MessageSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.running = false
	if s.socket == nil {
		return nil
	}
	err := s.socket.Close()
	s.socket = nil
	return err
}

// MessageDispatcher routes JSON requests to the handler of their type
type MessageDispatcher struct {
	handlers map[string]MessageHandler
	logger   customlog.Logger
	mu       sync.RWMutex
}

// NewMessageDispatcher creates a new message dispatcher
func NewMessageDispatcher(logger customlog.Logger) *MessageDispatcher {
	return &MessageDispatcher{
		handlers: make(map[string]MessageHandler),
		logger:   logger,
	}
}

// RegisterHandler adds a handler for a specific message type
func (d *MessageDispatcher) RegisterHandler(messageType string, handler MessageHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.handlers[messageType] = handler
	d.logger.Infof("Registered handler for message type: %s", messageType)
}

// Dispatch parses the envelope and runs the matching handler
func (d *MessageDispatcher) Dispatch(data []byte) ([]byte, error) {
	var msg ZeroMQMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrInvalidMessage)
	}

	d.mu.RLock()
	handler, exists := d.handlers[msg.Type]
	d.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMessageType, msg.Type)
	}
	d.logger.Debugf("Dispatching message of type: %s", msg.Type)
	return handler.HandleMessage(&msg)
}

func configureSocket(socket *zmq4.Socket, zcfg config.ZeroMQBootstrap) error {
	if err := socket.SetLinger(0); err != nil {
		return fmt.Errorf("failed to set linger option: %w", err)
	}
	if err := socket.SetSndhwm(zcfg.MessageBufferSize); err != nil {
		return fmt.Errorf("failed to set send high water mark: %w", err)
	}
	if err := socket.SetRcvhwm(zcfg.MessageBufferSize); err != nil {
		return fmt.Errorf("failed to set receive high water mark: %w", err)
	}
	return nil
}

// ZeroMQService owns the context and the three sockets of the controller:
// state SUB, command PUB and mode REP.
type ZeroMQService struct {
	ctx        *zmq4.Context
	receiver   *MessageReceiver
	sender     *MessageSender
	subscriber *StateSubscriber
	dispatcher *MessageDispatcher
	logger     customlog.Logger
	running    atomic.Bool
	closed     atomic.Bool
}

// NewZeroMQService creates the sockets. State arriving on stateTopics is
// handed to router.
func NewZeroMQService(zcfg config.ZeroMQBootstrap, router Router, stateTopics []string, coder ErrorCoder, logger customlog.Logger) (*ZeroMQService, error) {
	logger = logger.WithField("component", "zeromq")

	ctx, err := zmq4.NewContext()
	if err != nil {
		return nil, fmt.Errorf("failed to create ZMQ context: %w", err)
	}

	dispatcher := NewMessageDispatcher(logger)

	receiver, err := newMessageReceiver(ctx, zcfg, dispatcher, coder, logger)
	if err != nil {
		ctx.Term()
		return nil, err
	}

	sender, err := newMessageSender(ctx, zcfg, logger)
	if err != nil {
		receiver.Close()
		ctx.Term()
		return nil, err
	}

	subscriber, err := newStateSubscriber(ctx, zcfg, router, stateTopics, logger)
	if err != nil {
		sender.Close()
		receiver.Close()
		ctx.Term()
		return nil, err
	}

	return &ZeroMQService{
		ctx:        ctx,
		receiver:   receiver,
		sender:     sender,
		subscriber: subscriber,
		dispatcher: dispatcher,
		logger:     logger,
	}, nil
}

// RegisterHandler adds a handler for a specific message type
func (s *ZeroMQService) RegisterHandler(messageType string, handler MessageHandler) {
	s.dispatcher.RegisterHandler(messageType, handler)
}

// Start begins receiving state and requests
func (s *ZeroMQService) Start() error {
	if s.closed.Load() {
		return ErrServiceClosed
	}
	if !s.running.CompareAndSwap(false, true) {
		return nil
	}
	s.logger.Infof("Starting ZeroMQ service")
	s.subscriber.Start()
	s.receiver.Start()
	return nil
}

// StopInbound stops the state and request loops. Publishing keeps working
// until Close.
func (s *ZeroMQService) StopInbound() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}
	s.logger.Infof("Stopping ZeroMQ inbound loops")
	s.subscriber.Stop()
	s.receiver.Stop()
}

// Close stops everything, closes the sockets and terminates the context.
func (s *ZeroMQService) Close() error {
	s.StopInbound()
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	var err error
	err = multierr.Append(err, s.subscriber.Close())
	err = multierr.Append(err, s.receiver.Close())
	err = multierr.Append(err, s.sender.Close())
	err = multierr.Append(err, s.ctx.Term())

	s.logger.Infof("ZeroMQ service stopped")
	return err
}

// PublishMessage sends a message with the given topic
func (s *ZeroMQService) PublishMessage(topic string, payload []byte) error {
	if s.closed.Load() {
		return ErrServiceClosed
	}
	return s.sender.PublishMessage(topic, payload)
}
