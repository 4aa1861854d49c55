package api

import (
	"errors"
	"sync"
	"syscall"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/open-legged/controller/domain/controller"
	customlog "github.com/open-legged/controller/pkg/log"
)

// streamClient holds at most one pending command; a newer one replaces it.
type streamClient struct {
	pending chan controller.CommandPair
}

func (c *streamClient) offer(cmd controller.CommandPair) {
	select {
	case c.pending <- cmd:
		return
	default:
	}
	select {
	case <-c.pending:
	default:
	}
	select {
	case c.pending <- cmd:
	default:
	}
}

// CommandStream fans published command pairs out to websocket clients.
// Slow clients skip stale commands instead of slowing the control loop.
type CommandStream struct {
	mu      sync.RWMutex
	clients map[*streamClient]struct{}
	done    chan struct{}
	closed  bool
	logger  customlog.Logger
}

var _ controller.CommandPublisher = (*CommandStream)(nil)

func NewCommandStream(logger customlog.Logger) *CommandStream {
	return &CommandStream{
		clients: make(map[*streamClient]struct{}),
		done:    make(chan struct{}),
		logger:  logger,
	}
}

// PublishCommands never blocks and never fails
func (s *CommandStream) PublishCommands(cmd controller.CommandPair) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for c := range s.clients {
		c.offer(cmd)
	}
	return nil
}

func (s *CommandStream) subscribe() *streamClient {
	c := &streamClient{pending: make(chan controller.CommandPair, 1)}
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
	return c
}

func (s *CommandStream) unsubscribe(c *streamClient) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
}

// ClientCount returns the number of connected clients
func (s *CommandStream) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Close ends every client stream
func (s *CommandStream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.done)
	}
}

// Handle streams commands to one websocket connection until it closes
func (s *CommandStream) Handle(conn *websocket.Conn) {
	s.logger.Infof("Command stream connected: %s", conn.RemoteAddr())
	client := s.subscribe()
	defer s.unsubscribe(client)

	// Reads only detect the peer going away
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.logClose(err)
				return
			}
		}
	}()

	for {
		select {
		case cmd := <-client.pending:
			if err := conn.WriteJSON(cmd); err != nil {
				s.logClose(err)
				return
			}
		case <-gone:
			return
		case <-s.done:
			return
		}
	}
}

func (s *CommandStream) logClose(err error) {
	switch {
	case websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure):
		s.logger.Warnf("Command stream error: %v", err)
	case errors.Is(err, syscall.EPIPE), errors.Is(err, syscall.ECONNRESET):
		s.logger.Infof("Command stream connection reset")
	default:
		s.logger.Debugf("Command stream closed: %v", err)
	}
}

// RegisterWebSocketRoutes mounts the command stream at /ws/commands
func RegisterWebSocketRoutes(app *fiber.App, stream *CommandStream) {
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/commands", websocket.New(stream.Handle))
}
