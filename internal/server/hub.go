package server

import (
	"context"
	"fmt"
	"slices"

	"github.com/Tyrowin/gosocket/internal/events"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Lifecycle names a server event.
type Lifecycle string

const (
	// EventConnection fires after a connection is registered and open.
	EventConnection Lifecycle = "connection"
	// EventDisconnect fires once per connection after it leaves the registry.
	EventDisconnect Lifecycle = "disconnect"
)

func (l Lifecycle) valid() bool {
	return l == EventConnection || l == EventDisconnect
}

// ParseLifecycle converts an event name into a Lifecycle.
func ParseLifecycle(name string) (Lifecycle, error) {
	l := Lifecycle(name)
	if !l.valid() {
		return "", &Error{Code: CodeInvalidEvent, Key: name}
	}
	return l, nil
}

// On registers fn for a lifecycle event. Unknown events are rejected with
// an error naming the event.
func (s *Server) On(event Lifecycle, fn func(*Conn)) (*events.Subscription, error) {
	if !event.valid() {
		return nil, &Error{Code: CodeInvalidEvent, Key: string(event)}
	}
	return s.lifecycle.Subscribe(event, fn), nil
}

// Subscribe registers fn for a lifecycle event without validating it, so a
// Server can be used as an events.Host. Unknown events never fire.
func (s *Server) Subscribe(event Lifecycle, fn func(*Conn)) *events.Subscription {
	return s.lifecycle.Subscribe(event, fn)
}

// OnConnection registers fn for EventConnection.
func (s *Server) OnConnection(fn func(*Conn)) *events.Subscription {
	return s.lifecycle.Subscribe(EventConnection, fn)
}

// OnDisconnect registers fn for EventDisconnect.
func (s *Server) OnDisconnect(fn func(*Conn)) *events.Subscription {
	return s.lifecycle.Subscribe(EventDisconnect, fn)
}

// Accept registers an already-upgraded transport, opens it, and dispatches
// EventConnection. It fails with ErrClosed once Close has started, in which
// case the transport is closed.
func (s *Server) Accept(t Transport, remoteAddr string) (*Conn, error) {
	cfg := s.config()
	c := newConn(t,
		WithConnConfig(&cfg),
		WithConnLogger(s.log),
		WithRemoteAddr(remoteAddr),
		withMetrics(s.metrics))

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		c.teardown()
		return nil, &Error{Code: CodeClosed, Op: "accept"}
	}
	s.clients = append(s.clients, c)
	clientCount := len(s.clients)
	s.mu.Unlock()

	s.metrics.connected()
	c.open()
	c.log.Info("Client registered", zap.Int("clients", clientCount))

	// Reading starts only after the connection event so listeners it
	// registers see the first message, and disconnect cannot precede it.
	s.lifecycle.Dispatch(EventConnection, c)
	c.OnClose(s.handleClose)
	c.listen()
	return c, nil
}

func (s *Server) handleClose(c *Conn) {
	if !s.remove(c) {
		return
	}
	s.metrics.disconnected()
	c.log.Info("Client unregistered", zap.Int("clients", s.Len()))
	s.lifecycle.Dispatch(EventDisconnect, c)
}

// remove deletes c from the registry, keeping the order of the rest. It
// reports whether c was still registered.
func (s *Server) remove(c *Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := slices.Index(s.clients, c)
	if i < 0 {
		return false
	}
	s.clients = slices.Delete(s.clients, i, i+1)
	return true
}

// Clients returns a snapshot of the registered connections in the order
// they were accepted.
func (s *Server) Clients() []*Conn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.clients)
}

// Len returns the number of registered connections.
func (s *Server) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Broadcast sends msg to every registered connection. The message is
// encoded once. A failed send does not stop the others; all failures are
// returned combined, and multierr.Errors splits them apart.
func (s *Server) Broadcast(msg any) error {
	return s.broadcast(nil, msg)
}

// BroadcastExcept sends msg to every registered connection but sender.
func (s *Server) BroadcastExcept(sender *Conn, msg any) error {
	return s.broadcast(sender, msg)
}

func (s *Server) broadcast(sender *Conn, msg any) error {
	_, span := s.tracer.Start(context.Background(), "gosocket.broadcast")
	defer span.End()

	data, err := encodeMessage(msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "encode failed")
		return err
	}

	clients := s.Clients()
	var errs error
	sent := 0
	for _, c := range clients {
		if sender != nil && c == sender {
			continue
		}
		if err := c.sendRaw(data); err != nil {
			s.metrics.broadcastFailure()
			errs = multierr.Append(errs, fmt.Errorf("client %s: %w", c.ID(), err))
			continue
		}
		sent++
	}

	span.SetAttributes(
		attribute.Int("gosocket.recipients", sent),
		attribute.Int("gosocket.failures", len(multierr.Errors(errs))))
	if errs != nil {
		span.RecordError(errs)
		span.SetStatus(codes.Error, "broadcast incomplete")
		s.log.Warn("Broadcast failed for some clients",
			zap.Int("sent", sent), zap.Error(errs))
	}
	return errs
}
