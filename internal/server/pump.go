package server

import (
	"errors"
	"io"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// setupReadConnection configures read deadlines and the pong handler.
func (c *Conn) setupReadConnection() {
	if err := c.transport.SetReadDeadline(time.Now().Add(c.settings.pongWait)); err != nil {
		c.log.Debug("Error setting initial read deadline", zap.Error(err))
	}
	c.transport.SetPongHandler(func(string) error {
		if err := c.transport.SetReadDeadline(time.Now().Add(c.settings.pongWait)); err != nil {
			c.log.Debug("Error setting read deadline in pong handler", zap.Error(err))
		}
		return nil
	})
}

func (c *Conn) readPump() {
	defer c.teardown()

	c.setupReadConnection()

	for {
		_, r, err := c.transport.NextReader()
		if err != nil {
			c.markClosing()
			c.handleReadError(err)
			return
		}

		data, err := readMessage(r)
		if err != nil {
			c.markClosing()
			c.handleReadError(err)
			return
		}

		if !c.checkRateLimit() {
			continue
		}

		c.processMessage(data)
	}
}

// handleReadError logs why the read loop is ending and reports failures
// that were not an orderly close.
func (c *Conn) handleReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.log.Warn("Message exceeded maximum size", zap.Int64("max_message_size", c.settings.maxMessageSize))
		c.reportError(&Error{Code: CodeProtocol, Op: "read", Err: err})

	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived):
		c.log.Debug("Peer closed connection", zap.Error(err))

	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		c.log.Debug("Connection closed", zap.Error(err))

	default:
		c.log.Warn("WebSocket read error", zap.Error(err))
		c.reportError(&Error{Code: CodeTransport, Op: "read", Err: err})
	}
}

// checkRateLimit reports whether the next message may be processed.
func (c *Conn) checkRateLimit() bool {
	if c.limiter == nil || c.limiter.allow() {
		return true
	}
	c.log.Warn("Rate limit exceeded; discarding message",
		zap.Int("burst", c.settings.rateLimit.Burst),
		zap.Duration("refill_interval", c.settings.rateLimit.RefillInterval))
	c.reportError(&Error{Code: CodeRateLimited, Op: "read"})
	return false
}

// processMessage decodes one reassembled message and dispatches it by type.
// Malformed input is reported and skipped; the connection stays open.
func (c *Conn) processMessage(data []byte) {
	msg, err := decodeMessage(data)
	if err != nil {
		c.log.Debug("Invalid message", zap.Error(err), zap.String("data", truncate(data, 128)))
		c.reportError(&Error{Code: CodeProtocol, Op: "read", Err: err})
		return
	}

	c.metrics.messageReceived(msg.Type)
	c.inbound.Dispatch(msg.Type, msg)
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(c.settings.pingInterval)
	defer ticker.Stop()

	for c.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when
// the pump should stop.
func (c *Conn) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case message := <-c.send:
		return c.writeTextMessage(message)
	case <-ticker.C:
		return c.handlePing()
	case <-c.closeReq:
		c.flushAndClose()
		return false
	case <-c.done:
		return false
	}
}

// writeTextMessage writes one message as a single text frame. On failure
// the connection is torn down.
func (c *Conn) writeTextMessage(message []byte) bool {
	if err := c.transport.SetWriteDeadline(time.Now().Add(c.settings.writeWait)); err != nil {
		return c.failWrite(err)
	}
	if err := c.transport.WriteMessage(websocket.TextMessage, message); err != nil {
		return c.failWrite(err)
	}
	c.metrics.messageSent()
	return true
}

func (c *Conn) failWrite(err error) bool {
	c.markClosing()
	if !isExpectedCloseError(err) {
		c.log.Warn("Error writing message", zap.Error(err))
		c.reportError(&Error{Code: CodeTransport, Op: "write", Err: err})
	}
	c.teardown()
	return false
}

// handlePing sends a ping message to keep the connection alive.
func (c *Conn) handlePing() bool {
	if err := c.transport.SetWriteDeadline(time.Now().Add(c.settings.writeWait)); err != nil {
		return c.failWrite(err)
	}
	if err := c.transport.WriteMessage(websocket.PingMessage, nil); err != nil {
		return c.failWrite(err)
	}
	return true
}

// flushAndClose writes whatever is still queued, sends a close frame and
// waits for the peer's answer to end the read pump. If no answer arrives
// within the grace period the socket is torn down.
func (c *Conn) flushAndClose() {
	for n := len(c.send); n > 0; n-- {
		if !c.writeTextMessage(<-c.send) {
			return
		}
	}

	if err := c.writeCloseMessage(); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Debug("Error writing close message", zap.Error(err))
		}
		c.teardown()
		return
	}

	timer := time.NewTimer(c.settings.closeGrace)
	defer timer.Stop()

	select {
	case <-c.done:
	case <-timer.C:
		c.log.Debug("Peer did not acknowledge close; dropping connection",
			zap.Duration("grace", c.settings.closeGrace))
		c.teardown()
	}
}

func (c *Conn) writeCloseMessage() error {
	if err := c.transport.SetWriteDeadline(time.Now().Add(c.settings.writeWait)); err != nil {
		return err
	}
	return c.transport.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
