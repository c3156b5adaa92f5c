package server

import (
	"io"
	"time"

	"github.com/gorilla/websocket"
)

// Transport is the part of a WebSocket connection a Conn needs.
// *websocket.Conn satisfies it.
type Transport interface {
	// NextReader returns a reader over the frames of the next message.
	NextReader() (messageType int, r io.Reader, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

var _ Transport = (*websocket.Conn)(nil)
