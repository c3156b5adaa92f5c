package server

import (
	"context"

	"github.com/Tyrowin/gosocket/internal/events"
)

// Handle registers fn for every inbound message of type typ, decoding the
// whole message object into T first. Messages that do not decode into T are
// reported through OnError with CodeProtocol and fn is not called.
func Handle[T any](c *Conn, typ string, fn func(T)) *events.Subscription {
	return c.Subscribe(typ, func(m Message) {
		var v T
		if err := m.Decode(&v); err != nil {
			c.reportError(&Error{Code: CodeProtocol, Op: "decode", Key: typ, Err: err})
			return
		}
		fn(v)
	})
}

// Await waits for the next message of type typ and decodes it into T.
func Await[T any](ctx context.Context, c *Conn, typ string) (T, error) {
	var v T
	m, err := c.Next(ctx, typ)
	if err != nil {
		return v, err
	}
	if err := m.Decode(&v); err != nil {
		return v, &Error{Code: CodeProtocol, Op: "decode", Key: typ, Err: err}
	}
	return v, nil
}
