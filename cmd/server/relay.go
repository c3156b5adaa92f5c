package main

import (
	"strings"

	"github.com/Tyrowin/gosocket/internal/events"
	"github.com/Tyrowin/gosocket/internal/server"
	"go.uber.org/zap"
)

type chatIn struct {
	Text string `json:"text"`
}

type chatOut struct {
	Type string `json:"type"`
	From string `json:"from"`
	Text string `json:"text"`
}

// presence announces a client arriving or leaving.
type presence struct {
	Type    string `json:"type"`
	ID      string `json:"id"`
	Clients int    `json:"clients"`
}

// relay rebroadcasts CHAT messages to every other client and announces
// joins and leaves.
type relay struct {
	srv  *server.Server
	log  *zap.Logger
	subs events.Group

	// presence mirrors the server's lifecycle events; stop detaches it
	// from the server in one go.
	presence *events.Source[server.Lifecycle, *server.Conn]
}

func newRelay(srv *server.Server, lg *zap.Logger) *relay {
	r := &relay{srv: srv, log: lg.Named("relay")}

	presence, forward := events.Wrap[server.Lifecycle, *server.Conn](srv,
		[]server.Lifecycle{server.EventConnection, server.EventDisconnect})
	r.presence = presence
	r.subs.Add(forward)
	presence.Subscribe(server.EventConnection, r.join)
	presence.Subscribe(server.EventDisconnect, r.leave)
	return r
}

func (r *relay) stop() {
	r.subs.Unsubscribe()
}

func (r *relay) join(c *server.Conn) {
	server.Handle(c, "CHAT", func(m chatIn) { r.chat(c, m) })
	c.OnError(func(err error) {
		r.log.Debug("Client error", zap.String("conn_id", c.ID()), zap.Error(err))
	})

	hello := presence{Type: "WELCOME", ID: c.ID(), Clients: r.srv.Len()}
	if err := c.Send(hello); err != nil {
		r.log.Warn("Failed to greet client", zap.String("conn_id", c.ID()), zap.Error(err))
	}
	r.broadcast(c, presence{Type: "JOIN", ID: c.ID(), Clients: hello.Clients})
}

func (r *relay) chat(from *server.Conn, m chatIn) {
	text := strings.TrimSpace(m.Text)
	if text == "" {
		return
	}
	r.broadcast(from, chatOut{Type: "CHAT", From: from.ID(), Text: text})
}

func (r *relay) leave(c *server.Conn) {
	r.broadcast(nil, presence{Type: "LEAVE", ID: c.ID(), Clients: r.srv.Len()})
}

func (r *relay) broadcast(except *server.Conn, msg any) {
	if err := r.srv.BroadcastExcept(except, msg); err != nil {
		r.log.Warn("Relay broadcast incomplete", zap.Error(err))
	}
}
