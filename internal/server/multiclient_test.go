package server

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Tyrowin/gosocket/internal/testhelpers"
	"github.com/gorilla/websocket"
)

// TestConcurrentConnectionsAndDisconnections connects many clients at once,
// has each send one message, and checks every connection is announced and
// retired exactly once.
func TestConcurrentConnectionsAndDisconnections(t *testing.T) {
	const numClients = 10

	s := newTestServer(t)
	var connections, disconnections, messages atomic.Int32
	s.OnConnection(func(c *Conn) {
		connections.Add(1)
		c.Subscribe("HELLO", func(Message) { messages.Add(1) })
	})
	s.OnDisconnect(func(*Conn) { disconnections.Add(1) })

	ts := testhelpers.CreateTestServer(t, s)
	url := testhelpers.WebSocketURL(ts.URL, "/")

	var wg sync.WaitGroup
	errs := make(chan error, numClients)
	for i := range numClients {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- runSingleClient(url, i)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Error(err)
		}
	}

	testhelpers.Eventually(t, func() bool { return disconnections.Load() == numClients }, "not every client was retired")
	if got := connections.Load(); got != numClients {
		t.Errorf("Expected %d connection events, got %d", numClients, got)
	}
	if got := messages.Load(); got != numClients {
		t.Errorf("Expected %d messages, got %d", numClients, got)
	}
	if s.Len() != 0 {
		t.Errorf("Expected empty registry, got %d clients", s.Len())
	}
}

// runSingleClient connects, sends one message, and disconnects. The server
// reads the message before the close frame that follows it.
func runSingleClient(url string, id int) error {
	conn, _, err := testhelpers.ConnectWebSocket(url, "")
	if err != nil {
		return fmt.Errorf("client %d: connection failed: %w", id, err)
	}

	payload := fmt.Sprintf(`{"type":"HELLO","client":%d}`, id)
	if err := conn.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
		_ = conn.Close()
		return fmt.Errorf("client %d: send failed: %w", id, err)
	}
	return testhelpers.CloseWebSocket(conn)
}

// TestGracefulShutdownWithClients closes a listening server with clients
// attached and checks each of them sees its connection end.
func TestGracefulShutdownWithClients(t *testing.T) {
	const numClients = 5

	s, err := Listen("127.0.0.1:0", WithConfig(testConfig()))
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	url := testhelpers.WebSocketURL("http://"+s.Addr().String(), "/ws")

	clients := make([]*websocket.Conn, numClients)
	for i := range clients {
		clients[i] = testhelpers.MustConnect(t, url)
	}
	testhelpers.Eventually(t, func() bool { return s.Len() == numClients }, "clients not registered")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	for i, conn := range clients {
		_ = conn.SetReadDeadline(time.Now().Add(time.Second))
		_, _, err := conn.ReadMessage()
		if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
			t.Errorf("Client %d: expected normal close frame, got %v", i, err)
		}
	}
}

// TestBroadcastDuringShutdown races broadcasts against Close to make sure
// neither panics nor deadlocks.
func TestBroadcastDuringShutdown(t *testing.T) {
	s := New(WithConfig(testConfig()))
	for range 5 {
		if _, err := s.Accept(newFakeTransport(), "peer"); err != nil {
			t.Fatalf("Accept failed: %v", err)
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for range 100 {
			_ = s.Broadcast(map[string]string{"type": "TICK"})
		}
	}()

	if err := s.Close(context.Background()); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	select {
	case <-done:
	case <-time.After(testhelpers.DefaultTimeout):
		t.Fatal("Broadcast loop did not finish")
	}
}
