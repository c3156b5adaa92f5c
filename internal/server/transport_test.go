package server

import (
	"bytes"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

type frame struct {
	messageType int
	chunks      [][]byte
	err         error
}

type written struct {
	messageType int
	data        []byte
}

// fakeTransport is an in-memory Transport. Inbound messages are queued with
// push; everything written is recorded.
type fakeTransport struct {
	inbound chan frame

	mu        sync.Mutex
	writes    []written
	writeErr  error
	readLimit int64
	// echoClose makes the peer answer a close frame with its own.
	echoClose bool

	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		inbound:   make(chan frame, 64),
		closed:    make(chan struct{}),
		echoClose: true,
	}
}

func (f *fakeTransport) push(data string) {
	f.inbound <- frame{messageType: websocket.TextMessage, chunks: [][]byte{[]byte(data)}}
}

func (f *fakeTransport) pushChunks(chunks ...string) {
	fr := frame{messageType: websocket.TextMessage}
	for _, c := range chunks {
		fr.chunks = append(fr.chunks, []byte(c))
	}
	f.inbound <- fr
}

func (f *fakeTransport) fail(err error) {
	f.inbound <- frame{err: err}
}

func (f *fakeTransport) NextReader() (int, io.Reader, error) {
	select {
	case fr := <-f.inbound:
		if fr.err != nil {
			return 0, nil, fr.err
		}
		readers := make([]io.Reader, 0, len(fr.chunks))
		for _, c := range fr.chunks {
			readers = append(readers, bytes.NewReader(c))
		}
		return fr.messageType, io.MultiReader(readers...), nil
	case <-f.closed:
		return 0, nil, net.ErrClosed
	}
}

func (f *fakeTransport) WriteMessage(messageType int, data []byte) error {
	select {
	case <-f.closed:
		return net.ErrClosed
	default:
	}

	f.mu.Lock()
	if f.writeErr != nil {
		err := f.writeErr
		f.mu.Unlock()
		return err
	}
	f.writes = append(f.writes, written{messageType: messageType, data: append([]byte(nil), data...)})
	echo := f.echoClose
	f.mu.Unlock()

	if messageType == websocket.CloseMessage && echo {
		f.inbound <- frame{err: &websocket.CloseError{Code: websocket.CloseNormalClosure}}
	}
	return nil
}

func (f *fakeTransport) SetReadLimit(limit int64) {
	f.mu.Lock()
	f.readLimit = limit
	f.mu.Unlock()
}

func (f *fakeTransport) SetReadDeadline(time.Time) error  { return nil }
func (f *fakeTransport) SetWriteDeadline(time.Time) error { return nil }
func (f *fakeTransport) SetPongHandler(func(string) error) {}

func (f *fakeTransport) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeTransport) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

func (f *fakeTransport) setWriteErr(err error) {
	f.mu.Lock()
	f.writeErr = err
	f.mu.Unlock()
}

func (f *fakeTransport) setEchoClose(echo bool) {
	f.mu.Lock()
	f.echoClose = echo
	f.mu.Unlock()
}

// texts returns the payloads of the text frames written so far.
func (f *fakeTransport) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, w := range f.writes {
		if w.messageType == websocket.TextMessage {
			out = append(out, string(w.data))
		}
	}
	return out
}

func (f *fakeTransport) wroteClose() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, w := range f.writes {
		if w.messageType == websocket.CloseMessage {
			return true
		}
	}
	return false
}
