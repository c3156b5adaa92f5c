// Package testhelpers provides utilities shared by the package tests: test
// servers, WebSocket clients, and assertions on HTTP responses.
package testhelpers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// DefaultTimeout bounds every blocking helper in this package.
const DefaultTimeout = 5 * time.Second

// CreateTestServer creates a test HTTP server with the given handler and
// closes it when the test ends.
func CreateTestServer(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return ts
}

// WebSocketURL converts an http:// test server URL into a ws:// URL for path.
func WebSocketURL(serverURL, path string) string {
	return "ws" + strings.TrimPrefix(serverURL, "http") + path
}

// AssertStatusCode checks if the HTTP response has the expected status code.
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("Expected status code %d, got %d", expected, resp.StatusCode)
	}
}

// AssertContentType checks if the HTTP response has the expected Content-Type header.
func AssertContentType(t *testing.T, resp *http.Response, expected string) {
	t.Helper()
	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, expected) {
		t.Errorf("Expected content type %s, got %s", expected, contentType)
	}
}

// MakeRequest creates and executes an HTTP request, returning the response.
// The response body is closed when the test ends.
func MakeRequest(t *testing.T, method, url string) *http.Response {
	t.Helper()

	client := &http.Client{Timeout: DefaultTimeout}

	req, err := http.NewRequest(method, url, http.NoBody)
	require.NoError(t, err, "Failed to create request")

	resp, err := client.Do(req)
	require.NoError(t, err, "Failed to make request")
	t.Cleanup(func() { _ = resp.Body.Close() })

	return resp
}

// ConnectWebSocket dials url with the given Origin header (none when empty).
// It returns the handshake response so callers can inspect rejections.
func ConnectWebSocket(url, origin string) (*websocket.Conn, *http.Response, error) {
	dialer := websocket.Dialer{HandshakeTimeout: DefaultTimeout}

	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, resp, err
}

// MustConnect dials url and fails the test on error. The connection is
// closed when the test ends.
func MustConnect(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := ConnectWebSocket(url, "")
	require.NoError(t, err, "Failed to connect to %s", url)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// SendTyped writes a JSON object with the given type and extra fields.
func SendTyped(t *testing.T, conn *websocket.Conn, typ string, fields map[string]any) {
	t.Helper()
	msg := map[string]any{"type": typ}
	for k, v := range fields {
		msg[k] = v
	}
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

// ReceiveMessage reads one JSON object, failing the test after DefaultTimeout.
func ReceiveMessage(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(DefaultTimeout)))
	var message map[string]any
	require.NoError(t, conn.ReadJSON(&message))
	return message
}

// ExpectNoMessage asserts that nothing arrives on conn within d. The read
// deadline error is permanent, so conn cannot be read from afterwards.
func ExpectNoMessage(t *testing.T, conn *websocket.Conn, d time.Duration) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(d)))
	_, data, err := conn.ReadMessage()
	require.Error(t, err, "Unexpected message: %s", data)
}

// CloseWebSocket gracefully closes a WebSocket connection.
func CloseWebSocket(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return conn.Close()
}

// Eventually waits for cond to hold, failing the test after DefaultTimeout.
func Eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, DefaultTimeout, 10*time.Millisecond, msg)
}
