package server

import (
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/Tyrowin/gosocket/internal/testhelpers"
)

func TestRouterHealth(t *testing.T) {
	s := newTestServer(t)
	ts := testhelpers.CreateTestServer(t, NewRouter(s))

	resp := testhelpers.MakeRequest(t, http.MethodGet, ts.URL+"/healthz")
	testhelpers.AssertStatusCode(t, resp, http.StatusOK)
	testhelpers.AssertContentType(t, resp, "text/plain")

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read body: %v", err)
	}
	if !strings.Contains(string(body), "0 clients") {
		t.Errorf("Unexpected health body %q", body)
	}
}

func TestRouterMetrics(t *testing.T) {
	s := newTestServer(t)
	ts := testhelpers.CreateTestServer(t, NewRouter(s))

	resp := testhelpers.MakeRequest(t, http.MethodGet, ts.URL+"/metrics")
	testhelpers.AssertStatusCode(t, resp, http.StatusOK)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read body: %v", err)
	}
	for _, name := range []string{"gosocket_connections_active", "gosocket_messages_sent_total"} {
		if !strings.Contains(string(body), name) {
			t.Errorf("Metric %s missing from exposition", name)
		}
	}
}

func TestRouterWebSocketPaths(t *testing.T) {
	s := newTestServer(t)
	ts := testhelpers.CreateTestServer(t, NewRouter(s))

	for _, path := range []string{"/", "/ws", "/any/nested/path"} {
		conn, _, err := testhelpers.ConnectWebSocket(testhelpers.WebSocketURL(ts.URL, path), "")
		if err != nil {
			t.Errorf("Failed to connect on %s: %v", path, err)
			continue
		}
		_ = conn.Close()
	}
}

func TestRouterPlainGetWithoutUpgrade(t *testing.T) {
	s := newTestServer(t)
	ts := testhelpers.CreateTestServer(t, NewRouter(s))

	resp := testhelpers.MakeRequest(t, http.MethodGet, ts.URL+"/ws")
	testhelpers.AssertStatusCode(t, resp, http.StatusBadRequest)
}

func TestCreateServer(t *testing.T) {
	srv := CreateServer(":9999", http.NotFoundHandler())

	if srv.Addr != ":9999" {
		t.Errorf("Expected addr :9999, got %s", srv.Addr)
	}
	if srv.ReadTimeout != 15*time.Second || srv.WriteTimeout != 15*time.Second {
		t.Errorf("Unexpected timeouts read=%s write=%s", srv.ReadTimeout, srv.WriteTimeout)
	}
	if srv.IdleTimeout != 60*time.Second {
		t.Errorf("Expected idle timeout 60s, got %s", srv.IdleTimeout)
	}
}
