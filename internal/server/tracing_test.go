package server

import (
	"context"
	"slices"
	"sync"
	"testing"

	"github.com/Tyrowin/gosocket/internal/testhelpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// spanRecorder is a TracerProvider that remembers the names of started spans.
type spanRecorder struct {
	noop.TracerProvider

	mu    sync.Mutex
	names []string
}

func (r *spanRecorder) Tracer(string, ...trace.TracerOption) trace.Tracer {
	return recordingTracer{rec: r}
}

func (r *spanRecorder) started() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.names)
}

type recordingTracer struct {
	noop.Tracer
	rec *spanRecorder
}

func (t recordingTracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	t.rec.mu.Lock()
	t.rec.names = append(t.rec.names, name)
	t.rec.mu.Unlock()
	return t.Tracer.Start(ctx, name, opts...)
}

func TestServerSpans(t *testing.T) {
	rec := &spanRecorder{}
	s := New(WithConfig(testConfig()), WithTracerProvider(rec))
	ts := testhelpers.CreateTestServer(t, s)

	testhelpers.MustConnect(t, testhelpers.WebSocketURL(ts.URL, "/"))
	testhelpers.Eventually(t, func() bool { return s.Len() == 1 }, "client not registered")
	require.NoError(t, s.Broadcast(map[string]string{"type": "PING"}))
	require.NoError(t, s.Close(context.Background()))

	assert.Equal(t, []string{"gosocket.accept", "gosocket.broadcast", "gosocket.close"}, rec.started())
}
