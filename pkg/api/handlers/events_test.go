package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orsa-go/orsa/pkg/events"
	"github.com/orsa-go/orsa/pkg/logger"
)

const streamPrefix = "test.saga"

func newStreamServer(t *testing.T, cfg EventStreamConfig) (*events.MemoryBus, *EventStreamHandler, *httptest.Server) {
	t.Helper()
	bus := events.NewMemoryBus()
	cfg.SubjectPrefix = streamPrefix
	h := NewEventStreamHandler(bus, logger.Discard(), cfg)
	srv := httptest.NewServer(h)
	t.Cleanup(func() {
		h.Close()
		srv.Close()
	})
	return bus, h, srv
}

func dialStream(t *testing.T, srv *httptest.Server, query string, header http.Header) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/" + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if conn != nil {
		t.Cleanup(func() { _ = conn.Close() })
	}
	return conn, resp, err
}

func publishEnvelope(t *testing.T, bus *events.MemoryBus, sagaName, uid, eventType string) {
	t.Helper()
	env, err := events.BuildEnvelope(events.BuildEnvelopeInput{
		EventType: eventType,
		Saga:      sagaName,
		UID:       uid,
		Sequence:  1,
	})
	require.NoError(t, err)
	raw, err := json.Marshal(env)
	require.NoError(t, err)
	require.NoError(t, bus.Publish(context.Background(), events.Subject(streamPrefix, sagaName, eventType), raw))
}

func readEnvelope(t *testing.T, conn *websocket.Conn) events.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	env, err := events.DecodeEnvelope(data)
	require.NoError(t, err)
	return env
}

func TestEventStream_DeliversEnvelopes(t *testing.T) {
	bus, h, srv := newStreamServer(t, EventStreamConfig{})

	conn, resp, err := dialStream(t, srv, "", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	require.Eventually(t, func() bool { return h.Count() == 1 }, time.Second, 10*time.Millisecond)

	publishEnvelope(t, bus, "order", "o-1", events.EventCommitted)

	env := readEnvelope(t, conn)
	assert.Equal(t, "order", env.Saga)
	assert.Equal(t, "o-1", env.UID)
	assert.Equal(t, events.EventCommitted, env.EventType)
}

func TestEventStream_FiltersBySagaAndUID(t *testing.T) {
	bus, h, srv := newStreamServer(t, EventStreamConfig{})

	conn, _, err := dialStream(t, srv, "?saga=order&uid=o-2", nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return h.Count() == 1 }, time.Second, 10*time.Millisecond)

	publishEnvelope(t, bus, "refund", "o-2", events.EventCompleted)
	publishEnvelope(t, bus, "order", "o-1", events.EventCompleted)
	publishEnvelope(t, bus, "order", "o-2", events.EventAborted)

	env := readEnvelope(t, conn)
	assert.Equal(t, "order", env.Saga)
	assert.Equal(t, "o-2", env.UID)
	assert.Equal(t, events.EventAborted, env.EventType)
}

func TestEventStream_RejectsForeignOrigin(t *testing.T) {
	_, h, srv := newStreamServer(t, EventStreamConfig{AllowedOrigins: []string{"http://console.example"}})

	header := http.Header{"Origin": []string{"http://evil.example"}}
	_, resp, err := dialStream(t, srv, "", header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, 0, h.Count())

	header = http.Header{"Origin": []string{"http://console.example"}}
	_, _, err = dialStream(t, srv, "", header)
	require.NoError(t, err)
}

func TestEventStream_ConnectionLimit(t *testing.T) {
	_, h, srv := newStreamServer(t, EventStreamConfig{MaxConnections: 1})

	_, _, err := dialStream(t, srv, "", nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return h.Count() == 1 }, time.Second, 10*time.Millisecond)

	_, resp, err := dialStream(t, srv, "", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestEventStream_RequiresUpgrade(t *testing.T) {
	h := NewEventStreamHandler(events.NewMemoryBus(), logger.Discard(), EventStreamConfig{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/events", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "BAD_REQUEST")
}

func TestEventStream_CloseEndsStreams(t *testing.T) {
	_, h, srv := newStreamServer(t, EventStreamConfig{})

	conn, _, err := dialStream(t, srv, "", nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return h.Count() == 1 }, time.Second, 10*time.Millisecond)

	h.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	assert.Equal(t, 0, h.Count())
}
