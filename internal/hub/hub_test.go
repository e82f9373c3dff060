package hub

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"parley/internal/coord"
	"parley/internal/event"
)

const testOrigin = "http://parley.test"

func newWsServer(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	messages := &coord.MockMessageStore{}
	calls := &coord.MockCallStore{}
	users := &coord.MockUserStore{}
	notifier := &coord.MockNotifier{}

	users.On("GetUser", mock.Anything, mock.Anything).Return(nil, coord.ErrNotFound).Maybe()
	users.On("SetOnlineStatus", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	users.On("UpdateLastSeen", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	notifier.On("Notify", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()

	co := coord.NewCoordinator(messages, calls, users, notifier, zap.NewNop())
	h := NewHub(co, []string{testOrigin})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.ServeWS(w, r, r.URL.Query().Get("userId"))
	}))
	t.Cleanup(func() {
		h.Stop()
		srv.Close()
	})
	return h, srv
}

func dialWS(t *testing.T, srv *httptest.Server, userID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?userId=" + userID
	header := http.Header{"Origin": []string{testOrigin}}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("failed to dial %s: %v", url, err)
	}
	return conn
}

func waitOnline(t *testing.T, h *Hub, userID string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if h.coordinator.Presence().IsOnline(userID) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("user %s never came online", userID)
}

// A reconnecting user's first frame must be handled against a presence table
// where the superseded connection is already evicted and closed.
func TestServeWS_ReconnectEvictsBeforeFirstFrame(t *testing.T) {
	h, srv := newWsServer(t)

	c1 := dialWS(t, srv, "alice")
	defer c1.Close()
	waitOnline(t, h, "alice")

	c2 := dialWS(t, srv, "alice")
	defer c2.Close()

	// fire the first frame immediately, racing the registration
	assert.NoError(t, c2.WriteJSON(event.WsEvent{
		Event:   event.EventGetOnlineStatus,
		Payload: json.RawMessage(`{"userIds":["alice"]}`),
	}))

	c2.SetReadDeadline(time.Now().Add(2 * time.Second))
	var reply event.WsEvent
	assert.NoError(t, c2.ReadJSON(&reply))
	assert.Equal(t, event.EventOnlineStatus, reply.Event)

	// the frame was only processed after registration, so the old
	// connection is already being torn down; it must observe a real
	// close, not linger until its read deadline
	c1.SetReadDeadline(time.Now().Add(2 * time.Second))
	var err error
	for err == nil {
		_, _, err = c1.ReadMessage()
	}
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		t.Fatalf("superseded connection was never closed: %v", err)
	}

	assert.True(t, h.coordinator.Presence().IsOnline("alice"))
}

func TestServeWS_RejectsUnknownOrigin(t *testing.T) {
	_, srv := newWsServer(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?userId=alice"
	header := http.Header{"Origin": []string{"http://evil.test"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	assert.Error(t, err)
	if resp != nil {
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	}
}
