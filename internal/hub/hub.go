package hub

import (
	"context"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"parley/internal/coord"
	"parley/internal/event"
)

type inboundMessage struct {
	event  event.WsEvent
	client *Client
}

// Hub owns the WebSocket side of the server: it upgrades connections, runs
// the inbound worker pool and translates wire events into coordinator calls.
// Who is in which room, who is online and what that implies all live in the
// coordinator; the hub only moves frames.
type Hub struct {
	coordinator *coord.Coordinator

	unregister chan *Client
	inbound    chan inboundMessage

	upgrader websocket.Upgrader

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func NewHub(coordinator *coord.Coordinator, allowedOrigins []string) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		coordinator: coordinator,
		unregister:  make(chan *Client, 1024),
		inbound:     make(chan inboundMessage, 4096), // buffer for burst handling
		ctx:         ctx,
		cancel:      cancel,
	}

	origins := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = true
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return origins[r.Header.Get("Origin")]
		},
	}

	// teardown loop
	go h.run()

	// start worker loop
	for i := 0; i < workerPoolSize; i++ {
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			for {
				select {
				case <-h.ctx.Done():
					return
				case in, ok := <-h.inbound:
					if !ok {
						return
					}

					h.handleEvent(in.event, in.client)
				}
			}
		}()
	}

	return h
}

// run drains unregistrations. Registration is synchronous in registerClient;
// only teardown is deferred here so Send can kick a stalled client without
// re-entering the coordinator.
func (h *Hub) run() {
	for {
		select {
		case <-h.ctx.Done():
			return
		case c := <-h.unregister:
			h.coordinator.OnDisconnect(h.ctx, c.userID, c)
		}
	}
}

// ServeWS upgrades an HTTP request to a WebSocket connection for userID.
// Authentication happens upstream; by the time a request reaches here the
// user id is trusted.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return
	}

	registerClient(userID, conn, h)
}

// Stop shuts the hub down: closes every live connection, stops the workers
// and waits for them to drain.
func (h *Hub) Stop() {
	for _, userID := range h.coordinator.Presence().OnlineSnapshot() {
		if conn, ok := h.coordinator.Presence().Get(userID); ok {
			conn.Close()
		}
	}

	h.cancel()
	close(h.inbound)
	h.wg.Wait()
}
