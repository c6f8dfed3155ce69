package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/olympus-market/olympus-client/internal/reconcile"
	"github.com/olympus-market/olympus-client/internal/session"
	"github.com/quantumauth-io/quantum-go-utils/log"
)

// wsClient is one /events connection.
type wsClient struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub fans session changes and view refreshes out to every /events client.
type Hub struct {
	sessions Sessions
	views    ViewSource

	clients    map[*wsClient]bool
	register   chan *wsClient
	unregister chan *wsClient
	broadcast  chan []byte
	done       chan struct{}

	upgrader websocket.Upgrader
}

func NewHub(sessions Sessions, views ViewSource, allowedOrigins []string) *Hub {
	origins := make(map[string]struct{})
	for _, o := range uniqueOrigins(allowedOrigins) {
		origins[o] = struct{}{}
	}
	return &Hub{
		sessions:   sessions,
		views:      views,
		clients:    make(map[*wsClient]bool),
		register:   make(chan *wsClient, 16),
		unregister: make(chan *wsClient, 16),
		broadcast:  make(chan []byte, 256),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				_, ok := origins[normalizeOrigin(origin)]
				return ok
			},
		},
	}
}

func encodeEvent(typ string, data any) []byte {
	b, err := json.Marshal(eventMessage{Type: typ, Data: data, Timestamp: time.Now().UnixMilli()})
	if err != nil {
		log.Error("encode event", "type", typ, "error", err)
		return nil
	}
	return b
}

// Run forwards feed updates until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	sessionCh := make(chan session.Change, 16)
	sessionSub := h.sessions.Subscribe(sessionCh)
	defer sessionSub.Unsubscribe()

	viewsCh := make(chan reconcile.Views, 16)
	viewsSub := h.views.Subscribe(viewsCh)
	defer viewsSub.Unsubscribe()

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.drop(c)
			}
			return

		case c := <-h.register:
			h.clients[c] = true
			log.Info("events client connected", "client_id", c.id, "clients", len(h.clients))
			// Each client starts from the current state.
			h.deliver(c, encodeEvent(EventTypeConnected, gin.H{"clientId": c.id}))
			h.deliver(c, encodeEvent(EventTypeSession, h.sessions.Current()))
			h.deliver(c, encodeEvent(EventTypeViews, h.views.Views()))

		case c := <-h.unregister:
			if h.clients[c] {
				h.drop(c)
			}

		case change := <-sessionCh:
			h.fanOut(encodeEvent(EventTypeSession, gin.H{
				"session": change.Session,
				"reason":  change.Reason,
				"reload":  change.Reload,
			}))

		case v := <-viewsCh:
			h.fanOut(encodeEvent(EventTypeViews, v))

		case msg := <-h.broadcast:
			h.fanOut(msg)

		case <-heartbeat.C:
			h.fanOut(encodeEvent(EventTypeHeartbeat, nil))
		}
	}
}

func (h *Hub) fanOut(msg []byte) {
	if msg == nil {
		return
	}
	for c := range h.clients {
		h.deliver(c, msg)
	}
}

// deliver never blocks the hub; a client that cannot keep up is dropped.
func (h *Hub) deliver(c *wsClient, msg []byte) {
	if msg == nil {
		return
	}
	select {
	case c.send <- msg:
	default:
		log.Warn("events client too slow, dropping", "client_id", c.id)
		h.drop(c)
	}
}

func (h *Hub) drop(c *wsClient) {
	if !h.clients[c] {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

// Publish queues an ad hoc event for every client.
func (h *Hub) Publish(typ string, data any) {
	if msg := encodeEvent(typ, data); msg != nil {
		select {
		case h.broadcast <- msg:
		default:
			log.Warn("event dropped, hub busy", "type", typ)
		}
	}
}

// GET /events
func (s *Server) handleEvents(c *gin.Context) {
	h := s.hub
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn("events upgrade failed", "error", err)
		return
	}

	client := &wsClient{id: uuid.NewString(), hub: h, conn: conn, send: make(chan []byte, clientBuffer)}
	select {
	case h.register <- client:
	case <-h.done:
		_ = conn.Close()
		return
	}
	go client.writePump()
	go client.readPump()
}

// readPump only watches for close and pong frames.
func (c *wsClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("events client read error", "client_id", c.id, "error", err)
			}
			return
		}
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
