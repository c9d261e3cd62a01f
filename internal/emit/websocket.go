package emit

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/danielpatrickdp/ska-stream/internal/learner"
)

const (
	// Time allowed to write a message to a peer.
	writeWait = 10 * time.Second
	// Size of a client's send buffer; a client that falls this far behind
	// the stream is disconnected rather than allowed to block it.
	sendBufferSize = 256
)

// WSMessage is the envelope broadcast to live-feed subscribers.
type WSMessage struct {
	Type      string         `json:"type"`
	Data      learner.Output `json:"data"`
	Timestamp string         `json:"timestamp"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// #region hub
// Hub serves the websocket live feed of step outputs. Broadcasting never
// blocks the learn loop: each client has a bounded send buffer and slow
// clients are dropped.
type Hub struct {
	srv      *http.Server
	listener net.Listener

	mu      sync.Mutex
	clients map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub starts listening on addr (e.g. ":8990") and serving the /stream
// endpoint.
func NewHub(addr string) (*Hub, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	h := &Hub{
		clients:  make(map[*client]struct{}),
		listener: ln,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/stream", h.handleStream)
	h.srv = &http.Server{Handler: mux}
	go func() {
		if err := h.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[EMIT] websocket server: %v", err)
		}
	}()
	return h, nil
}

// Addr returns the bound listen address.
func (h *Hub) Addr() string {
	return h.listener.Addr().String()
}

// #endregion hub

// #region handle
func (h *Hub) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[EMIT] upgrade: %v", err)
		return
	}
	c := &client{conn: conn, send: make(chan []byte, sendBufferSize)}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go h.writePump(c)
	go h.readPump(c)
}

func (h *Hub) writePump(c *client) {
	defer h.drop(c)
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// readPump discards inbound messages and notices disconnects.
func (h *Hub) readPump(c *client) {
	defer h.drop(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	c.conn.Close()
}

// #endregion handle

// #region emit
// Emit broadcasts one step output to all connected clients. Clients whose
// send buffer is full are dropped.
func (h *Hub) Emit(out learner.Output) error {
	msg, err := json.Marshal(WSMessage{
		Type:      "step",
		Data:      out,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return err
	}

	h.mu.Lock()
	var slow []*client
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.Unlock()

	for _, c := range slow {
		h.drop(c)
	}
	return nil
}

// #endregion emit

// #region close
// Close disconnects all clients and shuts the server down.
func (h *Hub) Close() error {
	h.mu.Lock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
		c.conn.Close()
	}
	h.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return h.srv.Shutdown(ctx)
}

// #endregion close
