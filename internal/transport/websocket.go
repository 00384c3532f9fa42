// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsClientQueue  = 16
	wsWriteTimeout = 100 * time.Millisecond
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// WebSocket pushes frames as text messages to every connected browser.
// A client whose queue is full misses frames instead of slowing the sender.
type WebSocket struct {
	addr string

	mu      sync.Mutex
	name    string
	clients map[*wsClient]struct{}
	dropped uint64

	ln  net.Listener
	srv *http.Server
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

var _ Transport = (*WebSocket)(nil)

// NewWebSocket serves on addr after Init. An empty addr means the caller
// mounts Handler itself.
func NewWebSocket(addr string) *WebSocket {
	return &WebSocket{
		addr:    addr,
		clients: make(map[*wsClient]struct{}),
	}
}

// Handler serves /ws (frame stream) and /api/info (device name, client count).
func (w *WebSocket) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", w.serveWS)
	mux.HandleFunc("/api/info", w.serveInfo)
	return mux
}

// Init records the name and starts listening when an address was given.
func (w *WebSocket) Init(name string) error {
	w.mu.Lock()
	w.name = name
	w.mu.Unlock()

	if w.addr == "" {
		return nil
	}
	ln, err := net.Listen("tcp", w.addr)
	if err != nil {
		return fmt.Errorf("websocket: listen %s: %w", w.addr, err)
	}
	w.ln = ln
	w.srv = &http.Server{Handler: w.Handler()}
	go func() {
		if err := w.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("transport/websocket: server error: %v", err)
		}
	}()
	log.Printf("transport/websocket: listening on %s", ln.Addr())
	return nil
}

// Addr is the bound listen address, or nil before Init.
func (w *WebSocket) Addr() net.Addr {
	if w.ln == nil {
		return nil
	}
	return w.ln.Addr()
}

// Send queues payload for every client without blocking.
func (w *WebSocket) Send(payload []byte) error {
	if err := checkPayload(payload); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.clients) == 0 {
		return ErrNoPeer
	}
	msg := append([]byte(nil), payload...)
	for c := range w.clients {
		select {
		case c.send <- msg:
		default:
			w.dropped++
		}
	}
	return nil
}

// Clients returns the number of connected clients.
func (w *WebSocket) Clients() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.clients)
}

func (w *WebSocket) Close() error {
	w.mu.Lock()
	for c := range w.clients {
		c.conn.Close()
	}
	w.mu.Unlock()
	if w.srv != nil {
		return w.srv.Close()
	}
	return nil
}

func (w *WebSocket) serveWS(rw http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(rw, r, nil)
	if err != nil {
		log.Printf("transport/websocket: upgrade error: %v", err)
		return
	}

	c := &wsClient{conn: conn, send: make(chan []byte, wsClientQueue)}
	w.mu.Lock()
	w.clients[c] = struct{}{}
	w.mu.Unlock()
	log.Printf("transport/websocket: client %s connected", conn.RemoteAddr())

	go c.writeLoop()

	// Reads only detect the close; clients have nothing to say.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("transport/websocket: client %s: %v", conn.RemoteAddr(), err)
			}
			break
		}
	}

	w.mu.Lock()
	delete(w.clients, c)
	close(c.send)
	w.mu.Unlock()
	conn.Close()
	log.Printf("transport/websocket: client %s disconnected", conn.RemoteAddr())
}

func (c *wsClient) writeLoop() {
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.conn.Close()
			// drain until serveWS closes the channel
			for range c.send {
			}
			return
		}
	}
}

func (w *WebSocket) serveInfo(rw http.ResponseWriter, r *http.Request) {
	w.mu.Lock()
	info := struct {
		Name    string `json:"name"`
		Clients int    `json:"clients"`
		Dropped uint64 `json:"dropped"`
	}{Name: w.name, Clients: len(w.clients), Dropped: w.dropped}
	w.mu.Unlock()

	rw.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(rw).Encode(info); err != nil {
		log.Printf("transport/websocket: json encode error: %v", err)
	}
}
