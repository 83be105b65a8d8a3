package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teranos/jobd/async"
	"github.com/teranos/jobd/logger"
)

// WebSocket timeouts, following the gorilla chat example
const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = 54 * time.Second

	// Subscribers only send control frames
	maxMessageSize = 512
)

// wsClient is one /ws/jobs subscriber
type wsClient struct {
	server    *Server
	conn      *websocket.Conn
	events    <-chan async.JobView
	id        string
	closeOnce sync.Once
}

// HandleJobsWebSocket handles GET /ws/jobs, streaming every job status
// change as {"type":"job","job":{...}}.
func (s *Server) HandleJobsWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.reserveClientSlot() {
		writeError(w, r, http.StatusServiceUnavailable, codeUnavailable, "too many subscribers", nil)
		return
	}

	// Subscribe first so no transition is missed once the client sees 101
	events := s.queue.Subscribe()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error
		s.queue.Unsubscribe(events)
		s.releaseClientSlot()
		s.requestLogger(r).Warnw("WebSocket upgrade failed", logger.FieldError, err)
		return
	}

	client := &wsClient{
		server: s,
		conn:   conn,
		events: events,
		id:     logger.RequestIDFromContext(r.Context()),
	}

	s.mu.Lock()
	s.pendingClients--
	s.clients[client] = true
	total := len(s.clients)
	s.mu.Unlock()

	s.logger.Infow("Job stream client connected", "client_id", client.id, "total_clients", total)

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		client.writePump()
	}()
	go func() {
		defer s.wg.Done()
		client.readPump()
	}()
}

// reserveClientSlot claims room for one subscriber before the upgrade, so
// concurrent handshakes cannot overshoot MaxClients.
func (s *Server) reserveClientSlot() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.clients)+s.pendingClients >= MaxClients {
		return false
	}
	s.pendingClients++
	return true
}

func (s *Server) releaseClientSlot() {
	s.mu.Lock()
	s.pendingClients--
	s.mu.Unlock()
}

// readPump drains the connection so pongs and close frames are processed
func (c *wsClient) readPump() {
	defer c.close()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.server.logger.Debugw("Job stream read error", "client_id", c.id, logger.FieldError, err)
			}
			return
		}
	}
}

// writePump forwards queue events and keeps the connection alive
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.server.ctx.Done():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return

		case view, ok := <-c.events:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(JobEvent{Type: "job", Job: view}); err != nil {
				c.server.logger.Debugw("Job stream write error", "client_id", c.id, logger.FieldError, err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// close unsubscribes and closes the connection exactly once
func (c *wsClient) close() {
	c.closeOnce.Do(func() {
		c.server.queue.Unsubscribe(c.events)
		c.conn.Close()

		c.server.mu.Lock()
		delete(c.server.clients, c)
		total := len(c.server.clients)
		c.server.mu.Unlock()

		c.server.logger.Infow("Job stream client disconnected", "client_id", c.id, "total_clients", total)
	})
}

// closeClients disconnects every subscriber
func (s *Server) closeClients() {
	s.mu.RLock()
	clients := make([]*wsClient, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.RUnlock()

	for _, c := range clients {
		c.close()
	}
}
