package control

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ytget/yt-audio/internal/job"
	"github.com/ytget/yt-audio/internal/model"
)

// Event types pushed to websocket subscribers
const (
	EventSnapshot     = "snapshot"
	EventProgress     = "progress"
	EventStatus       = "status"
	EventFileFinished = "file_finished"
	EventError        = "error"
	EventLog          = "log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 256
)

// Event is one hook call, serialized as JSON on the /events stream
type Event struct {
	Type      string          `json:"type"`
	JobID     string          `json:"job_id,omitempty"`
	Percent   float64         `json:"percent,omitempty"`
	Index     int             `json:"index,omitempty"`
	Count     int             `json:"count,omitempty"`
	Text      string          `json:"text,omitempty"`
	Snapshot  *model.Snapshot `json:"snapshot,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

type client struct {
	conn *websocket.Conn
	send chan Event
}

// Hub fans job events out to websocket clients. Slow clients whose buffer
// fills up are dropped.
type Hub struct {
	mu       sync.Mutex
	clients  map[*client]struct{}
	jobID    string
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewHub creates a hub for one job
func NewHub(jobID string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients: make(map[*client]struct{}),
		jobID:   jobID,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: logger,
	}
}

// Hooks returns job hooks that publish every call to the hub
func (h *Hub) Hooks() job.Hooks {
	return job.Hooks{
		Progress: func(percent float64, index, count int) {
			h.Publish(Event{Type: EventProgress, Percent: percent, Index: index, Count: count})
		},
		Status: func(text string) {
			h.Publish(Event{Type: EventStatus, Text: text})
		},
		FileFinished: func(path string) {
			h.Publish(Event{Type: EventFileFinished, Text: path})
		},
		Error: func(message string) {
			h.Publish(Event{Type: EventError, Text: message})
		},
		Log: func(text string) {
			h.Publish(Event{Type: EventLog, Text: text})
		},
	}
}

// Publish sends ev to every connected client without blocking
func (h *Hub) Publish(ev Event) {
	if ev.JobID == "" {
		ev.JobID = h.jobID
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- ev:
		default:
			h.logger.Warn("dropping slow websocket client")
			close(c.send)
			delete(h.clients, c)
		}
	}
}

// Clients returns the number of connected clients
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

// ServeWS upgrades the request and streams events until the client goes away.
// The first message is the current snapshot.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, first Event) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.Any("error", err))
		return
	}

	c := &client{conn: conn, send: make(chan Event, sendBufferSize)}
	if first.JobID == "" {
		first.JobID = h.jobID
	}
	if first.Timestamp.IsZero() {
		first.Timestamp = time.Now().UTC()
	}
	c.send <- first

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", slog.String("remote", r.RemoteAddr))

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		close(c.send)
		delete(h.clients, c)
	}
}

// readPump discards client messages and notices disconnects
func (h *Hub) readPump(c *client) {
	defer func() {
		h.remove(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read error", slog.Any("error", err))
			}
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(ev); err != nil {
				h.logger.Debug("websocket write failed", slog.Any("error", err))
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
