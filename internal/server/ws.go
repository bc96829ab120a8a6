package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"regexp"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
)

// WSMessage is the envelope for all WebSocket communication.
type WSMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewMessage marshals payload into a WSMessage. A nil payload is omitted.
func NewMessage(typ string, payload any) WSMessage {
	msg := WSMessage{Type: typ}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err == nil {
			msg.Payload = raw
		}
	}
	return msg
}

// Client represents one connected browser tab.
type Client struct {
	ID      string
	Profile string
	conn    *websocket.Conn
	send    chan WSMessage
}

// MessageHandler processes inbound messages from a client.
type MessageHandler interface {
	HandleMessage(ctx context.Context, client *Client, msg WSMessage)
	HandleDisconnect(client *Client)
}

// Hub manages all WebSocket clients.
type Hub struct {
	mu           sync.RWMutex
	clients      map[string]*Client
	handler      MessageHandler
	metrics      *Metrics
	readLimit    int64
	pingInterval time.Duration
	logger       *slog.Logger
}

func NewHub(handler MessageHandler, metrics *Metrics, readLimit int64, pingInterval time.Duration, logger *slog.Logger) *Hub {
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &Hub{
		clients:      make(map[string]*Client),
		handler:      handler,
		metrics:      metrics,
		readLimit:    readLimit,
		pingInterval: pingInterval,
		logger:       logger,
	}
}

// SetHandler sets the message handler (used to break circular init).
func (h *Hub) SetHandler(handler MessageHandler) {
	h.handler = handler
}

var profilePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidProfile reports whether id can be used as a profile key.
func ValidProfile(id string) bool {
	return profilePattern.MatchString(id)
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := uuid.NewString()
	profile := r.URL.Query().Get("profile")
	if profile == "" {
		profile = id
	}
	if !ValidProfile(profile) {
		http.Error(w, "bad profile", http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.logger.Error("ws accept", "err", err)
		return
	}
	if h.readLimit > 0 {
		conn.SetReadLimit(h.readLimit)
	}

	client := &Client{
		ID:      id,
		Profile: profile,
		conn:    conn,
		send:    make(chan WSMessage, 64),
	}

	h.register(client)
	defer h.unregister(client)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go h.writePump(ctx, client)
	h.readPump(ctx, client)
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.IncrWSConn()
	}
	h.logger.Info("client connected", "client", c.ID, "profile", c.Profile)
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c.ID]
	if ok {
		delete(h.clients, c.ID)
		close(c.send)
	}
	h.mu.Unlock()
	if !ok {
		return
	}
	if h.metrics != nil {
		h.metrics.DecrWSConn()
	}
	if h.handler != nil {
		h.handler.HandleDisconnect(c)
	}
	h.logger.Info("client disconnected", "client", c.ID)
}

// SendTo sends a message to a specific client. Messages to a client whose
// buffer is full are dropped.
func (h *Hub) SendTo(clientID string, msg WSMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[clientID]
	if !ok {
		return
	}
	select {
	case c.send <- msg:
	default:
		h.logger.Warn("client send buffer full", "client", c.ID, "type", msg.Type)
	}
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) readPump(ctx context.Context, c *Client) {
	defer func() {
		if err := c.conn.CloseNow(); err != nil {
			h.logger.Debug("close conn", "err", err)
		}
	}()
	for {
		var msg WSMessage
		if err := wsjson.Read(ctx, c.conn, &msg); err != nil {
			return
		}
		if h.handler != nil {
			h.handler.HandleMessage(ctx, c, msg)
		}
	}
}

func (h *Hub) writePump(ctx context.Context, c *Client) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			if err := wsjson.Write(ctx, c.conn, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.Ping(ctx); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
