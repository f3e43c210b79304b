package websocket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"reforest-portal/portal-backend/internal/funding"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 512
	sendBuffer     = 64
)

// Message types
const (
	MessageTypeLedgerEvent = "ledger_event"
	MessageTypeSubscribe   = "subscribe"
	MessageTypeStatus      = "status"
)

var ErrManagerClosed = errors.New("websocket manager closed")

// Message is the frame exchanged with ledger feed clients.
type Message struct {
	Type       string         `json:"type"`
	Event      *funding.Event `json:"event,omitempty"`
	ProjectIDs []string       `json:"project_ids,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Connection represents a WebSocket client connection
type Connection struct {
	ID           string
	Conn         *websocket.Conn
	Send         chan Message
	UserAgent    string
	IPAddress    string
	mu           sync.Mutex
	projects     map[string]bool
	lastActivity time.Time
}

// LastActivity returns when the client last sent a frame.
func (c *Connection) LastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivity
}

// subscribed reports whether the connection wants events of projectID. A
// connection with no project filter receives everything.
func (c *Connection) subscribed(projectID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.projects) == 0 || c.projects[projectID]
}

func (c *Connection) setProjects(ids []string) {
	projects := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			projects[id] = true
		}
	}
	c.mu.Lock()
	c.projects = projects
	c.mu.Unlock()
}

func (c *Connection) touch() {
	c.mu.Lock()
	c.lastActivity = time.Now()
	c.mu.Unlock()
}

// Hub manages the broadcast of messages to connections
type Hub struct {
	connections map[*Connection]bool
	broadcast   chan Message
	unicast     chan unicast
	register    chan *Connection
	unregister  chan *Connection
	stop        chan struct{}
	count       atomic.Int64
	logger      *zap.Logger
}

type unicast struct {
	conn    *Connection
	message Message
}

// Manager handles WebSocket connections for the live ledger feed.
type Manager struct {
	hub      *Hub
	upgrader websocket.Upgrader
	logger   *zap.Logger
	once     sync.Once
	done     chan struct{}
}

// NewManager creates a new WebSocket manager. allowedOrigins empty accepts any origin.
func NewManager(logger *zap.Logger, allowedOrigins ...string) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	hub := &Hub{
		connections: make(map[*Connection]bool),
		broadcast:   make(chan Message, 256),
		unicast:     make(chan unicast, 16),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		stop:        make(chan struct{}),
		logger:      logger,
	}

	m := &Manager{
		hub:    hub,
		logger: logger,
		done:   make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}

	go func() {
		hub.run()
		close(m.done)
	}()

	return m
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin] || set["*"]
	}
}

// ServeWS upgrades the request and streams ledger events. The project_id query
// parameter (repeatable or comma separated) limits the feed to those projects.
func (m *Manager) ServeWS(c *gin.Context) {
	if _, err := m.HandleConnection(c.Writer, c.Request); err != nil {
		m.logger.Warn("WebSocket upgrade failed", zap.Error(err))
	}
}

// HandleConnection handles new WebSocket connections
func (m *Manager) HandleConnection(w http.ResponseWriter, r *http.Request) (*Connection, error) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:           uuid.New().String(),
		Conn:         conn,
		Send:         make(chan Message, sendBuffer),
		UserAgent:    r.Header.Get("User-Agent"),
		IPAddress:    r.RemoteAddr,
		lastActivity: time.Now(),
	}

	var projects []string
	for _, raw := range r.URL.Query()["project_id"] {
		projects = append(projects, strings.Split(raw, ",")...)
	}
	connection.setProjects(projects)

	select {
	case m.hub.register <- connection:
	case <-m.hub.stop:
		conn.Close()
		return nil, ErrManagerClosed
	}

	go m.readPump(connection)
	go m.writePump(connection)

	return connection, nil
}

// readPump reads subscription updates until the client goes away
func (m *Manager) readPump(conn *Connection) {
	defer func() {
		select {
		case m.hub.unregister <- conn:
		case <-m.hub.stop:
		}
		conn.Conn.Close()
	}()

	conn.Conn.SetReadLimit(maxMessageSize)
	_ = conn.Conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.Conn.SetPongHandler(func(string) error {
		return conn.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Message
		if err := conn.Conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				m.logger.Debug("WebSocket read failed", zap.String("connection_id", conn.ID), zap.Error(err))
			}
			return
		}

		conn.touch()

		if msg.Type == MessageTypeSubscribe {
			conn.setProjects(msg.ProjectIDs)
			status := Message{
				Type:      MessageTypeStatus,
				Data:      map[string]any{"status": "subscribed", "connection_id": conn.ID},
				Timestamp: time.Now().UTC(),
			}
			select {
			case m.hub.unicast <- unicast{conn: conn, message: status}:
			case <-m.hub.stop:
				return
			}
		}
	}
}

// writePump pumps messages from the hub to the WebSocket connection
func (m *Manager) writePump(conn *Connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			_ = conn.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.Conn.WriteJSON(message); err != nil {
				return
			}

		case <-ticker.C:
			_ = conn.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// run owns the connection set; it is the only closer of Send channels.
func (h *Hub) run() {
	for {
		select {
		case conn := <-h.register:
			h.connections[conn] = true
			h.count.Add(1)
			h.logger.Debug("Connection registered", zap.String("connection_id", conn.ID))

		case conn := <-h.unregister:
			h.remove(conn)

		case u := <-h.unicast:
			if !h.connections[u.conn] {
				continue
			}
			select {
			case u.conn.Send <- u.message:
			default:
			}

		case message := <-h.broadcast:
			projectID := ""
			if message.Event != nil {
				projectID = message.Event.ProjectID.String()
			}
			for conn := range h.connections {
				if projectID != "" && !conn.subscribed(projectID) {
					continue
				}
				select {
				case conn.Send <- message:
				default:
					h.logger.Warn("Dropping slow websocket client", zap.String("connection_id", conn.ID))
					h.remove(conn)
				}
			}

		case <-h.stop:
			for conn := range h.connections {
				h.remove(conn)
			}
			return
		}
	}
}

func (h *Hub) remove(conn *Connection) {
	if _, ok := h.connections[conn]; !ok {
		return
	}
	delete(h.connections, conn)
	close(conn.Send)
	h.count.Add(-1)
}

// Publish implements funding.EventPublisher by broadcasting to subscribed clients.
func (m *Manager) Publish(ctx context.Context, event funding.Event) error {
	message := Message{
		Type:      MessageTypeLedgerEvent,
		Event:     &event,
		Timestamp: time.Now().UTC(),
	}

	select {
	case <-m.hub.stop:
		return ErrManagerClosed
	default:
	}

	select {
	case m.hub.broadcast <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("broadcast channel full")
	}
}

// ConnectionCount returns the number of active connections
func (m *Manager) ConnectionCount() int {
	return int(m.hub.count.Load())
}

// Close disconnects every client and stops the hub.
func (m *Manager) Close() {
	m.once.Do(func() {
		close(m.hub.stop)
		<-m.done
	})
}
