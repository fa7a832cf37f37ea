package notifications

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ReviewEvent tells a citizen what happened to their submission
type ReviewEvent struct {
	Type          string    `json:"type"` // "submission_approved" | "submission_rejected"
	SubmissionID  string    `json:"submission_id"`
	UserID        string    `json:"user_id"`
	TaskType      string    `json:"task_type"`
	PointsAwarded int       `json:"points_awarded,omitempty"`
	Comments      string    `json:"comments,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// Notifier delivers review events to the owning user
type Notifier interface {
	Notify(event ReviewEvent)
}

// client wraps a connection with a write lock: the websocket protocol
// allows only one concurrent writer per connection, and Notify is called
// from request goroutines.
type client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *client) send(event ReviewEvent) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(event)
}

// Hub fans review events out to each user's open websocket connections.
// A user with no connection simply misses the push; the submission record
// remains the source of truth.
type Hub struct {
	mu      sync.RWMutex
	clients map[string][]*client

	upgrader websocket.Upgrader
	logger   *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[string][]*client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// In production, implement proper origin checking
				return true
			},
		},
		logger: logger,
	}
}

// HandleConnection upgrades an HTTP request and tracks the connection under
// the user id in the X-User-ID header
func (h *Hub) HandleConnection(w http.ResponseWriter, r *http.Request) error {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		userID = r.URL.Query().Get("userId")
	}
	if userID == "" {
		http.Error(w, "missing user id", http.StatusBadRequest)
		return nil
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	cl := &client{conn: conn}

	h.mu.Lock()
	h.clients[userID] = append(h.clients[userID], cl)
	h.mu.Unlock()

	// Reader drains control frames and detects close
	go func() {
		defer h.drop(userID, cl)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	return nil
}

// Notify pushes the event to every open connection of the owning user
func (h *Hub) Notify(event ReviewEvent) {
	h.mu.RLock()
	clients := append([]*client(nil), h.clients[event.UserID]...)
	h.mu.RUnlock()

	for _, cl := range clients {
		if err := cl.send(event); err != nil {
			h.logger.Warn("failed to push review event",
				zap.String("user_id", event.UserID),
				zap.Error(err))
			h.drop(event.UserID, cl)
		}
	}
}

func (h *Hub) drop(userID string, cl *client) {
	cl.conn.Close()
	h.mu.Lock()
	defer h.mu.Unlock()
	clients := h.clients[userID]
	for i, c := range clients {
		if c == cl {
			h.clients[userID] = append(clients[:i], clients[i+1:]...)
			break
		}
	}
	if len(h.clients[userID]) == 0 {
		delete(h.clients, userID)
	}
}

// NopNotifier is used where review decisions need no push delivery (tests,
// worker contexts)
type NopNotifier struct{}

func (NopNotifier) Notify(ReviewEvent) {}
