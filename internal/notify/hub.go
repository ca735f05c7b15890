// Package notify is the agent-facing live escalation feed: when a session
// transitions to pending_handoff, connected agent-dashboard sockets receive
// a push. The Hub/Client/worker-pool shape is adapted from the stack's
// chat websocket handler, with the per-character token-streaming behavior
// dropped — real-time streaming of partial tokens is an explicit Non-goal
// of this system, but a connection-managed broadcast hub is not.
package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/chatcore/chatcore/internal/collaborators"
)

const (
	maxConnectionsPerAgent = 5
	maxMessageSize         = 65536
	writeWait              = 10 * time.Second
	pongWait               = 60 * time.Second
	pingPeriod             = (pongWait * 9) / 10
	maxMessageRate         = 10
)

// Alert is one escalation event pushed to connected agent dashboards.
type Alert struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

type Hub struct {
	clients    map[string]*client
	broadcast  chan *Alert
	register   chan *client
	unregister chan *client

	agentConnections map[string]int
	mu               sync.RWMutex

	activeConnections int64
	alertsSent        int64

	log *logrus.Logger
}

type client struct {
	id      string
	agentID string
	conn    *websocket.Conn
	send    chan []byte
	hub     *Hub
	limiter *rate.Limiter
}

type Config struct {
	AllowedOrigins []string
	MaxConnections int64
}

type Handler struct {
	hub      *Hub
	upgrader websocket.Upgrader
	config   Config
}

func NewHandler(config Config, log *logrus.Logger) *Handler {
	hub := &Hub{
		clients:          make(map[string]*client),
		broadcast:        make(chan *Alert, 1000),
		register:         make(chan *client, 100),
		unregister:       make(chan *client, 100),
		agentConnections: make(map[string]int),
		log:              log,
	}
	go hub.run(4)

	return &Handler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if len(config.AllowedOrigins) == 0 {
					return true
				}
				origin := r.Header.Get("Origin")
				for _, allowed := range config.AllowedOrigins {
					if origin == allowed {
						return true
					}
				}
				return false
			},
		},
		config: config,
	}
}

// Notify satisfies collaborators.NotificationSink by fanning an escalation
// alert out to every connected agent dashboard; it is always best-effort.
func (h *Handler) Notify(ctx context.Context, alert collaborators.EscalationAlert) error {
	select {
	case h.hub.broadcast <- &Alert{SessionID: alert.SessionID, UserID: alert.UserID, Reason: alert.Reason, CreatedAt: time.Now()}:
	default:
	}
	return nil
}

func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request, agentID string) {
	if atomic.LoadInt64(&h.hub.activeConnections) >= h.config.MaxConnections {
		http.Error(w, "server at capacity", http.StatusServiceUnavailable)
		return
	}

	h.hub.mu.RLock()
	conns := h.hub.agentConnections[agentID]
	h.hub.mu.RUnlock()
	if conns >= maxConnectionsPerAgent {
		http.Error(w, "too many connections", http.StatusTooManyRequests)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.hub.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	c := &client{
		id:      agentID + "-" + time.Now().Format("150405.000"),
		agentID: agentID,
		conn:    conn,
		send:    make(chan []byte, 256),
		hub:     h.hub,
		limiter: rate.NewLimiter(rate.Limit(maxMessageRate), maxMessageRate*2),
	}
	h.hub.register <- c

	go c.writePump()
	go c.readPump()
}

func (hub *Hub) run(numWorkers int) {
	for i := 0; i < numWorkers; i++ {
		go hub.broadcastWorker()
	}

	for {
		select {
		case c := <-hub.register:
			hub.mu.Lock()
			hub.clients[c.id] = c
			hub.agentConnections[c.agentID]++
			atomic.AddInt64(&hub.activeConnections, 1)
			hub.mu.Unlock()

		case c := <-hub.unregister:
			hub.mu.Lock()
			if _, ok := hub.clients[c.id]; ok {
				delete(hub.clients, c.id)
				hub.agentConnections[c.agentID]--
				if hub.agentConnections[c.agentID] <= 0 {
					delete(hub.agentConnections, c.agentID)
				}
				close(c.send)
				atomic.AddInt64(&hub.activeConnections, -1)
			}
			hub.mu.Unlock()
		}
	}
}

func (hub *Hub) broadcastWorker() {
	for alert := range hub.broadcast {
		data, err := json.Marshal(alert)
		if err != nil {
			continue
		}

		hub.mu.RLock()
		clients := make([]*client, 0, len(hub.clients))
		for _, c := range hub.clients {
			clients = append(clients, c)
		}
		hub.mu.RUnlock()

		for _, c := range clients {
			select {
			case c.send <- data:
				atomic.AddInt64(&hub.alertsSent, 1)
			default:
				hub.unregister <- c
			}
		}
	}
}

func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
		if !c.limiter.Allow() {
			continue
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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
