package api

import (
	"net/http"
	"sync"
	"time"

	"autodealer/internal/adapters/api/middleware"
	"autodealer/internal/application/auth"
	domainAuth "autodealer/internal/domain/auth"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	eventBuffer  = 16
	writeTimeout = 10 * time.Second
)

// WebSocketManager manages the event stream connections of each browser
type WebSocketManager struct {
	upgrader    websocket.Upgrader
	connections map[string]map[*websocket.Conn]struct{} // browserID -> conns
	mu          sync.RWMutex
}

// NewWebSocketManager creates a new WebSocket manager. Origins other than
// allowedOrigin are rejected unless it is "*".
func NewWebSocketManager(allowedOrigin string) *WebSocketManager {
	return &WebSocketManager{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return allowedOrigin == "*" || origin == "" || origin == allowedOrigin
			},
		},
		connections: make(map[string]map[*websocket.Conn]struct{}),
	}
}

// Register adds a connection to the manager
func (m *WebSocketManager) Register(browserID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.connections[browserID]; !exists {
		m.connections[browserID] = make(map[*websocket.Conn]struct{})
	}
	m.connections[browserID][conn] = struct{}{}
	log.Debug().Str("browser_id", browserID).Msg("Event stream registered")
}

// Unregister removes a connection from the manager
func (m *WebSocketManager) Unregister(browserID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if conns, exists := m.connections[browserID]; exists {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(m.connections, browserID)
		}
	}
	log.Debug().Str("browser_id", browserID).Msg("Event stream unregistered")
}

// Count returns the number of open connections
func (m *WebSocketManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, conns := range m.connections {
		n += len(conns)
	}
	return n
}

// CloseAll closes every open connection
func (m *WebSocketManager) CloseAll() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, conns := range m.connections {
		for conn := range conns {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(time.Second))
			_ = conn.Close()
		}
	}
}

// streamMessage is one frame of the event stream
type streamMessage struct {
	Seq     uint64          `json:"seq,omitempty"`
	Type    string          `json:"type"`
	Session sessionResponse `json:"session"`
	At      time.Time       `json:"at"`
}

// HandleEvents streams session store transitions of the browser.
// The first frame is a snapshot of the current state.
func (h *Handler) HandleEvents(c *gin.Context) {
	store, ok := middleware.StoreFrom(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session store missing"})
		return
	}
	browserID := middleware.BrowserIDFrom(c)

	conn, err := h.wsManager.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}
	h.wsManager.Register(browserID, conn)

	events := make(chan auth.Event, eventBuffer)
	unsubscribe := store.Subscribe(func(ev auth.Event) {
		select {
		case events <- ev:
		default:
			log.Warn().Str("browser_id", browserID).Str("event", string(ev.Type)).Msg("Event stream lagging, dropping event")
		}
	})

	done := make(chan struct{})
	defer func() {
		unsubscribe()
		h.wsManager.Unregister(browserID, conn)
		_ = conn.Close()
	}()

	// Reader: detects the client going away
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := writeFrame(conn, streamMessage{Type: "snapshot", Session: newSessionResponse(store), At: time.Now()}); err != nil {
		log.Debug().Err(err).Msg("Failed to send snapshot")
		return
	}

	for {
		select {
		case <-done:
			log.Debug().Str("browser_id", browserID).Msg("Event stream closed")
			return
		case ev := <-events:
			msg := streamMessage{Seq: ev.Seq, Type: string(ev.Type), Session: eventSession(ev), At: ev.At}
			if err := writeFrame(conn, msg); err != nil {
				log.Debug().Err(err).Msg("Failed to send event")
				return
			}
		}
	}
}

// eventSession describes the session as it was when ev was committed
func eventSession(ev auth.Event) sessionResponse {
	resp := sessionResponse{
		State:         ev.State.String(),
		Authenticated: ev.State == domainAuth.StateAuthenticated,
	}
	if ev.Session != nil {
		resp.Admin = ev.Session.IsAdmin()
		resp.Email = ev.Session.Email
		resp.Role = string(ev.Session.Role)
		resp.UserID = ev.Session.UserID
		resp.Token = ev.Session.Token
	}
	return resp
}

func writeFrame(conn *websocket.Conn, msg streamMessage) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(msg)
}
