package liveapi

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// controlMessage is a client -> server control frame.
type controlMessage struct {
	Action  string   `json:"action"`
	Symbols []uint32 `json:"symbols,omitempty"`
	SeekNs  int64    `json:"seek_ns,omitempty"`
}

// Handler upgrades incoming requests to the /replay WebSocket endpoint.
func Handler(mgr *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("liveapi: websocket upgrade error: %v", err)
			return
		}

		client := mgr.Register(conn)
		go writePump(client)
		go readPump(client, mgr)
	}
}

func readPump(c *Client, mgr *Manager) {
	defer mgr.Unregister(c)

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("liveapi: client %d read error: %v", c.ID, err)
			}
			return
		}

		var ctrl controlMessage
		if err := json.Unmarshal(message, &ctrl); err != nil {
			log.Printf("liveapi: client %d invalid message: %v", c.ID, err)
			continue
		}
		handleControl(c, mgr, &ctrl)
	}
}

func handleControl(c *Client, mgr *Manager, ctrl *controlMessage) {
	switch ctrl.Action {
	case "subscribe":
		if len(ctrl.Symbols) == 0 {
			c.SubscribeAll()
			log.Printf("liveapi: client %d subscribed to all symbols", c.ID)
		} else {
			c.Subscribe(ctrl.Symbols)
			log.Printf("liveapi: client %d subscribed to %v", c.ID, ctrl.Symbols)
		}

	case "unsubscribe":
		c.Unsubscribe(ctrl.Symbols)

	case "pause":
		if d := mgr.Driver(); d != nil {
			d.Pause()
		}

	case "resume":
		if d := mgr.Driver(); d != nil {
			d.Resume()
		}

	case "step":
		if d := mgr.Driver(); d != nil {
			d.Step()
		}

	case "seek":
		if d := mgr.Driver(); d != nil {
			d.SeekTo(ctrl.SeekNs)
		}

	default:
		log.Printf("liveapi: client %d unknown action: %s", c.ID, ctrl.Action)
	}
}

func writePump(c *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case data, ok := <-c.SendCh():
			if !ok {
				return
			}
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.Done():
			return
		}
	}
}

// HealthHandler reports whether a driver is attached and, if so,
// whether it has finished replaying its dataset.
func HealthHandler(mgr *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := map[string]any{"status": "ok", "clients": mgr.ClientCount()}
		if d := mgr.Driver(); d != nil {
			status["finished"] = d.IsFinished()
			status["events_processed"] = d.Counts().EventsProcessed
			status["position_ns"] = d.CurrentPosition()
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(status)
	}
}

// Server bundles the liveapi routes onto a mux.
type Server struct {
	mgr *Manager
}

// NewServer wraps a Manager for route registration.
func NewServer(mgr *Manager) *Server { return &Server{mgr: mgr} }

// Register attaches /health and /replay to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", HealthHandler(s.mgr))
	mux.HandleFunc("GET /replay", Handler(s.mgr))
}

// Shutdown closes every attached client, used during graceful server
// shutdown.
func (s *Server) Shutdown(ctx context.Context) {
	s.mgr.mu.Lock()
	defer s.mgr.mu.Unlock()
	for _, c := range s.mgr.clients {
		c.Close()
	}
}
