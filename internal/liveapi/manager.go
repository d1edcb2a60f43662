package liveapi

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/ndrandal/flox-replay/internal/event"
	"github.com/ndrandal/flox-replay/internal/replay"
)

// Manager fans a running replay driver's events out to attached
// WebSocket clients and implements replay.Strategy so it can be
// wired directly into a Driver's Config.
type Manager struct {
	mu         sync.RWMutex
	clients    map[uint64]*Client
	bufferSize int
	driver     *replay.Driver
}

// NewManager creates a tailing fan-out manager. driver may be nil at
// construction time and set later with SetDriver, since the manager
// and driver are typically wired together by the composition root.
func NewManager(bufferSize int) *Manager {
	return &Manager{
		clients:    make(map[uint64]*Client),
		bufferSize: bufferSize,
	}
}

// SetDriver attaches the driver this manager tails and controls.
func (m *Manager) SetDriver(d *replay.Driver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.driver = d
}

// Driver returns the attached driver, or nil if none has been set.
func (m *Manager) Driver() *replay.Driver {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.driver
}

// Register adds a new client.
func (m *Manager) Register(conn *websocket.Conn) *Client {
	c := NewClient(conn, m.bufferSize)
	m.mu.Lock()
	m.clients[c.ID] = c
	m.mu.Unlock()
	log.Printf("liveapi: client %d connected (%s)", c.ID, conn.RemoteAddr())
	return c
}

// Unregister removes a client.
func (m *Manager) Unregister(c *Client) {
	m.mu.Lock()
	delete(m.clients, c.ID)
	m.mu.Unlock()
	c.Close()
	log.Printf("liveapi: client %d disconnected", c.ID)
}

// ClientCount returns the number of connected clients.
func (m *Manager) ClientCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// wireEvent is the JSON projection of a tailed event, sent to every
// subscribed client as a single text frame.
type wireEvent struct {
	Type     string  `json:"type"`
	SymbolID uint32  `json:"symbol_id"`
	TsNs     int64   `json:"ts_ns"`
	Price    *int64  `json:"price_raw,omitempty"`
	Qty      *int64  `json:"qty_raw,omitempty"`
	TradeID  *uint64 `json:"trade_id,omitempty"`
	Side     *uint8  `json:"side,omitempty"`
}

// OnTrade implements replay.Strategy, broadcasting trades to every
// client subscribed to the trade's symbol.
func (m *Manager) OnTrade(tr event.Trade) {
	price := tr.PriceRaw
	qty := tr.QtyRaw
	id := tr.TradeID
	side := uint8(tr.Side)
	m.broadcast(tr.SymbolID, wireEvent{
		Type: "trade", SymbolID: tr.SymbolID, TsNs: tr.ExchangeTsNs,
		Price: &price, Qty: &qty, TradeID: &id, Side: &side,
	})
}

// OnBookUpdate implements replay.Strategy, broadcasting book updates
// to every client subscribed to the book's symbol.
func (m *Manager) OnBookUpdate(b event.Book) {
	m.broadcast(b.SymbolID, wireEvent{
		Type: b.Subkind.String(), SymbolID: b.SymbolID, TsNs: b.ExchangeTsNs,
	})
}

func (m *Manager) broadcast(symbolID uint32, ev wireEvent) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.clients) == 0 {
		return
	}

	var encoded []byte
	for _, c := range m.clients {
		if !c.IsSubscribed(symbolID) {
			continue
		}
		if encoded == nil {
			data, err := json.Marshal(ev)
			if err != nil {
				return
			}
			encoded = data
		}
		c.Send(encoded)
	}
}
