// Package liveapi exposes a running replay driver over HTTP and
// WebSocket: a health endpoint for operators and a /replay endpoint
// that streams processed trade/book events to attached clients while
// accepting step/pause/resume/seek control commands as JSON frames.
package liveapi

import (
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
)

// Client represents one connected WebSocket tailer.
type Client struct {
	ID   uint64
	Conn *websocket.Conn

	mu         sync.RWMutex
	symbols    map[uint32]bool
	allSymbols bool

	sendCh    chan []byte
	done      chan struct{}
	closeOnce sync.Once

	Dropped uint64
}

var clientIDCounter uint64

// NewClient wraps a WebSocket connection as a tailing client.
func NewClient(conn *websocket.Conn, bufferSize int) *Client {
	return &Client{
		ID:      atomic.AddUint64(&clientIDCounter, 1),
		Conn:    conn,
		symbols: make(map[uint32]bool),
		sendCh:  make(chan []byte, bufferSize),
		done:    make(chan struct{}),
	}
}

// Subscribe adds symbol IDs to the client's subscription.
func (c *Client) Subscribe(ids []uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		c.symbols[id] = true
	}
}

// SubscribeAll subscribes the client to every symbol.
func (c *Client) SubscribeAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.allSymbols = true
}

// Unsubscribe removes symbol IDs from the client's subscription.
func (c *Client) Unsubscribe(ids []uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		delete(c.symbols, id)
	}
}

// IsSubscribed reports whether the client wants events for symbolID.
func (c *Client) IsSubscribed(symbolID uint32) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.allSymbols {
		return true
	}
	return c.symbols[symbolID]
}

// Send enqueues data for delivery, dropping it if the client's buffer
// is full rather than blocking the broadcaster.
func (c *Client) Send(data []byte) bool {
	select {
	case c.sendCh <- data:
		return true
	default:
		atomic.AddUint64(&c.Dropped, 1)
		return false
	}
}

// SendCh returns the send channel for the write pump.
func (c *Client) SendCh() <-chan []byte { return c.sendCh }

// Done is closed once the client disconnects.
func (c *Client) Done() <-chan struct{} { return c.done }

// Close terminates the client connection.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.Conn.Close()
	})
}
