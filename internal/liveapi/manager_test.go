package liveapi

import (
	"testing"

	"github.com/ndrandal/flox-replay/internal/event"
	"github.com/ndrandal/flox-replay/internal/floxfmt"
)

func TestClientSubscriptionSpecific(t *testing.T) {
	c := NewClient(nil, 10)
	c.Subscribe([]uint32{1, 2})
	if !c.IsSubscribed(1) || !c.IsSubscribed(2) {
		t.Fatal("expected client subscribed to 1 and 2")
	}
	if c.IsSubscribed(3) {
		t.Fatal("expected client not subscribed to 3")
	}
}

func TestClientSubscribeAll(t *testing.T) {
	c := NewClient(nil, 10)
	c.SubscribeAll()
	if !c.IsSubscribed(999) {
		t.Fatal("expected all-subscribed client to match any symbol")
	}
}

func TestClientUnsubscribe(t *testing.T) {
	c := NewClient(nil, 10)
	c.Subscribe([]uint32{1})
	c.Unsubscribe([]uint32{1})
	if c.IsSubscribed(1) {
		t.Fatal("expected symbol to be unsubscribed")
	}
}

func TestClientSendDropsWhenBufferFull(t *testing.T) {
	c := NewClient(nil, 1)
	if !c.Send([]byte("a")) {
		t.Fatal("first send should succeed")
	}
	if c.Send([]byte("b")) {
		t.Fatal("second send should be dropped (buffer full)")
	}
	if c.Dropped != 1 {
		t.Fatalf("dropped count = %d, want 1", c.Dropped)
	}
}

func TestManagerBroadcastOnlyToSubscribed(t *testing.T) {
	m := NewManager(10)

	subscribed := NewClient(nil, 10)
	subscribed.Subscribe([]uint32{5})
	unsubscribed := NewClient(nil, 10)
	unsubscribed.Subscribe([]uint32{6})

	m.mu.Lock()
	m.clients[subscribed.ID] = subscribed
	m.clients[unsubscribed.ID] = unsubscribed
	m.mu.Unlock()

	m.OnTrade(event.Trade{SymbolID: 5, ExchangeTsNs: 100, PriceRaw: 1000, QtyRaw: 1, TradeID: 1})

	select {
	case <-subscribed.SendCh():
	default:
		t.Fatal("expected subscribed client to receive the trade")
	}
	select {
	case <-unsubscribed.SendCh():
		t.Fatal("unsubscribed client should not have received the trade")
	default:
	}
}

func TestManagerOnBookUpdateBroadcasts(t *testing.T) {
	m := NewManager(10)
	c := NewClient(nil, 10)
	c.SubscribeAll()
	m.mu.Lock()
	m.clients[c.ID] = c
	m.mu.Unlock()

	m.OnBookUpdate(event.Book{SymbolID: 1, ExchangeTsNs: 1, Subkind: floxfmt.KindBookSnapshot})

	select {
	case <-c.SendCh():
	default:
		t.Fatal("expected client to receive the book update")
	}
}

func TestManagerClientCount(t *testing.T) {
	m := NewManager(10)
	if m.ClientCount() != 0 {
		t.Fatalf("expected 0 clients, got %d", m.ClientCount())
	}
	c := NewClient(nil, 10)
	m.mu.Lock()
	m.clients[c.ID] = c
	m.mu.Unlock()
	if m.ClientCount() != 1 {
		t.Fatalf("expected 1 client, got %d", m.ClientCount())
	}
}
