// Package event is the logical (decoded) representation of a replay
// event: the tagged union the spec's design notes call for, collapsing
// Trade/BookSnapshot/BookDelta into one value instead of a class
// hierarchy.
package event

import "github.com/ndrandal/flox-replay/internal/floxfmt"

// Trade is the decoded form of a TradeRecord frame.
type Trade struct {
	ExchangeTsNs int64
	RecvTsNs     int64
	PriceRaw     int64
	QtyRaw       int64
	TradeID      uint64
	SymbolID     uint32
	Side         floxfmt.Side
	Instrument   uint8
	ExchangeID   uint16
}

// Book is the decoded form of a book snapshot or delta frame.
type Book struct {
	ExchangeTsNs int64
	RecvTsNs     int64
	Seq          int64
	SymbolID     uint32
	Subkind      floxfmt.EventKind // KindBookSnapshot or KindBookDelta
	Instrument   uint8
	ExchangeID   uint16
	Bids         []floxfmt.BookLevel
	Asks         []floxfmt.BookLevel
}

// Event is a single decoded record from the log: exactly one of Trade or
// Book is non-nil, discriminated by Kind.
type Event struct {
	Kind  floxfmt.EventKind
	Trade *Trade
	Book  *Book
}

// Timestamp returns the event's source (exchange) timestamp, the field
// every ordering and filter rule in the spec keys on.
func (e Event) Timestamp() int64 {
	if e.Trade != nil {
		return e.Trade.ExchangeTsNs
	}
	if e.Book != nil {
		return e.Book.ExchangeTsNs
	}
	return 0
}

// SymbolID returns the event's symbol, regardless of kind.
func (e Event) SymbolID() uint32 {
	if e.Trade != nil {
		return e.Trade.SymbolID
	}
	if e.Book != nil {
		return e.Book.SymbolID
	}
	return 0
}

func NewTrade(t Trade) Event {
	return Event{Kind: floxfmt.KindTrade, Trade: &t}
}

func NewBook(b Book) Event {
	return Event{Kind: b.Subkind, Book: &b}
}
