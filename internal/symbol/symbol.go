// Package symbol implements a persistent registry mapping
// (exchange, symbol) pairs to a dense numeric ID and back, along with
// optional cross-exchange equivalence links and a compact binary
// on-disk form.
package symbol

import (
	"fmt"
	"sync"
)

// InstrumentType classifies what a symbol actually trades.
type InstrumentType uint8

const (
	Spot InstrumentType = iota
	Future
	Perpetual
	Option
)

func (t InstrumentType) String() string {
	switch t {
	case Spot:
		return "spot"
	case Future:
		return "future"
	case Perpetual:
		return "perpetual"
	case Option:
		return "option"
	default:
		return "unknown"
	}
}

// OptionType distinguishes calls from puts for Option instruments.
type OptionType uint8

const (
	Call OptionType = iota
	Put
)

// MaxExchanges, MaxSymbols and MaxEquivalentsPerSymbol bound the
// registry's tables, matching the fixed-capacity limits a recording
// producer is expected to respect; the registry does not enforce them
// as hard errors, only as the equivalence table's per-symbol cap.
const (
	MaxExchanges            = 32
	MaxSymbols              = 4096
	MaxEquivalentsPerSymbol = 8
)

// Info describes one registered symbol.
type Info struct {
	ID         uint32
	Exchange   string
	Symbol     string
	Type       InstrumentType
	Strike     *int64 // raw fixed-point strike price, options only
	ExpiryNs   *int64 // nanoseconds since epoch, options/futures only
	OptionType *OptionType
}

func key(exchange, sym string) string { return exchange + ":" + sym }

// Registry is a concurrency-safe (exchange,symbol)<->id table with
// bounded cross-exchange equivalence links.
type Registry struct {
	mu sync.RWMutex

	byKey  map[string]uint32
	byID   map[uint32]Info
	nextID uint32

	equivalents map[uint32][]uint32
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byKey:       make(map[string]uint32),
		byID:        make(map[uint32]Info),
		equivalents: make(map[uint32][]uint32),
		nextID:      1,
	}
}

// Register assigns an ID to (exchange, symbol) if one doesn't already
// exist, or returns the existing ID. IDs are assigned densely starting
// at 1; 0 is never a valid symbol ID.
func (r *Registry) Register(exchange, sym string) uint32 {
	return r.RegisterInfo(Info{Exchange: exchange, Symbol: sym})
}

// RegisterInfo registers a fully-described symbol, assigning it an ID
// if (info.Exchange, info.Symbol) hasn't been seen before. The
// stored Info always carries the assigned ID, overriding info.ID.
func (r *Registry) RegisterInfo(info Info) uint32 {
	k := key(info.Exchange, info.Symbol)

	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.byKey[k]; ok {
		return id
	}

	id := r.nextID
	r.nextID++
	info.ID = id
	r.byKey[k] = id
	r.byID[id] = info
	return id
}

// ID looks up the ID for (exchange, symbol).
func (r *Registry) ID(exchange, sym string) (uint32, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byKey[key(exchange, sym)]
	return id, ok
}

// Lookup returns the full Info for an ID.
func (r *Registry) Lookup(id uint32) (Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.byID[id]
	return info, ok
}

// Name returns the (exchange, symbol) pair for an ID.
func (r *Registry) Name(id uint32) (exchange, sym string, ok bool) {
	info, ok := r.Lookup(id)
	if !ok {
		return "", "", false
	}
	return info.Exchange, info.Symbol, true
}

// Size returns the number of registered symbols.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// All returns every registered symbol's Info, in no particular order.
func (r *Registry) All() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Info, 0, len(r.byID))
	for _, info := range r.byID {
		out = append(out, info)
	}
	return out
}

// Clear removes every registered symbol and equivalence link.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byKey = make(map[string]uint32)
	r.byID = make(map[uint32]Info)
	r.equivalents = make(map[uint32][]uint32)
	r.nextID = 1
}

// MapEquivalent declares that the given symbol IDs all refer to the
// same underlying instrument across exchanges. Each ID gets every
// other ID in the group as an equivalent; a group is truncated to
// MaxEquivalentsPerSymbol equivalents per member.
func (r *Registry) MapEquivalent(ids ...uint32) {
	if len(ids) < 2 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range ids {
		peers := r.equivalents[id]
		for _, other := range ids {
			if other == id {
				continue
			}
			if containsUint32(peers, other) {
				continue
			}
			if len(peers) >= MaxEquivalentsPerSymbol {
				break
			}
			peers = append(peers, other)
		}
		r.equivalents[id] = peers
	}
}

func containsUint32(s []uint32, v uint32) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

// Equivalents returns the symbol IDs mapped as equivalent to id.
func (r *Registry) Equivalents(id uint32) []uint32 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	peers := r.equivalents[id]
	out := make([]uint32, len(peers))
	copy(out, peers)
	return out
}

// EquivalentOn returns the equivalent of id listed on the given
// exchange, if any.
func (r *Registry) EquivalentOn(id uint32, exchange string) (uint32, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, peer := range r.equivalents[id] {
		if info, ok := r.byID[peer]; ok && info.Exchange == exchange {
			return peer, true
		}
	}
	return 0, false
}

// Error returned by Deserialize when the blob's magic or version
// doesn't match this package's binary format.
type FormatError struct {
	Reason string
}

func (e *FormatError) Error() string { return fmt.Sprintf("symbol: %s", e.Reason) }
