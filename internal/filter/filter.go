// Package filter implements the single inclusive/inclusive time+symbol
// predicate shared by every reader (coordinator, parallel reader, segment
// operations) so the convention cannot drift between components the way
// it did in the source (see SPEC_FULL.md Part E).
package filter

import "github.com/ndrandal/flox-replay/internal/event"

// Filter selects events by time range (both ends inclusive when set) and
// by symbol set (any symbol passes when empty).
type Filter struct {
	FromNs  *int64
	ToNs    *int64
	Symbols map[uint32]struct{}
}

// New returns an empty filter that passes everything.
func New() Filter {
	return Filter{}
}

// WithTimeRange returns a copy restricted to [fromNs, toNs], inclusive on
// both ends. A nil bound leaves that side unrestricted.
func (f Filter) WithTimeRange(fromNs, toNs *int64) Filter {
	f.FromNs = fromNs
	f.ToNs = toNs
	return f
}

// WithSymbols returns a copy restricted to the given symbol set.
func (f Filter) WithSymbols(symbols ...uint32) Filter {
	if len(symbols) == 0 {
		f.Symbols = nil
		return f
	}
	set := make(map[uint32]struct{}, len(symbols))
	for _, s := range symbols {
		set[s] = struct{}{}
	}
	f.Symbols = set
	return f
}

// IsEmpty reports whether f imposes no restriction at all.
func (f Filter) IsEmpty() bool {
	return f.FromNs == nil && f.ToNs == nil && len(f.Symbols) == 0
}

// Passes reports whether ev satisfies f:
//
//	(FromNs == nil || ev.ts >= *FromNs) AND
//	(ToNs   == nil || ev.ts <= *ToNs)   AND
//	(len(Symbols) == 0 || ev.symbol ∈ Symbols)
func (f Filter) Passes(ev event.Event) bool {
	ts := ev.Timestamp()
	if f.FromNs != nil && ts < *f.FromNs {
		return false
	}
	if f.ToNs != nil && ts > *f.ToNs {
		return false
	}
	if len(f.Symbols) > 0 {
		if _, ok := f.Symbols[ev.SymbolID()]; !ok {
			return false
		}
	}
	return true
}

// ExceedsTo reports whether ts is strictly past f.ToNs, letting scanners
// that read in timestamp order stop early instead of scanning to EOF.
func (f Filter) ExceedsTo(ts int64) bool {
	return f.ToNs != nil && ts > *f.ToNs
}
