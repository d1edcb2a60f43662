package replay

import "github.com/ndrandal/flox-replay/internal/event"

// BreakpointKind discriminates a Breakpoint's trigger condition.
type BreakpointKind int

const (
	AtTime BreakpointKind = iota
	AfterEvents
	AfterTrades
	OnSignal
	Predicate
)

// Breakpoint pauses the interactive driver when its condition is met.
// Only the fields relevant to Kind are read.
type Breakpoint struct {
	Kind       BreakpointKind
	TimeNs     int64
	EventCount uint64
	TradeCount uint64
	Pred       func(event.Event) bool
}

// AtTimeNs fires once the current event's timestamp reaches t.
func AtTimeNs(t int64) Breakpoint { return Breakpoint{Kind: AtTime, TimeNs: t} }

// AfterNEvents fires once n events have been processed.
func AfterNEvents(n uint64) Breakpoint { return Breakpoint{Kind: AfterEvents, EventCount: n} }

// AfterNTrades fires once n trades have been processed.
func AfterNTrades(n uint64) Breakpoint { return Breakpoint{Kind: AfterTrades, TradeCount: n} }

// OnAnySignal fires the next time the driver's Signal method is called,
// standing in for "strategy emitted an order" since order execution is
// external to this repository.
func OnAnySignal() Breakpoint { return Breakpoint{Kind: OnSignal} }

// OnPredicate fires when pred(event) returns true.
func OnPredicate(pred func(event.Event) bool) Breakpoint {
	return Breakpoint{Kind: Predicate, Pred: pred}
}

// matches reports whether bp fires for the state observed after
// processing ev, given the running totals and whether a signal arrived
// since the last check.
func (bp Breakpoint) matches(ev event.Event, eventsProcessed, tradesProcessed uint64, signaled bool) bool {
	switch bp.Kind {
	case AtTime:
		return ev.Timestamp() >= bp.TimeNs
	case AfterEvents:
		return eventsProcessed >= bp.EventCount
	case AfterTrades:
		return tradesProcessed >= bp.TradeCount
	case OnSignal:
		return signaled
	case Predicate:
		return bp.Pred != nil && bp.Pred(ev)
	default:
		return false
	}
}
