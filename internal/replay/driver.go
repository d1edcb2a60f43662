package replay

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ndrandal/flox-replay/internal/dataset"
	"github.com/ndrandal/flox-replay/internal/event"
	"github.com/ndrandal/flox-replay/internal/filter"
	"github.com/ndrandal/flox-replay/internal/floxfmt"
	"github.com/ndrandal/flox-replay/internal/segment"
)

// Strategy receives decoded events from the driver. Order execution and
// backtest-result construction are external to this repository (see
// spec's order-matching Non-goal); the driver's job ends at delivery.
type Strategy interface {
	OnTrade(event.Trade)
	OnBookUpdate(event.Book)
}

// Config configures a Driver.
type Config struct {
	DataDir  string
	Speed    Speed
	FromNs   *int64
	ToNs     *int64
	Symbols  map[uint32]struct{}
	Strategy Strategy

	// PauseCallback, if set, is notified when the interactive driver's
	// loop pauses itself after a breakpoint hit or a completed step. An
	// explicit Pause call does not invoke it.
	PauseCallback func(reason string)
}

func (c Config) filter() filter.Filter {
	f := filter.New().WithTimeRange(c.FromNs, c.ToNs)
	if len(c.Symbols) > 0 {
		syms := make([]uint32, 0, len(c.Symbols))
		for s := range c.Symbols {
			syms = append(syms, s)
		}
		f = f.WithSymbols(syms...)
	}
	return f
}

// Result summarizes a non-interactive run.
type Result struct {
	EventsProcessed     uint64
	TradesProcessed     uint64
	BookUpdatesProcessed uint64
	LastTimestampNs     int64
}

// Run opens cfg.DataDir, iterates every event in order, and delivers
// each to cfg.Strategy, pacing according to cfg.Speed. It returns once
// the dataset is exhausted or ctx is cancelled.
func Run(ctx context.Context, cfg Config) (Result, error) {
	c, err := dataset.Scan(cfg.DataDir)
	if err != nil {
		return Result{}, fmt.Errorf("replay: %w", err)
	}
	f := cfg.filter()

	var result Result
	var clock Clock
	var pacer pacer
	pacer.speed = cfg.Speed

	err = c.ForEach(&f, func(ev event.Event) bool {
		if ctx.Err() != nil {
			return false
		}
		clock.AdvanceTo(ev.Timestamp())
		pacer.wait(ev.Timestamp())
		dispatch(cfg.Strategy, ev)

		result.EventsProcessed++
		if ev.Kind == floxfmt.KindTrade {
			result.TradesProcessed++
		} else {
			result.BookUpdatesProcessed++
		}
		result.LastTimestampNs = ev.Timestamp()
		return true
	})
	if err != nil {
		return result, fmt.Errorf("replay: %w", err)
	}
	return result, nil
}

func dispatch(s Strategy, ev event.Event) {
	if s == nil {
		return
	}
	if ev.Trade != nil {
		s.OnTrade(*ev.Trade)
	} else if ev.Book != nil {
		s.OnBookUpdate(*ev.Book)
	}
}

// pacer reproduces the connector's wall-clock pacing: the first
// delivered event anchors wall_start/sim_start without sleeping; every
// subsequent event sleeps the shortfall between simulated elapsed time
// (scaled by the speed multiplier) and actual wall-clock elapsed time.
type pacer struct {
	speed     Speed
	started   bool
	wallStart time.Time
	simStart  int64
}

func (p *pacer) wait(ts int64) {
	if p.speed.IsUnlimited() {
		return
	}
	if !p.started {
		p.started = true
		p.simStart = ts
		p.wallStart = time.Now()
		return
	}
	simElapsed := ts - p.simStart
	wallElapsed := time.Since(p.wallStart)
	targetWall := time.Duration(float64(simElapsed) / p.speed.Value())
	sleep := targetWall - wallElapsed
	if sleep > time.Millisecond {
		time.Sleep(sleep)
	}
}

// driverState is the interactive driver's control state.
type driverState int

const (
	stateIdle driverState = iota
	statePaused
	stateRunning
	stateStopped
	stateFinished
)

// Driver is the interactive replay driver: a single background goroutine
// runs the event loop; Step/StepUntil/Resume/Pause/Stop/SeekTo mutate
// state under a mutex and signal a condition variable the loop blocks on
// while paused, mirroring the source's atomic-flags-plus-condition-
// variable design.
type Driver struct {
	cfg Config

	mu             sync.Mutex
	cond           *sync.Cond
	state          driverState
	stepsRemaining int
	stepMode       stepMode
	generation     uint64
	breakpoints    []Breakpoint
	signalPending  bool
	seekTarget     int64 // -1 = none

	clock           Clock
	pacer           pacer
	currentPos      atomic.Int64
	eventsProcessed atomic.Uint64
	tradesProcessed atomic.Uint64
	booksProcessed  atomic.Uint64
	finished        atomic.Bool

	coordinator *dataset.Coordinator
	filter      filter.Filter
	curSegIdx   int
	curIter     *segment.Iterator

	doneCh chan struct{}
}

type stepMode int

const (
	stepNone stepMode = iota
	stepOneEvent
	stepUntilTrade
	stepUntilBook
)

// NewDriver opens cfg.DataDir's coordinator and returns a Driver
// positioned before the first event, paused.
func NewDriver(cfg Config) (*Driver, error) {
	c, err := dataset.Scan(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	d := &Driver{
		cfg:         cfg,
		state:       statePaused,
		seekTarget:  -1,
		coordinator: c,
		filter:      cfg.filter(),
		pacer:       pacer{speed: cfg.Speed},
		doneCh:      make(chan struct{}),
	}
	d.cond = sync.NewCond(&d.mu)
	return d, nil
}

// AddBreakpoint registers bp; breakpoints are checked after each event.
func (d *Driver) AddBreakpoint(bp Breakpoint) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.breakpoints = append(d.breakpoints, bp)
}

// Signal marks that a strategy-emitted signal occurred, for OnSignal
// breakpoints — the stand-in for "strategy emitted an order" since order
// execution lives outside this repository.
func (d *Driver) Signal() {
	d.mu.Lock()
	d.signalPending = true
	d.mu.Unlock()
}

// Start launches the background event loop, beginning paused.
func (d *Driver) Start(ctx context.Context) {
	go d.loop(ctx)
}

// Step processes exactly one event and blocks until it has been
// delivered (or the dataset is exhausted).
func (d *Driver) Step() {
	d.runSteps(stepOneEvent, 1)
}

// StepUntilNextTrade processes events until a trade is delivered.
func (d *Driver) StepUntilNextTrade() {
	d.runSteps(stepUntilTrade, 0)
}

// StepUntilNextBook processes events until a book update is delivered.
func (d *Driver) StepUntilNextBook() {
	d.runSteps(stepUntilBook, 0)
}

func (d *Driver) runSteps(mode stepMode, n int) {
	d.mu.Lock()
	if d.state == stateStopped || d.state == stateFinished {
		d.mu.Unlock()
		return
	}
	startGen := d.generation
	d.stepMode = mode
	d.stepsRemaining = n
	d.state = stateRunning
	d.cond.Broadcast()
	for d.generation == startGen && d.state == stateRunning {
		d.cond.Wait()
	}
	d.mu.Unlock()
}

// Resume runs until the next breakpoint, dataset exhaustion, or Pause.
func (d *Driver) Resume() {
	d.mu.Lock()
	if d.state == stateStopped || d.state == stateFinished {
		d.mu.Unlock()
		return
	}
	d.stepMode = stepNone
	d.stepsRemaining = 0
	d.state = stateRunning
	d.cond.Broadcast()
	d.mu.Unlock()
}

// Pause requests the loop stop at the next event boundary.
func (d *Driver) Pause() {
	d.mu.Lock()
	if d.state == stateRunning {
		d.state = statePaused
	}
	d.mu.Unlock()
}

// Stop requests termination; the loop returns at the next event boundary.
func (d *Driver) Stop() {
	d.mu.Lock()
	d.state = stateStopped
	d.cond.Broadcast()
	d.mu.Unlock()
	<-d.doneCh
}

// SeekTo parks the driver, discards the current iterator, and arranges
// for the loop to resume reading from ts via ForEachFrom-equivalent
// positioning.
func (d *Driver) SeekTo(ts int64) {
	d.mu.Lock()
	d.seekTarget = ts
	if d.curIter != nil {
		d.curIter.Close()
		d.curIter = nil
	}
	d.mu.Unlock()
}

// IsFinished reports whether the dataset has been fully consumed.
func (d *Driver) IsFinished() bool { return d.finished.Load() }

// CurrentPosition returns the timestamp of the last delivered event.
func (d *Driver) CurrentPosition() int64 { return d.currentPos.Load() }

// Counts returns the running event/trade/book totals.
func (d *Driver) Counts() Result {
	return Result{
		EventsProcessed:      d.eventsProcessed.Load(),
		TradesProcessed:      d.tradesProcessed.Load(),
		BookUpdatesProcessed: d.booksProcessed.Load(),
		LastTimestampNs:      d.currentPos.Load(),
	}
}

func (d *Driver) loop(ctx context.Context) {
	defer close(d.doneCh)
	defer func() {
		d.mu.Lock()
		if d.curIter != nil {
			d.curIter.Close()
			d.curIter = nil
		}
		d.mu.Unlock()
	}()

	for {
		d.mu.Lock()
		for d.state == statePaused {
			d.cond.Wait()
		}
		if d.state == stateStopped {
			d.mu.Unlock()
			return
		}
		mode := d.stepMode
		d.mu.Unlock()

		if ctx.Err() != nil {
			d.transitionToPaused()
			return
		}

		ev, ok, err := d.nextEvent()
		if err != nil || !ok {
			d.finished.Store(true)
			d.mu.Lock()
			d.state = stateFinished
			d.generation++
			d.cond.Broadcast()
			d.mu.Unlock()
			return
		}

		d.clock.AdvanceTo(ev.Timestamp())
		d.pacer.wait(ev.Timestamp())
		d.currentPos.Store(ev.Timestamp())
		dispatch(d.cfg.Strategy, ev)

		d.eventsProcessed.Add(1)
		isTrade := ev.Trade != nil
		if isTrade {
			d.tradesProcessed.Add(1)
		} else {
			d.booksProcessed.Add(1)
		}

		d.mu.Lock()
		signaled := d.signalPending
		d.signalPending = false
		eventsTotal := d.eventsProcessed.Load()
		tradesTotal := d.tradesProcessed.Load()
		hitBreakpoint := false
		for _, bp := range d.breakpoints {
			if bp.matches(ev, eventsTotal, tradesTotal, signaled) {
				hitBreakpoint = true
				break
			}
		}

		pauseNow := hitBreakpoint
		switch mode {
		case stepOneEvent:
			d.stepsRemaining--
			if d.stepsRemaining <= 0 {
				pauseNow = true
			}
		case stepUntilTrade:
			if isTrade {
				pauseNow = true
			}
		case stepUntilBook:
			if !isTrade {
				pauseNow = true
			}
		}

		if pauseNow {
			d.state = statePaused
			d.stepMode = stepNone
			d.generation++
			cb := d.cfg.PauseCallback
			d.mu.Unlock()
			if cb != nil {
				reason := "breakpoint"
				if !hitBreakpoint {
					reason = "step"
				}
				cb(reason)
			}
			d.mu.Lock()
			d.cond.Broadcast()
		}
		d.mu.Unlock()
	}
}

func (d *Driver) transitionToPaused() {
	d.mu.Lock()
	d.state = statePaused
	d.cond.Broadcast()
	d.mu.Unlock()
}

// nextEvent advances the driver's own segment cursor by one filtered
// event, honoring any pending seek. It does not use dataset.Coordinator's
// ForEach/ForEachFrom directly because interactive stepping needs a
// resumable pull-based cursor rather than a push callback.
func (d *Driver) nextEvent() (event.Event, bool, error) {
	for {
		d.mu.Lock()
		seek := d.seekTarget
		d.seekTarget = -1
		d.mu.Unlock()
		if seek >= 0 {
			if err := d.seekCursor(seek); err != nil {
				return event.Event{}, false, err
			}
		}

		if d.curIter == nil {
			if err := d.openNextSegment(); err != nil {
				return event.Event{}, false, err
			}
			if d.curIter == nil {
				return event.Event{}, false, nil // dataset exhausted
			}
		}

		ev, ok, err := d.curIter.Next()
		if err != nil {
			return event.Event{}, false, err
		}
		if !ok {
			d.curIter.Close()
			d.curIter = nil
			d.curSegIdx++
			continue
		}
		if d.filter.ExceedsTo(ev.Timestamp()) {
			d.curIter.Close()
			d.curIter = nil
			d.curSegIdx = len(d.coordinator.Segments)
			return event.Event{}, false, nil
		}
		if !d.filter.Passes(ev) {
			continue
		}
		return ev, true, nil
	}
}

func (d *Driver) openNextSegment() error {
	for d.curSegIdx < len(d.coordinator.Segments) {
		seg := d.coordinator.Segments[d.curSegIdx]
		if d.cfg.FromNs != nil && seg.LastEventNs < *d.cfg.FromNs {
			d.curSegIdx++
			continue
		}
		it, err := segment.Open(seg.Path)
		if err != nil {
			return fmt.Errorf("replay: open %s: %w", seg.Path, err)
		}
		d.curIter = it
		return nil
	}
	return nil
}

// seekCursor repositions the driver at the first segment whose range
// could contain ts, using that segment's index if present.
func (d *Driver) seekCursor(ts int64) error {
	d.curSegIdx = 0
	for i, seg := range d.coordinator.Segments {
		if seg.LastEventNs >= ts {
			d.curSegIdx = i
			break
		}
		d.curSegIdx = i + 1
	}
	if d.curSegIdx >= len(d.coordinator.Segments) {
		d.curIter = nil
		return nil
	}
	it, err := segment.Open(d.coordinator.Segments[d.curSegIdx].Path)
	if err != nil {
		return fmt.Errorf("replay: open %s: %w", d.coordinator.Segments[d.curSegIdx].Path, err)
	}
	if it.Header().HasIndex() {
		if err := it.LoadIndex(); err == nil {
			_ = it.SeekToTimestamp(ts)
		}
	}
	d.curIter = it
	return nil
}
