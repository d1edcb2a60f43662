package dataset

import (
	"container/heap"
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/ndrandal/flox-replay/internal/event"
	"github.com/ndrandal/flox-replay/internal/filter"
	"github.com/ndrandal/flox-replay/internal/segment"
)

// ParallelReaderConfig tunes the worker-per-segment fan-out.
type ParallelReaderConfig struct {
	// Threads is the worker pool size. Zero means GOMAXPROCS, or 4 if that
	// reports less than 1.
	Threads int
	// SortOutput requests a global time-ordered merge of all segments'
	// events; otherwise events are delivered as soon as any worker has
	// them, in no particular cross-segment order.
	SortOutput bool
	Filter     *filter.Filter
}

func (c ParallelReaderConfig) threads() int {
	if c.Threads > 0 {
		return c.Threads
	}
	n := runtime.GOMAXPROCS(0)
	if n < 1 {
		return 4
	}
	return n
}

// ParallelReader fans a dataset's segments out across a worker pool,
// either merging them into global time order or delivering them as they
// arrive.
type ParallelReader struct {
	c   *Coordinator
	cfg ParallelReaderConfig
}

// NewParallelReader builds a reader over c's segments.
func NewParallelReader(c *Coordinator, cfg ParallelReaderConfig) *ParallelReader {
	return &ParallelReader{c: c, cfg: cfg}
}

// ForEach delivers every passing event across all segments to cb. If
// cfg.SortOutput is set, delivery is in global timestamp order via a
// k-way merge; otherwise each worker delivers independently and cb must
// be safe to call from a single serialized point (calls are
// mutex-serialized, never concurrent, but order is not guaranteed).
//
// cb's return value is honored cooperatively: once it returns false, no
// further callbacks fire and in-flight workers are cancelled at their
// next event boundary.
func (p *ParallelReader) ForEach(ctx context.Context, cb EventCallback) error {
	if p.cfg.SortOutput {
		return p.forEachSorted(ctx, cb)
	}
	return p.forEachUnordered(ctx, cb)
}

// BatchCallback receives one segment's full filtered event buffer at a
// time; it is called once per segment, from whichever worker finished it.
type BatchCallback func(segPath string, events []event.Event) bool

// ForEachBatch reads each segment fully into memory and hands the whole
// buffer to cb, without any cross-segment merge. Workers run concurrently;
// cb invocations are serialized.
func (p *ParallelReader) ForEachBatch(ctx context.Context, cb BatchCallback) error {
	var stopped atomic.Bool
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.threads())

	for _, seg := range p.c.Segments {
		seg := seg
		g.Go(func() error {
			if stopped.Load() {
				return nil
			}
			events, err := readSegmentFiltered(gctx, seg.Path, p.cfg.Filter, &stopped)
			if err != nil {
				return err
			}
			mu.Lock()
			keepGoing := cb(seg.Path, events)
			mu.Unlock()
			if !keepGoing {
				stopped.Store(true)
			}
			return nil
		})
	}
	return g.Wait()
}

func (p *ParallelReader) forEachUnordered(ctx context.Context, cb EventCallback) error {
	var stopped atomic.Bool
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.threads())

	for _, seg := range p.c.Segments {
		seg := seg
		g.Go(func() error {
			return p.workerUnordered(gctx, seg, &stopped, &mu, cb)
		})
	}
	return g.Wait()
}

func (p *ParallelReader) workerUnordered(ctx context.Context, seg SegmentInfo, stopped *atomic.Bool, mu *sync.Mutex, cb EventCallback) error {
	it, err := segment.Open(seg.Path)
	if err != nil {
		return err
	}
	defer it.Close()

	for {
		if stopped.Load() || ctx.Err() != nil {
			return nil
		}
		ev, ok, err := it.Next()
		if err != nil {
			return fmt.Errorf("dataset: %s: %w", seg.Path, err)
		}
		if !ok {
			return nil
		}
		if p.cfg.Filter != nil {
			if p.cfg.Filter.ExceedsTo(ev.Timestamp()) {
				return nil
			}
			if !p.cfg.Filter.Passes(ev) {
				continue
			}
		}
		mu.Lock()
		if stopped.Load() {
			mu.Unlock()
			return nil
		}
		keepGoing := cb(ev)
		if !keepGoing {
			stopped.Store(true)
		}
		mu.Unlock()
		if !keepGoing {
			return nil
		}
	}
}

// readSegmentFiltered loads every passing event from one segment into
// memory, honoring cooperative cancellation.
func readSegmentFiltered(ctx context.Context, path string, f *filter.Filter, stopped *atomic.Bool) ([]event.Event, error) {
	it, err := segment.Open(path)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var out []event.Event
	for {
		if stopped.Load() || ctx.Err() != nil {
			return out, nil
		}
		ev, ok, err := it.Next()
		if err != nil {
			return nil, fmt.Errorf("dataset: %s: %w", path, err)
		}
		if !ok {
			return out, nil
		}
		if f != nil {
			if f.ExceedsTo(ev.Timestamp()) {
				return out, nil
			}
			if !f.Passes(ev) {
				continue
			}
		}
		out = append(out, ev)
	}
}

// heapItem is one element of the k-way merge's min-heap: the next
// unconsumed event from a given segment's buffer, plus its position so
// the merge can pull the following event from the same buffer.
type heapItem struct {
	ev      event.Event
	segIdx  int
	nextPos int
}

type eventHeap []heapItem

func (h eventHeap) Len() int            { return len(h) }
func (h eventHeap) Less(i, j int) bool  { return h[i].ev.Timestamp() < h[j].ev.Timestamp() }
func (h eventHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *eventHeap) Push(x interface{}) { *h = append(*h, x.(heapItem)) }
func (h *eventHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// forEachSorted reads all segments concurrently into per-segment buffers,
// then merges them with a k-way heap merge so output is in global
// timestamp order. This trades memory (one segment's worth of events per
// worker, buffered) for a single global ordering pass.
func (p *ParallelReader) forEachSorted(ctx context.Context, cb EventCallback) error {
	n := len(p.c.Segments)
	buffers := make([][]event.Event, n)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.threads())
	for i, seg := range p.c.Segments {
		i, seg := i, seg
		g.Go(func() error {
			events, err := readSegmentFiltered(gctx, seg.Path, p.cfg.Filter, new(atomic.Bool))
			if err != nil {
				return err
			}
			buffers[i] = events
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	h := make(eventHeap, 0, n)
	for i, buf := range buffers {
		if len(buf) > 0 {
			h = append(h, heapItem{ev: buf[0], segIdx: i, nextPos: 1})
		}
	}
	heap.Init(&h)

	for h.Len() > 0 {
		top := heap.Pop(&h).(heapItem)
		if !cb(top.ev) {
			return nil
		}
		buf := buffers[top.segIdx]
		if top.nextPos < len(buf) {
			heap.Push(&h, heapItem{ev: buf[top.nextPos], segIdx: top.segIdx, nextPos: top.nextPos + 1})
		}
	}
	return nil
}
