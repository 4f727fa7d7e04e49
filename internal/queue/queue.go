package queue

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/stratalign/pmocast/internal/episode"
)

// ErrQueueClosed is returned when operations are attempted on a closed queue.
var ErrQueueClosed = errors.New("queue is closed")

// Status describes the outcome of Take.
type Status int

const (
	// Ready means a segment was returned and the cursor moved to it.
	Ready Status = iota
	// Pending means the wanted segment has not arrived and more may come.
	Pending
	// Exhausted means the stream is complete and nothing is left to play.
	Exhausted
)

func (s Status) String() string {
	switch s {
	case Ready:
		return "ready"
	case Pending:
		return "pending"
	case Exhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// SegmentQueue is an index-keyed buffer of received segments plus a cursor
// of the last index handed out. The cursor starts at -1 and only increases.
type SegmentQueue struct {
	mu sync.Mutex

	segments map[int]episode.Segment
	skipped  map[int]struct{}
	cursor   int
	maxIndex int
	complete bool
	closed   bool
	estimate int

	// notify is closed and replaced whenever the queue changes.
	notify chan struct{}

	stats Stats
}

// Stats tracks queue activity.
type Stats struct {
	Enqueued     int64
	Duplicates   int64
	Rejected     int64
	Skipped      int64
	Taken        int64
	Waits        int64
	PeakBuffered int
	LastEnqueue  time.Time
}

// New creates an empty queue.
func New() *SegmentQueue {
	return &SegmentQueue{
		segments: make(map[int]episode.Segment),
		skipped:  make(map[int]struct{}),
		cursor:   -1,
		maxIndex: -1,
		notify:   make(chan struct{}),
	}
}

// Enqueue adds a segment. It reports false when the segment was dropped:
// the queue is closed, the index was already received, or the cursor has
// already moved past it.
func (q *SegmentQueue) Enqueue(seg episode.Segment) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed || seg.Index <= q.cursor {
		q.stats.Rejected++
		return false
	}
	if _, ok := q.segments[seg.Index]; ok {
		q.stats.Duplicates++
		return false
	}

	q.segments[seg.Index] = seg
	delete(q.skipped, seg.Index)
	if seg.Index > q.maxIndex {
		q.maxIndex = seg.Index
	}
	q.bumpEstimateLocked()

	q.stats.Enqueued++
	q.stats.LastEnqueue = time.Now()
	if n := q.bufferedLocked(); n > q.stats.PeakBuffered {
		q.stats.PeakBuffered = n
	}

	q.broadcastLocked()
	return true
}

// Skip marks an index the source failed to produce so Take moves past it
// instead of waiting.
func (q *SegmentQueue) Skip(index int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed || index <= q.cursor {
		return
	}
	if _, ok := q.segments[index]; ok {
		return
	}
	q.skipped[index] = struct{}{}
	q.stats.Skipped++
	q.broadcastLocked()
}

// MarkComplete records that no more segments will arrive.
func (q *SegmentQueue) MarkComplete() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.complete {
		return
	}
	q.complete = true
	q.broadcastLocked()
}

// Complete reports whether the stream has finished.
func (q *SegmentQueue) Complete() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.complete
}

// Cursor returns the index of the segment most recently handed out, or -1.
func (q *SegmentQueue) Cursor() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.cursor
}

// Wanted returns the index Take will try next.
func (q *SegmentQueue) Wanted() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.cursor + 1
}

// Take hands out the segment at the wanted index and moves the cursor to
// it. Skipped indices are passed over. Once the stream is complete, gaps
// are passed over too so a missing segment never stalls the episode.
func (q *SegmentQueue) Take() (episode.Segment, Status) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		wanted := q.cursor + 1
		if seg, ok := q.segments[wanted]; ok {
			q.cursor = wanted
			q.stats.Taken++
			q.bumpEstimateLocked()
			return seg, Ready
		}
		if _, ok := q.skipped[wanted]; ok {
			delete(q.skipped, wanted)
			q.cursor = wanted
			continue
		}
		if !q.complete {
			return episode.Segment{}, Pending
		}
		next, ok := q.nextReceivedLocked(wanted)
		if !ok {
			return episode.Segment{}, Exhausted
		}
		q.cursor = next - 1
	}
}

// Wait blocks until Take would not return Pending, the queue is closed or
// ctx is done.
func (q *SegmentQueue) Wait(ctx context.Context) error {
	q.mu.Lock()
	q.stats.Waits++
	q.mu.Unlock()

	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return ErrQueueClosed
		}
		if q.readyLocked() {
			q.mu.Unlock()
			return nil
		}
		ch := q.notify
		q.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Received returns the number of segments received so far.
func (q *SegmentQueue) Received() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.segments)
}

// Total returns the number of segments in the episode. Before the stream
// completes it is an estimate that never decreases; exact reports whether
// the stream has completed.
func (q *SegmentQueue) Total() (n int, exact bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.complete {
		return q.maxIndex + 1, true
	}
	return q.estimate, false
}

// Segments returns every received segment in index order.
func (q *SegmentQueue) Segments() []episode.Segment {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]episode.Segment, 0, len(q.segments))
	for _, s := range q.segments {
		out = append(out, s)
	}
	episode.SortByIndex(out)
	return out
}

// Close releases waiters. Later enqueues are dropped.
func (q *SegmentQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	q.broadcastLocked()
	return nil
}

// GetStats returns current queue statistics.
func (q *SegmentQueue) GetStats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stats
}

func (q *SegmentQueue) readyLocked() bool {
	if q.complete {
		return true
	}
	wanted := q.cursor + 1
	if _, ok := q.segments[wanted]; ok {
		return true
	}
	_, ok := q.skipped[wanted]
	return ok
}

func (q *SegmentQueue) nextReceivedLocked(from int) (int, bool) {
	idx := make([]int, 0, len(q.segments))
	for i := range q.segments {
		if i >= from {
			idx = append(idx, i)
		}
	}
	if len(idx) == 0 {
		return 0, false
	}
	sort.Ints(idx)
	return idx[0], true
}

func (q *SegmentQueue) bufferedLocked() int {
	n := 0
	for i := range q.segments {
		if i > q.cursor {
			n++
		}
	}
	return n
}

// bumpEstimateLocked keeps the running estimate at least max(received,
// highest index + 1, cursor + 2) without ever lowering it.
func (q *SegmentQueue) bumpEstimateLocked() {
	n := len(q.segments)
	if q.maxIndex+1 > n {
		n = q.maxIndex + 1
	}
	if q.cursor+2 > n {
		n = q.cursor + 2
	}
	if n > q.estimate {
		q.estimate = n
	}
}

func (q *SegmentQueue) broadcastLocked() {
	close(q.notify)
	q.notify = make(chan struct{})
}
