package tracking

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"
)

// FrameID identifies a requested frame callback. The zero FrameID is never issued.
type FrameID uint64

// FrameFunc is called once, on the next frame, with the frame time.
type FrameFunc func(now time.Time)

// Scheduler schedules one-shot per-frame callbacks.
// Implementations are not safe for concurrent use: every call must happen on the
// goroutine that runs the frames.
type Scheduler interface {
	RequestFrame(fn FrameFunc) FrameID
	CancelFrame(id FrameID)
}

// frameQueue holds the callbacks requested for the next frame.
type frameQueue struct {
	lastID  FrameID
	pending map[FrameID]FrameFunc
	current map[FrameID]FrameFunc // batch being flushed
}

func newFrameQueue() *frameQueue {
	return &frameQueue{pending: make(map[FrameID]FrameFunc)}
}

func (q *frameQueue) RequestFrame(fn FrameFunc) FrameID {
	q.lastID++
	q.pending[q.lastID] = fn
	return q.lastID
}

func (q *frameQueue) CancelFrame(id FrameID) {
	delete(q.pending, id)
	if q.current != nil {
		delete(q.current, id)
	}
}

// Pending returns the number of callbacks waiting for the next frame.
func (q *frameQueue) Pending() int {
	return len(q.pending)
}

// flush runs the callbacks requested before this frame, in request order.
// callbacks requested during the flush run on the next frame;
// callbacks cancelled during the flush do not run.
func (q *frameQueue) flush(now time.Time) int {
	if len(q.pending) == 0 {
		return 0
	}
	batch := q.pending
	q.pending = make(map[FrameID]FrameFunc)
	q.current = batch
	defer func() { q.current = nil }()

	ids := make([]FrameID, 0, len(batch))
	for id := range batch {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var ran int
	for _, id := range ids {
		fn, ok := batch[id]
		if !ok {
			continue
		}
		delete(batch, id)
		fn(now)
		ran++
	}
	return ran
}

// ManualScheduler is a Scheduler whose frames are triggered explicitly.
type ManualScheduler struct {
	*frameQueue
}

var _ Scheduler = (*ManualScheduler)(nil)

func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{frameQueue: newFrameQueue()}
}

// Flush runs one frame at `now` and returns the number of callbacks that ran.
func (s *ManualScheduler) Flush(now time.Time) int {
	return s.flush(now)
}

// FrameLoop is the single goroutine owning the tracking state.
// It runs submitted tasks and, every interval, the frame callbacks.
type FrameLoop struct {
	*frameQueue

	interval time.Duration
	clock    Clock
	tasks    chan func()
	after    func(now time.Time)
	done     chan struct{}
}

var _ Scheduler = (*FrameLoop)(nil)

// NewFrameLoop returns a loop ticking every interval.
// after, if not nil, runs on the loop goroutine after every task and frame.
func NewFrameLoop(interval time.Duration, clock Clock, after func(now time.Time)) *FrameLoop {
	return &FrameLoop{
		frameQueue: newFrameQueue(),
		interval:   interval,
		clock:      clock,
		tasks:      make(chan func()),
		after:      after,
		done:       make(chan struct{}),
	}
}

// Run processes tasks and frames until ctx is done.
func (l *FrameLoop) Run(ctx context.Context) {
	defer close(l.done)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case task := <-l.tasks:
			task()
			l.afterStep()
		case <-ticker.C:
			if l.flush(l.clock.Now()) > 0 {
				l.afterStep()
			}
		}
	}
}

func (l *FrameLoop) afterStep() {
	if l.after != nil {
		l.after(l.clock.Now())
	}
}

// Do runs fn on the loop goroutine and waits for it to return.
func (l *FrameLoop) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	task := func() {
		defer close(finished)
		fn()
	}

	select {
	case l.tasks <- task:
	case <-l.done:
		return ErrStopped
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "submitting tracking task")
	}

	// once accepted, the task always completes: the loop only exits between tasks.
	<-finished
	return nil
}

// Done is closed once Run returns.
func (l *FrameLoop) Done() <-chan struct{} {
	return l.done
}
