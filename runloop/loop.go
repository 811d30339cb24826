// Package runloop provides the single cooperative event loop the show runs on.
//
// Every scene mutation happens inside a loop callback. Work that has to wait
// (transition completions, slide preloads, autoplay) is expressed as a task
// scheduled with a delay and a cancellation token; nothing runs concurrently
// with the loop except background batch jobs, which hop onto it with Sync.
//
// The loop does not own a clock. Whoever drives it (the bubbletea program,
// Run, or a test) calls Advance with the current time:
//
//	loop := runloop.New(time.Now())
//	loop.After(1500*time.Millisecond, preload)
//	loop.Advance(time.Now())
package runloop

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// Token identifies a scheduled task and lets the owner cancel it.
type Token struct {
	t *task
}

// Cancel prevents the task from running again. Cancelling a task that
// already ran, or a nil token, is a no-op.
func (tok *Token) Cancel() {
	if tok == nil || tok.t == nil {
		return
	}
	tok.t.cancelled = true
}

// Cancelled reports whether Cancel was called.
func (tok *Token) Cancelled() bool {
	return tok == nil || tok.t == nil || tok.t.cancelled
}

type task struct {
	due       time.Time
	seq       uint64
	every     time.Duration
	fn        func()
	cancelled bool
	index     int
}

// taskQueue orders tasks by due time, then by scheduling order.
type taskQueue []*task

func (q taskQueue) Len() int { return len(q) }
func (q taskQueue) Less(i, j int) bool {
	if q[i].due.Equal(q[j].due) {
		return q[i].seq < q[j].seq
	}
	return q[i].due.Before(q[j].due)
}
func (q taskQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}
func (q *taskQueue) Push(x any) {
	t := x.(*task)
	t.index = len(*q)
	*q = append(*q, t)
}
func (q *taskQueue) Pop() any {
	old := *q
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return t
}

// Loop is a manually driven event loop. All methods except Post, Sync and
// Wake must be called from the loop itself (inside Advance or before the
// loop starts being driven).
type Loop struct {
	now   time.Time
	seq   uint64
	tasks taskQueue
	ticks []func(now time.Time) int

	postMu sync.Mutex
	posted []func()
	wake   chan struct{}

	// maxPasses bounds how often Advance re-scans for work created by the
	// work it just ran.
	maxPasses int
}

// New creates a loop whose notion of "now" starts at start.
func New(start time.Time) *Loop {
	return &Loop{
		now:       start,
		wake:      make(chan struct{}, 1),
		maxPasses: 64,
	}
}

// Now returns the time of the latest Advance.
func (l *Loop) Now() time.Time {
	return l.now
}

// After schedules fn to run once, d after the current loop time.
func (l *Loop) After(d time.Duration, fn func()) *Token {
	return l.schedule(d, 0, fn)
}

// Every schedules fn to run repeatedly every d until its token is cancelled.
func (l *Loop) Every(d time.Duration, fn func()) *Token {
	if d <= 0 {
		d = time.Millisecond
	}
	return l.schedule(d, d, fn)
}

func (l *Loop) schedule(d, every time.Duration, fn func()) *Token {
	if d < 0 {
		d = 0
	}
	l.seq++
	t := &task{due: l.now.Add(d), seq: l.seq, every: every, fn: fn}
	heap.Push(&l.tasks, t)
	return &Token{t: t}
}

// OnTick registers a hook that runs on every Advance after due tasks. The
// hook returns how many callbacks it fired so the loop can tell whether more
// work became due.
func (l *Loop) OnTick(fn func(now time.Time) int) {
	l.ticks = append(l.ticks, fn)
}

// Pending reports the number of scheduled, non-cancelled tasks.
func (l *Loop) Pending() int {
	n := 0
	for _, t := range l.tasks {
		if !t.cancelled {
			n++
		}
	}
	return n
}

// Advance moves the loop clock to now and runs, in order: posted work, every
// task due at or before now, and the tick hooks. Work created during the
// pass that is already due runs in the same call.
func (l *Loop) Advance(now time.Time) int {
	if now.After(l.now) {
		l.now = now
	}
	ran := 0
	for pass := 0; pass < l.maxPasses; pass++ {
		n := l.runPosted()
		n += l.runDue()
		for _, tick := range l.ticks {
			n += tick(l.now)
		}
		ran += n
		if n == 0 {
			break
		}
	}
	return ran
}

func (l *Loop) runPosted() int {
	l.postMu.Lock()
	work := l.posted
	l.posted = nil
	l.postMu.Unlock()
	for _, fn := range work {
		fn()
	}
	return len(work)
}

func (l *Loop) runDue() int {
	ran := 0
	for l.tasks.Len() > 0 {
		next := l.tasks[0]
		if next.due.After(l.now) {
			break
		}
		heap.Pop(&l.tasks)
		if next.cancelled {
			continue
		}
		if next.every > 0 {
			next.due = next.due.Add(next.every)
			if !next.due.After(l.now) {
				next.due = l.now.Add(next.every)
			}
			heap.Push(&l.tasks, next)
		}
		next.fn()
		ran++
	}
	return ran
}

// Post queues fn to run on the loop at the next Advance. Safe to call from
// any goroutine.
func (l *Loop) Post(fn func()) {
	l.postMu.Lock()
	l.posted = append(l.posted, fn)
	l.postMu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Sync runs fn on the loop and blocks until it has returned. It must not be
// called from the loop itself.
func (l *Loop) Sync(fn func()) {
	done := make(chan struct{})
	l.Post(func() {
		defer close(done)
		fn()
	})
	<-done
}

// Wake signals that posted work is waiting. Drivers select on it to call
// Advance without waiting for their next frame.
func (l *Loop) Wake() <-chan struct{} {
	return l.wake
}

// Run drives the loop in real time until ctx is done, advancing once per
// frame and whenever work is posted. Used when no UI program owns the loop.
func (l *Loop) Run(ctx context.Context, frame time.Duration) error {
	ticker := time.NewTicker(frame)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			l.Advance(now)
		case <-l.wake:
			l.Advance(time.Now())
		}
	}
}
