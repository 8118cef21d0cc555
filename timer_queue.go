package reactor

import (
	"container/heap"
	"sync/atomic"

	"github.com/loopcore/reactor/rtime"
)

// minWaitMicros is the smallest wait the kernel timer is ever armed for;
// arming for less than this (in particular, zero) risks a busy-spin on
// platforms where the kernel timer's granularity rounds a tiny delay down
// to "immediately, repeatedly".
const minWaitMicros = 100

// defaultPollTimeoutMs is the loop's poll deadline on platforms with a
// working kernel timer descriptor: since the kernel timer itself wakes the
// loop for expirations, the ordinary poll timeout only needs to be long
// enough to amortize the syscall, not tight enough to catch timers.
const defaultPollTimeoutMs = 10000

// timerQueue is the per-loop timer service: a heap ordered by
// (expiration, sequence), an active set for O(log n) cancellation, and a
// canceling set that suppresses the repeat re-insertion of a timer
// canceled from within its own callback.
type timerQueue struct {
	loop *EventLoop

	list        timerHeap
	active      map[uint64]*timerEntry
	canceling   map[uint64]struct{}
	nextSeq     uint64
	timerFd     timerFd // nil if the platform has none; loop falls back to poll-deadline computation
	callingExp  int32   // atomic bool: true while expired timers are being invoked
}

func newTimerQueue(loop *EventLoop) *timerQueue {
	q := &timerQueue{
		loop:      loop,
		active:    make(map[uint64]*timerEntry),
		canceling: make(map[uint64]struct{}),
	}
	q.timerFd = newTimerFd(loop, q.handleExpiration)
	return q
}

func (q *timerQueue) close() {
	if q.timerFd != nil {
		q.timerFd.close()
	}
}

// addTimer is cross-thread safe: it posts the actual insertion onto the
// owning loop.
func (q *timerQueue) addTimer(cb TimerCallback, when rtime.Time, interval rtime.Time, repeat bool) TimerId {
	seq := atomic.AddUint64(&q.nextSeq, 1)
	e := &timerEntry{
		callback: cb,
		expiry:   when,
		interval: interval,
		repeat:   repeat,
		seq:      seq,
	}
	q.loop.RunInLoop(func() { q.addTimerInLoop(e) })
	return TimerId{seq: seq}
}

func (q *timerQueue) addTimerInLoop(e *timerEntry) {
	q.loop.AssertInLoopThread()
	earliestChanged := q.insert(e)
	if earliestChanged && q.timerFd != nil {
		q.timerFd.rearm(q.nextExpiration())
	}
}

// cancel is cross-thread safe: it posts the cancellation onto the owning
// loop.
func (q *timerQueue) cancel(id TimerId) {
	q.loop.RunInLoop(func() { q.cancelInLoop(id) })
}

func (q *timerQueue) cancelInLoop(id TimerId) {
	q.loop.AssertInLoopThread()
	if e, ok := q.active[id.seq]; ok {
		delete(q.active, id.seq)
		q.removeFromHeap(e)
		return
	}
	if atomic.LoadInt32(&q.callingExp) == 1 {
		// The timer is mid-callback right now (not yet re-inserted); record
		// the cancellation so the repeat logic below skips re-arming it.
		q.canceling[id.seq] = struct{}{}
	}
}

func (q *timerQueue) insert(e *timerEntry) (earliestChanged bool) {
	earliestChanged = len(q.list) == 0 || e.less(q.list[0])
	heap.Push(&q.list, e)
	q.active[e.seq] = e
	return earliestChanged
}

func (q *timerQueue) removeFromHeap(e *timerEntry) {
	if e.heapIndex < 0 || e.heapIndex >= len(q.list) || q.list[e.heapIndex] != e {
		return
	}
	heap.Remove(&q.list, e.heapIndex)
}

func (q *timerQueue) nextExpiration() rtime.Time {
	if len(q.list) == 0 {
		return rtime.Invalid
	}
	return q.list[0].expiry
}

// nextTimeout computes the loop's poll deadline on platforms without a
// kernel timer descriptor: min(defaultPollTimeoutMs, first_expiration-now),
// clamped to minWaitMicros so we never arm a zero-delay wait.
func (q *timerQueue) nextTimeout() int {
	if len(q.list) == 0 {
		return defaultPollTimeoutMs
	}
	now := rtime.Now()
	waitMicros := q.list[0].expiry.DiffMicroseconds(now)
	if waitMicros < minWaitMicros {
		waitMicros = minWaitMicros
	}
	waitMs := int(waitMicros / 1000)
	if waitMs > defaultPollTimeoutMs {
		waitMs = defaultPollTimeoutMs
	}
	if waitMs <= 0 {
		waitMs = 1
	}
	return waitMs
}

// handleExpiration runs every timer whose expiration is <= now, in
// non-decreasing (expiration, sequence) order, then restarts any repeating
// timer not recorded in the canceling set.
func (q *timerQueue) handleExpiration(now rtime.Time) {
	q.loop.AssertInLoopThread()

	expired := q.popExpired(now)

	atomic.StoreInt32(&q.callingExp, 1)
	q.canceling = make(map[uint64]struct{})
	for _, e := range expired {
		e.callback()
	}
	atomic.StoreInt32(&q.callingExp, 0)

	for _, e := range expired {
		if _, canceled := q.canceling[e.seq]; e.repeat && !canceled {
			e.expiry = now.AddSeconds(float64(e.interval) / 1e6)
			heap.Push(&q.list, e)
			q.active[e.seq] = e
		} else {
			delete(q.active, e.seq)
		}
	}

	if q.timerFd != nil && len(q.list) > 0 {
		q.timerFd.rearm(q.nextExpiration())
	}
}

// popExpired removes and returns every timer with expiry <= now, in
// ascending (expiry, seq) order.
func (q *timerQueue) popExpired(now rtime.Time) []*timerEntry {
	var expired []*timerEntry
	for len(q.list) > 0 && !now.Before(q.list[0].expiry) {
		e := heap.Pop(&q.list).(*timerEntry)
		delete(q.active, e.seq)
		expired = append(expired, e)
	}
	return expired
}

func (q *timerQueue) len() int { return len(q.list) }
