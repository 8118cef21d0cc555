package reactor

import (
	"container/heap"

	"github.com/loopcore/reactor/rtime"
)

// TimerCallback is invoked when a timer expires.
type TimerCallback func()

// TimerId is an opaque handle returned by AddTimer/RunAt/RunAfter/RunEvery.
// The sequence component disambiguates timers whose storage has been
// reused, standing in for the source's (raw pointer, sequence) pair — since
// Go timers are GC-managed there is no pointer to reuse, so the sequence
// alone is the identity.
type TimerId struct {
	seq uint64
}

// timerEntry is one scheduled callback: expiration time, repeat interval
// (zero means one-shot), and the monotonic sequence used to break ties
// between timers that share an expiration and, after cancellation, to
// detect use of a stale TimerId.
type timerEntry struct {
	callback TimerCallback
	expiry   rtime.Time
	interval rtime.Time // microseconds; 0 => one-shot
	repeat   bool
	seq      uint64

	heapIndex int
}

func (t *timerEntry) less(other *timerEntry) bool {
	if t.expiry != other.expiry {
		return t.expiry < other.expiry
	}
	return t.seq < other.seq
}

// timerHeap is a container/heap.Interface ordered by (expiry, seq)
// ascending, implementing the TimerList described in the data model.
type timerHeap []*timerEntry

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].less(h[j]) }
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIndex = i
	h[j].heapIndex = j
}

func (h *timerHeap) Push(x interface{}) {
	e := x.(*timerEntry)
	e.heapIndex = len(*h)
	*h = append(*h, e)
}

func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.heapIndex = -1
	*h = old[:n-1]
	return e
}

var _ heap.Interface = (*timerHeap)(nil)
