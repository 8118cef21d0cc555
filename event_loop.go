package reactor

import (
	"sync"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/loopcore/reactor/rtime"
)

var (
	loopRegistryMu sync.Mutex
	loopRegistry   = make(map[int64]*EventLoop)
)

// EventLoop is a reactor: at most one per goroutine, for the lifetime of
// that goroutine. Every Channel, timer and cross-thread task posted against
// a loop runs exclusively on the goroutine that constructed it.
type EventLoop struct {
	ownerGoID int64

	poller     Poller
	timers     *timerQueue
	wakeupRead int
	wakeupWrite int
	wakeupChan *Channel

	looping                atomic.Bool
	quit                   atomic.Bool
	eventHandling          atomic.Bool
	callingPendingFunctors atomic.Bool

	iteration      int64
	pollReturnTime rtime.Time

	activeChannels        []*Channel
	currentActiveChannel  *Channel

	mu              sync.Mutex
	pendingFunctors []func()

	context interface{}
}

// NewEventLoop constructs a loop bound to the calling goroutine. Calling it
// again from a goroutine that already has a live loop is fatal, matching
// the "at most one loop per thread" invariant.
func NewEventLoop() *EventLoop {
	goID := goroutineID()

	loopRegistryMu.Lock()
	if existing, ok := loopRegistry[goID]; ok {
		loopRegistryMu.Unlock()
		log().Fatal("another EventLoop already exists on this goroutine",
			zap.Int64("goroutine", goID), zap.Any("existing", existing))
		return nil
	}

	l := &EventLoop{ownerGoID: goID}
	loopRegistry[goID] = l
	loopRegistryMu.Unlock()

	l.poller = newPoller(l)
	l.timers = newTimerQueue(l)

	readFd, writeFd, err := newWakeupPair()
	if err != nil {
		log().Fatal("failed to create wakeup descriptor", zapErr(err))
		return nil
	}
	l.wakeupRead, l.wakeupWrite = readFd, writeFd
	l.wakeupChan = NewChannel(l, readFd)
	l.wakeupChan.SetReadCallback(l.handleWakeupRead)
	l.wakeupChan.EnableReading()

	return l
}

// IsInLoopThread reports whether the calling goroutine is this loop's
// owner.
func (l *EventLoop) IsInLoopThread() bool {
	return goroutineID() == l.ownerGoID
}

// AssertInLoopThread aborts the process if the calling goroutine is not
// this loop's owner.
func (l *EventLoop) AssertInLoopThread() {
	if !l.IsInLoopThread() {
		log().Fatal("thread-affine call made off the owning goroutine",
			zap.Int64("owner", l.ownerGoID), zap.Int64("caller", goroutineID()))
	}
}

// Loop runs the reactor until Quit is called. Must be invoked from the
// goroutine that constructed the loop.
func (l *EventLoop) Loop() {
	l.AssertInLoopThread()
	if l.looping.Load() {
		panic("reactor: EventLoop.Loop called twice")
	}
	l.looping.Store(true)
	l.quit.Store(false)

	for !l.quit.Load() {
		l.activeChannels = l.activeChannels[:0]

		timeoutMs := defaultPollTimeoutMs
		if l.timers.timerFd == nil {
			timeoutMs = l.timers.nextTimeout()
		}

		now, err := l.poller.Poll(timeoutMs, &l.activeChannels)
		if err != nil {
			log().Error("poll failed", zapErr(err))
			continue
		}
		l.pollReturnTime = now
		l.iteration++

		l.eventHandling.Store(true)
		for _, ch := range l.activeChannels {
			l.currentActiveChannel = ch
			ch.HandleEvent(l.pollReturnTime)
		}
		l.currentActiveChannel = nil
		l.eventHandling.Store(false)

		if l.timers.timerFd == nil {
			l.timers.handleExpiration(rtime.Now())
		}

		l.doPendingFunctors()
	}

	l.looping.Store(false)
}

// Quit schedules the loop to stop after its current iteration. Safe to
// call from any goroutine.
func (l *EventLoop) Quit() {
	l.quit.Store(true)
	if !l.IsInLoopThread() {
		l.Wakeup()
	}
}

// RunInLoop runs f on the loop's goroutine: inline if called from there
// already, otherwise queued and the loop is woken.
func (l *EventLoop) RunInLoop(f func()) {
	if l.IsInLoopThread() {
		f()
		return
	}
	l.QueueInLoop(f)
}

// QueueInLoop enqueues f unconditionally and wakes the loop if the caller
// is not the owning goroutine, or if the loop is presently draining its
// pending-functor queue (so a functor scheduling another functor isn't
// silently delayed an extra iteration).
func (l *EventLoop) QueueInLoop(f func()) {
	l.mu.Lock()
	l.pendingFunctors = append(l.pendingFunctors, f)
	l.mu.Unlock()

	if !l.IsInLoopThread() || l.callingPendingFunctors.Load() {
		l.Wakeup()
	}
}

// RunAt schedules cb to run at the given time.
func (l *EventLoop) RunAt(when rtime.Time, cb TimerCallback) TimerId {
	return l.timers.addTimer(cb, when, 0, false)
}

// RunAfter schedules cb to run after delaySeconds.
func (l *EventLoop) RunAfter(delaySeconds float64, cb TimerCallback) TimerId {
	return l.RunAt(rtime.Now().AddSeconds(delaySeconds), cb)
}

// RunEvery schedules cb to run every intervalSeconds, starting one interval
// from now.
func (l *EventLoop) RunEvery(intervalSeconds float64, cb TimerCallback) TimerId {
	intervalMicros := rtime.Time(int64(intervalSeconds * 1e6))
	when := rtime.Now().AddSeconds(intervalSeconds)
	return l.timers.addTimer(cb, when, intervalMicros, true)
}

// CancelTimer cancels a previously scheduled timer. Safe from any
// goroutine.
func (l *EventLoop) CancelTimer(id TimerId) {
	l.timers.cancel(id)
}

// UpdateChannel registers ch's current interest mask with the backend.
func (l *EventLoop) UpdateChannel(ch *Channel) {
	if ch.OwnerLoop() != l {
		panic("reactor: Channel does not belong to this EventLoop")
	}
	l.AssertInLoopThread()
	l.poller.UpdateChannel(ch)
}

// RemoveChannel deregisters ch. If called while dispatching the active
// list, ch must be either the channel currently being dispatched or one
// that is not in this iteration's active list.
func (l *EventLoop) RemoveChannel(ch *Channel) {
	if ch.OwnerLoop() != l {
		panic("reactor: Channel does not belong to this EventLoop")
	}
	l.AssertInLoopThread()
	if l.eventHandling.Load() {
		if l.currentActiveChannel != ch {
			for _, active := range l.activeChannels {
				if active == ch {
					panic("reactor: RemoveChannel called on a channel still pending dispatch this iteration")
				}
			}
		}
	}
	l.poller.RemoveChannel(ch)
}

// HasChannel reports whether ch is currently registered with the backend.
func (l *EventLoop) HasChannel(ch *Channel) bool {
	l.AssertInLoopThread()
	return l.poller.HasChannel(ch)
}

// Wakeup performs a single write to the wakeup descriptor; write/read
// byte-count mismatches are logged, never fatal.
func (l *EventLoop) Wakeup() {
	one := uint64(1)
	buf := [8]byte{byte(one)}
	n, err := writeWakeup(l.wakeupWrite, buf[:])
	if err != nil || n != 8 {
		log().Error("EventLoop.Wakeup wrote unexpected byte count", zap.Int("n", n), zapErr(err))
	}
}

func (l *EventLoop) handleWakeupRead(rtime.Time) {
	drainWakeup(l.wakeupRead)
}

// doPendingFunctors swaps out the pending-functor slice under the mutex and
// runs it without the mutex held, so a functor that itself calls
// QueueInLoop does not deadlock.
func (l *EventLoop) doPendingFunctors() {
	l.callingPendingFunctors.Store(true)

	l.mu.Lock()
	functors := l.pendingFunctors
	l.pendingFunctors = nil
	l.mu.Unlock()

	for _, f := range functors {
		f()
	}

	l.callingPendingFunctors.Store(false)
}

// PollReturnTime returns the timestamp of the most recent Poll call.
func (l *EventLoop) PollReturnTime() rtime.Time { return l.pollReturnTime }

// Iteration returns the number of completed loop iterations.
func (l *EventLoop) Iteration() int64 { return l.iteration }

// Context returns the opaque user context attached to this loop.
func (l *EventLoop) Context() interface{} { return l.context }

// SetContext attaches an opaque user context to this loop.
func (l *EventLoop) SetContext(ctx interface{}) { l.context = ctx }

// Close releases the loop's own resources (wakeup fd, timer fd, poller).
// Must be called after Loop returns.
func (l *EventLoop) Close() error {
	l.wakeupChan.DisableAll()
	l.wakeupChan.Remove()
	l.timers.close()
	err := l.poller.Close()

	loopRegistryMu.Lock()
	delete(loopRegistry, l.ownerGoID)
	loopRegistryMu.Unlock()

	if l.wakeupRead != l.wakeupWrite {
		closeFd(l.wakeupWrite)
	}
	closeFd(l.wakeupRead)
	return err
}

// currentLoop returns the EventLoop owning the calling goroutine, or nil.
func currentLoop() *EventLoop {
	goID := goroutineID()
	loopRegistryMu.Lock()
	defer loopRegistryMu.Unlock()
	return loopRegistry[goID]
}
