package reactor

import (
	"testing"

	"github.com/loopcore/reactor/rtime"
)

func TestTimerQueueOrdersByExpirationThenSequence(t *testing.T) {
	loop := NewEventLoop()
	defer loop.Close()

	var order []int
	done := make(chan struct{})

	now := rtime.Now()
	// Three timers sharing the same expiration: insertion order (sequence)
	// must break the tie.
	loop.RunAt(now.AddSeconds(0.02), func() { order = append(order, 1) })
	loop.RunAt(now.AddSeconds(0.02), func() { order = append(order, 2) })
	loop.RunAt(now.AddSeconds(0.02), func() {
		order = append(order, 3)
		loop.Quit()
		close(done)
	})

	loop.Loop()

	<-done
	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Fatalf("timer callbacks ran out of order: %v", order)
	}
}

func TestTimerQueueCancelPreventsFiring(t *testing.T) {
	loop := NewEventLoop()
	defer loop.Close()

	fired := false
	id := loop.RunAfter(0.05, func() { fired = true })
	loop.CancelTimer(id)

	loop.RunAfter(0.1, func() { loop.Quit() })
	loop.Loop()

	if fired {
		t.Fatal("canceled timer fired")
	}
}

func TestTimerQueueRunEveryRepeatsUntilCanceled(t *testing.T) {
	loop := NewEventLoop()
	defer loop.Close()

	count := 0
	var id TimerId
	id = loop.RunEvery(0.01, func() {
		count++
		if count >= 3 {
			loop.CancelTimer(id)
			loop.Quit()
		}
	})
	loop.Loop()

	if count != 3 {
		t.Fatalf("RunEvery fired %d times, want 3", count)
	}
}

func TestTimerQueueCancelFromWithinOwnCallbackStopsRepeat(t *testing.T) {
	loop := NewEventLoop()
	defer loop.Close()

	count := 0
	var id TimerId
	id = loop.RunEvery(0.01, func() {
		count++
		loop.CancelTimer(id) // cancel while mid-callback, before the repeat re-insert
	})
	loop.RunAfter(0.08, func() { loop.Quit() })
	loop.Loop()

	if count != 1 {
		t.Fatalf("timer repeated %d times after self-cancel, want 1", count)
	}
}

func TestTimerQueueNextTimeoutClampsToMinimumWait(t *testing.T) {
	loop := NewEventLoop()
	defer loop.Close()

	loop.timers.addTimerInLoop(&timerEntry{
		expiry: rtime.Now(), // already expired
		seq:    1,
	})
	if got := loop.timers.nextTimeout(); got < 1 {
		t.Fatalf("nextTimeout() = %d, want >= 1ms", got)
	}
}

func TestTimerQueueNextTimeoutReportsDefaultWhenEmpty(t *testing.T) {
	loop := NewEventLoop()
	defer loop.Close()

	if got := loop.timers.nextTimeout(); got != defaultPollTimeoutMs {
		t.Fatalf("nextTimeout() = %d, want %d", got, defaultPollTimeoutMs)
	}
}
