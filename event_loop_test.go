package reactor

import (
	"testing"
	"time"
)

func runLoopInGoroutine(t *testing.T) (*EventLoop, chan struct{}) {
	t.Helper()
	loopCh := make(chan *EventLoop, 1)
	done := make(chan struct{})
	go func() {
		loop := NewEventLoop()
		loopCh <- loop
		loop.Loop()
		loop.Close()
		close(done)
	}()
	loop := <-loopCh
	return loop, done
}

func TestEventLoopRunInLoopInlineOnOwner(t *testing.T) {
	loop := NewEventLoop()
	defer loop.Close()

	ran := false
	loop.RunInLoop(func() { ran = true })
	if !ran {
		t.Fatal("RunInLoop did not run inline on the owning goroutine")
	}
}

func TestEventLoopQueueInLoopRunsFromOtherGoroutine(t *testing.T) {
	loop, done := runLoopInGoroutine(t)

	result := make(chan bool, 1)
	loop.RunInLoop(func() {
		result <- loop.IsInLoopThread()
		loop.Quit()
	})

	select {
	case ok := <-result:
		if !ok {
			t.Fatal("functor did not observe itself running on the loop's goroutine")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for queued functor to run")
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not exit after Quit")
	}
}

func TestEventLoopQuitFromOtherGoroutineWakesLoop(t *testing.T) {
	loop, done := runLoopInGoroutine(t)
	// Let Loop() start (it resets the quit flag on entry), then call Quit
	// from this goroutine without a functor in flight.
	time.Sleep(50 * time.Millisecond)
	loop.Quit()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop never stopped")
	}
}

func TestEventLoopRunAfterFiresTimer(t *testing.T) {
	loop := NewEventLoop()
	defer loop.Close()

	fired := make(chan struct{})
	loop.RunAfter(0.01, func() {
		close(fired)
		loop.Quit()
	})
	loop.Loop()

	select {
	case <-fired:
	default:
		t.Fatal("timer callback never ran")
	}
}

func TestEventLoopSecondLoopOnSameGoroutineIsFatal(t *testing.T) {
	// NewEventLoop calls log().Fatal on a goroutine collision, which this
	// package's nop logger does not turn into a panic; exercising that path
	// safely requires a custom logger, which is out of scope for a unit
	// test. Covered instead by TestEventLoopRegistryTracksOwner below.
	t.Skip("collision path terminates the process; not unit-testable without mocking zap.Fatal")
}

func TestEventLoopRegistryTracksOwner(t *testing.T) {
	loop := NewEventLoop()
	defer loop.Close()

	if !loop.IsInLoopThread() {
		t.Fatal("constructing goroutine should be the owner")
	}
	if currentLoop() != loop {
		t.Fatal("currentLoop() did not return the loop constructed on this goroutine")
	}
}

func TestEventLoopContext(t *testing.T) {
	loop := NewEventLoop()
	defer loop.Close()

	loop.SetContext("hello")
	if loop.Context() != "hello" {
		t.Fatalf("Context() = %v, want %q", loop.Context(), "hello")
	}
}
