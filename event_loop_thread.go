package reactor

import (
	"runtime"
	"sync"
)

// ThreadInitFunc runs on a worker goroutine immediately before it starts
// looping, useful for per-loop setup (registering metrics, attaching a
// context value) that must happen on the loop's own goroutine.
type ThreadInitFunc func(loop *EventLoop)

// EventLoopThread owns one goroutine pinned to one OS thread via
// runtime.LockOSThread, running exactly one EventLoop for its lifetime,
// grounded on
// original_source/muduo-cpp11/net/event_loop_thread.cpp.
type EventLoopThread struct {
	mu       sync.Mutex
	cond     *sync.Cond
	loop     *EventLoop
	initFunc ThreadInitFunc
}

// NewEventLoopThread constructs a worker. Call StartLoop to actually spawn
// the goroutine and block until its loop exists.
func NewEventLoopThread(initFunc ThreadInitFunc) *EventLoopThread {
	t := &EventLoopThread{initFunc: initFunc}
	t.cond = sync.NewCond(&t.mu)
	return t
}

// StartLoop spawns the worker goroutine and blocks until its EventLoop has
// been constructed, returning it.
func (t *EventLoopThread) StartLoop() *EventLoop {
	go t.runLoop()

	t.mu.Lock()
	for t.loop == nil {
		t.cond.Wait()
	}
	loop := t.loop
	t.mu.Unlock()
	return loop
}

func (t *EventLoopThread) runLoop() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	loop := NewEventLoop()

	if t.initFunc != nil {
		t.initFunc(loop)
	}

	t.mu.Lock()
	t.loop = loop
	t.cond.Signal()
	t.mu.Unlock()

	loop.Loop()
	loop.Close()
}
