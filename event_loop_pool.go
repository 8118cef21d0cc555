package reactor

// EventLoopThreadPool spawns a fixed number of I/O worker loops and
// round-robins (or hashes) new connections across them, grounded on
// original_source/muduo-cpp11/net/event_loop_thread_pool.cpp.
type EventLoopThreadPool struct {
	baseLoop   *EventLoop
	started    bool
	numThreads int
	next       int

	threads []*EventLoopThread
	loops   []*EventLoop
}

// NewEventLoopThreadPool creates a pool anchored to baseLoop, which also
// serves as the sole loop when numThreads is zero.
func NewEventLoopThreadPool(baseLoop *EventLoop) *EventLoopThreadPool {
	return &EventLoopThreadPool{baseLoop: baseLoop}
}

// SetThreadNum configures the number of worker loops to spawn on Start.
// Zero means every connection is handled on the base loop.
func (p *EventLoopThreadPool) SetThreadNum(n int) {
	if n < 0 {
		panic("reactor: EventLoopThreadPool thread count must be >= 0")
	}
	p.numThreads = n
}

// Start spawns the configured worker loops. initFunc, if non-nil, runs on
// each worker's goroutine (and on the base loop, if numThreads is zero)
// before that loop's own Loop begins.
func (p *EventLoopThreadPool) Start(initFunc ThreadInitFunc) {
	if p.started {
		panic("reactor: EventLoopThreadPool.Start called twice")
	}
	p.baseLoop.AssertInLoopThread()
	p.started = true

	for i := 0; i < p.numThreads; i++ {
		t := NewEventLoopThread(initFunc)
		p.loops = append(p.loops, t.StartLoop())
		p.threads = append(p.threads, t)
	}

	if p.numThreads == 0 && initFunc != nil {
		initFunc(p.baseLoop)
	}
}

// GetNextLoop returns the next loop in round-robin order, or the base loop
// if no workers were spawned.
func (p *EventLoopThreadPool) GetNextLoop() *EventLoop {
	p.baseLoop.AssertInLoopThread()
	if !p.started {
		panic("reactor: EventLoopThreadPool.GetNextLoop called before Start")
	}
	loop := p.baseLoop
	if len(p.loops) > 0 {
		loop = p.loops[p.next]
		p.next = (p.next + 1) % len(p.loops)
	}
	return loop
}

// GetLoopForHash returns a deterministically hash-selected loop, or the
// base loop if no workers were spawned.
func (p *EventLoopThreadPool) GetLoopForHash(hashCode uint64) *EventLoop {
	p.baseLoop.AssertInLoopThread()
	if len(p.loops) == 0 {
		return p.baseLoop
	}
	return p.loops[hashCode%uint64(len(p.loops))]
}

// GetAllLoops returns every worker loop, or a single-element slice holding
// the base loop if no workers were spawned.
func (p *EventLoopThreadPool) GetAllLoops() []*EventLoop {
	p.baseLoop.AssertInLoopThread()
	if len(p.loops) == 0 {
		return []*EventLoop{p.baseLoop}
	}
	return p.loops
}
