package reactor

import "testing"

func TestEventLoopThreadPoolZeroThreadsUsesBaseLoop(t *testing.T) {
	base := NewEventLoop()
	defer base.Close()

	pool := NewEventLoopThreadPool(base)
	pool.Start(nil)

	if got := pool.GetNextLoop(); got != base {
		t.Fatal("GetNextLoop() did not return the base loop when numThreads == 0")
	}
	if got := pool.GetLoopForHash(42); got != base {
		t.Fatal("GetLoopForHash() did not return the base loop when numThreads == 0")
	}
	loops := pool.GetAllLoops()
	if len(loops) != 1 || loops[0] != base {
		t.Fatalf("GetAllLoops() = %v, want [base]", loops)
	}
}

func TestEventLoopThreadPoolStartTwicePanics(t *testing.T) {
	base := NewEventLoop()
	defer base.Close()

	pool := NewEventLoopThreadPool(base)
	pool.Start(nil)

	defer func() {
		if recover() == nil {
			t.Fatal("second Start() did not panic")
		}
	}()
	pool.Start(nil)
}

func TestEventLoopThreadPoolSetThreadNumRejectsNegative(t *testing.T) {
	base := NewEventLoop()
	defer base.Close()

	pool := NewEventLoopThreadPool(base)
	defer func() {
		if recover() == nil {
			t.Fatal("SetThreadNum(-1) did not panic")
		}
	}()
	pool.SetThreadNum(-1)
}

func TestEventLoopThreadPoolSpawnsWorkersAndRoundRobins(t *testing.T) {
	base := NewEventLoop()
	defer base.Close()

	pool := NewEventLoopThreadPool(base)
	pool.SetThreadNum(2)
	pool.Start(nil)
	defer func() {
		for _, l := range pool.GetAllLoops() {
			l.Quit()
		}
	}()

	first := pool.GetNextLoop()
	second := pool.GetNextLoop()
	third := pool.GetNextLoop()

	if first == second {
		t.Fatal("round-robin returned the same loop twice in a row with 2 workers")
	}
	if first != third {
		t.Fatal("round-robin did not wrap back to the first worker on the third call")
	}
	if len(pool.GetAllLoops()) != 2 {
		t.Fatalf("GetAllLoops() returned %d loops, want 2", len(pool.GetAllLoops()))
	}
}
