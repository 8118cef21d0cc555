package reactor

import "testing"

func TestConnectorRetryBackoffDoublesAndClamps(t *testing.T) {
	loop := NewEventLoop()
	defer loop.Close()

	addr := NewInetAddress(1, true) // nothing needs to actually listen here
	c := NewConnector(loop, addr)
	c.connect = true

	wantDelays := []int{initRetryDelayMs, initRetryDelayMs * 2, initRetryDelayMs * 4, initRetryDelayMs * 8,
		initRetryDelayMs * 16, initRetryDelayMs * 32, maxRetryDelayMs, maxRetryDelayMs}
	for _, want := range wantDelays {
		if c.retryDelayMs != want {
			t.Fatalf("retryDelayMs = %d, want %d", c.retryDelayMs, want)
		}
		fd := createNonblockingSocketOrDie()
		c.retry(fd) // schedules via RunAfter, which runs inline on this (owning) goroutine
	}
}

func TestConnectorRetryDelayClampsAtMaximum(t *testing.T) {
	loop := NewEventLoop()
	defer loop.Close()

	c := NewConnector(loop, NewInetAddress(1, true))
	c.connect = true
	c.retryDelayMs = maxRetryDelayMs

	fd := createNonblockingSocketOrDie()
	c.retry(fd)
	if c.retryDelayMs != maxRetryDelayMs {
		t.Fatalf("retryDelayMs = %d, want clamped to %d", c.retryDelayMs, maxRetryDelayMs)
	}
}

func TestConnectorRetryDoesNothingOnceStopped(t *testing.T) {
	loop := NewEventLoop()
	defer loop.Close()

	c := NewConnector(loop, NewInetAddress(1, true))
	c.connect = false

	before := c.retryDelayMs
	fd := createNonblockingSocketOrDie()
	c.retry(fd)
	if c.retryDelayMs != before {
		t.Fatalf("retryDelayMs changed after Stop: %d -> %d", before, c.retryDelayMs)
	}
	if c.state != connectorDisconnected {
		t.Fatalf("state = %v, want disconnected", c.state)
	}
}

func TestConnectorDoConnectRefusedRetries(t *testing.T) {
	loop := NewEventLoop()
	defer loop.Close()

	// Port 1 on loopback is essentially guaranteed closed in any sandboxed
	// test environment, so the non-blocking connect should fail fast with
	// ECONNREFUSED (or at worst time out as EINPROGRESS, which is also a
	// valid transition this test tolerates).
	c := NewConnector(loop, NewInetAddress(1, true))
	c.connect = true
	c.doConnect()

	if c.state != connectorConnecting && c.state != connectorDisconnected {
		t.Fatalf("unexpected connector state after doConnect: %v", c.state)
	}
}
