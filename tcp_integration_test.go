package reactor

import (
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/loopcore/reactor/rtime"
)

// startLoop spins up an EventLoop on its own goroutine and returns it once
// the loop has been constructed (Loop() may not have started yet), along
// with a function to stop and join it.
func startLoop(t *testing.T) (*EventLoop, func()) {
	t.Helper()
	loopCh := make(chan *EventLoop, 1)
	doneCh := make(chan struct{})
	go func() {
		loop := NewEventLoop()
		loopCh <- loop
		loop.Loop()
		loop.Close()
		close(doneCh)
	}()
	loop := <-loopCh
	return loop, func() {
		loop.Quit()
		select {
		case <-doneCh:
		case <-time.After(2 * time.Second):
			t.Fatal("loop did not stop within timeout")
		}
	}
}

func TestServerClientEchoRoundTrip(t *testing.T) {
	serverLoop, stopServer := startLoop(t)
	defer stopServer()
	clientLoop, stopClient := startLoop(t)
	defer stopClient()

	addr := NewInetAddress(19107, true)

	server := NewServer(serverLoop, addr, "EchoTestServer", NoReusePort)
	server.SetMessageCallback(func(conn *Conn, buf *Buffer, _ rtime.Time) {
		conn.SendBuffer(buf)
	})
	serverLoop.RunInLoop(server.Start)

	received := make(chan string, 1)
	client := NewClient(clientLoop, addr, "EchoTestClient")
	client.SetMessageCallback(func(conn *Conn, buf *Buffer, _ rtime.Time) {
		received <- buf.RetrieveAllAsString()
	})
	client.SetConnectionCallback(func(conn *Conn) {
		if conn.Connected() {
			conn.SendString("ping")
		}
	})

	// Give the listener a moment to actually start accepting before the
	// client attempts to connect.
	time.Sleep(50 * time.Millisecond)
	client.Connect()

	select {
	case msg := <-received:
		if msg != "ping" {
			t.Fatalf("echoed message = %q, want %q", msg, "ping")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for echoed message")
	}

	client.Stop()
}

func TestConnHighWaterMarkCallbackFiresWhenOutputBacksUp(t *testing.T) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		t.Fatalf("Socketpair: %v", err)
	}
	peerFd := fds[1]
	defer unix.Close(peerFd)

	loop := NewEventLoop()
	defer loop.Close()

	const mark = 1024
	fired := make(chan int, 1)

	conn := NewConn(loop, "hwm-test", fds[0], InetAddress{}, InetAddress{})
	conn.SetHighWaterMarkCallback(func(c *Conn, total int) { fired <- total }, mark)
	conn.connectEstablished()

	// Nobody ever reads peerFd, so once the kernel socket buffer fills, the
	// remainder must queue in outputBuffer and cross the high-water mark.
	payload := make([]byte, 8*1024*1024)
	conn.Send(payload)

	// The callback is posted via QueueInLoop, so it sits in the pending
	// functor queue until the loop drains it.
	loop.doPendingFunctors()

	select {
	case total := <-fired:
		if total < mark {
			t.Fatalf("high-water callback fired with total=%d, want >= %d", total, mark)
		}
	default:
		t.Fatal("high-water mark callback did not fire after an 8MiB write")
	}
}
