package reactor

import (
	"testing"

	"golang.org/x/sys/unix"

	"github.com/loopcore/reactor/rtime"
)

func TestAcceptorListenEnablesReading(t *testing.T) {
	loop := NewEventLoop()
	defer loop.Close()

	a := NewAcceptor(loop, NewInetAddress(19201, true), false)
	if a.Listening() {
		t.Fatal("Listening() = true before Listen was called")
	}
	a.Listen()
	if !a.Listening() {
		t.Fatal("Listening() = false after Listen")
	}
	if !a.channel.IsReading() {
		t.Fatal("acceptor channel not watching for read readiness after Listen")
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close() = %v, want nil", err)
	}
}

func TestAcceptorHandleReadDispatchesNewConnection(t *testing.T) {
	loop := NewEventLoop()
	defer loop.Close()

	a := NewAcceptor(loop, NewInetAddress(19202, true), false)
	a.Listen()
	defer a.Close()

	clientFd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		t.Fatalf("Socket: %v", err)
	}
	defer unix.Close(clientFd)
	sa := &unix.SockaddrInet4{Port: 19202, Addr: [4]byte{127, 0, 0, 1}}
	err = unix.Connect(clientFd, sa)
	if err != nil && err != unix.EINPROGRESS {
		t.Fatalf("Connect: %v", err)
	}

	accepted := make(chan int, 1)
	a.SetNewConnectionCallback(func(connFd int, peer InetAddress) {
		accepted <- connFd
	})

	// Call the read handler directly, retrying a bounded number of times in
	// case the loopback handshake has not completed yet.
	for i := 0; i < 100; i++ {
		a.handleRead(rtime.Now())
		select {
		case fd := <-accepted:
			unix.Close(fd)
			return
		default:
		}
	}
	t.Fatal("acceptor never dispatched the inbound connection")
}
