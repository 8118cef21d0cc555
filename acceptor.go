package reactor

import (
	"go.uber.org/multierr"
	"golang.org/x/sys/unix"

	"github.com/loopcore/reactor/rtime"
)

// NewConnectionFunc is invoked on the loop's own goroutine for every
// accepted connection.
type NewConnectionFunc func(connFd int, peer InetAddress)

// Acceptor owns a listening socket and the Channel that watches it for
// read readiness (an inbound connection), grounded on
// original_source/muduo-cpp11/net/acceptor.cpp.
type Acceptor struct {
	loop       *EventLoop
	acceptFd   int
	channel    *Channel
	listening  bool
	idleFd     int
	newConnFn  NewConnectionFunc
}

// NewAcceptor creates a listening socket bound to addr. reusePort enables
// SO_REUSEPORT so multiple acceptors across loops can share one port.
func NewAcceptor(loop *EventLoop, addr InetAddress, reusePort bool) *Acceptor {
	fd := createNonblockingSocketOrDie()
	idleFd, err := unix.Open("/dev/null", unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		log().Fatal("failed to open spare descriptor", zapErr(err))
	}

	a := &Acceptor{
		loop:     loop,
		acceptFd: fd,
		idleFd:   idleFd,
	}

	setReuseAddr(fd, true)
	setReusePort(fd, reusePort)
	bindOrDie(fd, addr)

	a.channel = NewChannel(loop, fd)
	a.channel.SetReadCallback(a.handleRead)
	return a
}

// SetNewConnectionCallback installs the callback invoked for each accepted
// connection.
func (a *Acceptor) SetNewConnectionCallback(f NewConnectionFunc) { a.newConnFn = f }

// Listening reports whether Listen has been called.
func (a *Acceptor) Listening() bool { return a.listening }

// Listen starts accepting connections. Must run on the owning loop.
func (a *Acceptor) Listen() {
	a.loop.AssertInLoopThread()
	a.listening = true
	listenOrDie(a.acceptFd)
	a.channel.EnableReading()
}

// Close releases the acceptor's descriptors, reporting every close
// failure rather than only the first.
func (a *Acceptor) Close() error {
	a.channel.DisableAll()
	a.channel.Remove()
	err := closeSocket(a.idleFd)
	err = multierr.Append(err, closeSocket(a.acceptFd))
	return err
}

func (a *Acceptor) handleRead(rtime.Time) {
	a.loop.AssertInLoopThread()

	connFd, peer, err := acceptNonblocking(a.acceptFd)
	if err == nil {
		if a.newConnFn != nil {
			a.newConnFn(connFd, peer)
		} else {
			closeSocket(connFd)
		}
		return
	}

	log().Error("accept failed", zapErr(err))

	// The special problem of accept()ing when the process is out of file
	// descriptors: close a spare idle fd to free one slot, accept and
	// immediately drop the pending connection using it, then reopen the
	// spare so the next EMFILE can be handled the same way.
	if err == unix.EMFILE {
		closeSocket(a.idleFd)
		a.idleFd, _, _ = unix.Accept(a.acceptFd)
		closeSocket(a.idleFd)
		a.idleFd, _ = unix.Open("/dev/null", unix.O_RDONLY|unix.O_CLOEXEC, 0)
	}
}
