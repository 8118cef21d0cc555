package reactor

import (
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/loopcore/reactor/rtime"
)

// event bits, aliased from poll(2)/epoll(7) so both backends share one
// vocabulary regardless of which syscall produced them.
const (
	eventNone  = 0
	eventRead  = unix.POLLIN | unix.POLLPRI
	eventWrite = unix.POLLOUT
)

// channelTag is the table backend's per-channel bookkeeping state; the array
// backend ignores it.
type channelTag int

const (
	channelNew     channelTag = -1
	channelAdded   channelTag = 1
	channelDeleted channelTag = 2
)

// ReadEventFunc is invoked on read readiness with the poll-return time.
type ReadEventFunc func(receiveTime rtime.Time)

// EventFunc is invoked on write/close/error readiness.
type EventFunc func()

// livenessFunc reports whether a tied owner is still alive. It stands in
// for std::weak_ptr::lock(): Go has no portable pre-1.24 weak pointer, and
// the owning Conn is kept alive independently by the server's connection
// map (see tcp_connection.go), so Tie only needs a liveness check, not a
// lifetime-extending upgrade.
type livenessFunc func() bool

// Channel is a selectable I/O handle: it binds one file descriptor to its
// owning loop, declares interest in read/write readiness, and routes each
// readiness kind to a user-installed callback. A Channel does not own fd;
// the owner (Conn, Acceptor, Connector, or the loop's own wakeup/timer fds)
// is responsible for closing it.
type Channel struct {
	loop *EventLoop
	fd   int

	events  int32
	revents int32
	index   int // backend-private: array position, or channelTag for epoll

	logHUP bool

	tied         bool
	tieCheck     livenessFunc
	eventHandling bool
	addedToLoop  bool

	readCallback  ReadEventFunc
	writeCallback EventFunc
	closeCallback EventFunc
	errorCallback EventFunc
}

// NewChannel binds fd to loop. The channel starts with no interest
// registered; call EnableReading/EnableWriting to subscribe.
func NewChannel(loop *EventLoop, fd int) *Channel {
	return &Channel{
		loop:   loop,
		fd:     fd,
		index:  -1,
		logHUP: true,
	}
}

// Fd returns the bound file descriptor.
func (c *Channel) Fd() int { return c.fd }

// Events returns the currently declared interest mask.
func (c *Channel) Events() int32 { return c.events }

// SetRevents is used by the poll backends to report the ready mask; not for
// general use.
func (c *Channel) SetRevents(revents int32) { c.revents = revents }

// IsNoneEvent reports whether the channel currently declares no interest.
func (c *Channel) IsNoneEvent() bool { return c.events == eventNone }

// IsWriting reports whether write readiness is currently of interest.
func (c *Channel) IsWriting() bool { return c.events&eventWrite != 0 }

// IsReading reports whether read readiness is currently of interest.
func (c *Channel) IsReading() bool { return c.events&eventRead != 0 }

func (c *Channel) Index() int        { return c.index }
func (c *Channel) SetIndex(idx int)  { c.index = idx }

// EnableReading declares interest in read readiness.
func (c *Channel) EnableReading() { c.events |= eventRead; c.update() }

// DisableReading withdraws interest in read readiness.
func (c *Channel) DisableReading() { c.events &^= eventRead; c.update() }

// EnableWriting declares interest in write readiness.
func (c *Channel) EnableWriting() { c.events |= eventWrite; c.update() }

// DisableWriting withdraws interest in write readiness.
func (c *Channel) DisableWriting() { c.events &^= eventWrite; c.update() }

// DisableAll withdraws all interest.
func (c *Channel) DisableAll() { c.events = eventNone; c.update() }

// DoNotLogHup suppresses the warning normally logged on a bare HUP.
func (c *Channel) DoNotLogHup() { c.logHUP = false }

// SetReadCallback installs the read-readiness callback.
func (c *Channel) SetReadCallback(f ReadEventFunc) { c.readCallback = f }

// SetWriteCallback installs the write-readiness callback.
func (c *Channel) SetWriteCallback(f EventFunc) { c.writeCallback = f }

// SetCloseCallback installs the close callback (fired on a bare HUP).
func (c *Channel) SetCloseCallback(f EventFunc) { c.closeCallback = f }

// SetErrorCallback installs the error callback (fired on ERR or NVAL).
func (c *Channel) SetErrorCallback(f EventFunc) { c.errorCallback = f }

// Tie binds the channel's dispatch to the liveness of an owner. While tied,
// HandleEvent checks alive() before dispatching and silently skips the
// event if the owner reports itself gone.
func (c *Channel) Tie(alive livenessFunc) {
	c.tieCheck = alive
	c.tied = true
}

// OwnerLoop returns the loop this channel was constructed with.
func (c *Channel) OwnerLoop() *EventLoop { return c.loop }

// Remove unregisters the channel from its owning loop's backend. The
// channel must declare no interest first.
func (c *Channel) Remove() {
	if !c.IsNoneEvent() {
		panic("reactor: Channel.Remove called with non-empty interest set")
	}
	c.addedToLoop = false
	c.loop.RemoveChannel(c)
}

func (c *Channel) update() {
	c.addedToLoop = true
	c.loop.UpdateChannel(c)
}

// HandleEvent dispatches the last poll-reported readiness mask to the
// installed callbacks, honoring the tie liveness check.
func (c *Channel) HandleEvent(receiveTime rtime.Time) {
	if c.tied {
		if c.tieCheck == nil || !c.tieCheck() {
			return
		}
	}
	c.handleEventWithGuard(receiveTime)
}

func (c *Channel) handleEventWithGuard(receiveTime rtime.Time) {
	c.eventHandling = true
	defer func() { c.eventHandling = false }()

	revents := c.revents

	if revents&unix.POLLHUP != 0 && revents&unix.POLLIN == 0 {
		if c.logHUP {
			log().Warn("channel handle_event: POLLHUP", zap.Int("fd", c.fd))
		}
		if c.closeCallback != nil {
			c.closeCallback()
		}
	}

	if revents&unix.POLLNVAL != 0 {
		log().Warn("channel handle_event: POLLNVAL", zap.Int("fd", c.fd))
	}

	if revents&(unix.POLLERR|unix.POLLNVAL) != 0 {
		if c.errorCallback != nil {
			c.errorCallback()
		}
	}

	if revents&int32(eventRead|unix.POLLRDHUP) != 0 {
		if c.readCallback != nil {
			c.readCallback(receiveTime)
		}
	}

	if revents&unix.POLLOUT != 0 {
		if c.writeCallback != nil {
			c.writeCallback()
		}
	}
}
