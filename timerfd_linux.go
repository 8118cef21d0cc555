//go:build linux

package reactor

import (
	"golang.org/x/sys/unix"

	"github.com/loopcore/reactor/rtime"
)

// timerFd rearms a kernel timer descriptor so the poll backend itself is
// woken for expirations, instead of the loop computing a poll deadline
// every iteration.
type timerFd interface {
	rearm(expiry rtime.Time)
	close() error
}

// kernelTimerFd wraps timerfd_create(2)/timerfd_settime(2), registered as
// an ordinary read-interest Channel on the owning loop.
type kernelTimerFd struct {
	fd       int
	channel  *Channel
	onExpire func(rtime.Time)
}

func newTimerFd(loop *EventLoop, onExpire func(rtime.Time)) timerFd {
	fd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, unix.TFD_NONBLOCK|unix.TFD_CLOEXEC)
	if err != nil {
		log().Error("timerfd_create failed, falling back to poll-deadline timers", zapErr(err))
		return nil
	}
	t := &kernelTimerFd{fd: fd, onExpire: onExpire}
	t.channel = NewChannel(loop, fd)
	t.channel.SetReadCallback(t.handleRead)
	t.channel.EnableReading()
	return t
}

func (t *kernelTimerFd) handleRead(receiveTime rtime.Time) {
	var buf [8]byte
	n, err := unix.Read(t.fd, buf[:])
	if err != nil || n != 8 {
		log().Warn("timerfd read unexpected byte count", zapErr(err))
	}
	t.onExpire(receiveTime)
}

func (t *kernelTimerFd) rearm(expiry rtime.Time) {
	waitMicros := expiry.DiffMicroseconds(rtime.Now())
	if waitMicros < minWaitMicros {
		waitMicros = minWaitMicros
	}
	spec := unix.ItimerSpec{
		Value: unix.NsecToTimespec(int64(waitMicros) * 1000),
	}
	if err := unix.TimerfdSettime(t.fd, 0, &spec, nil); err != nil {
		log().Error("timerfd_settime failed", zapErr(err))
	}
}

func (t *kernelTimerFd) close() error {
	t.channel.DisableAll()
	t.channel.Remove()
	return unix.Close(t.fd)
}
