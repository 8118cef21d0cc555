//go:build !linux

package reactor

import "github.com/loopcore/reactor/rtime"

// timerFd rearms a kernel timer descriptor on platforms that provide one.
// Platforms without one (anything but Linux, here) get a nil timerFd; the
// loop then computes its own poll deadline from timerQueue.nextTimeout()
// and drains expirations inline after every Poll call.
type timerFd interface {
	rearm(expiry rtime.Time)
	close() error
}

func newTimerFd(loop *EventLoop, onExpire func(rtime.Time)) timerFd {
	return nil
}
