//go:build linux

package reactor

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/loopcore/reactor/rtime"
)

const initialEventListSize = 16

// epollPoller is the table backend: a kernel interest table manipulated
// through EPOLL_CTL_ADD/MOD/DEL, plus a resizable event buffer doubled
// whenever a Poll call saturates it. Each channel's owner pointer travels
// through the epoll_event's Fd field (we carry the fd, not a raw pointer,
// and look the channel back up in a map — Go cannot safely stash a GC
// pointer in kernel memory), so lookup on the ready side is a single map
// read. Grounded on the source's EPollPoller.
type epollPoller struct {
	loop     *EventLoop
	epollFd  int
	events   []unix.EpollEvent
	channels map[int]*Channel
}

func newPlatformPoller(loop *EventLoop) Poller {
	return newEpollPoller(loop)
}

func newEpollPoller(loop *EventLoop) *epollPoller {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		log().Fatal("epoll_create1 failed")
		panic(err)
	}
	return &epollPoller{
		loop:     loop,
		epollFd:  fd,
		events:   make([]unix.EpollEvent, initialEventListSize),
		channels: make(map[int]*Channel),
	}
}

func (p *epollPoller) Poll(timeoutMs int, active *[]*Channel) (rtime.Time, error) {
	n, err := unix.EpollWait(p.epollFd, p.events, timeoutMs)
	now := rtime.Now()
	if err != nil {
		if err == unix.EINTR {
			return now, nil
		}
		return now, err
	}
	if n > 0 {
		p.fillActiveChannels(n, active)
		if n == len(p.events) {
			p.events = make([]unix.EpollEvent, len(p.events)*2)
		}
	}
	return now, nil
}

func (p *epollPoller) fillActiveChannels(numEvents int, active *[]*Channel) {
	for i := 0; i < numEvents; i++ {
		ev := p.events[i]
		ch, ok := p.channels[int(ev.Fd)]
		if !ok {
			continue
		}
		ch.SetRevents(int32(ev.Events))
		*active = append(*active, ch)
	}
}

func (p *epollPoller) UpdateChannel(ch *Channel) {
	tag := channelTag(ch.Index())
	switch tag {
	case channelNew, channelDeleted:
		p.channels[ch.Fd()] = ch
		ch.SetIndex(int(channelAdded))
		p.ctl(unix.EPOLL_CTL_ADD, ch)
	default:
		if ch.IsNoneEvent() {
			p.ctl(unix.EPOLL_CTL_DEL, ch)
			ch.SetIndex(int(channelDeleted))
		} else {
			p.ctl(unix.EPOLL_CTL_MOD, ch)
		}
	}
}

func (p *epollPoller) RemoveChannel(ch *Channel) {
	delete(p.channels, ch.Fd())
	tag := channelTag(ch.Index())
	if tag == channelAdded {
		p.ctl(unix.EPOLL_CTL_DEL, ch)
	}
	ch.SetIndex(int(channelNew))
}

func (p *epollPoller) HasChannel(ch *Channel) bool {
	got, ok := p.channels[ch.Fd()]
	return ok && got == ch
}

func (p *epollPoller) Close() error {
	return unix.Close(p.epollFd)
}

func (p *epollPoller) ctl(op int, ch *Channel) {
	var ev unix.EpollEvent
	ev.Events = uint32(ch.Events())
	ev.Fd = int32(ch.Fd())
	if err := unix.EpollCtl(p.epollFd, op, ch.Fd(), &ev); err != nil {
		if op == unix.EPOLL_CTL_DEL {
			log().Error("epoll_ctl del failed", zapErr(err))
			return
		}
		panic(fmt.Sprintf("reactor: epoll_ctl(%d) fd=%d: %v", op, ch.Fd(), err))
	}
}
