package reactor

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/loopcore/reactor/rtime"
)

// arrayPoller is the portable backend: a parallel array of unix.PollFd
// entries plus a map from fd to the owning Channel, walked linearly on
// every Poll call. Grounded on the source's PollPoller, which wraps
// ::poll(2) the same way.
type arrayPoller struct {
	loop     *EventLoop
	pollfds  []unix.PollFd
	channels map[int]*Channel
}

func newArrayPoller(loop *EventLoop) *arrayPoller {
	return &arrayPoller{
		loop:     loop,
		channels: make(map[int]*Channel),
	}
}

func (p *arrayPoller) Poll(timeoutMs int, active *[]*Channel) (rtime.Time, error) {
	n, err := unix.Poll(p.pollfds, timeoutMs)
	now := rtime.Now()
	if err != nil {
		if err == unix.EINTR {
			return now, nil
		}
		return now, err
	}
	if n > 0 {
		p.fillActiveChannels(n, active)
	}
	return now, nil
}

func (p *arrayPoller) fillActiveChannels(numEvents int, active *[]*Channel) {
	for i := 0; i < len(p.pollfds) && numEvents > 0; i++ {
		pfd := &p.pollfds[i]
		if pfd.Revents == 0 {
			continue
		}
		numEvents--
		ch, ok := p.channels[int(pfd.Fd)]
		if !ok {
			continue
		}
		ch.SetRevents(int32(pfd.Revents))
		*active = append(*active, ch)
	}
}

func (p *arrayPoller) UpdateChannel(ch *Channel) {
	if ch.Index() < 0 {
		p.channels[ch.Fd()] = ch
		p.pollfds = append(p.pollfds, unix.PollFd{
			Fd:     int32(ch.Fd()),
			Events: int16(ch.Events()),
		})
		ch.SetIndex(len(p.pollfds) - 1)
		return
	}

	idx := ch.Index()
	if idx < 0 || idx >= len(p.pollfds) || int(p.pollfds[idx].Fd) != ch.Fd() &&
		int(p.pollfds[idx].Fd) != -ch.Fd()-1 {
		panic(fmt.Sprintf("reactor: arrayPoller.UpdateChannel index %d out of sync for fd %d", idx, ch.Fd()))
	}
	pfd := &p.pollfds[idx]
	pfd.Events = int16(ch.Events())
	pfd.Revents = 0
	if ch.IsNoneEvent() {
		// Keep the slot (avoids an index shuffle mid-iteration) but make
		// poll(2) ignore it by negating the fd, as the source does.
		pfd.Fd = int32(-ch.Fd() - 1)
	} else {
		pfd.Fd = int32(ch.Fd())
	}
}

func (p *arrayPoller) RemoveChannel(ch *Channel) {
	idx := ch.Index()
	if idx < 0 || idx >= len(p.pollfds) {
		return
	}
	delete(p.channels, ch.Fd())

	last := len(p.pollfds) - 1
	if idx != last {
		p.pollfds[idx] = p.pollfds[last]
		movedFd := int(p.pollfds[idx].Fd)
		if movedFd < 0 {
			movedFd = -movedFd - 1
		}
		if moved, ok := p.channels[movedFd]; ok {
			moved.SetIndex(idx)
		}
	}
	p.pollfds = p.pollfds[:last]
	ch.SetIndex(-1)
}

func (p *arrayPoller) HasChannel(ch *Channel) bool {
	got, ok := p.channels[ch.Fd()]
	return ok && got == ch
}

func (p *arrayPoller) Close() error { return nil }
