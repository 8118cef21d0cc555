package reactor

import (
	"os"

	"github.com/loopcore/reactor/rtime"
)

// envForcePoll, when set to any non-empty value, forces every new loop to
// use the portable array backend even on platforms where the table backend
// (epoll) is available.
const envForcePoll = "REACTOR_USE_POLL"

// Poller is a readiness-engine backend: a linear-scan array poller (every
// platform) or a kernel interest-table poller (epoll, Linux only). Exactly
// one poller is owned by each EventLoop, chosen once at construction.
type Poller interface {
	// Poll blocks for up to timeoutMs milliseconds (a negative value waits
	// indefinitely is never used by the loop, which always supplies a
	// concrete deadline), appends every channel with a non-zero ready mask
	// to active, and returns the time poll returned.
	Poll(timeoutMs int, active *[]*Channel) (rtime.Time, error)

	// UpdateChannel (re)registers a channel's current interest mask.
	UpdateChannel(ch *Channel)

	// RemoveChannel deregisters a channel. The channel must declare no
	// interest.
	RemoveChannel(ch *Channel)

	// HasChannel reports whether ch is currently registered.
	HasChannel(ch *Channel) bool

	// Close releases backend resources (epoll fd, etc).
	Close() error
}

// newPoller selects the table backend where available, unless envForcePoll
// is set, in which case it falls back to the portable array backend.
func newPoller(loop *EventLoop) Poller {
	if os.Getenv(envForcePoll) != "" {
		return newArrayPoller(loop)
	}
	return newPlatformPoller(loop)
}
