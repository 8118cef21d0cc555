//go:build !linux

package reactor

import "golang.org/x/sys/unix"

// newWakeupPair returns the read side and write side of a connected
// socketpair, used to wake the loop on platforms without eventfd(2).
func newWakeupPair() (readFd, writeFd int, err error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return 0, 0, err
	}
	for _, fd := range fds {
		if err := unix.SetNonblock(fd, true); err != nil {
			unix.Close(fds[0])
			unix.Close(fds[1])
			return 0, 0, err
		}
	}
	return fds[0], fds[1], nil
}
