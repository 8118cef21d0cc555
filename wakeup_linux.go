//go:build linux

package reactor

import "golang.org/x/sys/unix"

// newWakeupPair returns the same fd twice: an eventfd(2) counter can be
// both written and read through one descriptor.
func newWakeupPair() (readFd, writeFd int, err error) {
	fd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return 0, 0, err
	}
	return fd, fd, nil
}
